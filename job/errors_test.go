package job

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrOOMWrappedIsDetectable(t *testing.T) {
	err := fmt.Errorf("shard 2: %w", ErrOOM)
	if !errors.Is(err, ErrOOM) {
		t.Fatal("wrapped ErrOOM should satisfy errors.Is")
	}
	if errors.Is(err, ErrTimeout) {
		t.Fatal("wrapped ErrOOM should not satisfy errors.Is(ErrTimeout)")
	}
}

func TestErrTimeoutWrappedIsDetectable(t *testing.T) {
	err := fmt.Errorf("shard 0: %w", ErrTimeout)
	if !errors.Is(err, ErrTimeout) {
		t.Fatal("wrapped ErrTimeout should satisfy errors.Is")
	}
}
