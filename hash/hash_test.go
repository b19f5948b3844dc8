package hash

import (
	"testing"

	"github.com/google/gofuzz"
)

type sample struct {
	Name    string
	Count   int
	Weight  float64
	Tags    []string
	Nested  *sample
	Ignored string `sisyphus:"nohash"`
}

func TestHashIsPure(t *testing.T) {
	f := fuzz.New().NilChance(0.2).NumElements(0, 5)
	for i := 0; i < 200; i++ {
		var s sample
		f.Fuzz(&s)
		s.Nested = nil // avoid fuzzer-generated self-referential cycles

		d1, err := Hash(s)
		if err != nil {
			t.Fatalf("Hash: %v", err)
		}
		d2, err := Hash(s)
		if err != nil {
			t.Fatalf("Hash (second call): %v", err)
		}
		if d1 != d2 {
			t.Fatalf("Hash not pure: %v != %v for %+v", d1, d2, s)
		}
	}
}

func TestHashIgnoresTaggedField(t *testing.T) {
	a := sample{Name: "x", Count: 1, Ignored: "one"}
	b := sample{Name: "x", Count: 1, Ignored: "two"}
	da, err := Hash(a)
	if err != nil {
		t.Fatal(err)
	}
	db, err := Hash(b)
	if err != nil {
		t.Fatal(err)
	}
	if da != db {
		t.Fatalf("nohash field changed digest: %v != %v", da, db)
	}
}

func TestHashDistinguishesOrder(t *testing.T) {
	a := sample{Tags: []string{"a", "b"}}
	b := sample{Tags: []string{"b", "a"}}
	da, _ := Hash(a)
	db, _ := Hash(b)
	if da == db {
		t.Fatal("sequence order should affect hash")
	}
}

func TestHashSetIgnoresOrder(t *testing.T) {
	a := Set{"a", "b", "c"}
	b := Set{"c", "a", "b"}
	da, err := Hash(a)
	if err != nil {
		t.Fatal(err)
	}
	db, err := Hash(b)
	if err != nil {
		t.Fatal(err)
	}
	if da != db {
		t.Fatal("set hash should be order-independent")
	}
}

func TestHashMapIgnoresInsertionOrder(t *testing.T) {
	m1 := map[string]int{"a": 1, "b": 2}
	m2 := map[string]int{"b": 2, "a": 1}
	d1, err := Hash(m1)
	if err != nil {
		t.Fatal(err)
	}
	d2, err := Hash(m2)
	if err != nil {
		t.Fatal(err)
	}
	if d1 != d2 {
		t.Fatal("map hash should be insertion-order independent")
	}
}

func TestHashDetectsCycle(t *testing.T) {
	s := &sample{Name: "root"}
	s.Nested = s
	if _, err := Hash(s); err == nil {
		t.Fatal("expected non-hashable cycle error")
	}
}

type fingerprinted struct{ tag string }

func (f fingerprinted) Fingerprint() []byte { return []byte(f.tag) }

func TestHashUsesFingerprinter(t *testing.T) {
	a := fingerprinted{tag: "same"}
	b := fingerprinted{tag: "same"}
	da, _ := Hash(a)
	db, _ := Hash(b)
	if da != db {
		t.Fatal("equal fingerprints should hash equal")
	}

	c := fingerprinted{tag: "different"}
	dc, _ := Hash(c)
	if da == dc {
		t.Fatal("different fingerprints should hash different")
	}
}

func TestHashDistinguishesTypes(t *testing.T) {
	type a struct{ X int }
	type b struct{ X int }
	da, _ := Hash(a{X: 1})
	db, _ := Hash(b{X: 1})
	if da == db {
		t.Fatal("different record type names should not collide")
	}
}
