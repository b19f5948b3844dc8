package fsref

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/grailbio/base/errors"
	"github.com/rwth-i6/sisyphus-go/role"
)

// Variable is a reference to a single small value written atomically under
// a job's directory, used for scalar job outputs such as "number of
// training epochs completed" (spec.md §4.B). Unlike Path, a Variable knows
// how to decode its own content once available.
type Variable struct {
	Path Path
}

// NewVariable wraps p as a Variable reference.
func NewVariable(p Path) Variable { return Variable{Path: p} }

// Fingerprint delegates to the underlying Path: two Variables naming the
// same location hash equal (spec.md §4.A).
func (v Variable) Fingerprint() []byte { return v.Path.Fingerprint() }

// Get decodes the variable's JSON-encoded content into out. It is an error
// to call Get before the variable is available; callers are expected to
// have already checked Path.Available. Disallowed outside a worker task
// (spec.md §4.B's edge rule): ctx must carry role.Worker, which the
// `worker` subcommand attaches before calling worker.Run.
func (v Variable) Get(ctx context.Context, jobDir func(string) string, out interface{}) error {
	if role.From(ctx) != role.Worker {
		return errors.E(errors.NotAllowed, fmt.Sprintf("variable %s: Get is only allowed from a worker task", v.Path))
	}
	abs := v.Path.Resolve(jobDir)
	data, err := os.ReadFile(abs)
	if err != nil {
		return errors.E(errors.NotExist, fmt.Sprintf("variable %s not readable", v.Path), err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return errors.E(errors.Invalid, fmt.Sprintf("variable %s is not valid JSON", v.Path), err)
	}
	return nil
}

// Set atomically writes val as the variable's content: encode to a
// temporary file in the same directory, then rename over the final path,
// so a concurrent reader never observes a partially-written variable. This
// mirrors the write-then-commit idiom of a task output partition in the
// teacher's worker store. Disallowed outside a worker task, same rule as
// Get.
func Set(ctx context.Context, jobDir func(string) string, v Variable, val interface{}) error {
	if role.From(ctx) != role.Worker {
		return errors.E(errors.NotAllowed, fmt.Sprintf("variable %s: Set is only allowed from a worker task", v.Path))
	}
	abs := v.Path.Resolve(jobDir)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return errors.E(errors.Fatal, "create variable directory", err)
	}
	data, err := json.Marshal(val)
	if err != nil {
		return errors.E(errors.Invalid, "encode variable value", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(abs), ".tmp-var-*")
	if err != nil {
		return errors.E(errors.Fatal, "create temp file for variable", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.E(errors.Fatal, "write variable temp file", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.E(errors.Fatal, "close variable temp file", err)
	}
	if err := os.Rename(tmpName, abs); err != nil {
		os.Remove(tmpName)
		return errors.E(errors.Fatal, "commit variable file", err)
	}
	return nil
}
