// Package job defines the Job/Task data model (spec.md §3, §4.C): the
// contract a recipe-defined unit of work must satisfy, the sisyphus-id
// identity computation that drives deduplication, and task resource
// requirements and escalation policy.
package job

import (
	"context"
	"fmt"

	"github.com/rwth-i6/sisyphus-go/hash"
)

// Job is the capability set a recipe-defined job must implement. The
// graph package interns instances of Job by sisyphus-id (spec.md §4.D);
// the manager reads Tasks to know what work a job decomposes into.
type Job interface {
	// ClassName is the name embedded in the job's sisyphus-id — normally
	// the recipe type's name, but left to the implementation so a recipe
	// can group variants under one logical class.
	ClassName() string
	// Tasks returns this job's task definitions in execution order. The
	// job is finished once every shard of every task is finished
	// (spec.md §4.C).
	Tasks() []*TaskDef
	// RunTask executes the named task function against shard, invoked by
	// the worker after deserializing job.save (spec.md §4.G step 4). name
	// is a TaskDef.FunctionName or ResumeFunctionName.
	RunTask(ctx context.Context, name string, shard int) error
}

// Identity computes the sisyphus-id for j under modulePath, following
// spec.md §3: "<module_path>/<ClassName>.<base64url(hash)>", where hash is
// the SHA-256 over the canonical encoding of (ClassName, kept input
// arguments). A job opts fields out of "kept input arguments" by
// implementing hash.Excluder.
func Identity(modulePath string, j Job) (string, hash.Digest, error) {
	digest, err := hash.Hash(identityRecord{ClassName: j.ClassName(), Args: j})
	if err != nil {
		return "", hash.Digest{}, fmt.Errorf("job: computing sisyphus-id for %s: %w", j.ClassName(), err)
	}
	return fmt.Sprintf("%s/%s.%s", modulePath, j.ClassName(), digest.Base64URL()), digest, nil
}

type identityRecord struct {
	ClassName string
	Args      Job
}
