package job

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"os"

	"github.com/rwth-i6/sisyphus-go/markerfs"
)

// Register makes a recipe-defined Job type decodable out of job.save. A
// recipe package must call this once per concrete Job type it defines,
// mirroring exec/bigmachine.go's gob.Register(&worker{}) registering its
// own RPC-carried types.
func Register(j Job) {
	gob.Register(j)
}

// envelope carries a Job through gob as an interface value; gob needs a
// concrete addressable target to decode into, so Save/Load box and unbox
// through this wrapper rather than gob-encoding the Job interface bare.
type envelope struct {
	J Job
}

// Save serializes j to jobDir's job.save marker (spec.md §4.F step 1:
// "serialize the job" during materialization), via the same
// tempfile-then-rename atomicity every other marker in markerfs uses.
func Save(jobDir string, j Job) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(envelope{J: j}); err != nil {
		return fmt.Errorf("job: encoding %s for job.save: %w", j.ClassName(), err)
	}
	return markerfs.WriteAtomic(markerfs.JobSavePath(jobDir), buf.Bytes())
}

// Load deserializes the job.save marker under jobDir (spec.md §4.G step 3:
// "Deserialize the job from job.save"). The concrete type must already be
// registered via Register, normally by the recipe package's init().
func Load(jobDir string) (Job, error) {
	data, err := os.ReadFile(markerfs.JobSavePath(jobDir))
	if err != nil {
		return nil, fmt.Errorf("job: reading job.save: %w", err)
	}
	var env envelope
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&env); err != nil {
		return nil, fmt.Errorf("job: decoding job.save: %w", err)
	}
	return env.J, nil
}
