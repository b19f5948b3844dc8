package exec

import "github.com/rwth-i6/sisyphus-go/markerfs"

func jobDirUnder(workDir, sisyphusID string) string {
	return markerfs.JobDir(workDir, sisyphusID)
}
