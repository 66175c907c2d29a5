package cron

import (
	"context"
	"fmt"
	"strings"
)

// Job is one unit of housekeeping executed on every scheduler tick.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// checkJobs rejects nil entries and blank or repeated names; metric labels
// and log fields key on the name so it has to be unique.
func checkJobs(jobs []Job) ([]Job, error) {
	seen := make(map[string]struct{}, len(jobs))
	out := make([]Job, 0, len(jobs))
	for i, job := range jobs {
		if job == nil {
			return nil, fmt.Errorf("job %d is nil", i)
		}
		name := strings.TrimSpace(job.Name())
		if name == "" {
			return nil, fmt.Errorf("job %d has no name", i)
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("job %q registered twice", name)
		}
		seen[name] = struct{}{}
		out = append(out, job)
	}
	return out, nil
}
