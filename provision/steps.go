// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package provision

import (
	"context"

	"github.com/juju/errors"
)

// Step is one named unit of a deployment run. Steps are expected to be
// idempotent so that a failed deployment can simply be re-run.
type Step struct {
	Name string
	Run  func(ctx context.Context) error
}

// RunSteps executes steps in order. The first failure aborts the
// remainder of the run; the returned error names the failed step and
// carries the underlying cause unchanged.
func RunSteps(ctx context.Context, steps []Step) error {
	for i, step := range steps {
		logger.Infof("step %d/%d: %s", i+1, len(steps), step.Name)
		if err := step.Run(ctx); err != nil {
			return errors.Annotatef(err, "step %q", step.Name)
		}
	}
	return nil
}
