package ops

import (
	"context"

	"github.com/hpungsan/venvkeep/internal/errors"
)

// RestoreInput contains parameters for the Restore operation.
type RestoreInput struct {
	Interpreter  string            // required
	Snapshot     map[string]string // desired state; used when SnapshotFile is empty
	SnapshotFile string
	Mirror       string // index URL
	DryRun       bool   // plan only
	Reporter     Reporter
}

// RestoreOutput contains the result of the Restore operation.
type RestoreOutput struct {
	Plan    ReconciliationPlan `json:"plan"`
	Summary *RunSummary        `json:"summary,omitempty"` // nil on dry runs
}

// Restore reconciles the interpreter against a snapshot: packages not in the
// snapshot are uninstalled (protected ones excepted) and pinned versions are
// force-reinstalled where they differ.
func (e *Engine) Restore(ctx context.Context, input RestoreInput) (*RestoreOutput, error) {
	if err := ValidateInterpreter(input.Interpreter); err != nil {
		return nil, err
	}

	desired := input.Snapshot
	if input.SnapshotFile != "" {
		var err error
		if desired, err = readSnapshot(input.SnapshotFile); err != nil {
			return nil, err
		}
	}
	if desired == nil {
		return nil, errors.NewInvalidRequest("snapshot or snapshot_file is required")
	}
	if len(desired) == 0 {
		// An empty desired set would plan uninstalling everything.
		return nil, errors.NewInvalidRequest("snapshot contains no packages")
	}

	// Reconcile against the live environment, not a cached listing.
	e.cache.Invalidate()
	installed := e.cache.InstalledMap(ctx, input.Interpreter)

	plan := Plan(desired, installed, e.cfg.ProtectedPackages)
	input.Reporter.logf("plan: %d to uninstall, %d to install", len(plan.ToUninstall), len(plan.ToInstall))

	if input.DryRun {
		if input.Reporter.Progress != nil {
			input.Reporter.Progress(1)
		}
		return &RestoreOutput{Plan: plan}, nil
	}

	summary := e.Execute(ctx, plan, ExecuteInput{
		Interpreter:    input.Interpreter,
		Mirror:         input.Mirror,
		ForceReinstall: true,
		Kind:           KindRestore,
		Reporter:       input.Reporter,
	})
	return &RestoreOutput{Plan: plan, Summary: summary}, nil
}
