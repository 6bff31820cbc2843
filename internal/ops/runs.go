package ops

import (
	"context"
	"time"

	"github.com/hpungsan/venvkeep/internal/db"
	"github.com/hpungsan/venvkeep/internal/errors"
)

// RunRecord is a persisted run without its per-item detail.
type RunRecord struct {
	ID               string `json:"id"`
	Kind             string `json:"kind"`
	Interpreter      string `json:"interpreter"`
	Mirror           string `json:"mirror,omitempty"`
	SucceededCount   int    `json:"succeeded_count"`
	FailedCount      int    `json:"failed_count"`
	UninstalledCount int    `json:"uninstalled_count"`
	SkippedCount     int    `json:"skipped_count"`
	Cancelled        bool   `json:"cancelled"`
	StartedAt        int64  `json:"started_at"`
	FinishedAt       int64  `json:"finished_at"`
}

func toRunRecord(r db.Run) RunRecord {
	return RunRecord{
		ID:               r.ID,
		Kind:             r.Kind,
		Interpreter:      r.Interpreter,
		Mirror:           r.Mirror,
		SucceededCount:   r.SucceededCount,
		FailedCount:      r.FailedCount,
		UninstalledCount: r.UninstalledCount,
		SkippedCount:     r.SkippedCount,
		Cancelled:        r.Cancelled,
		StartedAt:        r.StartedAt,
		FinishedAt:       r.FinishedAt,
	}
}

// ListRunsInput contains parameters for the ListRuns operation.
type ListRunsInput struct {
	Limit  int // default: 20, max: 100
	Offset int
}

// ListRunsOutput contains the result of the ListRuns operation.
type ListRunsOutput struct {
	Items      []RunRecord `json:"items"`
	Pagination Pagination  `json:"pagination"`
}

// ListRuns returns recorded runs, newest first.
func (e *Engine) ListRuns(ctx context.Context, input ListRunsInput) (*ListRunsOutput, error) {
	if e.db == nil {
		return nil, errors.NewInvalidRequest("run history is not available")
	}
	limit := clampLimit(input.Limit, DefaultRunsLimit, MaxRunsLimit)
	offset := max(input.Offset, 0)

	runs, total, err := db.ListRuns(ctx, e.db, limit, offset)
	if err != nil {
		return nil, err
	}
	items := make([]RunRecord, len(runs))
	for i, r := range runs {
		items[i] = toRunRecord(r)
	}
	return &ListRunsOutput{
		Items: items,
		Pagination: Pagination{
			Limit:   limit,
			Offset:  offset,
			HasMore: offset+len(items) < total,
			Total:   total,
		},
	}, nil
}

// GetRunOutput contains a run and its failed items.
type GetRunOutput struct {
	Run    RunRecord `json:"run"`
	Failed []Failure `json:"failed"`
}

// GetRun returns one recorded run with its failed items.
func (e *Engine) GetRun(ctx context.Context, id string) (*GetRunOutput, error) {
	if e.db == nil {
		return nil, errors.NewInvalidRequest("run history is not available")
	}
	if id == "" {
		return nil, errors.NewInvalidRequest("run id is required")
	}
	r, err := db.GetRun(ctx, e.db, id)
	if err != nil {
		return nil, err
	}
	stored, err := db.GetRunFailures(ctx, e.db, id)
	if err != nil {
		return nil, err
	}
	failed := make([]Failure, len(stored))
	for i, f := range stored {
		failed[i] = Failure{Spec: f.Spec, Reason: f.Reason}
	}
	return &GetRunOutput{Run: toRunRecord(*r), Failed: failed}, nil
}

// PurgeRuns deletes runs older than olderThan.
func (e *Engine) PurgeRuns(ctx context.Context, olderThan time.Duration) (int64, error) {
	if e.db == nil {
		return 0, errors.NewInvalidRequest("run history is not available")
	}
	if olderThan <= 0 {
		return 0, errors.NewInvalidRequest("older_than must be positive")
	}
	return db.DeleteRunsBefore(ctx, e.db, e.now().Add(-olderThan).Unix())
}

// InterpreterRecord is a remembered interpreter.
type InterpreterRecord struct {
	Path       string `json:"path"`
	PipVersion string `json:"pip_version,omitempty"`
	UseCount   int    `json:"use_count"`
	LastUsedAt int64  `json:"last_used_at"`
}

// RememberInterpreter records a use of interpreter in the history, with its pip version.
// It is a no-op without persistence.
func (e *Engine) RememberInterpreter(ctx context.Context, interpreter string) error {
	if e.db == nil {
		return nil
	}
	version, err := e.client.Version(ctx, interpreter)
	if err != nil {
		e.logger.Debug("pip version unavailable", "interpreter", interpreter, "error", err)
	}
	return db.TouchInterpreter(ctx, e.db, interpreter, version, e.now().Unix())
}

// Interpreters lists remembered interpreters, most recent first.
func (e *Engine) Interpreters(ctx context.Context, limit int) ([]InterpreterRecord, error) {
	if e.db == nil {
		return []InterpreterRecord{}, nil
	}
	stored, err := db.ListInterpreters(ctx, e.db, clampLimit(limit, DefaultRunsLimit, MaxRunsLimit))
	if err != nil {
		return nil, err
	}
	items := make([]InterpreterRecord, len(stored))
	for i, it := range stored {
		items[i] = InterpreterRecord(it)
	}
	return items, nil
}
