package ops

import (
	"context"

	"github.com/hpungsan/venvkeep/internal/errors"
)

// ConflictsOutput contains the result of the Conflicts operation.
type ConflictsOutput struct {
	OK       bool     `json:"ok"`
	Problems []string `json:"problems"`
}

// Conflicts runs the package manager's dependency consistency check.
func (e *Engine) Conflicts(ctx context.Context, interpreter string) (*ConflictsOutput, error) {
	if err := ValidateInterpreter(interpreter); err != nil {
		return nil, err
	}
	problems, err := e.client.Check(ctx, interpreter)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	if problems == nil {
		problems = []string{}
	}
	return &ConflictsOutput{OK: len(problems) == 0, Problems: problems}, nil
}
