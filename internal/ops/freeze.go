package ops

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/hpungsan/venvkeep/internal/errors"
	"github.com/hpungsan/venvkeep/internal/requirement"
)

// FreezeInput contains parameters for the Freeze operation.
type FreezeInput struct {
	Interpreter string // required
	Path        string // optional, default: env_snapshot_<unix>.txt in Dir
	Dir         string // optional, default: current directory
}

// FreezeOutput contains the result of the Freeze operation.
type FreezeOutput struct {
	Path     string `json:"path"`
	Count    int    `json:"count"`
	FrozenAt int64  `json:"frozen_at"`
}

// Freeze writes the interpreter's "pip freeze" output to a snapshot file
// that Restore and Diff accept.
func (e *Engine) Freeze(ctx context.Context, input FreezeInput) (*FreezeOutput, error) {
	if err := ValidateInterpreter(input.Interpreter); err != nil {
		return nil, err
	}

	now := e.now()
	path := input.Path
	if path == "" {
		path = filepath.Join(input.Dir, fmt.Sprintf("env_snapshot_%d.txt", now.Unix()))
	}
	if err := ValidateOutputPath(path, ".txt"); err != nil {
		return nil, err
	}

	text, err := e.client.Freeze(ctx, input.Interpreter)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	if err := writeFileAtomic(path, []byte(text)); err != nil {
		return nil, err
	}

	return &FreezeOutput{
		Path:     path,
		Count:    len(requirement.ParseSnapshot(text)),
		FrozenAt: now.Unix(),
	}, nil
}
