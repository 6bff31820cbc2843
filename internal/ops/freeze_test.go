package ops

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hpungsan/venvkeep/internal/errors"
	"github.com/hpungsan/venvkeep/internal/pip"
)

const frozen = "numpy==1.26.4\nPillow==10.2.0\n-e git+https://example.com/x.git#egg=x\n"

func TestFreeze(t *testing.T) {
	runner := &pip.FakeRunner{}
	runner.On("freeze", pip.Result{Output: frozen})
	e, clock := newTestEngine(t, runner)
	interp := fakeInterpreter(t)
	dir := t.TempDir()

	out, err := e.Freeze(context.Background(), FreezeInput{Interpreter: interp, Dir: dir})
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, fmt.Sprintf("env_snapshot_%d.txt", clock.now().Unix())), out.Path)
	require.Equal(t, 2, out.Count)

	data, err := os.ReadFile(out.Path)
	require.NoError(t, err)
	require.Equal(t, frozen, string(data))

	// the snapshot round-trips through Restore
	restoreRunner := &pip.FakeRunner{}
	restoreRunner.On("list --format=json", listResult(t, map[string]string{"numpy": "1.26.4", "pillow": "10.2.0"}))
	e2, _ := newTestEngine(t, restoreRunner)
	res, err := e2.Restore(context.Background(), RestoreInput{Interpreter: interp, SnapshotFile: out.Path, DryRun: true})
	require.NoError(t, err)
	require.True(t, res.Plan.Empty())
}

func TestFreeze_Errors(t *testing.T) {
	interp := fakeInterpreter(t)

	t.Run("missing interpreter", func(t *testing.T) {
		e, _ := newTestEngine(t, &pip.FakeRunner{})
		_, err := e.Freeze(context.Background(), FreezeInput{Interpreter: filepath.Join(t.TempDir(), "python")})
		require.True(t, errors.Is(err, errors.ErrInterpreterNotFound))
	})

	t.Run("wrong extension", func(t *testing.T) {
		e, _ := newTestEngine(t, &pip.FakeRunner{})
		_, err := e.Freeze(context.Background(), FreezeInput{Interpreter: interp, Path: filepath.Join(t.TempDir(), "env.json")})
		require.True(t, errors.Is(err, errors.ErrInvalidRequest))
	})

	t.Run("freeze fails", func(t *testing.T) {
		e, _ := newTestEngine(t, &pip.FakeRunner{Default: failed("ERROR: no pip")})
		path := filepath.Join(t.TempDir(), "env.txt")
		_, err := e.Freeze(context.Background(), FreezeInput{Interpreter: interp, Path: path})
		require.True(t, errors.Is(err, errors.ErrInternal))
		_, statErr := os.Stat(path)
		require.True(t, os.IsNotExist(statErr))
	})
}

func TestConflicts(t *testing.T) {
	interp := fakeInterpreter(t)

	tests := []struct {
		name     string
		res      pip.Result
		ok       bool
		problems []string
	}{
		{
			name:     "clean",
			res:      pip.Result{Output: "No broken requirements found.\n"},
			ok:       true,
			problems: []string{},
		},
		{
			name:     "broken",
			res:      failed("torch 2.1.0 has requirement numpy<2, but you have numpy 2.0.0.\n"),
			ok:       false,
			problems: []string{"torch 2.1.0 has requirement numpy<2, but you have numpy 2.0.0."},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			runner := &pip.FakeRunner{}
			runner.On("check", tc.res)
			e, _ := newTestEngine(t, runner)

			out, err := e.Conflicts(context.Background(), interp)
			require.NoError(t, err)
			require.Equal(t, tc.ok, out.OK)
			require.Equal(t, tc.problems, out.Problems)
		})
	}
}

func TestConflicts_CannotRun(t *testing.T) {
	runner := &pip.FakeRunner{}
	runner.On("check", pip.Result{ExitCode: -1, Err: fmt.Errorf("exec format error")})
	e, _ := newTestEngine(t, runner)

	_, err := e.Conflicts(context.Background(), fakeInterpreter(t))
	require.True(t, errors.Is(err, errors.ErrInternal))
}
