package ops

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hpungsan/venvkeep/internal/errors"
	"github.com/hpungsan/venvkeep/internal/pip"
)

func TestRuns_WithoutHistory(t *testing.T) {
	e, _ := newTestEngine(t, &pip.FakeRunner{})
	ctx := context.Background()

	_, err := e.ListRuns(ctx, ListRunsInput{})
	require.True(t, errors.Is(err, errors.ErrInvalidRequest))
	_, err = e.GetRun(ctx, "01HZ")
	require.True(t, errors.Is(err, errors.ErrInvalidRequest))
	_, err = e.PurgeRuns(ctx, time.Hour)
	require.True(t, errors.Is(err, errors.ErrInvalidRequest))

	require.NoError(t, e.RememberInterpreter(ctx, "/env/python"))
	items, err := e.Interpreters(ctx, 0)
	require.NoError(t, err)
	require.Empty(t, items)
}

func TestListRuns_Pagination(t *testing.T) {
	e, clock := newTestEngineDB(t, &pip.FakeRunner{})
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		s := e.Execute(ctx, installPlan("a"), ExecuteInput{Interpreter: "/env/python"})
		ids = append(ids, s.RunID)
		clock.advance(time.Minute)
	}

	out, err := e.ListRuns(ctx, ListRunsInput{Limit: 2})
	require.NoError(t, err)
	require.Len(t, out.Items, 2)
	require.Equal(t, ids[2], out.Items[0].ID)
	require.Equal(t, ids[1], out.Items[1].ID)
	require.Equal(t, Pagination{Limit: 2, Offset: 0, HasMore: true, Total: 3}, out.Pagination)

	out, err = e.ListRuns(ctx, ListRunsInput{Limit: 2, Offset: 2})
	require.NoError(t, err)
	require.Len(t, out.Items, 1)
	require.Equal(t, ids[0], out.Items[0].ID)
	require.False(t, out.Pagination.HasMore)

	out, err = e.ListRuns(ctx, ListRunsInput{Limit: 1000, Offset: -5})
	require.NoError(t, err)
	require.Equal(t, MaxRunsLimit, out.Pagination.Limit)
	require.Equal(t, 0, out.Pagination.Offset)
}

func TestGetRun(t *testing.T) {
	runner := &pip.FakeRunner{}
	runner.On("install b", failed("ERROR: nope"))
	e, _ := newTestEngineDB(t, runner)
	ctx := context.Background()

	s := e.Execute(ctx, installPlan("a", "b"), ExecuteInput{Interpreter: "/env/python", Kind: KindMigrate})

	got, err := e.GetRun(ctx, s.RunID)
	require.NoError(t, err)
	require.Equal(t, RunRecord{
		ID:             s.RunID,
		Kind:           KindMigrate,
		Interpreter:    "/env/python",
		SucceededCount: 1,
		FailedCount:    1,
		StartedAt:      s.StartedAt,
		FinishedAt:     s.FinishedAt,
	}, got.Run)
	require.Equal(t, s.Failed, got.Failed)

	_, err = e.GetRun(ctx, "")
	require.True(t, errors.Is(err, errors.ErrInvalidRequest))
	_, err = e.GetRun(ctx, "01HZNOTAREALRUN")
	require.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestPurgeRuns(t *testing.T) {
	e, clock := newTestEngineDB(t, &pip.FakeRunner{})
	ctx := context.Background()

	e.Execute(ctx, installPlan("a"), ExecuteInput{Interpreter: "/env/python"})
	e.Execute(ctx, installPlan("a"), ExecuteInput{Interpreter: "/env/python"})
	clock.advance(2 * time.Hour)
	recent := e.Execute(ctx, installPlan("a"), ExecuteInput{Interpreter: "/env/python"})

	n, err := e.PurgeRuns(ctx, time.Hour)
	require.NoError(t, err)
	require.Equal(t, int64(2), n)

	out, err := e.ListRuns(ctx, ListRunsInput{})
	require.NoError(t, err)
	require.Len(t, out.Items, 1)
	require.Equal(t, recent.RunID, out.Items[0].ID)

	_, err = e.PurgeRuns(ctx, 0)
	require.True(t, errors.Is(err, errors.ErrInvalidRequest))
}

func TestRememberInterpreter(t *testing.T) {
	runner := &pip.FakeRunner{}
	runner.Once("--version", pip.Result{Output: "pip 24.0 from /env/lib/site-packages/pip (python 3.11)\n"})
	runner.On("--version", failed("boom"))
	e, clock := newTestEngineDB(t, runner)
	ctx := context.Background()

	require.NoError(t, e.RememberInterpreter(ctx, "/env/python"))
	clock.advance(time.Minute)
	// a later failing version query keeps the known version
	require.NoError(t, e.RememberInterpreter(ctx, "/env/python"))
	clock.advance(time.Minute)
	require.NoError(t, e.RememberInterpreter(ctx, "/other/python"))

	items, err := e.Interpreters(ctx, 0)
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, "/other/python", items[0].Path)
	require.Equal(t, "", items[0].PipVersion)
	require.Equal(t, InterpreterRecord{
		Path:       "/env/python",
		PipVersion: "pip 24.0 from /env/lib/site-packages/pip (python 3.11)",
		UseCount:   2,
		LastUsedAt: clock.now().Add(-time.Minute).Unix(),
	}, items[1])
}
