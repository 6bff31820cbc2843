package ops

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hpungsan/venvkeep/internal/config"
	"github.com/hpungsan/venvkeep/internal/db"
	"github.com/hpungsan/venvkeep/internal/pip"
)

type testClock struct {
	t time.Time
}

func (c *testClock) now() time.Time          { return c.t }
func (c *testClock) advance(d time.Duration) { c.t = c.t.Add(d) }

// newTestEngine returns an engine over runner with a controllable clock and no database.
func newTestEngine(t *testing.T, runner pip.Runner) (*Engine, *testClock) {
	t.Helper()
	clock := &testClock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	e := NewEngine(pip.NewClient(runner, time.Second, nil), config.DefaultConfig(), nil, nil)
	e.now = clock.now
	e.cache.now = clock.now
	return e, clock
}

// newTestEngineDB is newTestEngine with a fresh database attached.
func newTestEngineDB(t *testing.T, runner pip.Runner) (*Engine, *testClock) {
	t.Helper()
	database, err := db.Init(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	e, clock := newTestEngine(t, runner)
	e.db = database
	return e, clock
}

// fakeInterpreter creates an empty file standing in for a python executable.
func fakeInterpreter(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "python")
	require.NoError(t, os.WriteFile(p, nil, 0755))
	return p
}

// listResult renders pkgs as "pip list --format=json" output.
func listResult(t *testing.T, pkgs map[string]string) pip.Result {
	t.Helper()
	list := make([]pip.Package, 0, len(pkgs))
	for name, version := range pkgs {
		list = append(list, pip.Package{Name: name, Version: version})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	data, err := json.Marshal(list)
	require.NoError(t, err)
	return pip.Result{Output: string(data)}
}

func failed(output string) pip.Result {
	return pip.Result{Output: output, ExitCode: 1}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

// recorder collects progress values and log lines.
type recorder struct {
	values []float64
	lines  []string
}

func (r *recorder) reporter() Reporter {
	return Reporter{
		Progress: func(v float64) { r.values = append(r.values, v) },
		Log:      func(s string) { r.lines = append(r.lines, s) },
	}
}

func requireMonotonic(t *testing.T, values []float64) {
	t.Helper()
	require.NotEmpty(t, values)
	for i := 1; i < len(values); i++ {
		require.GreaterOrEqual(t, values[i], values[i-1], "progress went backwards at %d: %v", i, values)
	}
	for _, v := range values {
		require.GreaterOrEqual(t, v, 0.0)
		require.LessOrEqual(t, v, 1.0)
	}
	require.Equal(t, 1.0, values[len(values)-1])
}

// multiRunner routes commands to a fake per interpreter.
type multiRunner map[string]*pip.FakeRunner

func (m multiRunner) Run(ctx context.Context, cmd pip.Command) pip.Result {
	return m[cmd.Interpreter].Run(ctx, cmd)
}
