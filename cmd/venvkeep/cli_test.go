package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hpungsan/venvkeep/internal/config"
	"github.com/hpungsan/venvkeep/internal/db"
	"github.com/hpungsan/venvkeep/internal/errors"
	"github.com/hpungsan/venvkeep/internal/ops"
	"github.com/hpungsan/venvkeep/internal/pip"
)

const listing = `[{"name": "numpy", "version": "1.26.4"}, {"name": "leftover", "version": "1.0"}, {"name": "pip", "version": "24.0"}]`

// setupTestEnv creates an app environment over a scripted runner and a temporary database.
func setupTestEnv(t *testing.T) (*appEnv, *pip.FakeRunner) {
	t.Helper()
	database, err := db.Init(t.TempDir())
	if err != nil {
		t.Fatalf("failed to init test db: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	runner := &pip.FakeRunner{}
	runner.On("list --format=json", pip.Result{Output: listing})
	runner.On("show", pip.Result{Output: "WARNING: Package(s) not found", ExitCode: 1})

	cfg := config.DefaultConfig()
	cfg.Mirrors = map[string]string{"local": "https://mirror.example/simple/"}
	return &appEnv{db: database, cfg: cfg, runner: runner}, runner
}

// runCLI runs the app with args and returns what it wrote to stdout.
func runCLI(t *testing.T, env *appEnv, args ...string) (string, error) {
	t.Helper()
	app := newCLIApp(env)
	var out bytes.Buffer
	app.Writer = &out
	app.ErrWriter = io.Discard
	err := app.Run(append([]string{"venvkeep"}, args...))
	return out.String(), err
}

func decodeOutput(t *testing.T, out string, v any) {
	t.Helper()
	if err := json.Unmarshal([]byte(out), v); err != nil {
		t.Fatalf("failed to parse output: %v\nOutput: %s", err, out)
	}
}

func fakeInterpreter(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "python")
	if err := os.WriteFile(p, nil, 0755); err != nil {
		t.Fatalf("write interpreter: %v", err)
	}
	return p
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestParseAge(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		expected    time.Duration
		expectError bool
	}{
		{name: "days", input: "7d", expected: 7 * 24 * time.Hour},
		{name: "hours", input: "12h", expected: 12 * time.Hour},
		{name: "mixed duration", input: "1h30m", expected: 90 * time.Minute},
		{name: "zero days", input: "0d", expectError: true},
		{name: "negative days", input: "-7d", expectError: true},
		{name: "negative duration", input: "-1h", expectError: true},
		{name: "no unit", input: "7", expectError: true},
		{name: "invalid number", input: "abcd", expectError: true},
		{name: "empty string", input: "", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := parseAge(tt.input)
			if tt.expectError {
				if err == nil {
					t.Errorf("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if result != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, result)
			}
		})
	}
}

func TestCLIScan(t *testing.T) {
	env, _ := setupTestEnv(t)
	interp := fakeInterpreter(t)
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a", "requirements.txt"), "numpy\n")
	writeFile(t, filepath.Join(root, "b", "requirements.txt"), "numpy\ntorch==2.1.0\n")

	out, err := runCLI(t, env, "scan", "--python", interp, root)
	if err != nil {
		t.Fatalf("scan failed: %v", err)
	}

	var report ops.ManifestReport
	decodeOutput(t, out, &report)
	if len(report.FullySatisfiedFiles) != 1 || report.FullySatisfiedFiles[0] != filepath.Join(root, "a", "requirements.txt") {
		t.Errorf("fully_satisfied_files = %v", report.FullySatisfiedFiles)
	}
	if len(report.MissingPackages) != 1 || report.MissingPackages[0] != "torch" {
		t.Errorf("missing_packages = %v, want [torch]", report.MissingPackages)
	}

	// the interpreter is remembered
	out, err = runCLI(t, env, "interpreters")
	if err != nil {
		t.Fatalf("interpreters failed: %v", err)
	}
	if !strings.Contains(out, interp) {
		t.Errorf("interpreters output missing %s:\n%s", interp, out)
	}
}

func TestCLICheckAndMissing(t *testing.T) {
	env, runner := setupTestEnv(t)
	interp := fakeInterpreter(t)
	manifest := filepath.Join(t.TempDir(), "requirements.txt")
	writeFile(t, manifest, "numpy>=2\ntorch==2.1.0\n")

	out, err := runCLI(t, env, "check", "-p", interp, "-r", manifest)
	if err != nil {
		t.Fatalf("check failed: %v", err)
	}
	var check ops.CheckOutput
	decodeOutput(t, out, &check)
	if check.MismatchCount != 1 || check.MissingCount != 1 {
		t.Errorf("mismatch=%d missing=%d, want 1 and 1", check.MismatchCount, check.MissingCount)
	}

	out, err = runCLI(t, env, "missing", "-p", interp, "-r", manifest)
	if err != nil {
		t.Fatalf("missing failed: %v", err)
	}
	var missing struct {
		Missing []string `json:"missing"`
	}
	decodeOutput(t, out, &missing)
	if len(missing.Missing) != 1 || missing.Missing[0] != "torch==2.1.0" {
		t.Errorf("missing = %v", missing.Missing)
	}
	if n := len(runner.CallsMatching("install")); n != 0 {
		t.Errorf("missing without --install ran %d installs", n)
	}

	out, err = runCLI(t, env, "missing", "-p", interp, "-r", manifest, "--install", "--mirror", "local")
	if err != nil {
		t.Fatalf("missing --install failed: %v", err)
	}
	var summary ops.RunSummary
	decodeOutput(t, out, &summary)
	if summary.Kind != ops.KindInstallMissing || summary.SucceededCount != 1 {
		t.Errorf("summary = %+v", summary)
	}
	installs := runner.CallsMatching("install")
	if len(installs) != 1 || !strings.Contains(strings.Join(installs[0].Args, " "), "--index-url https://mirror.example/simple/") {
		t.Errorf("install calls = %v", installs)
	}
}

func TestCLIPlanRestoreAndRuns(t *testing.T) {
	env, runner := setupTestEnv(t)
	runner.On("install", pip.Result{Output: "ERROR: Could not build wheels for torch\n", ExitCode: 1})
	interp := fakeInterpreter(t)
	snapshot := filepath.Join(t.TempDir(), "env.txt")
	writeFile(t, snapshot, "numpy==1.26.4\ntorch==2.1.0\n")

	out, err := runCLI(t, env, "plan", "-p", interp, snapshot)
	if err != nil {
		t.Fatalf("plan failed: %v", err)
	}
	var plan ops.RestoreOutput
	decodeOutput(t, out, &plan)
	if strings.Join(plan.Plan.ToUninstall, ",") != "leftover" || strings.Join(plan.Plan.ToInstall, ",") != "torch==2.1.0" {
		t.Errorf("plan = %+v", plan.Plan)
	}
	if plan.Summary != nil {
		t.Error("plan should not execute")
	}

	out, err = runCLI(t, env, "restore", "-p", interp, snapshot)
	if err != nil {
		t.Fatalf("restore failed: %v", err)
	}
	var restored ops.RestoreOutput
	decodeOutput(t, out, &restored)
	if restored.Summary == nil || len(restored.Summary.Failed) != 1 {
		t.Fatalf("summary = %+v", restored.Summary)
	}
	runID := restored.Summary.RunID

	out, err = runCLI(t, env, "runs")
	if err != nil {
		t.Fatalf("runs failed: %v", err)
	}
	var runs ops.ListRunsOutput
	decodeOutput(t, out, &runs)
	if len(runs.Items) != 1 || runs.Items[0].ID != runID || runs.Items[0].FailedCount != 1 {
		t.Errorf("runs = %+v", runs.Items)
	}

	out, err = runCLI(t, env, "runs", "show", runID)
	if err != nil {
		t.Fatalf("runs show failed: %v", err)
	}
	var run ops.GetRunOutput
	decodeOutput(t, out, &run)
	if len(run.Failed) != 1 || run.Failed[0].Spec != "torch==2.1.0" {
		t.Errorf("failed = %+v", run.Failed)
	}

	dir := t.TempDir()
	out, err = runCLI(t, env, "failures", "--dir", dir, "--format", "json", runID)
	if err != nil {
		t.Fatalf("failures failed: %v", err)
	}
	var export ops.ExportOutput
	decodeOutput(t, out, &export)
	if export.Path != filepath.Join(dir, "failed_"+runID+".json") || export.Count != 1 {
		t.Errorf("export = %+v", export)
	}

	out, err = runCLI(t, env, "runs", "purge", "--older-than", "30d")
	if err != nil {
		t.Fatalf("runs purge failed: %v", err)
	}
	if !strings.Contains(out, `"purged": 0`) {
		t.Errorf("purge output = %s", out)
	}
}

func TestCLIDiff(t *testing.T) {
	env, _ := setupTestEnv(t)
	dir := t.TempDir()
	source := filepath.Join(dir, "source.txt")
	target := filepath.Join(dir, "target.txt")
	writeFile(t, source, "numpy==2.0.0\ntorch==2.1.0\n")
	writeFile(t, target, "numpy==1.26.4\n")

	out, err := runCLI(t, env, "diff", source, target)
	if err != nil {
		t.Fatalf("diff failed: %v", err)
	}
	var diff ops.MigrationDiff
	decodeOutput(t, out, &diff)
	if diff.Added["torch"] != "2.1.0" || len(diff.Removed) != 0 {
		t.Errorf("diff = %+v", diff)
	}
	if diff.Changed["numpy"] != (ops.VersionChange{Source: "2.0.0", Target: "1.26.4"}) {
		t.Errorf("changed = %+v", diff.Changed)
	}
}

func TestCLIErrorHandling(t *testing.T) {
	env, runner := setupTestEnv(t)
	interp := fakeInterpreter(t)
	snapshot := filepath.Join(t.TempDir(), "env.txt")
	writeFile(t, snapshot, "numpy==1.26.4\n")

	tests := []struct {
		name string
		args []string
	}{
		{"scan without root", []string{"scan", "-p", interp}},
		{"scan without python", []string{"scan", t.TempDir()}},
		{"missing interpreter", []string{"check", "-p", filepath.Join(t.TempDir(), "python"), "-r", snapshot}},
		{"unknown mirror", []string{"restore", "-p", interp, "--mirror", "nowhere", snapshot}},
		{"unknown run", []string{"runs", "show", "01HZNOTAREALRUN"}},
		{"invalid age", []string{"runs", "purge", "--older-than", "soon"}},
		{"diff with one side", []string{"diff", snapshot}},
		{"migrate without source", []string{"migrate", "-t", interp}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := runCLI(t, env, tt.args...); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}

	if n := len(runner.CallsMatching("install")) + len(runner.CallsMatching("uninstall")); n != 0 {
		t.Errorf("failed commands ran %d mutating pip calls", n)
	}
}

func TestOutputError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"structured", errors.NewNotFound("abc"), "[NOT_FOUND] not found: abc"},
		{"wrapped", fmt.Errorf("snapshot: %w", errors.NewFileNotFound("/x.txt")), "[FILE_NOT_FOUND] snapshot: FILE_NOT_FOUND: file not found: /x.txt"},
		{"plain", io.ErrUnexpectedEOF, "unexpected EOF"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := outputError(tt.err).Error(); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsCLIMode(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected bool
	}{
		{name: "no args", args: []string{"venvkeep"}, expected: false},
		{name: "scan command", args: []string{"venvkeep", "scan"}, expected: true},
		{name: "runs command", args: []string{"venvkeep", "runs"}, expected: true},
		{name: "global flag first", args: []string{"venvkeep", "--verbose", "scan"}, expected: true},
		{name: "help flag", args: []string{"venvkeep", "--help"}, expected: true},
		{name: "version flag", args: []string{"venvkeep", "--version"}, expected: true},
		{name: "short help flag", args: []string{"venvkeep", "-h"}, expected: true},
		{name: "unknown arg defaults to MCP", args: []string{"venvkeep", "--unknown"}, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			oldArgs := os.Args
			defer func() { os.Args = oldArgs }()

			os.Args = tt.args
			if result := isCLIMode(); result != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, result)
			}
		})
	}
}

func TestIsHelpOrVersion(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected bool
	}{
		{name: "no args", args: []string{"venvkeep"}, expected: false},
		{name: "help flag", args: []string{"venvkeep", "--help"}, expected: true},
		{name: "short version flag", args: []string{"venvkeep", "-v"}, expected: true},
		{name: "help subcommand", args: []string{"venvkeep", "help"}, expected: true},
		{name: "scan is not help", args: []string{"venvkeep", "scan"}, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			oldArgs := os.Args
			defer func() { os.Args = oldArgs }()

			os.Args = tt.args
			if result := isHelpOrVersion(); result != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, result)
			}
		})
	}
}
