package pip

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/require"
)

func TestList_JSON(t *testing.T) {
	fake := &FakeRunner{}
	fake.On("list --format=json", Result{Output: `[{"name": "Foo_Bar", "version": "1.0"}, {"name": "numpy", "version": "1.26.4"}]
WARNING: You are using pip version 22.0`})

	c := NewClient(fake, time.Second, nil)
	m, err := c.List(context.Background(), "/venv/bin/python")
	require.NoError(t, err)
	require.Equal(t, map[string]string{"Foo_Bar": "1.0", "numpy": "1.26.4"}, m)
	require.Len(t, fake.Calls, 1)
	require.Equal(t, time.Second, fake.Calls[0].Timeout)
}

func TestList_FallsBackToColumns(t *testing.T) {
	fake := &FakeRunner{}
	fake.On("list --format=json", Result{Output: "no such option: --format", ExitCode: 2})
	fake.On("list --format=columns", Result{Output: `Package    Version
---------- -------
torch      2.1.0
six        1.16.0
`})

	c := NewClient(fake, time.Second, nil)
	m, err := c.List(context.Background(), "py")
	require.NoError(t, err)
	require.Equal(t, map[string]string{"torch": "2.1.0", "six": "1.16.0"}, m)
	require.Len(t, fake.Calls, 2)
}

func TestList_BothFail(t *testing.T) {
	fake := &FakeRunner{Default: Result{Output: "boom", ExitCode: 1}}

	c := NewClient(fake, time.Second, nil)
	m, err := c.List(context.Background(), "py")
	require.Error(t, err)
	require.Nil(t, m)
}

func TestShow(t *testing.T) {
	fake := &FakeRunner{}
	fake.On("show numpy", Result{Output: "Name: numpy\nVersion: 1.26.4\n"})
	fake.On("show missing", Result{Output: "WARNING: Package(s) not found: missing", ExitCode: 1})

	c := NewClient(fake, time.Second, nil)
	require.True(t, c.Show(context.Background(), "py", "numpy"))
	require.False(t, c.Show(context.Background(), "py", "missing"))
}

func TestInstall_Args(t *testing.T) {
	fake := &FakeRunner{}
	c := NewClient(fake, time.Second, nil)

	c.Install(context.Background(), "py", "torch==2.1.0", InstallOptions{
		NoDeps:         true,
		ForceReinstall: true,
		IndexURL:       "https://pypi.tuna.tsinghua.edu.cn/simple/",
		Timeout:        time.Minute,
	})

	require.Len(t, fake.Calls, 1)
	require.Equal(t, []string{
		"install", "--no-deps", "--force-reinstall", "torch==2.1.0",
		"--index-url", "https://pypi.tuna.tsinghua.edu.cn/simple/",
		"--trusted-host", "pypi.tuna.tsinghua.edu.cn",
	}, fake.Calls[0].Args)
	require.Equal(t, time.Minute, fake.Calls[0].Timeout)
}

func TestUninstall_Args(t *testing.T) {
	fake := &FakeRunner{}
	c := NewClient(fake, time.Second, nil)

	c.Uninstall(context.Background(), "py", "six", 10*time.Second)
	require.Equal(t, []string{"uninstall", "-y", "six"}, fake.Calls[0].Args)
	require.Equal(t, 10*time.Second, fake.Calls[0].Timeout)
}

func TestCheck(t *testing.T) {
	fake := &FakeRunner{}
	fake.Once("check", Result{Output: "a 1.0 has requirement b>=2, but you have b 1.0.\n", ExitCode: 1})
	fake.Once("check", Result{Output: "No broken requirements found.\n"})

	c := NewClient(fake, time.Second, nil)
	problems, err := c.Check(context.Background(), "py")
	require.NoError(t, err)
	require.Equal(t, []string{"a 1.0 has requirement b>=2, but you have b 1.0."}, problems)

	problems, err = c.Check(context.Background(), "py")
	require.NoError(t, err)
	require.Empty(t, problems)
}

func TestIndexArgs(t *testing.T) {
	require.Nil(t, IndexArgs(""))
	require.Equal(t, []string{"--index-url", "http://10.0.0.1:8080/simple", "--trusted-host", "10.0.0.1"},
		IndexArgs("http://10.0.0.1:8080/simple"))
}

func TestNeedsFallback(t *testing.T) {
	require.True(t, NeedsFallback("ERROR: No matching distribution found for foo==9.9"))
	require.True(t, NeedsFallback("ERROR: Could not find a version that satisfies the requirement foo"))
	require.False(t, NeedsFallback("ERROR: Failed building wheel for foo"))
}

func TestReason(t *testing.T) {
	tests := []struct {
		name   string
		output string
		want   string
	}{
		{
			name:   "last meaningful line",
			output: "Collecting foo\n  error: subprocess-exited-with-error\nERROR: Failed building wheel for foo\n\n",
			want:   "ERROR: Failed building wheel for foo",
		},
		{
			name:   "skips trailing warnings and notices",
			output: "ERROR: boom\nWARNING: pip is outdated\n[notice] A new release of pip is available\n",
			want:   "ERROR: boom",
		},
		{
			name:   "prefers no matching distribution",
			output: "ERROR: Could not find a version that satisfies the requirement x==1\nERROR: No matching distribution found for x==1\nsomething else\n",
			want:   "ERROR: No matching distribution found for x==1",
		},
		{
			name:   "empty output",
			output: "",
			want:   "unknown error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, Reason(tt.output))
		})
	}
}

func TestReason_Truncates(t *testing.T) {
	got := Reason(strings.Repeat("x", 300))
	require.Len(t, got, 243)
	require.True(t, strings.HasSuffix(got, "..."))
}

func TestReason_TruncatesOnRuneBoundary(t *testing.T) {
	got := Reason("x" + strings.Repeat("错", 100))
	require.True(t, utf8.ValidString(got))
	require.Len(t, got, 241)
	require.True(t, strings.HasSuffix(got, "..."))
}

func TestReasonFor(t *testing.T) {
	require.Equal(t, ReasonTimeout, ReasonFor(Result{TimedOut: true, Output: "partial"}))
	require.Equal(t, "ERROR: x", ReasonFor(Result{ExitCode: 1, Output: "ERROR: x"}))
}

func TestFakeRunner_Once(t *testing.T) {
	fake := &FakeRunner{Default: Result{ExitCode: 9}}
	fake.Once("install a", Result{ExitCode: 1})

	require.Equal(t, 1, fake.Run(context.Background(), Command{Args: []string{"install", "a"}}).ExitCode)
	require.Equal(t, 9, fake.Run(context.Background(), Command{Args: []string{"install", "a"}}).ExitCode)
	require.Len(t, fake.CallsMatching("install"), 2)
}

func TestExecRunner_MissingInterpreter(t *testing.T) {
	res := ExecRunner{}.Run(context.Background(), Command{Interpreter: "/nonexistent/python-venvkeep"})
	require.False(t, res.OK())
	require.Error(t, res.Err)
	require.Equal(t, -1, res.ExitCode)
}

// hangingInterpreter writes a script that ignores its arguments and leaves a
// background child holding the output pipe, like a stuck source build.
func hangingInterpreter(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script interpreter")
	}
	path := filepath.Join(t.TempDir(), "python")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\nsleep 5 &\nsleep 5\n"), 0o755))
	return path
}

func TestExecRunner_TimeoutKillsChildren(t *testing.T) {
	py := hangingInterpreter(t)

	start := time.Now()
	res := ExecRunner{}.Run(context.Background(), Command{Interpreter: py, Args: []string{"install", "slow"}, Timeout: 200 * time.Millisecond})
	elapsed := time.Since(start)

	require.True(t, res.TimedOut)
	require.False(t, res.OK())
	require.Equal(t, ReasonTimeout, ReasonFor(res))
	require.Less(t, elapsed, 3*time.Second)
}

func TestExecRunner_CancelKillsChildren(t *testing.T) {
	py := hangingInterpreter(t)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	res := ExecRunner{}.Run(ctx, Command{Interpreter: py, Args: []string{"install", "slow"}})
	elapsed := time.Since(start)

	require.False(t, res.TimedOut)
	require.False(t, res.OK())
	require.Less(t, elapsed, 3*time.Second)
}
