package pip

import (
	"context"
	stderrors "errors"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// Command is one package manager invocation: "<interpreter> -m pip <args...>".
type Command struct {
	Interpreter string
	Args        []string
	Timeout     time.Duration // zero means no per-command ceiling
}

// String renders the command line for logs.
func (c Command) String() string {
	return c.Interpreter + " -m pip " + strings.Join(c.Args, " ")
}

// Result captures how a command ended.
// Output is combined stdout and stderr.
type Result struct {
	Output   string
	ExitCode int
	TimedOut bool
	Err      error // set when the process could not be started or did not exit cleanly
	Duration time.Duration
}

// OK reports whether the command exited zero.
func (r Result) OK() bool {
	return r.Err == nil && r.ExitCode == 0 && !r.TimedOut
}

// Runner executes package manager commands.
type Runner interface {
	Run(ctx context.Context, cmd Command) Result
}

// ExecRunner runs commands as child processes.
type ExecRunner struct{}

// waitDelay caps how long Run waits for output pipes after the process is
// killed. Grandchildren that escaped the process group can hold them open.
const waitDelay = 2 * time.Second

// Run executes the command and waits for it, honoring cmd.Timeout and ctx.
func (ExecRunner) Run(ctx context.Context, cmd Command) Result {
	start := time.Now()

	runCtx := ctx
	if cmd.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, cmd.Timeout)
		defer cancel()
	}

	args := append([]string{"-m", "pip"}, cmd.Args...)
	execCmd := exec.CommandContext(runCtx, cmd.Interpreter, args...)
	execCmd.Env = append(execCmd.Environ(), "PYTHONIOENCODING=utf-8", "PIP_DISABLE_PIP_VERSION_CHECK=1")
	execCmd.WaitDelay = waitDelay
	setProcessGroup(execCmd)
	output, err := execCmd.CombinedOutput()

	res := Result{Output: string(output), Duration: time.Since(start)}
	if stderrors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		res.TimedOut = true
		res.ExitCode = -1
		res.Err = runCtx.Err()
		return res
	}
	if err != nil {
		var exitErr *exec.ExitError
		if stderrors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
		} else {
			res.ExitCode = -1
			res.Err = err
		}
	}
	return res
}

// FakeRunner is used in tests. Registered responses are tried in order
// against the space-joined args; unmatched commands get Default.
type FakeRunner struct {
	mu        sync.Mutex
	Calls     []Command
	responses []fakeResponse
	Default   Result
}

type fakeResponse struct {
	match string
	res   Result
	times int // remaining uses; negative means unlimited
}

// On registers a result for any command whose joined args start with match.
func (f *FakeRunner) On(match string, res Result) *FakeRunner {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses = append(f.responses, fakeResponse{match: match, res: res, times: -1})
	return f
}

// Once registers a result that is consumed by the first matching command.
func (f *FakeRunner) Once(match string, res Result) *FakeRunner {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses = append(f.responses, fakeResponse{match: match, res: res, times: 1})
	return f
}

func (f *FakeRunner) Run(ctx context.Context, cmd Command) Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, cmd)

	joined := strings.Join(cmd.Args, " ")
	for i := range f.responses {
		r := &f.responses[i]
		if r.times == 0 || !strings.HasPrefix(joined, r.match) {
			continue
		}
		if r.times > 0 {
			r.times--
		}
		return r.res
	}
	return f.Default
}

// CallsMatching returns the recorded commands whose joined args start with prefix.
func (f *FakeRunner) CallsMatching(prefix string) []Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Command
	for _, c := range f.Calls {
		if strings.HasPrefix(strings.Join(c.Args, " "), prefix) {
			out = append(out, c)
		}
	}
	return out
}
