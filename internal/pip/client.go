package pip

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/hpungsan/venvkeep/internal/log"
)

// Client issues the package manager commands the engine relies on.
type Client struct {
	runner       Runner
	queryTimeout time.Duration
	logger       *slog.Logger
}

// NewClient wraps a runner. queryTimeout bounds list/show/freeze/check calls.
func NewClient(runner Runner, queryTimeout time.Duration, logger *slog.Logger) *Client {
	if logger == nil {
		logger = log.Discard()
	}
	return &Client{runner: runner, queryTimeout: queryTimeout, logger: logger}
}

// InstallOptions are the flags accepted by Install.
type InstallOptions struct {
	NoDeps         bool
	ForceReinstall bool
	Upgrade        bool
	IndexURL       string // empty means the default index
	Timeout        time.Duration
}

// Package is one entry of "pip list --format=json".
type Package struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// List returns installed packages keyed by their reported (non-normalized) name.
// The JSON listing is tried first, then the column listing.
func (c *Client) List(ctx context.Context, interpreter string) (map[string]string, error) {
	res := c.query(ctx, interpreter, "list", "--format=json")
	if res.OK() {
		m, err := parseListJSON(res.Output)
		if err == nil {
			return m, nil
		}
		c.logger.Debug("json listing unusable, falling back to columns", "error", err)
	}

	res = c.query(ctx, interpreter, "list", "--format=columns")
	if !res.OK() {
		return nil, fmt.Errorf("pip list: %s", ReasonFor(res))
	}
	return parseListColumns(res.Output), nil
}

// Show reports whether "pip show <name>" finds the package.
func (c *Client) Show(ctx context.Context, interpreter, name string) bool {
	res := c.query(ctx, interpreter, "show", name)
	return res.OK() && strings.Contains(res.Output, "Name:")
}

// Install installs one requirement.
func (c *Client) Install(ctx context.Context, interpreter, requirement string, opts InstallOptions) Result {
	args := []string{"install"}
	if opts.NoDeps {
		args = append(args, "--no-deps")
	}
	if opts.ForceReinstall {
		args = append(args, "--force-reinstall")
	}
	if opts.Upgrade {
		args = append(args, "--upgrade")
	}
	args = append(args, requirement)
	args = append(args, IndexArgs(opts.IndexURL)...)

	cmd := Command{Interpreter: interpreter, Args: args, Timeout: opts.Timeout}
	c.logger.Debug("pip install", "cmd", cmd.String())
	return c.runner.Run(ctx, cmd)
}

// Uninstall removes one package without prompting.
func (c *Client) Uninstall(ctx context.Context, interpreter, name string, timeout time.Duration) Result {
	cmd := Command{Interpreter: interpreter, Args: []string{"uninstall", "-y", name}, Timeout: timeout}
	c.logger.Debug("pip uninstall", "cmd", cmd.String())
	return c.runner.Run(ctx, cmd)
}

// Freeze returns "pip freeze" output.
func (c *Client) Freeze(ctx context.Context, interpreter string) (string, error) {
	res := c.query(ctx, interpreter, "freeze")
	if !res.OK() {
		return "", fmt.Errorf("pip freeze: %s", ReasonFor(res))
	}
	return res.Output, nil
}

// Check runs "pip check" and returns its problem lines.
// A non-zero exit with problem lines is not an error; only failure to run is.
func (c *Client) Check(ctx context.Context, interpreter string) ([]string, error) {
	res := c.query(ctx, interpreter, "check")
	if res.TimedOut || (res.Err != nil && res.ExitCode == -1) {
		return nil, fmt.Errorf("pip check: %s", ReasonFor(res))
	}
	var problems []string
	for _, line := range strings.Split(res.Output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || isNoise(line) || strings.HasPrefix(line, "No broken requirements") {
			continue
		}
		problems = append(problems, line)
	}
	return problems, nil
}

// Version returns the "pip --version" line, proving the interpreter can run pip.
func (c *Client) Version(ctx context.Context, interpreter string) (string, error) {
	res := c.query(ctx, interpreter, "--version")
	if !res.OK() {
		return "", fmt.Errorf("pip --version: %s", ReasonFor(res))
	}
	return strings.TrimSpace(res.Output), nil
}

func (c *Client) query(ctx context.Context, interpreter string, args ...string) Result {
	return c.runner.Run(ctx, Command{Interpreter: interpreter, Args: args, Timeout: c.queryTimeout})
}

// IndexArgs returns "--index-url U --trusted-host H" for a mirror, or nothing.
func IndexArgs(indexURL string) []string {
	if indexURL == "" {
		return nil
	}
	args := []string{"--index-url", indexURL}
	if u, err := url.Parse(indexURL); err == nil && u.Hostname() != "" {
		args = append(args, "--trusted-host", u.Hostname())
	}
	return args
}

func parseListJSON(output string) (map[string]string, error) {
	start := strings.Index(output, "[")
	end := strings.LastIndex(output, "]")
	if start < 0 || end < start {
		return nil, fmt.Errorf("no JSON array in output")
	}
	var pkgs []Package
	if err := json.Unmarshal([]byte(output[start:end+1]), &pkgs); err != nil {
		return nil, err
	}
	m := make(map[string]string, len(pkgs))
	for _, p := range pkgs {
		if p.Name != "" {
			m[p.Name] = p.Version
		}
	}
	return m, nil
}

// parseListColumns reads the two-header-line table printed by "pip list".
func parseListColumns(output string) map[string]string {
	m := make(map[string]string)
	lines := strings.Split(strings.TrimSpace(output), "\n")
	if len(lines) <= 2 {
		return m
	}
	for _, line := range lines[2:] {
		parts := strings.Fields(line)
		if len(parts) >= 2 && !isNoise(line) {
			m[parts[0]] = parts[1]
		}
	}
	return m
}
