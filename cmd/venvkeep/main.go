package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/hpungsan/venvkeep/internal/config"
	"github.com/hpungsan/venvkeep/internal/db"
	"github.com/hpungsan/venvkeep/internal/log"
	"github.com/hpungsan/venvkeep/internal/mcp"
	"github.com/hpungsan/venvkeep/internal/ops"
	"github.com/hpungsan/venvkeep/internal/pip"
)

// Version is set via -ldflags at build time.
var Version = "dev"

// cliCommands contains known CLI subcommands.
var cliCommands = map[string]bool{
	"scan": true, "check": true, "missing": true,
	"plan": true, "restore": true, "diff": true, "migrate": true,
	"freeze": true, "conflicts": true, "search": true,
	"runs": true, "failures": true, "interpreters": true,
	"help": true,
}

// isCLIMode determines if we should run CLI vs MCP server.
func isCLIMode() bool {
	if len(os.Args) < 2 {
		return false
	}
	arg := os.Args[1]
	if cliCommands[arg] {
		return true
	}
	// global flags come before the subcommand
	if arg == "--verbose" || arg == "--log-json" {
		return true
	}
	return isHelpOrVersion()
}

// isHelpOrVersion returns true if the user is requesting help or version info.
func isHelpOrVersion() bool {
	if len(os.Args) < 2 {
		return false
	}
	arg := os.Args[1]
	return arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" || arg == "help"
}

// isTerminal returns true if stdin is a terminal (not piped).
func isTerminal() bool {
	stat, _ := os.Stdin.Stat()
	return (stat.Mode() & os.ModeCharDevice) != 0
}

func printBanner() {
	fmt.Println(`
  venvkeep: keep plugin environments in sync with their requirements

  Usage: venvkeep <command> [options]
         venvkeep --help

  MCP server mode requires piped input.`)
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}

func main() {
	if len(os.Args) < 2 && isTerminal() {
		printBanner()
		return
	}

	// Handle --help/--version before DB init (no DB needed)
	if isHelpOrVersion() {
		if err := newCLIApp(nil).Run(os.Args); err != nil {
			fail("%v", err)
		}
		return
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		fail("could not determine home directory: %v", err)
	}
	baseDir := filepath.Join(homeDir, ".venvkeep")

	cwd, _ := os.Getwd()
	cfg, err := config.LoadWithRepo(baseDir, cwd)
	if err != nil {
		fail("failed to load config: %v", err)
	}

	database, err := db.Init(baseDir)
	if err != nil {
		fail("failed to initialize database: %v", err)
	}
	defer database.Close()
	db.ConfigurePool(database, cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	env := &appEnv{db: database, cfg: cfg, runner: pip.ExecRunner{}}

	if isCLIMode() {
		if err := newCLIApp(env).RunContext(ctx, os.Args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			stop()
			os.Exit(1)
		}
		return
	}

	// Unknown argument + terminal → show error (don't start MCP server)
	if len(os.Args) >= 2 && isTerminal() {
		fmt.Fprintf(os.Stderr, "error: unknown command %q\n", os.Args[1])
		fmt.Fprintf(os.Stderr, "Run 'venvkeep --help' for usage.\n")
		os.Exit(1)
	}

	// MCP mode: stdout carries the protocol, logs go to stderr.
	logger := log.New(slog.LevelInfo, os.Stderr, false)
	if unknown := mcp.ValidateDisabledTools(cfg.DisabledTools); len(unknown) > 0 {
		logger.Warn("ignoring unknown disabled_tools", "tools", unknown)
	}
	engine := ops.NewEngine(pip.NewClient(env.runner, cfg.QueryTimeout(), logger), cfg, database, logger)
	if err := mcp.Run(engine, Version); err != nil {
		fail("%v", err)
	}
}
