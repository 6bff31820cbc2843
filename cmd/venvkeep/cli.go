package main

import (
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/hpungsan/venvkeep/internal/config"
	"github.com/hpungsan/venvkeep/internal/errors"
	"github.com/hpungsan/venvkeep/internal/log"
	"github.com/hpungsan/venvkeep/internal/ops"
	"github.com/hpungsan/venvkeep/internal/pip"
)

// appEnv carries what commands need. The engine is built in the app's Before
// hook, once the logging flags are known.
type appEnv struct {
	db     *sql.DB
	cfg    *config.Config
	runner pip.Runner
	engine *ops.Engine
	logger *slog.Logger
}

// newCLIApp creates the CLI application with all commands.
func newCLIApp(env *appEnv) *cli.App {
	app := &cli.App{
		Name:    "venvkeep",
		Usage:   "Keep plugin environments in sync with their requirements",
		Version: Version,
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "verbose", Usage: "Log debug output to stderr"},
			&cli.BoolFlag{Name: "log-json", Usage: "Log as JSON"},
		},
		Before: func(c *cli.Context) error {
			if env == nil {
				return nil
			}
			level := slog.LevelInfo
			if c.Bool("verbose") {
				level = slog.LevelDebug
			}
			env.logger = log.New(level, c.App.ErrWriter, c.Bool("log-json"))
			client := pip.NewClient(env.runner, env.cfg.QueryTimeout(), env.logger)
			env.engine = ops.NewEngine(client, env.cfg, env.db, env.logger)
			return nil
		},
		Commands: []*cli.Command{
			scanCmd(env),
			checkCmd(env),
			missingCmd(env),
			planCmd(env),
			restoreCmd(env),
			diffCmd(env),
			migrateCmd(env),
			freezeCmd(env),
			conflictsCmd(env),
			searchCmd(env),
			runsCmd(env),
			failuresCmd(env),
			interpretersCmd(env),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// pythonFlag and its siblings return a fresh flag per command since urfave
// flags keep parse state.
func pythonFlag() cli.Flag {
	return &cli.StringFlag{Name: "python", Aliases: []string{"p"}, Required: true, Usage: "Path to the environment's Python executable"}
}

func mirrorFlag() cli.Flag {
	return &cli.StringFlag{Name: "mirror", Usage: "Mirror name from config, or an index URL"}
}

func sameRootFlag() cli.Flag {
	return &cli.BoolFlag{Name: "same-root", Usage: "Refuse directories outside the interpreter's environment root"}
}

func manifestFlag() cli.Flag {
	return &cli.StringFlag{Name: "requirement", Aliases: []string{"r"}, Required: true, Usage: "Path to the manifest file"}
}

// scanCmd creates the scan command.
func scanCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:      "scan",
		Usage:     "Report which plugin manifests under a directory are satisfied",
		ArgsUsage: "<root>",
		Flags: []cli.Flag{
			pythonFlag(),
			sameRootFlag(),
			&cli.StringFlag{Name: "manifest-name", Usage: "Manifest file name (default from config)"},
			&cli.StringSliceFlag{Name: "skip", Usage: "Manifest path already known to be satisfied (repeatable)"},
			&cli.BoolFlag{Name: "use-stored", Usage: "Skip manifests an earlier scan found satisfied"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return outputError(errors.NewInvalidRequest("scan takes exactly one root directory"))
			}
			root, interp := c.Args().First(), c.String("python")
			if err := env.engine.Preflight(interp, c.Bool("same-root"), root); err != nil {
				return outputError(err)
			}

			report := env.engine.Scan(c.Context, ops.ScanInput{
				Root:         root,
				Interpreter:  interp,
				ManifestName: c.String("manifest-name"),
				SkipCache:    c.StringSlice("skip"),
				UseStored:    c.Bool("use-stored"),
				Reporter:     env.reporter(),
			})
			env.remember(c, interp)

			return outputJSON(c, report)
		},
	}
}

// checkCmd creates the check command.
func checkCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "check",
		Usage: "Show per-requirement status of one manifest",
		Flags: []cli.Flag{pythonFlag(), manifestFlag(), sameRootFlag()},
		Action: func(c *cli.Context) error {
			interp, manifest := c.String("python"), c.String("requirement")
			if err := env.preflightManifest(c, interp, manifest); err != nil {
				return outputError(err)
			}

			output, err := env.engine.Check(c.Context, ops.CheckInput{Interpreter: interp, Manifest: manifest})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(c, output)
		},
	}
}

// missingCmd creates the missing command.
func missingCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "missing",
		Usage: "List (or install) the requirements of one manifest that are not installed",
		Flags: []cli.Flag{
			pythonFlag(),
			manifestFlag(),
			sameRootFlag(),
			mirrorFlag(),
			&cli.BoolFlag{Name: "install", Usage: "Install the missing requirements without dependencies"},
		},
		Action: func(c *cli.Context) error {
			interp, manifest := c.String("python"), c.String("requirement")
			if err := env.preflightManifest(c, interp, manifest); err != nil {
				return outputError(err)
			}

			if !c.Bool("install") {
				missing, err := env.engine.MissingSpecs(c.Context, interp, manifest)
				if err != nil {
					return outputError(err)
				}
				return outputJSON(c, map[string]any{"manifest": manifest, "missing": missing})
			}

			mirror, err := env.mirror(c)
			if err != nil {
				return outputError(err)
			}
			summary, err := env.engine.InstallMissing(c.Context, ops.InstallMissingInput{
				Interpreter: interp,
				Manifest:    manifest,
				Mirror:      mirror,
				Reporter:    env.reporter(),
			})
			if err != nil {
				return outputError(err)
			}
			env.remember(c, interp)

			return outputJSON(c, summary)
		},
	}
}

// planCmd creates the plan command.
func planCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:      "plan",
		Usage:     "Show what restoring a snapshot would install and uninstall",
		ArgsUsage: "<snapshot>",
		Flags:     []cli.Flag{pythonFlag()},
		Action: func(c *cli.Context) error {
			return env.restore(c, true)
		},
	}
}

// restoreCmd creates the restore command.
func restoreCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:      "restore",
		Usage:     "Make the environment match a snapshot",
		ArgsUsage: "<snapshot>",
		Flags:     []cli.Flag{pythonFlag(), mirrorFlag()},
		Action: func(c *cli.Context) error {
			return env.restore(c, false)
		},
	}
}

func (env *appEnv) restore(c *cli.Context, dryRun bool) error {
	if c.NArg() != 1 {
		return outputError(errors.NewInvalidRequest("a snapshot file is required"))
	}
	mirror, err := env.mirror(c)
	if err != nil {
		return outputError(err)
	}

	interp := c.String("python")
	output, err := env.engine.Restore(c.Context, ops.RestoreInput{
		Interpreter:  interp,
		SnapshotFile: c.Args().First(),
		Mirror:       mirror,
		DryRun:       dryRun,
		Reporter:     env.reporter(),
	})
	if err != nil {
		return outputError(err)
	}
	if !dryRun {
		env.remember(c, interp)
	}

	return outputJSON(c, output)
}

// diffCmd creates the diff command.
func diffCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:      "diff",
		Usage:     "Compare two snapshot files, or two interpreters with --python-pair",
		ArgsUsage: "<source> <target>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "python-pair", Usage: "Treat the arguments as Python executables"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 2 {
				return outputError(errors.NewInvalidRequest("diff takes a source and a target"))
			}
			source, target := c.Args().Get(0), c.Args().Get(1)

			var (
				output *ops.MigrationDiff
				err    error
			)
			if c.Bool("python-pair") {
				output, err = env.engine.DiffInterpreters(c.Context, source, target)
			} else {
				output, err = ops.DiffFiles(source, target)
			}
			if err != nil {
				return outputError(err)
			}

			return outputJSON(c, output)
		},
	}
}

// migrateCmd creates the migrate command.
func migrateCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Install a source package set into the target environment",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "target", Aliases: []string{"t"}, Required: true, Usage: "Target Python executable"},
			&cli.StringFlag{Name: "from-file", Usage: "Source snapshot file"},
			&cli.StringFlag{Name: "from-python", Usage: "Source Python executable"},
			mirrorFlag(),
		},
		Action: func(c *cli.Context) error {
			mirror, err := env.mirror(c)
			if err != nil {
				return outputError(err)
			}

			target := c.String("target")
			summary, err := env.engine.Migrate(c.Context, ops.MigrateInput{
				SourceFile:        c.String("from-file"),
				SourceInterpreter: c.String("from-python"),
				Target:            target,
				Mirror:            mirror,
				Reporter:          env.reporter(),
			})
			if err != nil {
				return outputError(err)
			}
			env.remember(c, target)

			return outputJSON(c, summary)
		},
	}
}

// freezeCmd creates the freeze command.
func freezeCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "freeze",
		Usage: "Write the environment's installed packages to a snapshot file",
		Flags: []cli.Flag{
			pythonFlag(),
			&cli.StringFlag{Name: "path", Usage: "Snapshot path (default: env_snapshot_<unix>.txt)"},
			&cli.StringFlag{Name: "dir", Usage: "Directory for the default snapshot name"},
		},
		Action: func(c *cli.Context) error {
			output, err := env.engine.Freeze(c.Context, ops.FreezeInput{
				Interpreter: c.String("python"),
				Path:        c.String("path"),
				Dir:         c.String("dir"),
			})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(c, output)
		},
	}
}

// conflictsCmd creates the conflicts command.
func conflictsCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "conflicts",
		Usage: "Report broken dependencies among installed packages",
		Flags: []cli.Flag{pythonFlag()},
		Action: func(c *cli.Context) error {
			output, err := env.engine.Conflicts(c.Context, c.String("python"))
			if err != nil {
				return outputError(err)
			}

			return outputJSON(c, output)
		},
	}
}

// searchCmd creates the search command.
func searchCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "Fuzzy-search installed packages",
		ArgsUsage: "<query>",
		Flags: []cli.Flag{
			pythonFlag(),
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: ops.DefaultSearchLimit, Usage: "Maximum items to return"},
		},
		Action: func(c *cli.Context) error {
			interp := c.String("python")
			if err := ops.ValidateInterpreter(interp); err != nil {
				return outputError(err)
			}

			output, err := env.engine.Search(c.Context, ops.SearchInput{
				Interpreter: interp,
				Query:       strings.Join(c.Args().Slice(), " "),
				Limit:       c.Int("limit"),
			})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(c, output)
		},
	}
}

// runsCmd creates the runs command and its subcommands.
func runsCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "runs",
		Usage: "List recorded install runs, newest first",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: ops.DefaultRunsLimit, Usage: "Maximum items to return"},
			&cli.IntFlag{Name: "offset", Aliases: []string{"o"}, Value: 0, Usage: "Items to skip"},
		},
		Action: func(c *cli.Context) error {
			output, err := env.engine.ListRuns(c.Context, ops.ListRunsInput{
				Limit:  c.Int("limit"),
				Offset: c.Int("offset"),
			})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(c, output)
		},
		Subcommands: []*cli.Command{
			{
				Name:      "show",
				Usage:     "Show one run with its failed items",
				ArgsUsage: "<run-id>",
				Action: func(c *cli.Context) error {
					output, err := env.engine.GetRun(c.Context, c.Args().First())
					if err != nil {
						return outputError(err)
					}
					return outputJSON(c, output)
				},
			},
			{
				Name:  "purge",
				Usage: "Delete runs older than an age",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "older-than", Required: true, Usage: "Age such as 30d or 12h"},
				},
				Action: func(c *cli.Context) error {
					age, err := parseAge(c.String("older-than"))
					if err != nil {
						return outputError(errors.NewInvalidRequest(err.Error()))
					}
					n, err := env.engine.PurgeRuns(c.Context, age)
					if err != nil {
						return outputError(err)
					}
					return outputJSON(c, map[string]int64{"purged": n})
				},
			},
		},
	}
}

// failuresCmd creates the failures command.
func failuresCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:      "failures",
		Usage:     "Export the failed items of a run; the txt format is a retry manifest",
		ArgsUsage: "<run-id>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Value: ops.FormatText, Usage: "txt|json|yaml|html"},
			&cli.StringFlag{Name: "path", Usage: "Output path (extension must match the format)"},
			&cli.StringFlag{Name: "dir", Usage: "Directory for the default file name"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return outputError(errors.NewInvalidRequest("a run id is required"))
			}

			output, err := env.engine.ExportFailures(c.Context, ops.ExportInput{
				RunID:  c.Args().First(),
				Format: c.String("format"),
				Path:   c.String("path"),
				Dir:    c.String("dir"),
			})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(c, output)
		},
	}
}

// interpretersCmd creates the interpreters command.
func interpretersCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "interpreters",
		Usage: "List previously used interpreters",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: 20, Usage: "Maximum items to return"},
		},
		Action: func(c *cli.Context) error {
			items, err := env.engine.Interpreters(c.Context, c.Int("limit"))
			if err != nil {
				return outputError(err)
			}

			return outputJSON(c, map[string]any{"items": items})
		},
	}
}

// Helper functions

func (env *appEnv) preflightManifest(c *cli.Context, interp, manifest string) error {
	return env.engine.Preflight(interp, c.Bool("same-root"), filepath.Dir(manifest))
}

func (env *appEnv) mirror(c *cli.Context) (string, error) {
	name := c.String("mirror")
	u := env.cfg.ResolveMirror(name)
	if u == "" && name != "" {
		return "", errors.NewInvalidRequest(fmt.Sprintf("unknown mirror %q", name))
	}
	return u, nil
}

func (env *appEnv) remember(c *cli.Context, interp string) {
	if err := env.engine.RememberInterpreter(c.Context, interp); err != nil {
		env.logger.Warn("recording interpreter failed", "interpreter", interp, "error", err)
	}
}

// reporter sends engine progress and log lines to the logger.
func (env *appEnv) reporter() ops.Reporter {
	return ops.Reporter{
		Progress: func(v float64) { env.logger.Debug("progress", "done", strconv.Itoa(int(v*100))+"%") },
		Log:      func(msg string) { env.logger.Info(msg) },
	}
}

// outputJSON marshals result to the app's writer as JSON.
func outputJSON(c *cli.Context, v any) error {
	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	var venvErr *errors.VenvError
	if stderrors.As(err, &venvErr) {
		msg := venvErr.Message
		if err != error(venvErr) {
			msg = err.Error()
		}
		return cli.Exit(fmt.Sprintf("[%s] %s", venvErr.Code, msg), 1)
	}
	return cli.Exit(err.Error(), 1)
}

// parseAge parses "30d" as days, anything else as a Go duration.
func parseAge(s string) (time.Duration, error) {
	if numStr, ok := strings.CutSuffix(s, "d"); ok {
		days, err := strconv.Atoi(numStr)
		if err != nil {
			return 0, fmt.Errorf("invalid age: %s", s)
		}
		if days <= 0 {
			return 0, fmt.Errorf("age must be positive")
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid age %q: use days (30d) or a duration (12h)", s)
	}
	if d <= 0 {
		return 0, fmt.Errorf("age must be positive")
	}
	return d, nil
}
