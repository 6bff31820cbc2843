package ops

import (
	"context"
	"fmt"
	"os"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/hpungsan/venvkeep/internal/errors"
	"github.com/hpungsan/venvkeep/internal/requirement"
)

// VersionChange is a package present on both sides with different versions.
type VersionChange struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// MigrationDiff compares a source package map against a target.
// Added holds packages only the source has (what a migration would install),
// Removed those only the target has, Changed those whose versions differ.
type MigrationDiff struct {
	Added    map[string]string        `json:"added"`
	Removed  map[string]string        `json:"removed"`
	Changed  map[string]VersionChange `json:"changed"`
	Warnings []string                 `json:"warnings,omitempty"`
}

// Diff compares source and target. Names match after normalization;
// reported names and versions are taken verbatim from the side they come from.
func Diff(source, target map[string]string) MigrationDiff {
	d := MigrationDiff{
		Added:   map[string]string{},
		Removed: map[string]string{},
		Changed: map[string]VersionChange{},
	}

	targetNorm := make(map[string]string, len(target))
	for name := range target {
		targetNorm[requirement.Normalize(name)] = name
	}
	sourceNorm := make(map[string]struct{}, len(source))

	for name, version := range source {
		n := requirement.Normalize(name)
		sourceNorm[n] = struct{}{}
		tname, ok := targetNorm[n]
		if !ok {
			d.Added[name] = version
			continue
		}
		if tv := target[tname]; tv != version {
			d.Changed[name] = VersionChange{Source: version, Target: tv}
		}
	}
	for name, version := range target {
		if _, ok := sourceNorm[requirement.Normalize(name)]; !ok {
			d.Removed[name] = version
		}
	}
	return d
}

// DiffFiles compares two snapshot files.
func DiffFiles(sourcePath, targetPath string) (*MigrationDiff, error) {
	source, err := readSnapshot(sourcePath)
	if err != nil {
		return nil, err
	}
	target, err := readSnapshot(targetPath)
	if err != nil {
		return nil, err
	}
	d := Diff(source, target)
	return &d, nil
}

// DiffInterpreters compares the installed packages of two interpreters,
// listing both concurrently. A side whose listing fails is treated as empty
// and the failure is reported in Warnings.
func (e *Engine) DiffInterpreters(ctx context.Context, source, target string) (*MigrationDiff, error) {
	for _, p := range []string{source, target} {
		if err := ValidateInterpreter(p); err != nil {
			return nil, err
		}
	}

	var src, tgt map[string]string
	var srcWarn, tgtWarn string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		src, srcWarn = e.listOrWarn(gctx, "source", source)
		return nil
	})
	g.Go(func() error {
		tgt, tgtWarn = e.listOrWarn(gctx, "target", target)
		return nil
	})
	_ = g.Wait()

	d := Diff(src, tgt)
	for _, w := range []string{srcWarn, tgtWarn} {
		if w != "" {
			d.Warnings = append(d.Warnings, w)
		}
	}
	return &d, nil
}

// listOrWarn lists an interpreter's packages, returning an empty map and a
// warning when the listing fails.
func (e *Engine) listOrWarn(ctx context.Context, side, interpreter string) (map[string]string, string) {
	listed, err := e.client.List(ctx, interpreter)
	if err != nil {
		e.logger.Warn("listing packages failed", "side", side, "interpreter", interpreter, "error", err)
		return map[string]string{}, fmt.Sprintf("listing %s packages failed: %v", side, err)
	}
	return listed, ""
}

// MigrateInput contains parameters for the Migrate operation.
// Exactly one of Source, SourceFile or SourceInterpreter must be set.
type MigrateInput struct {
	Source            map[string]string // name -> version
	SourceFile        string            // snapshot file
	SourceInterpreter string            // another environment
	Target            string            // required: target interpreter
	Mirror            string            // index URL
	Reporter          Reporter
}

// Migrate installs every package the source has and the target lacks,
// each pinned to the source version and without dependencies.
func (e *Engine) Migrate(ctx context.Context, input MigrateInput) (*RunSummary, error) {
	set := 0
	if input.Source != nil {
		set++
	}
	if input.SourceFile != "" {
		set++
	}
	if input.SourceInterpreter != "" {
		set++
	}
	if set != 1 {
		return nil, errors.NewInvalidRequest("exactly one of source, source_file or source_interpreter is required")
	}
	if err := ValidateInterpreter(input.Target); err != nil {
		return nil, err
	}
	if input.SourceInterpreter != "" {
		if err := ValidateInterpreter(input.SourceInterpreter); err != nil {
			return nil, err
		}
	}

	source := input.Source
	if input.SourceFile != "" {
		var err error
		if source, err = readSnapshot(input.SourceFile); err != nil {
			return nil, err
		}
	}

	var installed map[string]string
	var warning string
	g, gctx := errgroup.WithContext(ctx)
	if input.SourceInterpreter != "" {
		g.Go(func() error {
			source, warning = e.listOrWarn(gctx, "source", input.SourceInterpreter)
			return nil
		})
	}
	g.Go(func() error {
		installed = e.cache.InstalledMap(gctx, input.Target)
		return nil
	})
	_ = g.Wait()
	if warning != "" {
		input.Reporter.logf("%s", warning)
	}

	diff := Diff(source, installed)
	plan := ReconciliationPlan{ToUninstall: []string{}, ToInstall: make([]string, 0, len(diff.Added))}
	for name, version := range diff.Added {
		if version == "" {
			plan.ToInstall = append(plan.ToInstall, name)
		} else {
			plan.ToInstall = append(plan.ToInstall, name+"=="+version)
		}
	}
	sortByNormalized(plan.ToInstall)
	input.Reporter.logf("%d packages to migrate", len(plan.ToInstall))

	summary := e.Execute(ctx, plan, ExecuteInput{
		Interpreter: input.Target,
		Mirror:      input.Mirror,
		NoDeps:      true,
		Kind:        KindMigrate,
		Reporter:    input.Reporter,
	})
	if warning != "" {
		summary.Warnings = append(summary.Warnings, warning)
	}
	return summary, nil
}

func readSnapshot(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewFileNotFound(path)
		}
		return nil, errors.NewInvalidRequest(fmt.Sprintf("cannot read %s: %v", path, err))
	}
	return requirement.ParseSnapshot(strings.ToValidUTF8(string(data), "")), nil
}
