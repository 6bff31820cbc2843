package mcp

import "github.com/mark3labs/mcp-go/mcp"

var stringItems = mcp.Items(map[string]any{"type": "string"})

var interpreterArg = mcp.WithString("interpreter",
	mcp.Required(),
	mcp.Description("Path to the environment's Python executable"),
)

var mirrorArg = mcp.WithString("mirror",
	mcp.Description("Mirror name from config or an index URL. Defaults to the configured mirror; empty config means the default index"),
)

var sameRootArg = mcp.WithBoolean("same_root",
	mcp.Description("Refuse to run when the manifest lives under a different environment root than the interpreter"),
)

var scanToolDef = mcp.NewTool("venv_scan",
	mcp.WithDescription("Scan each plugin directory one level below root for a requirements manifest and report which manifests are fully satisfied by the interpreter's environment and which packages are missing."),
	mcp.WithString("root", mcp.Required(), mcp.Description("Directory whose immediate subdirectories are plugins")),
	interpreterArg,
	mcp.WithString("manifest_name", mcp.Description("Manifest file name to look for (default: requirements.txt)")),
	mcp.WithArray("skip_cache", stringItems, mcp.Description("Manifest paths already known to be satisfied")),
	mcp.WithBoolean("use_stored", mcp.Description("Also skip manifests a previous scan of this root found satisfied")),
	sameRootArg,
)

var checkToolDef = mcp.NewTool("venv_check",
	mcp.WithDescription("Report per-requirement status of one manifest: installed version, whether the version constraint is satisfied, and VCS entries that cannot be checked."),
	interpreterArg,
	mcp.WithString("manifest", mcp.Required(), mcp.Description("Path to the manifest file")),
	sameRootArg,
)

var missingToolDef = mcp.NewTool("venv_missing",
	mcp.WithDescription("List the requirement lines of one manifest that are not installed, with their version constraints."),
	interpreterArg,
	mcp.WithString("manifest", mcp.Required(), mcp.Description("Path to the manifest file")),
	sameRootArg,
)

var installMissingToolDef = mcp.NewTool("venv_install_missing",
	mcp.WithDescription("Install the missing requirements of one manifest without dependencies. Returns a run summary; failures do not stop the run."),
	interpreterArg,
	mcp.WithString("manifest", mcp.Required(), mcp.Description("Path to the manifest file")),
	mirrorArg,
	sameRootArg,
)

var planToolDef = mcp.NewTool("venv_plan",
	mcp.WithDescription("Compute the install and uninstall plan that would make the environment match a snapshot, without changing anything."),
	interpreterArg,
	mcp.WithString("snapshot_file", mcp.Description("Path to a freeze-style snapshot file")),
	mcp.WithObject("snapshot", mcp.Description("Desired packages as name to exact version; empty version means any")),
)

var restoreToolDef = mcp.NewTool("venv_restore",
	mcp.WithDescription("Make the environment match a snapshot: uninstall packages not in it, then force-reinstall everything that differs. Protected packages are never uninstalled."),
	interpreterArg,
	mcp.WithString("snapshot_file", mcp.Description("Path to a freeze-style snapshot file")),
	mcp.WithObject("snapshot", mcp.Description("Desired packages as name to exact version; empty version means any")),
	mirrorArg,
)

var diffToolDef = mcp.NewTool("venv_diff",
	mcp.WithDescription("Compare two package sets. Provide both files or both interpreters. added lists source-only packages, removed lists target-only packages."),
	mcp.WithString("source_file", mcp.Description("Source snapshot file")),
	mcp.WithString("target_file", mcp.Description("Target snapshot file")),
	mcp.WithString("source_interpreter", mcp.Description("Source Python executable")),
	mcp.WithString("target_interpreter", mcp.Description("Target Python executable")),
)

var migrateToolDef = mcp.NewTool("venv_migrate",
	mcp.WithDescription("Install into the target environment every package of the source set that is missing or at a different version. Nothing is uninstalled."),
	mcp.WithString("target", mcp.Required(), mcp.Description("Target Python executable")),
	mcp.WithObject("source", mcp.Description("Source packages as name to version")),
	mcp.WithString("source_file", mcp.Description("Source snapshot file")),
	mcp.WithString("source_interpreter", mcp.Description("Source Python executable")),
	mirrorArg,
)

var freezeToolDef = mcp.NewTool("venv_freeze",
	mcp.WithDescription("Write the environment's frozen package list to a snapshot file."),
	interpreterArg,
	mcp.WithString("path", mcp.Description("Output .txt path (default: env_snapshot_<unix>.txt in dir)")),
	mcp.WithString("dir", mcp.Description("Output directory when path is omitted")),
)

var conflictsToolDef = mcp.NewTool("venv_conflicts",
	mcp.WithDescription("Report broken or conflicting dependencies of installed packages."),
	interpreterArg,
)

var searchToolDef = mcp.NewTool("venv_search",
	mcp.WithDescription("Fuzzy-search installed packages by name."),
	interpreterArg,
	mcp.WithString("query", mcp.Required(), mcp.Description("Search text")),
	mcp.WithNumber("limit", mcp.Description("Maximum results (default 20, max 200)")),
)

var runsToolDef = mcp.NewTool("venv_runs",
	mcp.WithDescription("List recorded install runs, newest first."),
	mcp.WithNumber("limit", mcp.Description("Maximum results (default 20, max 100)")),
	mcp.WithNumber("offset", mcp.Description("Pagination offset")),
)

var runToolDef = mcp.NewTool("venv_run",
	mcp.WithDescription("Fetch one recorded run with its failed items."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Run ID")),
)

var exportFailuresToolDef = mcp.NewTool("venv_export_failures",
	mcp.WithDescription("Write the failed items of a run to a file. The txt format groups items by reason and can be used as a manifest for a retry."),
	mcp.WithString("run_id", mcp.Description("Recorded run to export")),
	mcp.WithArray("failures", mcp.Items(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"spec":   map[string]any{"type": "string"},
			"reason": map[string]any{"type": "string"},
		},
	}), mcp.Description("Failed items to export when run_id is omitted")),
	mcp.WithString("format", mcp.Description("Output format"), mcp.Enum("txt", "json", "yaml", "html")),
	mcp.WithString("path", mcp.Description("Output path; its extension must match the format")),
	mcp.WithString("dir", mcp.Description("Output directory when path is omitted")),
)

var interpretersToolDef = mcp.NewTool("venv_interpreters",
	mcp.WithDescription("List previously used interpreters, most recent first."),
	mcp.WithNumber("limit", mcp.Description("Maximum results")),
)

var purgeRunsToolDef = mcp.NewTool("venv_purge_runs",
	mcp.WithDescription("Delete recorded runs older than a duration."),
	mcp.WithString("older_than", mcp.Required(), mcp.Description("Go duration, e.g. 720h")),
)
