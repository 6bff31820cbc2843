package mcp

import (
	"sort"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hpungsan/venvkeep/internal/ops"
)

// toolEntry pairs a tool definition with a handler factory.
type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

// toolRegistry maps tool names to their definitions and handler factories.
var toolRegistry = map[string]toolEntry{
	"venv_scan": {
		def:     scanToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleScan },
	},
	"venv_check": {
		def:     checkToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleCheck },
	},
	"venv_missing": {
		def:     missingToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleMissing },
	},
	"venv_install_missing": {
		def:     installMissingToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleInstallMissing },
	},
	"venv_plan": {
		def:     planToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandlePlan },
	},
	"venv_restore": {
		def:     restoreToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleRestore },
	},
	"venv_diff": {
		def:     diffToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleDiff },
	},
	"venv_migrate": {
		def:     migrateToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleMigrate },
	},
	"venv_freeze": {
		def:     freezeToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleFreeze },
	},
	"venv_conflicts": {
		def:     conflictsToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleConflicts },
	},
	"venv_search": {
		def:     searchToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSearch },
	},
	"venv_runs": {
		def:     runsToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleRuns },
	},
	"venv_run": {
		def:     runToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleRun },
	},
	"venv_export_failures": {
		def:     exportFailuresToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleExportFailures },
	},
	"venv_interpreters": {
		def:     interpretersToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleInterpreters },
	},
	"venv_purge_runs": {
		def:     purgeRunsToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandlePurgeRuns },
	},
}

// AllToolNames returns all valid tool names, sorted.
func AllToolNames() []string {
	names := make([]string, 0, len(toolRegistry))
	for name := range toolRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ValidateDisabledTools returns a list of unknown tool names from the given list.
func ValidateDisabledTools(names []string) []string {
	unknown := make([]string, 0)
	for _, name := range names {
		if _, ok := toolRegistry[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// NewServer creates an MCP server exposing the engine's operations.
// Tools listed in the engine config's DisabledTools are not registered.
func NewServer(engine *ops.Engine, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"venvkeep",
		version,
		server.WithToolCapabilities(true),
	)

	h := NewHandlers(engine)

	disabled := make(map[string]bool)
	for _, name := range engine.Config().DisabledTools {
		disabled[name] = true
	}

	for name, entry := range toolRegistry {
		if disabled[name] {
			continue
		}
		s.AddTool(entry.def, entry.handler(h))
	}

	return s
}

// Run starts the MCP server using stdio transport.
func Run(engine *ops.Engine, version string) error {
	return server.ServeStdio(NewServer(engine, version))
}
