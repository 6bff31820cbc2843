package mcp

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hpungsan/venvkeep/internal/config"
	"github.com/hpungsan/venvkeep/internal/errors"
	"github.com/hpungsan/venvkeep/internal/ops"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	engine *ops.Engine
	cfg    *config.Config
	logger *slog.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(engine *ops.Engine) *Handlers {
	return &Handlers{engine: engine, cfg: engine.Config(), logger: engine.Logger()}
}

// Request types for each tool

// ScanRequest represents the arguments for venv_scan.
type ScanRequest struct {
	Root         string   `json:"root"`
	Interpreter  string   `json:"interpreter"`
	ManifestName string   `json:"manifest_name,omitempty"`
	SkipCache    []string `json:"skip_cache,omitempty"`
	UseStored    bool     `json:"use_stored,omitempty"`
	SameRoot     bool     `json:"same_root,omitempty"`
}

// ManifestRequest represents the arguments for venv_check, venv_missing and venv_install_missing.
type ManifestRequest struct {
	Interpreter string `json:"interpreter"`
	Manifest    string `json:"manifest"`
	Mirror      string `json:"mirror,omitempty"`
	SameRoot    bool   `json:"same_root,omitempty"`
}

// RestoreRequest represents the arguments for venv_plan and venv_restore.
type RestoreRequest struct {
	Interpreter  string            `json:"interpreter"`
	Snapshot     map[string]string `json:"snapshot,omitempty"`
	SnapshotFile string            `json:"snapshot_file,omitempty"`
	Mirror       string            `json:"mirror,omitempty"`
}

// DiffRequest represents the arguments for venv_diff.
type DiffRequest struct {
	SourceFile        string `json:"source_file,omitempty"`
	TargetFile        string `json:"target_file,omitempty"`
	SourceInterpreter string `json:"source_interpreter,omitempty"`
	TargetInterpreter string `json:"target_interpreter,omitempty"`
}

// MigrateRequest represents the arguments for venv_migrate.
type MigrateRequest struct {
	Target            string            `json:"target"`
	Source            map[string]string `json:"source,omitempty"`
	SourceFile        string            `json:"source_file,omitempty"`
	SourceInterpreter string            `json:"source_interpreter,omitempty"`
	Mirror            string            `json:"mirror,omitempty"`
}

// FreezeRequest represents the arguments for venv_freeze.
type FreezeRequest struct {
	Interpreter string `json:"interpreter"`
	Path        string `json:"path,omitempty"`
	Dir         string `json:"dir,omitempty"`
}

// InterpreterRequest represents the arguments for venv_conflicts.
type InterpreterRequest struct {
	Interpreter string `json:"interpreter"`
}

// SearchRequest represents the arguments for venv_search.
type SearchRequest struct {
	Interpreter string `json:"interpreter"`
	Query       string `json:"query"`
	Limit       int    `json:"limit,omitempty"`
}

// RunsRequest represents the arguments for venv_runs.
type RunsRequest struct {
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

// RunRequest represents the arguments for venv_run.
type RunRequest struct {
	ID string `json:"id"`
}

// ExportFailuresRequest represents the arguments for venv_export_failures.
type ExportFailuresRequest struct {
	RunID    string        `json:"run_id,omitempty"`
	Failures []ops.Failure `json:"failures,omitempty"`
	Format   string        `json:"format,omitempty"`
	Path     string        `json:"path,omitempty"`
	Dir      string        `json:"dir,omitempty"`
}

// InterpretersRequest represents the arguments for venv_interpreters.
type InterpretersRequest struct {
	Limit int `json:"limit,omitempty"`
}

// PurgeRunsRequest represents the arguments for venv_purge_runs.
type PurgeRunsRequest struct {
	OlderThan string `json:"older_than"`
}

// MissingOutput is the result of venv_missing.
type MissingOutput struct {
	Manifest string   `json:"manifest"`
	Missing  []string `json:"missing"`
}

// PurgeRunsOutput is the result of venv_purge_runs.
type PurgeRunsOutput struct {
	Purged int64 `json:"purged"`
}

// Handler implementations

// HandleScan handles the venv_scan tool call.
func (h *Handlers) HandleScan(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ScanRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if err := h.engine.Preflight(input.Interpreter, input.SameRoot, input.Root); err != nil {
		return errorResult(err), nil
	}

	result := h.engine.Scan(ctx, ops.ScanInput{
		Root:         input.Root,
		Interpreter:  input.Interpreter,
		ManifestName: input.ManifestName,
		SkipCache:    input.SkipCache,
		UseStored:    input.UseStored,
		Reporter:     h.reporter(ctx, req),
	})
	h.remember(ctx, input.Interpreter)

	return successResult(result)
}

// HandleCheck handles the venv_check tool call.
func (h *Handlers) HandleCheck(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ManifestRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if err := h.preflightManifest(input); err != nil {
		return errorResult(err), nil
	}

	result, err := h.engine.Check(ctx, ops.CheckInput{
		Interpreter: input.Interpreter,
		Manifest:    input.Manifest,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleMissing handles the venv_missing tool call.
func (h *Handlers) HandleMissing(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ManifestRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if err := h.preflightManifest(input); err != nil {
		return errorResult(err), nil
	}

	missing, err := h.engine.MissingSpecs(ctx, input.Interpreter, input.Manifest)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(MissingOutput{Manifest: input.Manifest, Missing: missing})
}

// HandleInstallMissing handles the venv_install_missing tool call.
func (h *Handlers) HandleInstallMissing(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ManifestRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if err := h.preflightManifest(input); err != nil {
		return errorResult(err), nil
	}
	mirror, err := h.resolveMirror(input.Mirror)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := h.engine.InstallMissing(ctx, ops.InstallMissingInput{
		Interpreter: input.Interpreter,
		Manifest:    input.Manifest,
		Mirror:      mirror,
		Reporter:    h.reporter(ctx, req),
	})
	if err != nil {
		return errorResult(err), nil
	}
	h.remember(ctx, input.Interpreter)

	return successResult(result)
}

// HandlePlan handles the venv_plan tool call.
func (h *Handlers) HandlePlan(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return h.restore(ctx, req, true)
}

// HandleRestore handles the venv_restore tool call.
func (h *Handlers) HandleRestore(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return h.restore(ctx, req, false)
}

func (h *Handlers) restore(ctx context.Context, req mcp.CallToolRequest, dryRun bool) (*mcp.CallToolResult, error) {
	input, err := decode[RestoreRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	mirror, err := h.resolveMirror(input.Mirror)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := h.engine.Restore(ctx, ops.RestoreInput{
		Interpreter:  input.Interpreter,
		Snapshot:     input.Snapshot,
		SnapshotFile: input.SnapshotFile,
		Mirror:       mirror,
		DryRun:       dryRun,
		Reporter:     h.reporter(ctx, req),
	})
	if err != nil {
		return errorResult(err), nil
	}
	if !dryRun {
		h.remember(ctx, input.Interpreter)
	}

	return successResult(result)
}

// HandleDiff handles the venv_diff tool call.
func (h *Handlers) HandleDiff(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[DiffRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	files := input.SourceFile != "" || input.TargetFile != ""
	interps := input.SourceInterpreter != "" || input.TargetInterpreter != ""
	var result *ops.MigrationDiff
	switch {
	case files && interps:
		return errorResult(errors.NewInvalidRequest("compare either two files or two interpreters, not both")), nil
	case files:
		if input.SourceFile == "" || input.TargetFile == "" {
			return errorResult(errors.NewInvalidRequest("source_file and target_file are both required")), nil
		}
		result, err = ops.DiffFiles(input.SourceFile, input.TargetFile)
	case interps:
		result, err = h.engine.DiffInterpreters(ctx, input.SourceInterpreter, input.TargetInterpreter)
	default:
		return errorResult(errors.NewInvalidRequest("source_file/target_file or source_interpreter/target_interpreter is required")), nil
	}
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleMigrate handles the venv_migrate tool call.
func (h *Handlers) HandleMigrate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[MigrateRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	mirror, err := h.resolveMirror(input.Mirror)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := h.engine.Migrate(ctx, ops.MigrateInput{
		Source:            input.Source,
		SourceFile:        input.SourceFile,
		SourceInterpreter: input.SourceInterpreter,
		Target:            input.Target,
		Mirror:            mirror,
		Reporter:          h.reporter(ctx, req),
	})
	if err != nil {
		return errorResult(err), nil
	}
	h.remember(ctx, input.Target)

	return successResult(result)
}

// HandleFreeze handles the venv_freeze tool call.
func (h *Handlers) HandleFreeze(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[FreezeRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := h.engine.Freeze(ctx, ops.FreezeInput{
		Interpreter: input.Interpreter,
		Path:        input.Path,
		Dir:         input.Dir,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleConflicts handles the venv_conflicts tool call.
func (h *Handlers) HandleConflicts(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[InterpreterRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := h.engine.Conflicts(ctx, input.Interpreter)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleSearch handles the venv_search tool call.
func (h *Handlers) HandleSearch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SearchRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if err := ops.ValidateInterpreter(input.Interpreter); err != nil {
		return errorResult(err), nil
	}

	result, err := h.engine.Search(ctx, ops.SearchInput{
		Interpreter: input.Interpreter,
		Query:       input.Query,
		Limit:       input.Limit,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleRuns handles the venv_runs tool call.
func (h *Handlers) HandleRuns(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[RunsRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := h.engine.ListRuns(ctx, ops.ListRunsInput{Limit: input.Limit, Offset: input.Offset})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleRun handles the venv_run tool call.
func (h *Handlers) HandleRun(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[RunRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := h.engine.GetRun(ctx, input.ID)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleExportFailures handles the venv_export_failures tool call.
func (h *Handlers) HandleExportFailures(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ExportFailuresRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := h.engine.ExportFailures(ctx, ops.ExportInput{
		RunID:    input.RunID,
		Failures: input.Failures,
		Format:   input.Format,
		Path:     input.Path,
		Dir:      input.Dir,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleInterpreters handles the venv_interpreters tool call.
func (h *Handlers) HandleInterpreters(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[InterpretersRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	items, err := h.engine.Interpreters(ctx, input.Limit)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(map[string]any{"items": items})
}

// HandlePurgeRuns handles the venv_purge_runs tool call.
func (h *Handlers) HandlePurgeRuns(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[PurgeRunsRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	olderThan, err := time.ParseDuration(input.OlderThan)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(fmt.Sprintf("older_than: %v", err))), nil
	}

	n, err := h.engine.PurgeRuns(ctx, olderThan)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(PurgeRunsOutput{Purged: n})
}

func (h *Handlers) preflightManifest(input ManifestRequest) error {
	if input.Manifest == "" {
		return errors.NewInvalidRequest("manifest is required")
	}
	return h.engine.Preflight(input.Interpreter, input.SameRoot, filepath.Dir(input.Manifest))
}

// resolveMirror maps a mirror name or URL to an index URL. A name that
// resolves to nothing is rejected rather than silently using the default index.
func (h *Handlers) resolveMirror(nameOrURL string) (string, error) {
	u := h.cfg.ResolveMirror(nameOrURL)
	if u == "" && nameOrURL != "" {
		return "", errors.NewInvalidRequest(fmt.Sprintf("unknown mirror %q", nameOrURL))
	}
	return u, nil
}

func (h *Handlers) remember(ctx context.Context, interpreter string) {
	if err := h.engine.RememberInterpreter(ctx, interpreter); err != nil {
		h.logger.Warn("recording interpreter failed", "interpreter", interpreter, "error", err)
	}
}

// reporter forwards progress as MCP progress notifications when the caller
// supplied a progress token, and engine log lines to the server log.
func (h *Handlers) reporter(ctx context.Context, req mcp.CallToolRequest) ops.Reporter {
	tool := req.Params.Name
	r := ops.Reporter{
		Log: func(msg string) { h.logger.Debug(msg, "tool", tool) },
	}
	if req.Params.Meta == nil || req.Params.Meta.ProgressToken == nil {
		return r
	}
	srv := server.ServerFromContext(ctx)
	if srv == nil {
		return r
	}
	token := req.Params.Meta.ProgressToken
	r.Progress = func(v float64) {
		err := srv.SendNotificationToClient(ctx, "notifications/progress", map[string]any{
			"progressToken": token,
			"progress":      v,
			"total":         1.0,
		})
		if err != nil {
			h.logger.Debug("progress notification dropped", "tool", tool, "error", err)
		}
	}
	return r
}

// errorResult creates an MCP error result from an error.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	var venvErr *errors.VenvError
	if stderrors.As(err, &venvErr) {
		message := venvErr.Message
		if err != error(venvErr) {
			// keep the context added by wrapping
			message = err.Error()
		}
		errorObj := map[string]any{
			"code":    venvErr.Code,
			"message": message,
			"status":  venvErr.Status,
		}
		// Only include details for non-internal errors to avoid leaking
		// file paths or subprocess output
		if venvErr.Code != errors.ErrInternal && venvErr.Details != nil {
			errorObj["details"] = venvErr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    errors.ErrInternal,
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
