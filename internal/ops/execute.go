package ops

import (
	"context"
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/hpungsan/venvkeep/internal/db"
	"github.com/hpungsan/venvkeep/internal/pip"
)

// Run kinds recorded with each summary.
const (
	KindExecute        = "execute"
	KindRestore        = "restore"
	KindMigrate        = "migrate"
	KindInstallMissing = "install_missing"
)

// ReasonCancelled marks an item interrupted by cancellation while running.
const ReasonCancelled = "cancelled"

// ExecuteInput contains parameters for the Execute operation.
type ExecuteInput struct {
	Interpreter    string // required
	Mirror         string // index URL; empty means the default index
	NoDeps         bool
	ForceReinstall bool
	Upgrade        bool
	Kind           string // default: KindExecute
	Reporter       Reporter
}

// Failure is one failed item and its short reason.
type Failure struct {
	Spec   string `json:"spec" yaml:"spec"`
	Reason string `json:"reason" yaml:"reason"`
}

// InstallOutcome is the result of one planned install.
type InstallOutcome struct {
	Spec          string `json:"spec"`
	Succeeded     bool   `json:"succeeded"`
	FailureReason string `json:"failure_reason,omitempty"`
	UsedFallback  bool   `json:"used_fallback,omitempty"`
	DurationMS    int64  `json:"duration_ms"`
}

// RunSummary aggregates one execution.
type RunSummary struct {
	RunID           string           `json:"run_id"`
	Kind            string           `json:"kind"`
	Interpreter     string           `json:"interpreter"`
	Mirror          string           `json:"mirror,omitempty"`
	SucceededCount  int              `json:"succeeded_count"`
	Failed          []Failure        `json:"failed"`
	Uninstalled     []string         `json:"uninstalled"`
	UninstallFailed []Failure        `json:"uninstall_failed"`
	Outcomes        []InstallOutcome `json:"outcomes"`
	Skipped         []string         `json:"skipped"`
	Cancelled       bool             `json:"cancelled"`
	Warnings        []string         `json:"warnings,omitempty"`
	StartedAt       int64            `json:"started_at"`
	FinishedAt      int64            `json:"finished_at"`
}

// FailedCount returns the number of failed installs.
func (s *RunSummary) FailedCount() int {
	return len(s.Failed)
}

// Execute applies plan to the interpreter: uninstalls first, then installs.
// One item's failure never stops the run. A failed install whose output says the
// package is not on the mirror is retried once against the default index.
// Cancellation is honored between items; unattempted items are listed in Skipped.
func (e *Engine) Execute(ctx context.Context, plan ReconciliationPlan, input ExecuteInput) *RunSummary {
	progress := input.Reporter.tracker()
	defer progress.done()

	kind := input.Kind
	if kind == "" {
		kind = KindExecute
	}
	started := e.now()
	summary := &RunSummary{
		RunID:           ulid.MustNew(ulid.Timestamp(started), rand.Reader).String(),
		Kind:            kind,
		Interpreter:     input.Interpreter,
		Mirror:          input.Mirror,
		Failed:          []Failure{},
		Uninstalled:     []string{},
		UninstallFailed: []Failure{},
		Outcomes:        []InstallOutcome{},
		Skipped:         []string{},
		StartedAt:       started.Unix(),
	}
	log := e.logger.With("run_id", summary.RunID, "interpreter", input.Interpreter)

	share := e.uninstallShare(len(plan.ToUninstall), len(plan.ToInstall))

	for i, name := range plan.ToUninstall {
		if ctx.Err() != nil {
			summary.Cancelled = true
			summary.Skipped = append(summary.Skipped, plan.ToUninstall[i:]...)
			summary.Skipped = append(summary.Skipped, plan.ToInstall...)
			return e.finish(ctx, summary)
		}

		input.Reporter.logf("uninstalling %s", name)
		res := e.client.Uninstall(ctx, input.Interpreter, name, e.cfg.UninstallTimeout())
		if res.OK() {
			summary.Uninstalled = append(summary.Uninstalled, name)
		} else {
			reason := pip.ReasonFor(res)
			summary.UninstallFailed = append(summary.UninstallFailed, Failure{Spec: name, Reason: reason})
			log.Warn("uninstall failed", "package", name, "reason", reason)
		}
		progress.set(share * float64(i+1) / float64(len(plan.ToUninstall)))
	}

	opts := pip.InstallOptions{
		NoDeps:         input.NoDeps,
		ForceReinstall: input.ForceReinstall,
		Upgrade:        input.Upgrade,
		Timeout:        e.cfg.InstallTimeout(),
	}
	for i, spec := range plan.ToInstall {
		if ctx.Err() != nil {
			summary.Cancelled = true
			summary.Skipped = append(summary.Skipped, plan.ToInstall[i:]...)
			break
		}

		input.Reporter.logf("installing %s (%d/%d)", spec, i+1, len(plan.ToInstall))
		outcome := e.installOne(ctx, input.Interpreter, spec, input.Mirror, opts, input.Reporter)
		summary.Outcomes = append(summary.Outcomes, outcome)
		if outcome.Succeeded {
			summary.SucceededCount++
		} else {
			summary.Failed = append(summary.Failed, Failure{Spec: spec, Reason: outcome.FailureReason})
			log.Warn("install failed", "spec", spec, "reason", outcome.FailureReason)
		}
		if outcome.FailureReason == ReasonCancelled {
			summary.Cancelled = true
		}
		progress.set(share + (1-share)*float64(i+1)/float64(len(plan.ToInstall)))
	}

	return e.finish(ctx, summary)
}

func (e *Engine) installOne(ctx context.Context, interpreter, spec, mirror string, opts pip.InstallOptions, rep Reporter) InstallOutcome {
	start := time.Now()
	opts.IndexURL = mirror
	res := e.client.Install(ctx, interpreter, spec, opts)

	outcome := InstallOutcome{Spec: spec}
	if !res.OK() && mirror != "" && !res.TimedOut && ctx.Err() == nil && pip.NeedsFallback(res.Output) {
		rep.logf("%s not found on mirror, retrying on default index", spec)
		e.logger.Info("retrying on default index", "spec", spec, "mirror", mirror)
		opts.IndexURL = ""
		res = e.client.Install(ctx, interpreter, spec, opts)
		outcome.UsedFallback = true
	}
	outcome.DurationMS = time.Since(start).Milliseconds()

	switch {
	case res.OK():
		outcome.Succeeded = true
	case ctx.Err() != nil:
		outcome.FailureReason = ReasonCancelled
	default:
		outcome.FailureReason = pip.ReasonFor(res)
	}
	return outcome
}

// uninstallShare is the fraction of progress given to uninstalls.
func (e *Engine) uninstallShare(uninstalls, installs int) float64 {
	switch {
	case uninstalls == 0:
		return 0
	case installs == 0:
		return 1
	}
	share := e.cfg.UninstallShare
	if share <= 0 || share >= 1 {
		share = 0.3
	}
	return share
}

// finish invalidates state derived from the environment and persists the run.
func (e *Engine) finish(ctx context.Context, summary *RunSummary) *RunSummary {
	summary.FinishedAt = e.now().Unix()
	e.cache.Invalidate()

	if e.db == nil {
		return summary
	}
	// Recorded even if ctx is cancelled.
	pctx := context.WithoutCancel(ctx)
	if _, err := db.ClearScanCache(pctx, e.db, "", summary.Interpreter); err != nil {
		e.logger.Warn("clearing scan cache failed", "error", err)
	}
	failures := make([]db.RunFailure, len(summary.Failed))
	for i, f := range summary.Failed {
		failures[i] = db.RunFailure{Spec: f.Spec, Reason: f.Reason}
	}
	run := &db.Run{
		ID:               summary.RunID,
		Kind:             summary.Kind,
		Interpreter:      summary.Interpreter,
		Mirror:           summary.Mirror,
		SucceededCount:   summary.SucceededCount,
		FailedCount:      len(summary.Failed),
		UninstalledCount: len(summary.Uninstalled),
		SkippedCount:     len(summary.Skipped),
		Cancelled:        summary.Cancelled,
		StartedAt:        summary.StartedAt,
		FinishedAt:       summary.FinishedAt,
	}
	if err := db.InsertRun(pctx, e.db, run, failures); err != nil {
		e.logger.Warn("recording run failed", "run_id", summary.RunID, "error", err)
	}
	return summary
}
