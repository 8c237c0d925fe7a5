package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"leadgen-server/internal/leads"
	"leadgen-server/internal/observability"
	"leadgen-server/internal/progress"
	"leadgen-server/internal/workers"

	"github.com/cenkalti/backoff"
)

// Percent reached at the end of each stage. Begin/Finish own 0 and 100.
const (
	percentFinding      = 30
	percentEmailFinding = 55
	percentValidating   = 80
	percentAnalyzing    = 95
)

// Options are the per-run execution knobs.
type Options struct {
	// StageTimeout bounds each of the four pipeline stages individually.
	StageTimeout time.Duration

	// RetryAttempts is the number of retries per item on ErrTransient.
	RetryAttempts int

	// ItemConcurrency bounds concurrent per-item calls inside a stage.
	ItemConcurrency int
}

// DefaultOptions returns the engine defaults used when a field is unset.
func DefaultOptions() Options {
	return Options{
		StageTimeout:    2 * time.Minute,
		RetryAttempts:   1,
		ItemConcurrency: 4,
	}
}

// Engine executes the four-stage lead generation pipeline for one campaign
// input: find leads, find emails, validate emails, analyze and export. One
// run advances through its stages on a single goroutine; per-item work inside
// a stage may fan out through a bounded pool, merging only at the stage
// boundary.
type Engine struct {
	finder    LeadFinder
	emails    EmailFinder
	validator EmailValidator
	exporter  Exporter
	metrics   MetricsRecorder
	tracker   *progress.Tracker
	opts      Options
	logger    *observability.Logger
}

// New creates a workflow engine.
func New(finder LeadFinder, emails EmailFinder, validator EmailValidator, exporter Exporter,
	metrics MetricsRecorder, tracker *progress.Tracker, opts Options, logger *observability.Logger) *Engine {
	defaults := DefaultOptions()
	if opts.StageTimeout <= 0 {
		opts.StageTimeout = defaults.StageTimeout
	}
	if opts.RetryAttempts < 0 {
		opts.RetryAttempts = defaults.RetryAttempts
	}
	if opts.ItemConcurrency <= 0 {
		opts.ItemConcurrency = defaults.ItemConcurrency
	}
	return &Engine{
		finder:    finder,
		emails:    emails,
		validator: validator,
		exporter:  exporter,
		metrics:   metrics,
		tracker:   tracker,
		opts:      opts,
		logger:    logger,
	}
}

// Run executes the pipeline for input under runID and returns the campaign
// result. Expected partial failures (a lead without an email, an email that
// cannot be validated) degrade the run; only a hard search failure or
// cancellation fail it.
func (e *Engine) Run(ctx context.Context, runID string, input leads.CampaignInput) (leads.CampaignResult, error) {
	if err := input.Validate(); err != nil {
		return leads.CampaignResult{}, err
	}

	ctx = observability.WithFields(ctx, observability.Field{Key: "run_id", Value: runID})
	e.tracker.Begin(runID)

	timings := make(map[string]time.Duration)
	var warnings []string

	// Stage 1: find leads. The only stage allowed to fail the run.
	e.tracker.Update(runID, progress.StageFinding, "searching for leads", 5)
	items, dupCount, findNote, err := e.runFinding(ctx, input, timings)
	if err != nil {
		e.logger.Error(ctx, "lead search failed hard", err)
		e.tracker.Finish(runID, false, err.Error())
		return leads.CampaignResult{}, err
	}
	if findNote != "" {
		warnings = append(warnings, findNote)
	}
	e.tracker.Update(runID, progress.StageFinding,
		fmt.Sprintf("found %d leads (%d duplicates dropped)", len(items), dupCount), percentFinding)

	if err := e.checkCancelled(ctx, runID); err != nil {
		return leads.CampaignResult{}, err
	}

	// Stage 2: discover missing emails. Misses are retained, not dropped.
	e.tracker.Update(runID, progress.StageEmailFinding, "discovering email addresses", percentFinding)
	emailsFound, emailNote := e.runEmailFinding(ctx, items, timings)
	if emailNote != "" {
		warnings = append(warnings, emailNote)
	}
	e.tracker.Update(runID, progress.StageEmailFinding,
		fmt.Sprintf("emails found for %d of %d leads", emailsFound, len(items)), percentEmailFinding)

	if err := e.checkCancelled(ctx, runID); err != nil {
		return leads.CampaignResult{}, err
	}

	// Stage 3: validate discovered emails.
	e.tracker.Update(runID, progress.StageValidating, "validating email addresses", percentEmailFinding)
	if warning := e.runValidating(ctx, items, timings); warning != "" {
		warnings = append(warnings, warning)
	}
	e.tracker.Update(runID, progress.StageValidating, "email validation finished", percentValidating)

	if err := e.checkCancelled(ctx, runID); err != nil {
		return leads.CampaignResult{}, err
	}

	// Stage 4: aggregate, summarize, export.
	e.tracker.Update(runID, progress.StageAnalyzing, "building campaign summary", percentValidating)
	result := e.runAnalyzing(ctx, runID, items, dupCount, emailsFound, timings, warnings)
	e.tracker.Update(runID, progress.StageAnalyzing, "summary ready", percentAnalyzing)

	e.metrics.RecordCounts(result.Counts.Found, result.Counts.EmailsFound,
		result.Counts.ValidatedValid+result.Counts.ValidatedInvalid)

	doneMsg := "campaign completed"
	if len(result.Warnings) > 0 {
		doneMsg = fmt.Sprintf("campaign completed with %d warnings", len(result.Warnings))
	}
	e.tracker.Finish(runID, true, doneMsg)
	e.logger.Info(ctx, doneMsg)

	return result, nil
}

// runFinding executes the discovery stage. The returned note is non-empty
// when the finder errored but still returned usable leads.
func (e *Engine) runFinding(ctx context.Context, input leads.CampaignInput, timings map[string]time.Duration) ([]leads.Lead, int, string, error) {
	start := time.Now()
	stageCtx, cancel := context.WithTimeout(ctx, e.opts.StageTimeout)
	defer cancel()

	discovered, err := e.finder.FindLeads(stageCtx, SearchQuery{
		Strategy:    input.SearchStrategy,
		TargetRoles: input.TargetRoles,
		Agenda:      input.Agenda,
		Depth:       input.SearchDepth,
		Limit:       input.MaxLeads,
	})

	timings["finding"] = time.Since(start)

	var note string
	if err != nil {
		if len(discovered) == 0 {
			e.metrics.RecordStage("finding", timings["finding"], "failure")
			return nil, 0, "", fmt.Errorf("%w: %v", ErrHardSearchFailure, err)
		}
		// Partial results are still usable; surface the error as a warning.
		note = fmt.Sprintf("lead search degraded: %v", err)
	}

	deduped, dupCount := dedupeLeads(discovered, input.MaxLeads)
	e.metrics.RecordStage("finding", timings["finding"], "success")
	return deduped, dupCount, note, nil
}

// dedupeLeads drops blank-name leads, keeps the first occurrence of each
// (name, company) identity, and truncates to limit in discovery order.
func dedupeLeads(discovered []leads.Lead, limit int) ([]leads.Lead, int) {
	seen := make(map[string]struct{}, len(discovered))
	result := make([]leads.Lead, 0, len(discovered))
	dupCount := 0

	for _, lead := range discovered {
		if !lead.HasName() {
			continue
		}
		key := lead.Key()
		if _, ok := seen[key]; ok {
			dupCount++
			continue
		}
		seen[key] = struct{}{}
		if lead.ValidationStatus == "" {
			lead.ValidationStatus = leads.StatusUnvalidated
		}
		result = append(result, lead)
		if len(result) == limit {
			break
		}
	}
	return result, dupCount
}

// runEmailFinding discovers missing emails. The returned warning is non-empty
// when the stage deadline expired before every lead was attempted.
func (e *Engine) runEmailFinding(ctx context.Context, items []leads.Lead, timings map[string]time.Duration) (int, string) {
	start := time.Now()
	stageCtx, cancel := context.WithTimeout(ctx, e.opts.StageTimeout)
	defer cancel()

	errs := workers.RunBatch(stageCtx, len(items), workers.BatchConfig{Concurrency: e.opts.ItemConcurrency},
		func(ctx context.Context, i int) error {
			if items[i].Email != "" {
				return nil
			}
			var email string
			err := e.retryTransient(ctx, func() error {
				var ferr error
				email, ferr = e.emails.FindEmail(ctx, items[i])
				return ferr
			})
			if err != nil {
				// Degrade: the lead stays in the sequence with email absent.
				e.logger.InfoWithError(ctx, fmt.Sprintf("no email discovered for %q", items[i].Name), err)
				return nil
			}
			items[i].Email = email
			return nil
		})

	timings["email_finding"] = time.Since(start)

	emailsFound := 0
	for _, lead := range items {
		if lead.Email != "" {
			emailsFound++
		}
	}

	// The batch reports errors only for items the stage deadline kept from
	// starting; a dead parent context is handled at the stage boundary.
	unattempted := 0
	for _, err := range errs {
		if err != nil {
			unattempted++
		}
	}
	if ctx.Err() == nil && (unattempted > 0 || errors.Is(stageCtx.Err(), context.DeadlineExceeded)) {
		e.metrics.RecordStage("email_finding", timings["email_finding"], "degraded")
		return emailsFound, fmt.Sprintf("email discovery timed out: %d of %d leads not attempted", unattempted, len(items))
	}

	e.metrics.RecordStage("email_finding", timings["email_finding"], "success")
	return emailsFound, ""
}

func (e *Engine) runValidating(ctx context.Context, items []leads.Lead, timings map[string]time.Duration) string {
	start := time.Now()
	stageCtx, cancel := context.WithTimeout(ctx, e.opts.StageTimeout)
	defer cancel()

	var credentialMissing atomic.Bool

	errs := workers.RunBatch(stageCtx, len(items), workers.BatchConfig{Concurrency: e.opts.ItemConcurrency},
		func(ctx context.Context, i int) error {
			if items[i].Email == "" || credentialMissing.Load() {
				return nil
			}
			var result leads.ValidationResult
			err := e.retryTransient(ctx, func() error {
				var verr error
				result, verr = e.validator.Validate(ctx, items[i].Email)
				return verr
			})
			switch {
			case err == nil:
				items[i].ApplyValidation(result)
			case errors.Is(err, ErrCredentialMissing):
				credentialMissing.Store(true)
				items[i].ValidationStatus = leads.StatusUnknown
			default:
				// Validator call failed: checked is different from failed.
				items[i].ValidationStatus = leads.StatusUnknown
			}
			return nil
		})

	timings["validating"] = time.Since(start)

	if credentialMissing.Load() {
		for i := range items {
			if items[i].Email != "" {
				items[i].ValidationStatus = leads.StatusUnknown
			}
		}
		e.metrics.RecordStage("validating", timings["validating"], "degraded")
		return "email validation unavailable: all leads marked unknown"
	}

	// Leads the stage deadline kept from being validated follow the same
	// policy as an unreachable validator: Unknown, not Unvalidated.
	timedOut := 0
	for i, err := range errs {
		if err != nil && items[i].Email != "" && items[i].ValidationStatus == leads.StatusUnvalidated {
			items[i].ValidationStatus = leads.StatusUnknown
			timedOut++
		}
	}
	if ctx.Err() == nil && (timedOut > 0 || errors.Is(stageCtx.Err(), context.DeadlineExceeded)) {
		e.metrics.RecordStage("validating", timings["validating"], "degraded")
		return "email validation timed out: unreached leads marked unknown"
	}

	e.metrics.RecordStage("validating", timings["validating"], "success")
	return ""
}

func (e *Engine) runAnalyzing(ctx context.Context, runID string, items []leads.Lead, dupCount, emailsFound int,
	timings map[string]time.Duration, warnings []string) leads.CampaignResult {
	start := time.Now()
	stageCtx, cancel := context.WithTimeout(ctx, e.opts.StageTimeout)
	defer cancel()

	counts := leads.ResultCounts{
		Found:       len(items),
		Duplicates:  dupCount,
		EmailsFound: emailsFound,
	}
	for _, lead := range items {
		switch lead.ValidationStatus {
		case leads.StatusValid:
			counts.ValidatedValid++
		case leads.StatusInvalid:
			counts.ValidatedInvalid++
		}
	}

	summary := buildSummary(counts)

	var receipt *leads.ExportReceipt
	exported, err := e.exporter.Export(stageCtx, runID, items, summary)
	if err != nil {
		e.logger.InfoWithError(ctx, "export failed", err)
		warnings = append(warnings, fmt.Sprintf("export failed: %v", err))
		summary += "\nExport: failed."
	} else {
		receipt = &exported
		summary += fmt.Sprintf("\nExport: %d rows written to %s.", exported.RowCount, exported.Destination)
	}

	timings["analyzing"] = time.Since(start)
	e.metrics.RecordStage("analyzing", timings["analyzing"], "success")

	return leads.CampaignResult{
		Leads:        items,
		Counts:       counts,
		StageTimings: timings,
		Summary:      summary,
		Warnings:     warnings,
		Export:       receipt,
		CompletedAt:  time.Now(),
	}
}

func buildSummary(counts leads.ResultCounts) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Campaign summary: %d leads found", counts.Found)
	if counts.Duplicates > 0 {
		fmt.Fprintf(&b, " (%d duplicates dropped)", counts.Duplicates)
	}
	fmt.Fprintf(&b, ", %d with email addresses, %d validated deliverable, %d undeliverable.",
		counts.EmailsFound, counts.ValidatedValid, counts.ValidatedInvalid)
	return b.String()
}

// checkCancelled implements cooperative cancellation between stages.
func (e *Engine) checkCancelled(ctx context.Context, runID string) error {
	if ctx.Err() == nil {
		return nil
	}
	e.tracker.Finish(runID, false, "cancelled")
	e.logger.Info(ctx, "run cancelled between stages")
	return ErrRunCancelled
}

// retryTransient runs op, retrying on ErrTransient with a short constant
// backoff up to the configured attempt count. All other errors are permanent.
func (e *Engine) retryTransient(ctx context.Context, op func() error) error {
	policy := backoff.WithMaxRetries(backoff.NewConstantBackOff(200*time.Millisecond), uint64(e.opts.RetryAttempts))
	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrTransient) && ctx.Err() == nil {
			return err
		}
		return backoff.Permanent(err)
	}, policy)
}
