package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"leadgen-server/internal/leads"
	"leadgen-server/internal/observability"
	"leadgen-server/internal/progress"
	"leadgen-server/internal/store"
	"leadgen-server/internal/workflow"

	"github.com/google/uuid"
)

var (
	ErrRunNotFound    = errors.New("run not found")
	ErrRunNotFinished = errors.New("run not finished")
	ErrRunNotRunning  = errors.New("run not running")
)

const (
	resultCacheTTL  = time.Hour
	historyPageSize = 20
)

// RunnerFactory builds a pipeline runner bound to the exporter for one run.
// The exporter differs per user because Sheets export uses the run owner's
// Google account.
type RunnerFactory func(exporter workflow.Exporter) Runner

// Processor owns the lifecycle of campaign runs: it starts them in the
// background, answers progress polls, serves finished results, and cancels
// in-flight runs.
type Processor struct {
	store      CampaignStore
	tracker    *progress.Tracker
	newRunner  RunnerFactory
	exporters  ExporterFactory
	mailer     Mailer
	cache      ResultCache
	metrics    RunMetrics
	fromEmail  string
	runTimeout time.Duration
	logger     *observability.Logger

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// ExporterFactory builds the exporter for one user, or a local-only exporter
// when the user has no linked Google account.
type ExporterFactory func(ctx context.Context, userID uuid.UUID) workflow.Exporter

func New(store CampaignStore, tracker *progress.Tracker, newRunner RunnerFactory, exporters ExporterFactory,
	mailer Mailer, cache ResultCache, metrics RunMetrics, fromEmail string, runTimeout time.Duration,
	logger *observability.Logger) *Processor {
	return &Processor{
		store:      store,
		tracker:    tracker,
		newRunner:  newRunner,
		exporters:  exporters,
		mailer:     mailer,
		cache:      cache,
		metrics:    metrics,
		fromEmail:  fromEmail,
		runTimeout: runTimeout,
		logger:     logger,
		cancels:    make(map[string]context.CancelFunc),
	}
}

// StartRun validates the input, persists the run, and executes the pipeline
// in the background. It returns the run ID immediately.
func (p *Processor) StartRun(ctx context.Context, userID uuid.UUID, input leads.CampaignInput) (string, error) {
	if err := input.Validate(); err != nil {
		return "", err
	}

	runID := uuid.NewString()
	rawInput, err := json.Marshal(input)
	if err != nil {
		return "", fmt.Errorf("failed to encode input: %w", err)
	}

	if _, err := p.store.CreateCampaignRun(ctx, runID, userID, rawInput); err != nil {
		return "", err
	}

	runCtx, cancel := context.WithTimeout(context.Background(), p.runTimeout)
	runCtx = observability.WithFields(runCtx,
		observability.Field{Key: "run_id", Value: runID},
		observability.Field{Key: "user_id", Value: userID.String()},
	)

	p.mu.Lock()
	p.cancels[runID] = cancel
	p.mu.Unlock()

	p.metrics.RecordRunStarted()

	go p.execute(runCtx, cancel, runID, userID, input)

	return runID, nil
}

func (p *Processor) execute(ctx context.Context, cancel context.CancelFunc, runID string, userID uuid.UUID, input leads.CampaignInput) {
	defer func() {
		cancel()
		p.mu.Lock()
		delete(p.cancels, runID)
		p.mu.Unlock()
	}()

	start := time.Now()
	runner := p.newRunner(p.exporters(ctx, userID))
	result, err := runner.Run(ctx, runID, input)
	p.metrics.RecordRunCompleted(time.Since(start), err == nil)

	// The run context is already dead after a cancel or timeout; terminal
	// persistence and notification must still go through.
	persistCtx := context.WithoutCancel(ctx)

	if err != nil {
		status := store.RunStatusFailed
		if errors.Is(err, workflow.ErrRunCancelled) {
			status = store.RunStatusCancelled
		}
		if _, storeErr := p.store.FinishCampaignRun(persistCtx, runID, status, nil); storeErr != nil {
			p.logger.Error(persistCtx, "failed to record run failure", storeErr)
		}
		p.logger.InfoWithError(persistCtx, "campaign run did not complete", err)
		return
	}

	rawResult, err := json.Marshal(result)
	if err != nil {
		p.logger.Error(persistCtx, "failed to encode run result", err)
		return
	}
	if _, err := p.store.FinishCampaignRun(persistCtx, runID, store.RunStatusCompleted, rawResult); err != nil {
		p.logger.Error(persistCtx, "failed to record run completion", err)
	}

	if p.cache.IsEnabled() {
		if err := p.cache.Set(persistCtx, resultCacheKey(runID), string(rawResult), resultCacheTTL); err != nil {
			p.logger.InfoWithError(persistCtx, "failed to cache run result", err)
		}
	}

	p.notifyCompletion(persistCtx, runID, userID, result)
}

func (p *Processor) notifyCompletion(ctx context.Context, runID string, userID uuid.UUID, result leads.CampaignResult) {
	email, err := p.store.GetEmailByUserID(ctx, userID)
	if err != nil {
		p.logger.InfoWithError(ctx, "no address for completion email", err)
		return
	}

	subject := fmt.Sprintf("Your lead campaign finished: %d leads", result.Counts.Found)
	body := fmt.Sprintf("<p>%s</p><p>Run ID: %s</p>", result.Summary, runID)
	if result.Export != nil {
		body += fmt.Sprintf("<p>Export: <a href=%q>%s</a></p>", result.Export.Location, result.Export.Location)
	}

	if _, err := p.mailer.SendEmail(ctx, p.fromEmail, email, subject, body); err != nil {
		p.logger.InfoWithError(ctx, "failed to send completion email", err)
	}
}

// GetProgress returns the live progress of a run. Finished runs that are no
// longer in memory report their persisted terminal status.
func (p *Processor) GetProgress(ctx context.Context, runID string, userID uuid.UUID) (progress.State, error) {
	run, err := p.store.GetCampaignRun(ctx, runID, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return progress.State{}, ErrRunNotFound
		}
		return progress.State{}, err
	}

	if state, ok := p.tracker.Snapshot(runID); ok {
		return state, nil
	}

	// Process restarted since the run finished; reconstruct the terminal
	// state from the persisted row.
	state := progress.State{RunID: runID, Finished: true}
	switch run.Status {
	case store.RunStatusCompleted:
		state.CurrentStage = progress.StageDone
		state.Percent = 100
	case store.RunStatusCancelled:
		state.CurrentStage = progress.StageFailed
		state.LastMessage = "cancelled"
	case store.RunStatusFailed:
		state.CurrentStage = progress.StageFailed
	default:
		state.CurrentStage = progress.StageIdle
		state.Finished = false
	}
	return state, nil
}

// GetResult returns the finished result of a run.
func (p *Processor) GetResult(ctx context.Context, runID string, userID uuid.UUID) (leads.CampaignResult, error) {
	if p.cache.IsEnabled() {
		if cached, err := p.cache.Get(ctx, resultCacheKey(runID)); err == nil {
			// The cache key is unguessable but ownership still has to hold.
			if _, err := p.store.GetCampaignRun(ctx, runID, userID); err == nil {
				var result leads.CampaignResult
				if err := json.Unmarshal([]byte(cached), &result); err == nil {
					return result, nil
				}
			}
		}
	}

	run, err := p.store.GetCampaignRun(ctx, runID, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return leads.CampaignResult{}, ErrRunNotFound
		}
		return leads.CampaignResult{}, err
	}
	if run.Status == store.RunStatusRunning || len(run.Result) == 0 {
		return leads.CampaignResult{}, ErrRunNotFinished
	}

	var result leads.CampaignResult
	if err := json.Unmarshal(run.Result, &result); err != nil {
		return leads.CampaignResult{}, fmt.Errorf("failed to decode stored result: %w", err)
	}
	return result, nil
}

// Cancel stops an in-flight run. The pipeline observes the cancellation at
// its next stage boundary.
func (p *Processor) Cancel(ctx context.Context, runID string, userID uuid.UUID) error {
	if _, err := p.store.GetCampaignRun(ctx, runID, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrRunNotFound
		}
		return err
	}

	p.mu.Lock()
	cancel, ok := p.cancels[runID]
	p.mu.Unlock()
	if !ok {
		return ErrRunNotRunning
	}
	cancel()
	p.logger.Info(ctx, "run cancellation requested",
		observability.Field{Key: "run_id", Value: runID})
	return nil
}

// ListRuns returns the user's most recent runs.
func (p *Processor) ListRuns(ctx context.Context, userID uuid.UUID) ([]store.CampaignRun, error) {
	return p.store.ListCampaignRuns(ctx, userID, historyPageSize)
}

func resultCacheKey(runID string) string {
	return "campaign:result:" + runID
}
