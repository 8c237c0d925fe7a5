package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"leadgen-server/internal/config"
	"leadgen-server/internal/metrics"
	"leadgen-server/internal/observability"
	"leadgen-server/internal/progress"
	"leadgen-server/internal/store"
	"leadgen-server/internal/workflow"

	"leadgen-server/internal/auth/handler"
	"leadgen-server/internal/auth/processor"
	campaignHandler "leadgen-server/internal/campaigns/handler"
	campaignProcessor "leadgen-server/internal/campaigns/processor"
	"leadgen-server/internal/clients/emaillistverify"
	"leadgen-server/internal/clients/googleoauth"
	"leadgen-server/internal/clients/mail"
	"leadgen-server/internal/clients/openai"
	redisClient "leadgen-server/internal/clients/redis"
	"leadgen-server/internal/clients/serper"
	"leadgen-server/internal/emailfind"
	"leadgen-server/internal/emailverify"
	"leadgen-server/internal/export"
	"leadgen-server/internal/leadfind"

	"github.com/google/uuid"
)

// Dependencies holds all initialized application dependencies
type Dependencies struct {
	// Core
	Store   store.Store
	Logger  *observability.Logger
	Metrics *metrics.Metrics

	// Handlers
	AuthHandler     handler.Handler
	CampaignHandler campaignHandler.Handler

	// Redis client (for cleanup)
	RedisClient *redisClient.Client
}

// Initialize sets up all application dependencies
func Initialize(ctx context.Context, cfg *config.Config, logger *observability.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Logger:  logger,
		Metrics: metrics.New(),
	}

	// Initialize database store
	connectionString := cfg.Database.ConnectionString()
	var err error
	deps.Store, err = store.New(connectionString, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Initialize clients
	googleOAuthClient := googleoauth.NewClient(
		cfg.Auth.GoogleClientID,
		cfg.Auth.GoogleClientSecret,
		cfg.Auth.GoogleRedirectURI,
		logger,
	)

	mailClient, err := mail.NewResendClient(cfg.Services.ResendAPIKey, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create resend client: %w", err)
	}

	deps.RedisClient, err = redisClient.NewClient(cfg.Redis, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create redis client: %w", err)
	}

	openaiClient := openai.NewClient(cfg.Services.OpenAIAPIKey, logger)
	serperClient := serper.NewClient(cfg.Services.SerperAPIKey, logger)
	verifyClient := emaillistverify.NewClient(cfg.Services.EmailListVerifyAPIKey, logger)

	// Initialize pipeline stages
	leadFinder := leadfind.New(serperClient, openaiClient, logger)
	emailFinder := emailfind.New(serperClient, emailfind.NewMXResolver(), logger)
	emailValidator := emailverify.New(verifyClient, logger)

	xlsxWriter, err := export.NewXLSXWriter(cfg.Services.ExportDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create export directory: %w", err)
	}

	tracker := progress.NewTracker()

	// Sheets export runs under the run owner's Google account, so the
	// exporter is built per run. Users without a linked account fall back to
	// local workbooks.
	exporterFactory := func(ctx context.Context, userID uuid.UUID) workflow.Exporter {
		var sheets export.Writer
		token, err := deps.Store.GetGoogleToken(ctx, userID)
		if err == nil {
			tokens := campaignProcessor.NewUserTokenSource(ctx, &deps.Store, googleOAuthClient, userID, token, logger)
			sheets = export.NewSheetsWriter(tokens, logger)
		} else if !errors.Is(err, store.ErrNotFound) {
			logger.InfoWithError(ctx, "failed to load google token, exporting locally", err)
		}
		return export.New(sheets, xlsxWriter, deps.Metrics, logger)
	}

	engineOpts := workflow.Options{
		StageTimeout:    cfg.Workflow.StageTimeout,
		RetryAttempts:   cfg.Workflow.RetryAttempts,
		ItemConcurrency: cfg.Workflow.ItemConcurrency,
	}
	runnerFactory := func(exporter workflow.Exporter) campaignProcessor.Runner {
		return workflow.New(leadFinder, emailFinder, emailValidator, exporter,
			deps.Metrics, tracker, engineOpts, logger)
	}

	// Initialize campaign processor and handler
	campaignProc := campaignProcessor.New(
		&deps.Store,
		tracker,
		runnerFactory,
		exporterFactory,
		mailClient,
		deps.RedisClient,
		deps.Metrics,
		cfg.Services.DefaultEmailSender,
		cfg.Workflow.RunTimeout,
		logger,
	)
	deps.CampaignHandler = campaignHandler.New(campaignProc, logger)

	// Initialize auth processor and handler
	authProc := processor.New(&deps.Store, googleOAuthClient, cfg.Auth.JWTSecret, logger)
	deps.AuthHandler = handler.New(authProc, cfg.Services.WebAppURI, logger)

	return deps, nil
}

// Cleanup closes all resources that need cleanup
func (d *Dependencies) Cleanup() {
	if d.RedisClient != nil {
		if err := d.RedisClient.Close(); err != nil {
			d.Logger.Error(context.Background(), "failed to close redis client", err)
		}
	}
}
