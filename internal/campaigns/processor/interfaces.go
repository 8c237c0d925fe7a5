package processor

import (
	"context"
	"encoding/json"
	"time"

	"leadgen-server/internal/clients/googleoauth"
	"leadgen-server/internal/leads"
	"leadgen-server/internal/store"

	"github.com/google/uuid"
)

// CampaignStore defines the database operations required by Processor
type CampaignStore interface {
	CreateCampaignRun(ctx context.Context, runID string, userID uuid.UUID, input json.RawMessage) (store.CampaignRun, error)
	FinishCampaignRun(ctx context.Context, runID string, status string, result json.RawMessage) (store.CampaignRun, error)
	GetCampaignRun(ctx context.Context, runID string, userID uuid.UUID) (store.CampaignRun, error)
	ListCampaignRuns(ctx context.Context, userID uuid.UUID, limit int) ([]store.CampaignRun, error)
	GetGoogleToken(ctx context.Context, userID uuid.UUID) (store.GoogleToken, error)
	SaveGoogleToken(ctx context.Context, token store.GoogleToken) (store.GoogleToken, error)
	GetEmailByUserID(ctx context.Context, userID uuid.UUID) (string, error)
}

// Runner executes one campaign pipeline run.
type Runner interface {
	Run(ctx context.Context, runID string, input leads.CampaignInput) (leads.CampaignResult, error)
}

// Mailer sends the run-completion notification.
type Mailer interface {
	SendEmail(ctx context.Context, from, to, subject, htmlContent string) (string, error)
}

// ResultCache is the optional cache in front of run results.
type ResultCache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, expiration time.Duration) error
	IsEnabled() bool
}

// TokenRefresher refreshes stored Google access tokens for Sheets export.
type TokenRefresher interface {
	RefreshAccessToken(ctx context.Context, refreshToken string) (googleoauth.TokenResponse, error)
}

// RunMetrics receives run lifecycle counters.
type RunMetrics interface {
	RecordRunStarted()
	RecordRunCompleted(duration time.Duration, success bool)
}
