package workflow

import (
	"context"
	"time"

	"leadgen-server/internal/leads"
)

// SearchQuery carries the discovery parameters for the finding stage.
type SearchQuery struct {
	Strategy    string
	TargetRoles []string
	Agenda      string
	Depth       int
	Limit       int
}

// LeadFinder discovers candidate leads. A hard error wrapped with
// ErrHardSearchFailure together with zero leads fails the whole run; any
// leads returned alongside an error are still used.
type LeadFinder interface {
	FindLeads(ctx context.Context, query SearchQuery) ([]leads.Lead, error)
}

// EmailFinder attempts to discover an email address for a lead. "Not found"
// is ("", nil), never an error; transient problems wrap ErrTransient.
type EmailFinder interface {
	FindEmail(ctx context.Context, lead leads.Lead) (string, error)
}

// EmailValidator checks a single address for deliverability. Transient
// problems wrap ErrTransient; an unusable provider wraps ErrCredentialMissing.
type EmailValidator interface {
	Validate(ctx context.Context, email string) (leads.ValidationResult, error)
}

// Exporter persists the finished lead list. Export failure is non-fatal to
// the run; the engine records it as a warning.
type Exporter interface {
	Export(ctx context.Context, runID string, items []leads.Lead, summary string) (leads.ExportReceipt, error)
}

// MetricsRecorder receives counters and timers describing run outcomes.
// Calls are fire-and-forget and must never block or fail the run.
type MetricsRecorder interface {
	RecordStage(stage string, duration time.Duration, outcome string)
	RecordCounts(found, emailsFound, validated int)
}
