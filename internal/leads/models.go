package leads

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

var ErrInvalidCampaignInput = errors.New("invalid campaign input")

// ValidationStatus describes where a lead's email sits in the verification
// lifecycle. Unknown means the validator could not be consulted, which is
// distinct from checked-and-failed (Invalid).
type ValidationStatus string

const (
	StatusUnvalidated ValidationStatus = "unvalidated"
	StatusValid       ValidationStatus = "valid"
	StatusInvalid     ValidationStatus = "invalid"
	StatusUnknown     ValidationStatus = "unknown"
)

// Deliverability buckets reported by the email verification provider.
type Deliverability string

const (
	DeliverabilityHigh    Deliverability = "high"
	DeliverabilityMedium  Deliverability = "medium"
	DeliverabilityLow     Deliverability = "low"
	DeliverabilityUnknown Deliverability = "unknown"
)

// CampaignInput describes one campaign run. It is validated at construction
// and never mutated afterwards.
type CampaignInput struct {
	SearchStrategy string   `json:"search_strategy" validate:"required"`
	TargetRoles    []string `json:"target_roles" validate:"required,min=1,dive,required"`
	Agenda         string   `json:"agenda" validate:"required"`
	MaxLeads       int      `json:"max_leads" validate:"required,min=1,max=1000"`
	SearchDepth    int      `json:"search_depth" validate:"required,min=1,max=5"`
}

// NewCampaignInput builds a validated CampaignInput.
func NewCampaignInput(strategy string, roles []string, agenda string, maxLeads, depth int) (CampaignInput, error) {
	input := CampaignInput{
		SearchStrategy: strings.TrimSpace(strategy),
		TargetRoles:    roles,
		Agenda:         strings.TrimSpace(agenda),
		MaxLeads:       maxLeads,
		SearchDepth:    depth,
	}
	if err := input.Validate(); err != nil {
		return CampaignInput{}, err
	}
	return input, nil
}

// Validate checks the construction invariants.
func (c CampaignInput) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCampaignInput, err)
	}
	return nil
}

// Lead is a candidate contact discovered by search and enriched over the
// pipeline. Identity is the lowercase (name, company) pair until an email is
// assigned.
type Lead struct {
	Name             string           `json:"name"`
	Company          string           `json:"company"`
	Title            string           `json:"title,omitempty"`
	LinkedIn         string           `json:"linkedin,omitempty"`
	Email            string           `json:"email,omitempty"`
	ValidationStatus ValidationStatus `json:"validation_status"`
	QualityScore     *float64         `json:"quality_score,omitempty"`
}

// Key returns the deduplication identity for the lead.
func (l Lead) Key() string {
	if l.Email != "" {
		return strings.ToLower(l.Email)
	}
	return strings.ToLower(strings.TrimSpace(l.Name)) + "\x00" + strings.ToLower(strings.TrimSpace(l.Company))
}

// HasName reports whether the lead carries a usable name.
func (l Lead) HasName() bool {
	return strings.TrimSpace(l.Name) != ""
}

// ValidationResult is the per-email outcome reported by the verification
// provider.
type ValidationResult struct {
	Email          string         `json:"email"`
	IsValid        bool           `json:"is_valid"`
	Deliverability Deliverability `json:"deliverability"`
	IsSpamTrap     bool           `json:"is_spam_trap"`
	IsDisposable   bool           `json:"is_disposable"`
	IsCatchAll     bool           `json:"is_catch_all"`
	Score          float64        `json:"score"`
}

// Status derives the lead-facing validation status from the provider result.
// A spam trap is Invalid no matter what the provider's validity flag says.
func (r ValidationResult) Status() ValidationStatus {
	if r.IsSpamTrap {
		return StatusInvalid
	}
	if r.IsValid && r.Deliverability != DeliverabilityLow {
		return StatusValid
	}
	return StatusInvalid
}

// ApplyValidation records a validation result on the lead.
func (l *Lead) ApplyValidation(r ValidationResult) {
	l.ValidationStatus = r.Status()
	score := r.Score
	l.QualityScore = &score
}

// ResultCounts aggregates the per-stage outcomes of a run.
type ResultCounts struct {
	Found            int `json:"found"`
	Duplicates       int `json:"duplicates"`
	EmailsFound      int `json:"emails_found"`
	ValidatedValid   int `json:"validated_valid"`
	ValidatedInvalid int `json:"validated_invalid"`
}

// ExportReceipt records where a finished run's leads were written.
type ExportReceipt struct {
	Destination string `json:"destination"`
	Location    string `json:"location"`
	RowCount    int    `json:"row_count"`
}

// CampaignResult is the aggregate outcome of one run. It is produced once at
// the end of a run and never mutated afterwards.
type CampaignResult struct {
	Leads        []Lead                   `json:"leads"`
	Counts       ResultCounts             `json:"counts"`
	StageTimings map[string]time.Duration `json:"stage_timings"`
	Summary      string                   `json:"summary"`
	Warnings     []string                 `json:"warnings,omitempty"`
	Export       *ExportReceipt           `json:"export,omitempty"`
	CompletedAt  time.Time                `json:"completed_at"`
}
