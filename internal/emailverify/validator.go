package emailverify

import (
	"context"
	"errors"
	"fmt"

	"leadgen-server/internal/clients/emaillistverify"
	"leadgen-server/internal/leads"
	"leadgen-server/internal/observability"
	"leadgen-server/internal/workflow"

	"golang.org/x/time/rate"
)

// The provider throttles aggressive callers, so verification requests are
// paced at ten per second regardless of stage concurrency.
const requestsPerSecond = 10

// VerifyClient is the slice of the EmailListVerify client the validator
// needs.
type VerifyClient interface {
	Verify(ctx context.Context, email string) (leads.ValidationResult, error)
	Configured() bool
}

// Validator adapts the EmailListVerify client to the pipeline, translating
// provider errors into the engine's failure categories.
type Validator struct {
	client  VerifyClient
	limiter *rate.Limiter
	logger  *observability.Logger
}

func New(client VerifyClient, logger *observability.Logger) *Validator {
	return &Validator{
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
		logger:  logger,
	}
}

func (v *Validator) Validate(ctx context.Context, email string) (leads.ValidationResult, error) {
	if !v.client.Configured() {
		return leads.ValidationResult{}, workflow.ErrCredentialMissing
	}

	if err := v.limiter.Wait(ctx); err != nil {
		return leads.ValidationResult{}, fmt.Errorf("%w: %v", workflow.ErrTransient, err)
	}

	result, err := v.client.Verify(ctx, email)
	switch {
	case err == nil:
		return result, nil
	case errors.Is(err, emaillistverify.ErrAPIKeyMissing):
		return leads.ValidationResult{}, fmt.Errorf("%w: %v", workflow.ErrCredentialMissing, err)
	case errors.Is(err, emaillistverify.ErrRateLimited):
		return leads.ValidationResult{}, fmt.Errorf("%w: %v", workflow.ErrTransient, err)
	default:
		v.logger.InfoWithError(ctx, fmt.Sprintf("verification failed for %q", email), err)
		return leads.ValidationResult{}, fmt.Errorf("%w: %v", workflow.ErrTransient, err)
	}
}
