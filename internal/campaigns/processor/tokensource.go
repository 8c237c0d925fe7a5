package processor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"leadgen-server/internal/observability"
	"leadgen-server/internal/store"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// Refresh slightly before expiry so an export never starts with a token
// about to lapse mid-write.
const tokenExpiryLeeway = time.Minute

// userTokenSource yields a user's stored Google access token, refreshing
// and re-persisting it when expired. It satisfies oauth2.TokenSource for
// the Sheets client.
type userTokenSource struct {
	ctx       context.Context
	store     CampaignStore
	refresher TokenRefresher
	userID    uuid.UUID
	logger    *observability.Logger

	mu    sync.Mutex
	token store.GoogleToken
}

// NewUserTokenSource wraps the stored token for userID. The context bounds
// all refresh calls made over the source's lifetime.
func NewUserTokenSource(ctx context.Context, s CampaignStore, refresher TokenRefresher,
	userID uuid.UUID, token store.GoogleToken, logger *observability.Logger) oauth2.TokenSource {
	return &userTokenSource{
		ctx:       ctx,
		store:     s,
		refresher: refresher,
		userID:    userID,
		logger:    logger,
		token:     token,
	}
}

func (s *userTokenSource) Token() (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if time.Until(s.token.ExpiresAt) > tokenExpiryLeeway {
		return &oauth2.Token{
			AccessToken: s.token.AccessToken,
			Expiry:      s.token.ExpiresAt,
		}, nil
	}

	if s.token.RefreshToken == "" {
		return nil, fmt.Errorf("google token expired and no refresh token stored")
	}

	refreshed, err := s.refresher.RefreshAccessToken(s.ctx, s.token.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("failed to refresh google token: %w", err)
	}

	s.token.AccessToken = refreshed.AccessToken
	s.token.ExpiresAt = time.Now().Add(time.Duration(refreshed.ExpiresIn) * time.Second)
	if refreshed.RefreshToken != "" {
		s.token.RefreshToken = refreshed.RefreshToken
	}

	// A failed save is non-fatal but means the next source refreshes again.
	saved, err := s.store.SaveGoogleToken(s.ctx, s.token)
	if err != nil {
		s.logger.InfoWithError(s.ctx, "failed to persist refreshed google token", err)
	} else {
		s.token = saved
	}

	return &oauth2.Token{
		AccessToken: s.token.AccessToken,
		Expiry:      s.token.ExpiresAt,
	}, nil
}
