package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type OauthAuth struct {
	AuthID       uuid.UUID `db:"auth_id"`
	UserID       string    `db:"user_id"`
	Email        string    `db:"email"`
	FullName     string    `db:"full_name"`
	AuthProvider string    `db:"auth_provider"`
}

// GoogleToken holds a user's stored Google credentials for Sheets export.
type GoogleToken struct {
	UserID       uuid.UUID `db:"user_id"`
	AccessToken  string    `db:"access_token"`
	RefreshToken string    `db:"refresh_token"`
	ExpiresAt    time.Time `db:"expires_at"`
}

const sqlCreateOAuth = `
INSERT INTO oauth_auth (auth_id, user_id, email, full_name, auth_provider)
VALUES ($1, $2, $3, $4, $5)
RETURNING auth_id, user_id, email, full_name, auth_provider
`

func (s *Store) CreateUserOnGoogleSignIn(ctx context.Context, googleUserID string, email string, firstName string,
	lastName string) (User, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		s.logger.Error(ctx, "failed to begin transaction", err)
		return User{}, err
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				s.logger.Error(ctx, "failed to rollback transaction", rbErr)
			}
		}
	}()

	var user User
	err = tx.GetContext(ctx, &user, sqlCreateUser, firstName, lastName)
	if err != nil {
		s.logger.Error(ctx, "failed to create user", err)
		return User{}, err
	}
	var userAuth UserAuth
	err = tx.GetContext(ctx, &userAuth, sqlCreateUserAuth, user.ID, "oauth")
	if err != nil {
		s.logger.Error(ctx, "failed to create user auth entry", err)
		return User{}, err
	}

	var oauthAuth OauthAuth
	err = tx.GetContext(ctx, &oauthAuth, sqlCreateOAuth, userAuth.ID, googleUserID, email,
		firstName+" "+lastName, "google")
	if err != nil {
		s.logger.Error(ctx, "failed to create google oauth entry", err)
		return User{}, err
	}
	err = tx.Commit()
	if err != nil {
		s.logger.Error(ctx, "failed to commit transaction", err)
		return User{}, err
	}
	return user, nil
}

const sqlSelectOauthUserByEmail = `
SELECT
    auth_id,
    user_id,
    auth_provider,
    email
FROM oauth_auth
WHERE email = $1
`

func (s *Store) GetOauthUserByEmail(ctx context.Context, email string) (OauthAuth, error) {
	var userAuthByOauth OauthAuth
	err := s.db.GetContext(ctx, &userAuthByOauth, sqlSelectOauthUserByEmail, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return OauthAuth{}, ErrNotFound
		}
		s.logger.Error(ctx, "failed to get user by email", err)
		return OauthAuth{}, fmt.Errorf("failed to get oauth user by email: %w", err)
	}
	return userAuthByOauth, nil
}

const sqlUpsertGoogleToken = `
INSERT INTO google_tokens (user_id, access_token, refresh_token, expires_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (user_id) DO UPDATE SET
    access_token = EXCLUDED.access_token,
    refresh_token = CASE WHEN EXCLUDED.refresh_token <> '' THEN EXCLUDED.refresh_token
                         ELSE google_tokens.refresh_token END,
    expires_at = EXCLUDED.expires_at
RETURNING user_id, access_token, refresh_token, expires_at
`

// SaveGoogleToken stores or updates a user's Google credentials. An empty
// refresh token on update keeps the one already stored, because Google only
// sends it on first consent.
func (s *Store) SaveGoogleToken(ctx context.Context, token GoogleToken) (GoogleToken, error) {
	var saved GoogleToken
	err := s.db.GetContext(ctx, &saved, sqlUpsertGoogleToken,
		token.UserID, token.AccessToken, token.RefreshToken, token.ExpiresAt)
	if err != nil {
		s.logger.Error(ctx, "failed to save google token", err)
		return GoogleToken{}, fmt.Errorf("failed to save google token: %w", err)
	}
	return saved, nil
}

const sqlGetGoogleToken = `
SELECT
    user_id,
    access_token,
    refresh_token,
    expires_at
FROM google_tokens
WHERE user_id = $1
`

func (s *Store) GetGoogleToken(ctx context.Context, userID uuid.UUID) (GoogleToken, error) {
	var token GoogleToken
	err := s.db.GetContext(ctx, &token, sqlGetGoogleToken, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return GoogleToken{}, ErrNotFound
		}
		s.logger.Error(ctx, "failed to get google token", err)
		return GoogleToken{}, fmt.Errorf("failed to get google token: %w", err)
	}
	return token, nil
}
