package processor

import (
	"context"
	"errors"
	"time"

	"leadgen-server/internal/store"
)

var ErrFailedSignIn = errors.New("failed to sign in")

// SignInGoogleUserWithCode signs a user in (or up) from an OAuth callback
// code and returns a session JWT. The Google tokens are stored so finished
// campaigns can be exported to the user's own spreadsheets.
func (p *AuthProcessor) SignInGoogleUserWithCode(ctx context.Context, code string) (string, error) {
	token, err := p.googleOauthClient.ExchangeCode(ctx, code)
	if err != nil {
		p.logger.InfoWithError(ctx, "failed to exchange authorization code", err)
		return "", ErrFailedSignIn
	}

	userInfo, err := p.googleOauthClient.GetUserInfo(ctx, token.AccessToken)
	if err != nil {
		p.logger.InfoWithError(ctx, "failed to get user info", err)
		return "", ErrFailedSignIn
	}

	exists, err := p.store.CheckIfEmailExists(ctx, userInfo.Email)
	if err != nil {
		p.logger.InfoWithError(ctx, "failed to check if email exists", err)
		return "", ErrFailedSignIn
	}

	if !exists {
		_, err := p.store.CreateUserOnGoogleSignIn(ctx, userInfo.ID, userInfo.Email, userInfo.FirstName,
			userInfo.LastName)
		if err != nil {
			p.logger.InfoWithError(ctx, "failed to create user on google sign in", err)
			return "", ErrFailedSignIn
		}
	}

	oauthUser, err := p.store.GetOauthUserByEmail(ctx, userInfo.Email)
	if err != nil {
		p.logger.InfoWithError(ctx, "failed to get oauth user by email", err)
		return "", ErrFailedSignIn
	}

	authenticatedUser, err := p.store.GetUserByAuthID(ctx, oauthUser.AuthID)
	if err != nil {
		p.logger.InfoWithError(ctx, "failed to get user by auth id", err)
		return "", ErrFailedSignIn
	}

	_, err = p.store.SaveGoogleToken(ctx, store.GoogleToken{
		UserID:       authenticatedUser.UserID,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    time.Now().Add(time.Duration(token.ExpiresIn) * time.Second),
	})
	if err != nil {
		// Sign-in still succeeds; exports fall back to local workbooks.
		p.logger.InfoWithError(ctx, "failed to store google token", err)
	}

	jwtToken, err := p.generateJWTToken(ctx, authenticatedUser)
	if err != nil {
		p.logger.InfoWithError(ctx, "failed to generate jwt token", err)
		return "", ErrFailedSignIn
	}

	return jwtToken, nil
}
