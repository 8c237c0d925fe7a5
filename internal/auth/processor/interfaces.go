package processor

import (
	"context"

	"leadgen-server/internal/clients/googleoauth"
	"leadgen-server/internal/store"

	"github.com/google/uuid"
)

// AuthStore defines the database operations required by AuthProcessor
type AuthStore interface {
	CheckIfEmailExists(ctx context.Context, email string) (bool, error)
	CreateUserOnEmailSignup(ctx context.Context, firstName string, lastName string, email string, hashedPassword string) (store.User, error)
	CreateUserOnGoogleSignIn(ctx context.Context, googleUserID string, email string, firstName string, lastName string) (store.User, error)
	GetCredentialsByEmail(ctx context.Context, email string) (store.EmailAuth, error)
	GetOauthUserByEmail(ctx context.Context, email string) (store.OauthAuth, error)
	GetUserByAuthID(ctx context.Context, authID uuid.UUID) (store.AuthenticatedUser, error)
	SaveGoogleToken(ctx context.Context, token store.GoogleToken) (store.GoogleToken, error)
}

// GoogleOAuthClient defines the OAuth operations required by AuthProcessor
type GoogleOAuthClient interface {
	ExchangeCode(ctx context.Context, code string) (googleoauth.TokenResponse, error)
	GetUserInfo(ctx context.Context, token string) (googleoauth.UserInfo, error)
}
