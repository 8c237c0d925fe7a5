package processor

import (
	"context"
	"errors"
	"testing"

	"leadgen-server/internal/clients/googleoauth"
	"leadgen-server/internal/observability"
	"leadgen-server/internal/store"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

type fakeAuthStore struct {
	users        map[string]store.EmailAuth // by email
	usersByAuth  map[uuid.UUID]store.AuthenticatedUser
	oauthByEmail map[string]store.OauthAuth
	savedTokens  []store.GoogleToken
	created      []string
}

func newFakeAuthStore() *fakeAuthStore {
	return &fakeAuthStore{
		users:        make(map[string]store.EmailAuth),
		usersByAuth:  make(map[uuid.UUID]store.AuthenticatedUser),
		oauthByEmail: make(map[string]store.OauthAuth),
	}
}

func (f *fakeAuthStore) addEmailUser(email, password string) uuid.UUID {
	hashed, _ := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	authID := uuid.New()
	userID := uuid.New()
	f.users[email] = store.EmailAuth{Email: email, HashedPassword: string(hashed), AuthID: authID}
	f.usersByAuth[authID] = store.AuthenticatedUser{UserID: userID, FirstName: "Ann", AuthID: authID, AuthType: "email"}
	return userID
}

func (f *fakeAuthStore) CheckIfEmailExists(ctx context.Context, email string) (bool, error) {
	_, onEmail := f.users[email]
	_, onOauth := f.oauthByEmail[email]
	return onEmail || onOauth, nil
}

func (f *fakeAuthStore) CreateUserOnEmailSignup(ctx context.Context, firstName, lastName, email, hashedPassword string) (store.User, error) {
	f.created = append(f.created, email)
	f.users[email] = store.EmailAuth{Email: email, HashedPassword: hashedPassword, AuthID: uuid.New()}
	return store.User{ID: uuid.New(), FirstName: firstName, LastName: lastName}, nil
}

func (f *fakeAuthStore) CreateUserOnGoogleSignIn(ctx context.Context, googleUserID, email, firstName, lastName string) (store.User, error) {
	authID := uuid.New()
	userID := uuid.New()
	f.oauthByEmail[email] = store.OauthAuth{AuthID: authID, UserID: googleUserID, Email: email}
	f.usersByAuth[authID] = store.AuthenticatedUser{UserID: userID, FirstName: firstName, AuthID: authID, AuthType: "oauth"}
	return store.User{ID: userID, FirstName: firstName, LastName: lastName}, nil
}

func (f *fakeAuthStore) GetCredentialsByEmail(ctx context.Context, email string) (store.EmailAuth, error) {
	auth, ok := f.users[email]
	if !ok {
		return store.EmailAuth{}, store.ErrNotFound
	}
	return auth, nil
}

func (f *fakeAuthStore) GetOauthUserByEmail(ctx context.Context, email string) (store.OauthAuth, error) {
	auth, ok := f.oauthByEmail[email]
	if !ok {
		return store.OauthAuth{}, store.ErrNotFound
	}
	return auth, nil
}

func (f *fakeAuthStore) GetUserByAuthID(ctx context.Context, authID uuid.UUID) (store.AuthenticatedUser, error) {
	user, ok := f.usersByAuth[authID]
	if !ok {
		return store.AuthenticatedUser{}, store.ErrNotFound
	}
	return user, nil
}

func (f *fakeAuthStore) SaveGoogleToken(ctx context.Context, token store.GoogleToken) (store.GoogleToken, error) {
	f.savedTokens = append(f.savedTokens, token)
	return token, nil
}

type fakeOauthClient struct {
	token    googleoauth.TokenResponse
	userInfo googleoauth.UserInfo
	err      error
}

func (f *fakeOauthClient) ExchangeCode(ctx context.Context, code string) (googleoauth.TokenResponse, error) {
	return f.token, f.err
}

func (f *fakeOauthClient) GetUserInfo(ctx context.Context, token string) (googleoauth.UserInfo, error) {
	return f.userInfo, f.err
}

func newTestProcessor(s *fakeAuthStore, oauth *fakeOauthClient) AuthProcessor {
	return New(s, oauth, "test-secret", observability.NewLogger())
}

func TestSignupRejectsDuplicateEmail(t *testing.T) {
	s := newFakeAuthStore()
	s.addEmailUser("ann@acme.com", "password123")
	p := newTestProcessor(s, &fakeOauthClient{})

	_, err := p.Signup(context.Background(), "Ann", "Lee", "ann@acme.com", "password123")
	if !errors.Is(err, ErrEmailAlreadyExists) {
		t.Fatalf("expected ErrEmailAlreadyExists, got %v", err)
	}
}

func TestSignupHashesPassword(t *testing.T) {
	s := newFakeAuthStore()
	p := newTestProcessor(s, &fakeOauthClient{})

	_, err := p.Signup(context.Background(), "Ann", "Lee", "ann@acme.com", "password123")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	stored := s.users["ann@acme.com"]
	if stored.HashedPassword == "password123" {
		t.Fatal("expected password to be hashed")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(stored.HashedPassword), []byte("password123")); err != nil {
		t.Errorf("stored hash does not match password: %v", err)
	}
}

func TestLoginIssuesValidatableToken(t *testing.T) {
	s := newFakeAuthStore()
	userID := s.addEmailUser("ann@acme.com", "password123")
	p := newTestProcessor(s, &fakeOauthClient{})

	token, err := p.Login(context.Background(), "ann@acme.com", "password123")
	if err != nil {
		t.Fatalf("expected login to succeed, got %v", err)
	}

	claims, err := p.ValidateJWTToken(context.Background(), token)
	if err != nil {
		t.Fatalf("expected token to validate, got %v", err)
	}
	parsed, err := UserIDFromClaims(claims)
	if err != nil {
		t.Fatalf("expected subject to parse, got %v", err)
	}
	if parsed != userID {
		t.Errorf("expected subject %s, got %s", userID, parsed)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	s := newFakeAuthStore()
	s.addEmailUser("ann@acme.com", "password123")
	p := newTestProcessor(s, &fakeOauthClient{})

	_, err := p.Login(context.Background(), "ann@acme.com", "wrong-password")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestLoginUnknownEmail(t *testing.T) {
	p := newTestProcessor(newFakeAuthStore(), &fakeOauthClient{})

	_, err := p.Login(context.Background(), "nobody@acme.com", "password123")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestValidateJWTTokenRejectsGarbage(t *testing.T) {
	p := newTestProcessor(newFakeAuthStore(), &fakeOauthClient{})

	_, err := p.ValidateJWTToken(context.Background(), "not-a-token")
	if !errors.Is(err, ErrParseJWTToken) {
		t.Fatalf("expected ErrParseJWTToken, got %v", err)
	}
}

func TestValidateJWTTokenRejectsWrongSecret(t *testing.T) {
	s := newFakeAuthStore()
	s.addEmailUser("ann@acme.com", "password123")
	p := newTestProcessor(s, &fakeOauthClient{})
	token, err := p.Login(context.Background(), "ann@acme.com", "password123")
	if err != nil {
		t.Fatalf("expected login to succeed, got %v", err)
	}

	other := New(s, &fakeOauthClient{}, "different-secret", observability.NewLogger())
	if _, err := other.ValidateJWTToken(context.Background(), token); err == nil {
		t.Fatal("expected validation to fail under a different secret")
	}
}

func TestSignInGoogleUserStoresTokens(t *testing.T) {
	s := newFakeAuthStore()
	oauth := &fakeOauthClient{
		token:    googleoauth.TokenResponse{AccessToken: "access", RefreshToken: "refresh", ExpiresIn: 3600},
		userInfo: googleoauth.UserInfo{ID: "google-1", Email: "ann@acme.com", FirstName: "Ann", LastName: "Lee"},
	}
	p := newTestProcessor(s, oauth)

	token, err := p.SignInGoogleUserWithCode(context.Background(), "auth-code")
	if err != nil {
		t.Fatalf("expected sign in to succeed, got %v", err)
	}
	if token == "" {
		t.Fatal("expected a session token")
	}
	if len(s.savedTokens) != 1 {
		t.Fatalf("expected google token stored, got %d", len(s.savedTokens))
	}
	if s.savedTokens[0].RefreshToken != "refresh" {
		t.Errorf("expected refresh token persisted, got %q", s.savedTokens[0].RefreshToken)
	}
}

func TestSignInGoogleUserExistingAccount(t *testing.T) {
	s := newFakeAuthStore()
	authID := uuid.New()
	s.oauthByEmail["ann@acme.com"] = store.OauthAuth{AuthID: authID, UserID: "google-1", Email: "ann@acme.com"}
	s.usersByAuth[authID] = store.AuthenticatedUser{UserID: uuid.New(), AuthID: authID, AuthType: "oauth"}

	oauth := &fakeOauthClient{
		token:    googleoauth.TokenResponse{AccessToken: "access", ExpiresIn: 3600},
		userInfo: googleoauth.UserInfo{ID: "google-1", Email: "ann@acme.com", FirstName: "Ann"},
	}
	p := newTestProcessor(s, oauth)

	if _, err := p.SignInGoogleUserWithCode(context.Background(), "auth-code"); err != nil {
		t.Fatalf("expected sign in to succeed, got %v", err)
	}
	if len(s.created) != 0 {
		t.Errorf("expected no new email signup, got %v", s.created)
	}
}
