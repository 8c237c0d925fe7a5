package handler

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"leadgen-server/internal/apierrors"
	"leadgen-server/internal/auth/processor"
	"leadgen-server/internal/observability"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	authProcessor processor.AuthProcessor
	webAppHost    string
	logger        *observability.Logger
}

type EmailSignupRequest struct {
	FirstName string `json:"first_name" binding:"required"`
	LastName  string `json:"last_name" binding:"required"`
	Email     string `json:"email" binding:"required,email"`
	Password  string `json:"password" binding:"required,min=8"`
}

type EmailLoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
}

func New(authProcessor processor.AuthProcessor, webAppHost string, logger *observability.Logger) Handler {
	return Handler{authProcessor: authProcessor, webAppHost: webAppHost, logger: logger}
}

func (h *Handler) HandleEmailSignup(c *gin.Context) {
	var req EmailSignupRequest
	ctx := c.Request.Context()
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.InfoWithError(ctx, "failed to bind request", err)
		apierrors.BadRequest(c, "INVALID_REQUEST", "invalid signup request")
		return
	}
	signedUpUser, err := h.authProcessor.Signup(ctx, req.FirstName, req.LastName, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, processor.ErrEmailAlreadyExists) {
			apierrors.Conflict(c, "EMAIL_EXISTS", "email already registered")
			return
		}
		h.logger.Error(ctx, "failed to signup", err)
		apierrors.InternalError(c, err)
		return
	}

	c.JSON(http.StatusOK, signedUpUser)
}

func (h *Handler) HandleEmailLogin(c *gin.Context) {
	var req EmailLoginRequest
	ctx := c.Request.Context()
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.InfoWithError(ctx, "failed to bind request", err)
		apierrors.BadRequest(c, "INVALID_REQUEST", "invalid login request")
		return
	}
	token, err := h.authProcessor.Login(ctx, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, processor.ErrInvalidCredentials) {
			apierrors.Unauthorized(c, "invalid email or password")
			return
		}
		h.logger.Error(ctx, "failed to login", err)
		apierrors.InternalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}

func (h *Handler) HandleJWTMiddleware(c *gin.Context) {
	ctx := c.Request.Context()
	tokenHeader := c.GetHeader("Authorization")

	if tokenHeader == "" || !strings.HasPrefix(tokenHeader, "Bearer ") {
		apierrors.Unauthorized(c, "Authorization token is missing or invalid")
		c.Abort()
		return
	}

	tokenString := strings.TrimPrefix(tokenHeader, "Bearer ")

	claims, err := h.authProcessor.ValidateJWTToken(ctx, tokenString)
	if err != nil {
		apierrors.Unauthorized(c, err.Error())
		c.Abort()
		return
	}
	sub, err := claims.GetSubject()
	if err != nil {
		apierrors.Unauthorized(c, "invalid token subject")
		c.Abort()
		return
	}
	c.Set("User-ID", sub)
	c.Next()
}

func (h *Handler) HandleGoogleOauthCallback(c *gin.Context) {
	ctx := c.Request.Context()
	code := c.Request.URL.Query().Get("code")
	if code == "" {
		apierrors.BadRequest(c, "MISSING_CODE", "Authorization code is missing")
		return
	}
	token, err := h.authProcessor.SignInGoogleUserWithCode(ctx, code)
	if err != nil {
		h.logger.Error(ctx, "failed to sign in with google", err)
		apierrors.InternalError(c, err)
		return
	}
	redirectURL := url.URL{
		Scheme: "http",
		Host:   h.webAppHost,
		Path:   "oauth/signedin",
	}
	query := redirectURL.Query()
	query.Add("token", token)
	redirectURL.RawQuery = query.Encode()

	c.Redirect(http.StatusFound, redirectURL.String())
}
