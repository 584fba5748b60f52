package handlers

import (
	"errors"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/crsongirkar/YT-Platform/internal/auth"
	"github.com/crsongirkar/YT-Platform/internal/logging"
	"github.com/crsongirkar/YT-Platform/internal/models"
	"github.com/crsongirkar/YT-Platform/internal/repositories"
)

const (
	minPasswordLength  = 8
	maxDisplayNameSize = 64
)

// AuthHandler implements account creation and session endpoints.
type AuthHandler struct {
	Users    UserStore
	Sessions SessionManager
	Limiter  RateLimiter
	// StartingBalance is credited to every new account.
	StartingBalance int64
	NowFunc         func() time.Time
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// normalize lowercases the email and reports a client-facing message when a field is missing.
func (c *credentials) normalize() string {
	c.Email = strings.TrimSpace(strings.ToLower(c.Email))
	if c.Email == "" || c.Password == "" {
		return "email and password are required"
	}
	return ""
}

type loginRequest = credentials

type signUpRequest struct {
	credentials
	DisplayName string `json:"displayName"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type authResponse struct {
	Tokens models.SessionTokens `json:"tokens"`
	User   *accountResponse     `json:"user,omitempty"`
}

// Login handles POST /api/v1/auth/login.
func (h AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if !h.accept(w, r, "login") {
		return
	}
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		logger.Warn("invalid login payload", "error", err)
		respondError(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}
	if msg := req.normalize(); msg != "" {
		respondError(ctx, w, http.StatusBadRequest, msg)
		return
	}

	user, err := h.Users.FindByEmail(ctx, req.Email)
	if err != nil && !errors.Is(err, repositories.ErrNotFound) {
		logger.Error("login user lookup failed", "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "unable to sign in")
		return
	}
	// unknown emails and wrong passwords are indistinguishable to the caller.
	if err != nil || bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)) != nil {
		logger.Warn("login rejected", "email", req.Email)
		respondError(ctx, w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	h.respondSession(w, r, http.StatusOK, user)
}

// SignUp handles POST /api/v1/auth/signup. New accounts start with StartingBalance.
func (h AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	if !h.accept(w, r, "signup") {
		return
	}
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	var req signUpRequest
	if err := decodeJSON(r, &req); err != nil {
		logger.Warn("invalid signup payload", "error", err)
		respondError(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}
	if msg := validateSignUp(&req); msg != "" {
		logger.Warn("signup rejected", "email", req.Email, "reason", msg)
		respondError(ctx, w, http.StatusBadRequest, msg)
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		logger.Error("signup failed to hash password", "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "failed to secure password")
		return
	}

	now := h.now()
	user := models.User{
		ID:          uuid.NewString(),
		Email:       req.Email,
		Password:    string(hashed),
		DisplayName: req.DisplayName,
		Balance:     h.StartingBalance,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	// the unique email constraint decides races between concurrent signups.
	if err := h.Users.Create(ctx, user); err != nil {
		if errors.Is(err, repositories.ErrConflict) {
			respondError(ctx, w, http.StatusConflict, "account already exists")
			return
		}
		logger.Error("signup failed to create user", "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "failed to create account")
		return
	}

	logger.Info("account created", "userId", user.ID, "startingBalance", user.Balance)
	h.respondSession(w, r, http.StatusCreated, user)
}

// Refresh handles POST /api/v1/auth/refresh, rotating the refresh token.
func (h AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	req, ok := h.refreshToken(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	tokens, err := h.Sessions.Refresh(ctx, req.RefreshToken)
	switch {
	case errors.Is(err, auth.ErrRefreshTokenExpired), errors.Is(err, auth.ErrSessionNotFound):
		logging.FromContext(ctx).Warn("refresh rejected", "error", err)
		respondError(ctx, w, http.StatusUnauthorized, "unable to refresh session")
	case err != nil:
		logging.FromContext(ctx).Error("refresh failed", "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "unable to refresh session")
	default:
		respondJSON(ctx, w, http.StatusOK, authResponse{Tokens: tokens})
	}
}

// Logout handles POST /api/v1/auth/logout. Revoking an unknown token still succeeds.
func (h AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	req, ok := h.refreshToken(w, r)
	if !ok {
		return
	}
	h.Sessions.Revoke(r.Context(), req.RefreshToken)
	w.WriteHeader(http.StatusNoContent)
}

// accept enforces the method, dependency and rate limit checks shared by login and signup.
func (h AuthHandler) accept(w http.ResponseWriter, r *http.Request, scope string) bool {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return false
	}
	ctx := r.Context()
	if h.Users == nil || h.Sessions == nil {
		logging.FromContext(ctx).Error("authentication dependencies unavailable", "hasUsers", h.Users != nil, "hasSessions", h.Sessions != nil)
		respondError(ctx, w, http.StatusInternalServerError, "authentication services unavailable")
		return false
	}
	if !allowRequest(h.Limiter, r, scope) {
		respondError(ctx, w, http.StatusTooManyRequests, "too many "+scope+" attempts, try again later")
		return false
	}
	return true
}

func (h AuthHandler) refreshToken(w http.ResponseWriter, r *http.Request) (refreshRequest, bool) {
	var req refreshRequest
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return req, false
	}
	ctx := r.Context()
	if h.Sessions == nil {
		logging.FromContext(ctx).Error("session manager unavailable")
		respondError(ctx, w, http.StatusInternalServerError, "session service unavailable")
		return req, false
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(ctx, w, http.StatusBadRequest, "invalid request body")
		return req, false
	}
	req.RefreshToken = strings.TrimSpace(req.RefreshToken)
	if req.RefreshToken == "" {
		respondError(ctx, w, http.StatusBadRequest, "refresh token is required")
		return req, false
	}
	return req, true
}

func (h AuthHandler) respondSession(w http.ResponseWriter, r *http.Request, status int, user models.User) {
	ctx := r.Context()
	tokens, err := h.Sessions.Issue(ctx, user.ID)
	if err != nil {
		logging.FromContext(ctx).Error("failed to issue session", "error", err, "userId", user.ID)
		respondError(ctx, w, http.StatusInternalServerError, "failed to create session")
		return
	}
	account := newAccountResponse(user)
	respondJSON(ctx, w, status, authResponse{Tokens: tokens, User: &account})
}

func validateSignUp(req *signUpRequest) string {
	if msg := req.normalize(); msg != "" {
		return msg
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		return "invalid email address"
	}
	if len(req.Password) < minPasswordLength {
		return "password must be at least 8 characters"
	}
	req.DisplayName = strings.TrimSpace(req.DisplayName)
	if req.DisplayName == "" {
		req.DisplayName, _, _ = strings.Cut(req.Email, "@")
	}
	if len(req.DisplayName) > maxDisplayNameSize {
		return "display name must be at most 64 characters"
	}
	return ""
}

func (h AuthHandler) now() time.Time {
	if h.NowFunc != nil {
		return h.NowFunc()
	}
	return time.Now().UTC()
}
