// Package handler exposes the auth service over HTTP under /api/auth.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/xboybx/Authentication-System/internal/identity/service"
	"github.com/xboybx/Authentication-System/internal/security"
	"github.com/xboybx/Authentication-System/internal/server/middleware"
	"github.com/xboybx/Authentication-System/internal/server/response"
	sessiondomain "github.com/xboybx/Authentication-System/internal/session/domain"
	userdomain "github.com/xboybx/Authentication-System/internal/user/domain"
)

const maxBodyBytes = 1 << 20

// AuthAPI is the subset of the auth service used by the HTTP handlers.
type AuthAPI interface {
	Register(ctx context.Context, name, email, password string) (*userdomain.User, error)
	Login(ctx context.Context, email, password, ip, userAgent string) (*service.AuthResult, error)
	Refresh(ctx context.Context, rawRefreshToken, ip, userAgent string) (*service.AuthResult, error)
	Logout(ctx context.Context, rawRefreshToken, authUserID string) error
	Profile(ctx context.Context, userID string) (*userdomain.User, error)
	ListSessions(ctx context.Context, userID string) ([]*sessiondomain.Session, error)
	PurgeNow(ctx context.Context, actorID string) (int64, error)
}

// Handler serves the auth endpoints. Routes that need an identity expect middleware.Authenticate
// or middleware.OptionalAuth to run first.
type Handler struct {
	auth AuthAPI
	log  *zap.Logger
}

// NewHandler returns a Handler backed by auth.
func NewHandler(auth AuthAPI, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{auth: auth, log: log}
}

// UserView is the public JSON shape of a user. The password hash is never serialized.
type UserView struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Email     string     `json:"email"`
	Role      string     `json:"role"`
	IsActive  bool       `json:"isActive"`
	LastLogin *time.Time `json:"lastLogin,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

func newUserView(u *userdomain.User) *UserView {
	if u == nil {
		return nil
	}
	return &UserView{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		Role:      u.Role,
		IsActive:  u.IsActive,
		LastLogin: u.LastLogin,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

// SessionView is the public JSON shape of a refresh session. Only a hash prefix is exposed.
type SessionView struct {
	ID            string    `json:"id"`
	TokenPrefix   string    `json:"tokenPrefix"`
	CreatedByIP   string    `json:"createdByIp"`
	UserAgent     string    `json:"userAgent"`
	Active        bool      `json:"isActive"`
	ExpiresAt     time.Time `json:"expiresAt"`
	ReplacesToken string    `json:"replacesToken,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type tokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type loginResponse struct {
	User         *UserView `json:"user"`
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
}

// Register handles POST /register.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !h.decode(w, r, &req) {
		return
	}
	user, err := h.auth.Register(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.JSON(w, http.StatusCreated, "User registered successfully", map[string]interface{}{"user": newUserView(user)})
}

// Login handles POST /login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !h.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		response.Error(w, http.StatusBadRequest, response.CodeValidationFailed, "Validation failed", "email and password are required")
		return
	}
	ctx := r.Context()
	res, err := h.auth.Login(ctx, req.Email, req.Password, middleware.ClientIP(ctx), middleware.UserAgent(ctx))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, "Login successful", loginResponse{
		User:         newUserView(res.User),
		AccessToken:  res.AccessToken,
		RefreshToken: res.RefreshToken,
	})
}

// Refresh handles POST /refresh.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !h.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.RefreshToken) == "" {
		response.Error(w, http.StatusBadRequest, response.CodeValidationFailed, "Validation failed", "refreshToken is required")
		return
	}
	ctx := r.Context()
	res, err := h.auth.Refresh(ctx, req.RefreshToken, middleware.ClientIP(ctx), middleware.UserAgent(ctx))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, "Token refreshed successfully", tokenPair{AccessToken: res.AccessToken, RefreshToken: res.RefreshToken})
}

// Logout handles POST /logout. The body and the Bearer token are both optional.
// An unreadable body is ignored so a Bearer-only logout still goes through.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		h.log.Debug("logout body ignored", zap.String("request_id", middleware.RequestID(r.Context())), zap.Error(err))
		req = refreshRequest{}
	}
	userID, _ := middleware.GetUserID(r.Context())
	if err := h.auth.Logout(r.Context(), strings.TrimSpace(req.RefreshToken), userID); err != nil {
		h.writeError(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, "Logged out successfully", nil)
}

// Profile handles GET /profile.
func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Error(w, http.StatusUnauthorized, response.CodeAuthRequired, "Authentication required")
		return
	}
	user, err := h.auth.Profile(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, "Profile retrieved successfully", map[string]interface{}{"user": newUserView(user)})
}

// Sessions handles GET /sessions.
func (h *Handler) Sessions(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Error(w, http.StatusUnauthorized, response.CodeAuthRequired, "Authentication required")
		return
	}
	list, err := h.auth.ListSessions(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	views := make([]SessionView, 0, len(list))
	for _, s := range list {
		views = append(views, SessionView{
			ID:            s.ID,
			TokenPrefix:   security.HashPrefix(s.TokenHash),
			CreatedByIP:   s.CreatedByIP,
			UserAgent:     s.UserAgent,
			Active:        s.Active,
			ExpiresAt:     s.ExpiresAt,
			ReplacesToken: security.HashPrefix(s.ReplacedByHash),
			CreatedAt:     s.CreatedAt,
		})
	}
	response.JSON(w, http.StatusOK, "Sessions retrieved successfully", map[string]interface{}{"sessions": views})
}

// Cleanup handles DELETE /cleanup-tokens.
func (h *Handler) Cleanup(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.GetUserID(r.Context())
	n, err := h.auth.PurgeNow(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, "Token cleanup completed", map[string]int64{"deletedTokens": n})
}

// Routes mounts the public routes on r. protect wraps routes that require an authenticated user;
// optional wraps logout; admin wraps the cleanup route.
func (h *Handler) Routes(r *mux.Router, protect, optional, admin func(http.Handler) http.Handler) {
	r.HandleFunc("/register", h.Register).Methods(http.MethodPost)
	r.HandleFunc("/login", h.Login).Methods(http.MethodPost)
	r.HandleFunc("/refresh", h.Refresh).Methods(http.MethodPost)
	r.Handle("/logout", optional(http.HandlerFunc(h.Logout))).Methods(http.MethodPost)
	r.Handle("/profile", protect(http.HandlerFunc(h.Profile))).Methods(http.MethodGet)
	r.Handle("/sessions", protect(http.HandlerFunc(h.Sessions))).Methods(http.MethodGet)
	r.Handle("/cleanup-tokens", protect(admin(http.HandlerFunc(h.Cleanup)))).Methods(http.MethodDelete)
}

// decode reads a JSON body into dst. On failure it writes a 400 and returns false.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err == nil {
		return true
	}
	response.Error(w, http.StatusBadRequest, response.CodeValidationFailed, "Validation failed", "request body must be valid JSON")
	return false
}

// writeError maps service errors onto status codes and error codes.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrValidationFailed):
		response.Error(w, http.StatusBadRequest, response.CodeValidationFailed, "Validation failed", validationDetail(err))
	case errors.Is(err, service.ErrEmailTaken):
		response.Error(w, http.StatusConflict, response.CodeDuplicateEmail, "User already exists with this email")
	case errors.Is(err, service.ErrInvalidCredentials):
		response.Error(w, http.StatusUnauthorized, response.CodeInvalidCredentials, "Invalid credentials")
	case errors.Is(err, service.ErrTokenExpired):
		response.Error(w, http.StatusUnauthorized, response.CodeTokenExpired, "Refresh token expired")
	case errors.Is(err, service.ErrTokenMalformed), errors.Is(err, service.ErrTokenSignatureInvalid):
		response.Error(w, http.StatusUnauthorized, response.CodeInvalidToken, "Invalid refresh token")
	case errors.Is(err, service.ErrTokenNotFound):
		response.Error(w, http.StatusUnauthorized, response.CodeTokenNotFound, "Refresh token not found or expired")
	case errors.Is(err, service.ErrTokenRevokedOrExpired):
		response.Error(w, http.StatusUnauthorized, response.CodeTokenRevoked, "Refresh token not found or expired")
	case errors.Is(err, service.ErrSubjectInactive):
		response.Error(w, http.StatusUnauthorized, response.CodeUserNotFound, "User not found or inactive")
	case errors.Is(err, context.DeadlineExceeded):
		response.Error(w, http.StatusServiceUnavailable, response.CodeInternal, "Request timed out")
	default:
		h.log.Error("request failed", zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.RequestID(r.Context())), zap.Error(err))
		response.Error(w, http.StatusInternalServerError, response.CodeInternal, "Internal server error")
	}
}

func validationDetail(err error) string {
	return strings.TrimPrefix(err.Error(), service.ErrValidationFailed.Error()+": ")
}
