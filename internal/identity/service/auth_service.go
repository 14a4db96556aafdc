package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xboybx/Authentication-System/internal/audit"
	auditdomain "github.com/xboybx/Authentication-System/internal/audit/domain"
	"github.com/xboybx/Authentication-System/internal/metrics"
	"github.com/xboybx/Authentication-System/internal/security"
	sessiondomain "github.com/xboybx/Authentication-System/internal/session/domain"
	sessionrepo "github.com/xboybx/Authentication-System/internal/session/repository"
	"github.com/xboybx/Authentication-System/internal/telemetry"
	telemetrydomain "github.com/xboybx/Authentication-System/internal/telemetry/domain"
	userdomain "github.com/xboybx/Authentication-System/internal/user/domain"
	userrepo "github.com/xboybx/Authentication-System/internal/user/repository"
)

// Sentinel errors for the auth service; the HTTP handler maps them to status codes.
// Codec and store errors are re-exported so callers only import this package.
var (
	ErrValidationFailed      = errors.New("validation failed")
	ErrInvalidCredentials    = errors.New("invalid credentials")
	ErrTokenNotFound         = errors.New("refresh token not found")
	ErrTokenRevokedOrExpired = errors.New("refresh token revoked or expired")
	ErrSubjectInactive       = errors.New("user not found or inactive")

	ErrTokenMalformed        = security.ErrTokenMalformed
	ErrTokenSignatureInvalid = security.ErrTokenSignatureInvalid
	ErrTokenExpired          = security.ErrTokenExpired
	ErrDuplicateCredential   = sessionrepo.ErrDuplicateCredential
	ErrEmailTaken            = userrepo.ErrEmailTaken
)

const (
	minPasswordLen   = 6
	defaultUserAgent = "Unknown"
	eventSource      = "auth-service"

	// expiryHintThreshold is how close to expiry an access token must be before clients are told to refresh.
	expiryHintThreshold = 5 * time.Minute
)

// AuthResult is the outcome of Login and Refresh. User is set by Login only.
type AuthResult struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
	UserID           string
	User             *userdomain.User
}

// UserRepo is the minimal user repository needed by the auth service.
type UserRepo interface {
	GetByID(ctx context.Context, id string) (*userdomain.User, error)
	GetByEmail(ctx context.Context, email string) (*userdomain.User, error)
	Create(ctx context.Context, u *userdomain.User) error
	UpdateLastLogin(ctx context.Context, id string, at time.Time) error
}

// SessionRepo is the refresh session store needed by the auth service.
type SessionRepo interface {
	Create(ctx context.Context, p sessiondomain.CreateParams) (*sessiondomain.Session, error)
	FindByToken(ctx context.Context, rawToken string) (*sessiondomain.Session, error)
	ListByUser(ctx context.Context, userID string) ([]*sessiondomain.Session, error)
	RevokeIfActive(ctx context.Context, tokenHash string) (bool, error)
	RevokeAllForUser(ctx context.Context, userID string) (int64, error)
	PurgeExpiredOrInactive(ctx context.Context, now time.Time) (int64, error)
}

// Purger runs an on-demand retention sweep. The retention sweeper implements it.
type Purger interface {
	PurgeNow(ctx context.Context) (int64, error)
}

// AuthService implements registration, session admission, refresh token rotation and logout.
type AuthService struct {
	users    UserRepo
	sessions SessionRepo
	hasher   *security.Hasher
	tokens   *security.TokenCodec
	log      *zap.Logger

	audit  audit.AuditLogger
	events telemetry.EventEmitter
	purger Purger
	now    func() time.Time
}

// NewAuthService returns an AuthService with the given dependencies. log may be nil.
func NewAuthService(users UserRepo, sessions SessionRepo, hasher *security.Hasher, tokens *security.TokenCodec, log *zap.Logger) *AuthService {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthService{
		users:    users,
		sessions: sessions,
		hasher:   hasher,
		tokens:   tokens,
		log:      log.Named("auth"),
		now:      time.Now,
	}
}

// SetAuditLogger sets the audit logger for session events. Optional.
func (s *AuthService) SetAuditLogger(a audit.AuditLogger) { s.audit = a }

// SetEventEmitter sets the emitter for session lifecycle events. Optional.
func (s *AuthService) SetEventEmitter(e telemetry.EventEmitter) { s.events = e }

// SetPurger routes PurgeNow through p instead of calling the store directly.
func (s *AuthService) SetPurger(p Purger) { s.purger = p }

// Register creates an active user with the given name, email and password.
func (s *AuthService) Register(ctx context.Context, name, email, password string) (*userdomain.User, error) {
	name = strings.TrimSpace(name)
	email = normalizeEmail(email)
	if name == "" {
		return nil, validationError("name is required")
	}
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if len(password) < minPasswordLen {
		return nil, validationError(fmt.Sprintf("password must be at least %d characters", minPasswordLen))
	}
	existing, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrEmailTaken
	}
	hashed, err := s.hasher.Hash(password)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	user := &userdomain.User{
		ID:           uuid.New().String(),
		Name:         name,
		Email:        email,
		PasswordHash: hashed,
		Role:         userdomain.RoleUser,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := user.Validate(); err != nil {
		return nil, validationError(err.Error())
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	s.log.Info("user registered", zap.String("user_id", user.ID))
	s.record(ctx, user.ID, auditdomain.ActionRegister, auditdomain.ResourceUser, telemetrydomain.EventUserRegistered, "", "", nil)
	return user, nil
}

// Login verifies email and password and opens a new refresh session with no predecessor.
// Unknown, inactive and wrong-password attempts all return ErrInvalidCredentials.
func (s *AuthService) Login(ctx context.Context, email, password, ip, userAgent string) (*AuthResult, error) {
	email = normalizeEmail(email)
	userAgent = orUnknown(userAgent)
	if email == "" || password == "" {
		return nil, validationError("email and password are required")
	}
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil || !user.IsActive || !s.hasher.Verify(user.PasswordHash, password) {
		metrics.LoginTotal.WithLabelValues(metrics.ReasonBadCredentials).Inc()
		userID := ""
		if user != nil {
			userID = user.ID
		}
		s.log.Warn("failed login attempt", zap.String("ip", ip))
		s.record(ctx, userID, auditdomain.ActionLoginFailure, auditdomain.ResourceSession, telemetrydomain.EventLoginFailure, ip, userAgent, nil)
		return nil, ErrInvalidCredentials
	}

	now := s.now().UTC()
	if err := s.users.UpdateLastLogin(ctx, user.ID, now); err != nil {
		return nil, err
	}
	user.LastLogin = &now

	claims := security.Claims{UserID: user.ID, Email: user.Email, Role: user.Role}
	result, sess, err := s.issue(ctx, claims, ip, userAgent, "")
	if err != nil {
		metrics.LoginTotal.WithLabelValues(metrics.ReasonError).Inc()
		return nil, err
	}
	result.User = user
	metrics.LoginTotal.WithLabelValues("success").Inc()
	s.log.Info("user logged in", zap.String("user_id", user.ID), zap.String("ip", ip),
		zap.String("session", security.HashPrefix(sess.TokenHash)))
	s.record(ctx, user.ID, auditdomain.ActionLoginSuccess, auditdomain.ResourceSession, telemetrydomain.EventLoginSuccess, ip, userAgent, nil)
	return result, nil
}

// Refresh exchanges a refresh token for a new access/refresh pair and revokes the presented one.
//
// Steps run in order and stop at the first failure: verify the token (no store access), look up its
// record, check the user is still active, atomically revoke the record, mint a new pair from the
// presented token's claims, and store the new record chained to the revoked one. When two requests
// present the same token only the one that wins the revoke proceeds. If storing the new record fails
// the old one stays revoked and the caller must log in again.
func (s *AuthService) Refresh(ctx context.Context, rawRefreshToken, ip, userAgent string) (*AuthResult, error) {
	userAgent = orUnknown(userAgent)
	if strings.TrimSpace(rawRefreshToken) == "" {
		return nil, validationError("refresh token is required")
	}

	claims, err := s.tokens.VerifyRefresh(rawRefreshToken)
	if err != nil {
		return nil, s.rejectRefresh(ctx, err, rejectReason(err), "", "", ip, userAgent)
	}

	record, err := s.sessions.FindByToken(ctx, rawRefreshToken)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, s.rejectRefresh(ctx, ErrTokenNotFound, metrics.ReasonNotFound, claims.UserID, "", ip, userAgent)
	}
	prefix := security.HashPrefix(record.TokenHash)
	if !record.IsUsable(s.now()) {
		return nil, s.rejectRefresh(ctx, ErrTokenRevokedOrExpired, metrics.ReasonRevoked, claims.UserID, prefix, ip, userAgent)
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil || !user.IsActive {
		return nil, s.rejectRefresh(ctx, ErrSubjectInactive, metrics.ReasonSubject, claims.UserID, prefix, ip, userAgent)
	}

	won, err := s.sessions.RevokeIfActive(ctx, record.TokenHash)
	if err != nil {
		return nil, err
	}
	if !won {
		return nil, s.rejectRefresh(ctx, ErrTokenRevokedOrExpired, metrics.ReasonRaceLost, claims.UserID, prefix, ip, userAgent)
	}

	result, sess, err := s.issue(ctx, *claims, ip, userAgent, record.TokenHash)
	if err != nil {
		s.log.Error("rotation failed after revoke; session ended",
			zap.String("user_id", claims.UserID), zap.String("predecessor", prefix), zap.Error(err))
		return nil, err
	}
	metrics.RefreshRotatedTotal.Inc()
	s.log.Info("refresh token rotated", zap.String("user_id", claims.UserID),
		zap.String("predecessor", prefix), zap.String("session", security.HashPrefix(sess.TokenHash)))
	s.record(ctx, claims.UserID, auditdomain.ActionTokenRefreshed, auditdomain.ResourceSession, telemetrydomain.EventTokenRefreshed,
		ip, userAgent, map[string]string{"predecessor": prefix})
	return result, nil
}

// Logout revokes the record matching rawRefreshToken, if any, and every active record of authUserID
// when the caller is authenticated. Missing, invalid and already revoked tokens are not errors;
// store failures are.
func (s *AuthService) Logout(ctx context.Context, rawRefreshToken, authUserID string) error {
	var revoked int64
	userID := authUserID
	if rawRefreshToken != "" {
		record, err := s.sessions.FindByToken(ctx, rawRefreshToken)
		if err != nil {
			return err
		}
		if record != nil {
			won, err := s.sessions.RevokeIfActive(ctx, record.TokenHash)
			if err != nil {
				return err
			}
			if won {
				revoked++
			}
			if userID == "" {
				userID = record.UserID
			}
		}
	}
	if authUserID != "" {
		n, err := s.sessions.RevokeAllForUser(ctx, authUserID)
		if err != nil {
			return err
		}
		revoked += n
	}
	metrics.SessionsRevokedTotal.Add(float64(revoked))
	s.log.Info("logout", zap.String("user_id", userID), zap.Int64("revoked", revoked))
	s.record(ctx, userID, auditdomain.ActionLogout, auditdomain.ResourceSession, telemetrydomain.EventLogout, "", "",
		map[string]string{"revoked": strconv.FormatInt(revoked, 10)})
	return nil
}

// Authenticate verifies an access token and loads its user. Inactive or deleted users get ErrSubjectInactive.
func (s *AuthService) Authenticate(ctx context.Context, accessToken string) (*userdomain.User, *security.Claims, error) {
	claims, err := s.tokens.VerifyAccess(accessToken)
	if err != nil {
		return nil, nil, err
	}
	user, err := s.activeUser(ctx, claims.UserID)
	if err != nil {
		return nil, nil, err
	}
	return user, claims, nil
}

// AccessExpiringSoon reports whether accessToken expires within five minutes.
// The token is not verified; call it only after Authenticate accepted it.
func (s *AuthService) AccessExpiringSoon(accessToken string) bool {
	return s.tokens.IsAboutToExpire(accessToken, expiryHintThreshold)
}

// Profile returns the active user with the given id.
func (s *AuthService) Profile(ctx context.Context, userID string) (*userdomain.User, error) {
	return s.activeUser(ctx, userID)
}

// ListSessions returns the user's refresh session records, newest first.
func (s *AuthService) ListSessions(ctx context.Context, userID string) ([]*sessiondomain.Session, error) {
	return s.sessions.ListByUser(ctx, userID)
}

// PurgeNow deletes expired and revoked refresh sessions and returns how many were removed.
func (s *AuthService) PurgeNow(ctx context.Context, actorID string) (int64, error) {
	var (
		n   int64
		err error
	)
	if s.purger != nil {
		n, err = s.purger.PurgeNow(ctx)
	} else {
		n, err = s.sessions.PurgeExpiredOrInactive(ctx, s.now())
		if err == nil {
			metrics.SessionsPurgedTotal.Add(float64(n))
		}
	}
	if err != nil {
		return 0, err
	}
	s.log.Info("manual purge", zap.String("user_id", actorID), zap.Int64("deleted", n))
	s.record(ctx, actorID, auditdomain.ActionSessionsPurged, auditdomain.ResourceSession, telemetrydomain.EventSessionsPurged, "", "",
		map[string]string{"deleted": strconv.FormatInt(n, 10)})
	return n, nil
}

func (s *AuthService) activeUser(ctx context.Context, userID string) (*userdomain.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil || !user.IsActive {
		return nil, ErrSubjectInactive
	}
	return user, nil
}

// issue mints an access/refresh pair for claims and stores the refresh record.
func (s *AuthService) issue(ctx context.Context, claims security.Claims, ip, userAgent, predecessorHash string) (*AuthResult, *sessiondomain.Session, error) {
	access, accessExp, err := s.tokens.MintAccess(claims)
	if err != nil {
		return nil, nil, err
	}
	refresh, refreshExp, err := s.tokens.MintRefresh(claims)
	if err != nil {
		return nil, nil, err
	}
	sess, err := s.sessions.Create(ctx, sessiondomain.CreateParams{
		RawToken:        refresh,
		UserID:          claims.UserID,
		ExpiresAt:       refreshExp,
		IP:              ip,
		UserAgent:       userAgent,
		PredecessorHash: predecessorHash,
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateCredential) {
			s.log.Error("refresh credential hash collision", zap.String("user_id", claims.UserID),
				zap.String("session", security.HashPrefix(security.HashRefreshToken(refresh))))
		}
		return nil, nil, err
	}
	return &AuthResult{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
		UserID:           claims.UserID,
	}, sess, nil
}

func (s *AuthService) rejectRefresh(ctx context.Context, err error, reason, userID, hashPrefix, ip, userAgent string) error {
	metrics.RefreshRejectedTotal.WithLabelValues(reason).Inc()
	s.log.Info("refresh rejected", zap.String("reason", reason), zap.String("user_id", userID),
		zap.String("session", hashPrefix), zap.String("ip", ip))
	meta := map[string]string{"reason": reason}
	if hashPrefix != "" {
		meta["session"] = hashPrefix
	}
	s.record(ctx, userID, auditdomain.ActionRefreshRejected, auditdomain.ResourceSession, telemetrydomain.EventRefreshRejected, ip, userAgent, meta)
	return err
}

// record writes the audit row and emits the session event. Both are best-effort.
func (s *AuthService) record(ctx context.Context, userID, action, resource, eventType, ip, userAgent string, meta map[string]string) {
	if s.audit != nil {
		s.audit.LogEvent(ctx, userID, action, resource, formatMetadata(meta))
	}
	telemetry.EmitAsync(s.events, s.log, &telemetrydomain.Event{
		ID:        uuid.New().String(),
		UserID:    userID,
		EventType: eventType,
		Source:    eventSource,
		IP:        ip,
		UserAgent: userAgent,
		Metadata:  meta,
		CreatedAt: s.now().UTC(),
	})
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, ErrTokenExpired):
		return metrics.ReasonExpired
	case errors.Is(err, ErrTokenMalformed):
		return metrics.ReasonMalformed
	default:
		return metrics.ReasonSignature
	}
}

func formatMetadata(meta map[string]string) string {
	if len(meta) == 0 {
		return ""
	}
	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + meta[k]
	}
	return strings.Join(parts, " ")
}

func validationError(msg string) error {
	return fmt.Errorf("%w: %s", ErrValidationFailed, msg)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateEmail(email string) error {
	if email == "" {
		return validationError("email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email[strings.LastIndex(email, "@"):], ".") {
		return validationError("invalid email format")
	}
	return nil
}

func orUnknown(userAgent string) string {
	if strings.TrimSpace(userAgent) == "" {
		return defaultUserAgent
	}
	return userAgent
}
