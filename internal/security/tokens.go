package security

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrTokenMalformed is returned when a token cannot be decoded as a JWT.
	ErrTokenMalformed = errors.New("token malformed")
	// ErrTokenSignatureInvalid is returned when the signature, algorithm, issuer, audience or token class does not match.
	ErrTokenSignatureInvalid = errors.New("token signature invalid")
	// ErrTokenExpired is returned when a correctly signed token is past its exp claim.
	ErrTokenExpired = errors.New("token expired")
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

// Claims is the identity embedded in both access and refresh tokens at mint time.
type Claims struct {
	UserID string
	Email  string
	Role   string
}

// tokenClaims is the JWT payload for both token classes.
type tokenClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
	Role  string `json:"role"`
	Type  string `json:"typ"`
}

// TokenCodec issues and verifies access and refresh JWTs. Each class has its own key and TTL,
// so a leaked access key cannot forge refresh tokens.
type TokenCodec struct {
	accessKey  *SigningKey
	refreshKey *SigningKey
	issuer     string
	audience   string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewTokenCodec returns a TokenCodec. Both keys are required and must be distinct; issuer and audience
// are set on every token and enforced on verification.
func NewTokenCodec(accessKey, refreshKey *SigningKey, issuer, audience string, accessTTL, refreshTTL time.Duration) (*TokenCodec, error) {
	if accessKey == nil || refreshKey == nil {
		return nil, fmt.Errorf("token codec: %w", ErrInvalidKey)
	}
	if issuer == "" || audience == "" {
		return nil, errors.New("token codec: issuer and audience are required")
	}
	if accessTTL <= 0 || refreshTTL <= 0 {
		return nil, errors.New("token codec: TTLs must be positive")
	}
	return &TokenCodec{
		accessKey:  accessKey,
		refreshKey: refreshKey,
		issuer:     issuer,
		audience:   audience,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}, nil
}

// AccessTTL returns the configured access token lifetime.
func (c *TokenCodec) AccessTTL() time.Duration { return c.accessTTL }

// RefreshTTL returns the configured refresh token lifetime.
func (c *TokenCodec) RefreshTTL() time.Duration { return c.refreshTTL }

// MintAccess issues a short-lived access token and returns it with its expiry.
func (c *TokenCodec) MintAccess(claims Claims) (string, time.Time, error) {
	return c.mint(c.accessKey, claims, tokenTypeAccess, c.accessTTL)
}

// MintRefresh issues a long-lived refresh token and returns it with its expiry.
// Every token carries a random jti, so two tokens minted for the same claims in the same second differ.
func (c *TokenCodec) MintRefresh(claims Claims) (string, time.Time, error) {
	return c.mint(c.refreshKey, claims, tokenTypeRefresh, c.refreshTTL)
}

func (c *TokenCodec) mint(key *SigningKey, claims Claims, typ string, ttl time.Duration) (string, time.Time, error) {
	if claims.UserID == "" {
		return "", time.Time{}, errors.New("token codec: subject is required")
	}
	jti, err := generateJTI()
	if err != nil {
		return "", time.Time{}, err
	}
	now := c.now().UTC().Truncate(time.Second)
	expiresAt := now.Add(ttl)
	tc := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   claims.UserID,
			Issuer:    c.issuer,
			Audience:  jwt.ClaimStrings{c.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Email: claims.Email,
		Role:  claims.Role,
		Type:  typ,
	}
	token, err := jwt.NewWithClaims(key.Method, tc).SignedString(key.signKey)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

// VerifyAccess validates signature, exp, iss and aud of an access token and returns its claims.
func (c *TokenCodec) VerifyAccess(token string) (*Claims, error) {
	return c.verify(c.accessKey, token, tokenTypeAccess)
}

// VerifyRefresh validates signature, exp, iss and aud of a refresh token and returns its claims.
func (c *TokenCodec) VerifyRefresh(token string) (*Claims, error) {
	return c.verify(c.refreshKey, token, tokenTypeRefresh)
}

func (c *TokenCodec) verify(key *SigningKey, token, typ string) (*Claims, error) {
	if token == "" {
		return nil, ErrTokenMalformed
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{key.Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithAudience(c.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	keyFunc := func(*jwt.Token) (interface{}, error) { return key.verifyKey, nil }
	var tc tokenClaims
	parsed, err := parser.ParseWithClaims(token, &tc, keyFunc)
	if err != nil {
		err = classify(err)
		if errors.Is(err, ErrTokenExpired) {
			// Only report expiry for tokens this codec signed.
			sigOnly := jwt.NewParser(jwt.WithValidMethods([]string{key.Alg()}), jwt.WithoutClaimsValidation())
			if _, serr := sigOnly.ParseWithClaims(token, &tokenClaims{}, keyFunc); serr != nil {
				return nil, ErrTokenSignatureInvalid
			}
		}
		return nil, err
	}
	if !parsed.Valid || tc.Type != typ || tc.Subject == "" {
		return nil, ErrTokenSignatureInvalid
	}
	return &Claims{UserID: tc.Subject, Email: tc.Email, Role: tc.Role}, nil
}

// classify maps jwt library errors onto the codec's three error kinds.
func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ErrTokenMalformed
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrTokenExpired
	default:
		return ErrTokenSignatureInvalid
	}
}

// ExpiryOf decodes the exp claim without verifying the signature. Only use it on tokens this codec just minted.
func (c *TokenCodec) ExpiryOf(token string) (time.Time, error) {
	var tc tokenClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &tc); err != nil {
		return time.Time{}, ErrTokenMalformed
	}
	if tc.ExpiresAt == nil {
		return time.Time{}, ErrTokenMalformed
	}
	return tc.ExpiresAt.Time.UTC(), nil
}

// IsAboutToExpire reports whether the token expires within threshold. Undecodable tokens report false.
func (c *TokenCodec) IsAboutToExpire(token string, threshold time.Duration) bool {
	exp, err := c.ExpiryOf(token)
	if err != nil {
		return false
	}
	return !exp.After(c.now().Add(threshold))
}

func generateJTI() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
