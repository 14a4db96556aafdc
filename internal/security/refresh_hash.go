package security

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// hashPrefixLen is how much of a credential hash is safe to show in logs and listings.
const hashPrefixLen = 12

// HashRefreshToken returns the hex SHA-256 of a raw refresh token. This is the only form in which
// refresh tokens are stored or looked up.
func HashRefreshToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// RefreshTokenHashEqual compares the hash of providedToken with storedHash in constant time.
// An empty token never matches.
func RefreshTokenHashEqual(providedToken, storedHash string) bool {
	if providedToken == "" {
		return false
	}
	providedHash := HashRefreshToken(providedToken)
	return subtle.ConstantTimeCompare([]byte(providedHash), []byte(storedHash)) == 1
}

// HashPrefix shortens a credential hash for logs.
func HashPrefix(hash string) string {
	if len(hash) <= hashPrefixLen {
		return hash
	}
	return hash[:hashPrefixLen]
}
