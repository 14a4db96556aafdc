package security

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidKey is returned when PEM or key type is invalid.
var ErrInvalidKey = errors.New("invalid key")

// minSecretLen is the shortest HMAC secret accepted for signing.
const minSecretLen = 32

// SigningKey is one credential class's key material: the JWT method plus the keys used to sign and verify.
type SigningKey struct {
	Method    jwt.SigningMethod
	signKey   interface{}
	verifyKey interface{}
}

// ParseSigningKey turns a configured secret into a SigningKey.
// s may be inline PEM, a path to a PEM file (RS256 or ES256), or a raw HMAC secret (HS256, at least 32 bytes).
func ParseSigningKey(s string) (*SigningKey, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ErrInvalidKey
	}
	if looksLikePEM(s) {
		signer, err := ParsePrivateKey(s)
		if err != nil {
			return nil, err
		}
		return NewAsymmetricKey(signer)
	}
	if len(s) < minSecretLen {
		return nil, ErrInvalidKey
	}
	return &SigningKey{Method: jwt.SigningMethodHS256, signKey: []byte(s), verifyKey: []byte(s)}, nil
}

// NewAsymmetricKey returns a SigningKey for an RSA (RS256) or ECDSA P-256 (ES256) private key.
// The verification key is the signer's public half.
func NewAsymmetricKey(signer crypto.Signer) (*SigningKey, error) {
	if signer == nil {
		return nil, ErrInvalidKey
	}
	pub := signer.Public()
	switch p := pub.(type) {
	case *rsa.PublicKey:
		return &SigningKey{Method: jwt.SigningMethodRS256, signKey: signer, verifyKey: p}, nil
	case *ecdsa.PublicKey:
		if p.Curve != elliptic.P256() {
			return nil, ErrInvalidKey
		}
		return &SigningKey{Method: jwt.SigningMethodES256, signKey: signer, verifyKey: p}, nil
	default:
		return nil, ErrInvalidKey
	}
}

// Alg returns the JWT alg header value for the key.
func (k *SigningKey) Alg() string {
	if k == nil || k.Method == nil {
		return ""
	}
	return k.Method.Alg()
}

// looksLikePEM reports whether s is inline PEM or an existing file path.
func looksLikePEM(s string) bool {
	if strings.HasPrefix(s, "-----BEGIN") {
		return true
	}
	if !strings.HasSuffix(s, ".pem") && !strings.HasSuffix(s, ".key") {
		return false
	}
	_, err := os.Stat(s)
	return err == nil
}

// LoadPEM reads content from path if s does not look like inline PEM; otherwise returns s as bytes.
func LoadPEM(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ErrInvalidKey
	}
	if strings.HasPrefix(s, "-----BEGIN") {
		// Env vars often carry PEM on one line with literal \n.
		return []byte(strings.ReplaceAll(s, `\n`, "\n")), nil
	}
	return os.ReadFile(s)
}

// ParsePrivateKey parses a PEM-encoded private key (RSA or ECDSA). s may be inline PEM or a file path.
func ParsePrivateKey(s string) (crypto.Signer, error) {
	pemBytes, err := LoadPEM(s)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, ErrInvalidKey
	}
	switch block.Type {
	case "RSA PRIVATE KEY":
		return x509.ParsePKCS1PrivateKey(block.Bytes)
	case "PRIVATE KEY":
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		signer, ok := key.(crypto.Signer)
		if !ok {
			return nil, ErrInvalidKey
		}
		return signer, nil
	case "EC PRIVATE KEY":
		return x509.ParseECPrivateKey(block.Bytes)
	default:
		return nil, ErrInvalidKey
	}
}
