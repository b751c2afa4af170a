package credentials

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	// TokenPrefix identifies kennel access tokens
	TokenPrefix = "kennel_"
	// TokenLength is the number of random bytes of a token
	TokenLength = 32
	// ResetCodeLength is the number of random bytes of a password reset code
	ResetCodeLength = 18
)

// GenerateToken creates an access token and the hash stored for it.
// Format: kennel_<base64url(32 random bytes)>
func GenerateToken() (token, hash string, err error) {
	b, err := randomBytes(TokenLength)
	if err != nil {
		return "", "", err
	}
	token = TokenPrefix + base64.RawURLEncoding.EncodeToString(b)
	return token, HashToken(token), nil
}

// HashToken computes the SHA-256 hash of a token for lookup
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// ValidateTokenFormat checks that token looks like an access token
func ValidateTokenFormat(token string) error {
	if !strings.HasPrefix(token, TokenPrefix) {
		return fmt.Errorf("token must start with %q", TokenPrefix)
	}
	encoded := strings.TrimPrefix(token, TokenPrefix)
	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return fmt.Errorf("invalid token encoding: %w", err)
	}
	if len(raw) != TokenLength {
		return fmt.Errorf("token has %d bytes, want %d", len(raw), TokenLength)
	}
	return nil
}

// generateResetCode creates a one time password reset code and its hash
func generateResetCode() (code, hash string, err error) {
	b, err := randomBytes(ResetCodeLength)
	if err != nil {
		return "", "", err
	}
	code = base64.RawURLEncoding.EncodeToString(b)
	return code, HashToken(code), nil
}

func hashesEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
