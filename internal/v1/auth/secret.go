package auth

import (
	"crypto/subtle"
	"errors"
)

// ErrTokenMismatch is returned when the presented token does not equal the
// configured shared secret.
var ErrTokenMismatch = errors.New("token mismatch")

// SecretValidator checks a shared bearer token presented on the connect URL.
// A zero-value validator (no secret configured) accepts every connection.
type SecretValidator struct {
	secret string
}

// NewSecretValidator returns a validator for the given shared secret.
func NewSecretValidator(secret string) *SecretValidator {
	return &SecretValidator{secret: secret}
}

// Required reports whether a token must be presented at all.
func (v *SecretValidator) Required() bool {
	return v.secret != ""
}

// ValidateToken compares the presented token against the shared secret in
// constant time.
func (v *SecretValidator) ValidateToken(token string) error {
	if v.secret == "" {
		return nil
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(v.secret)) != 1 {
		return ErrTokenMismatch
	}
	return nil
}
