package identity

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrMissingSub   = errors.New("token has no subject")
)

// JWTValidator resolves a bearer token to a user id. Tokens are HMAC-signed
// by the identity service with a shared key.
type JWTValidator struct {
	key []byte
}

// NewJWTValidator constructs a validator over the shared signing key.
func NewJWTValidator(signingKey string) *JWTValidator {
	return &JWTValidator{key: []byte(signingKey)}
}

// ValidateToken parses and verifies the token and returns the user id from
// the sub claim.
func (v *JWTValidator) ValidateToken(token string) (uuid.UUID, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return v.key, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	subject, err := parsed.Claims.GetSubject()
	if err != nil || subject == "" {
		return uuid.Nil, ErrMissingSub
	}
	userID, err := uuid.Parse(subject)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: subject is not a user id", ErrInvalidToken)
	}
	return userID, nil
}
