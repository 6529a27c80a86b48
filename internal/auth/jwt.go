package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Claims represents the claims in a device bearer token. The device firmware
// is provisioned with a token signed for its owner's account email.
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// ErrNoEmail is returned when a valid token carries no email claim.
var ErrNoEmail = errors.New("auth: token has no email claim")

// Verifier validates bearer credentials presented on the connection handshake.
type Verifier struct {
	secret []byte
}

// NewVerifier creates a Verifier around the shared signing secret.
func NewVerifier(secret []byte) *Verifier {
	return &Verifier{secret: secret}
}

// Verify parses and validates tokenString and returns the subject email.
func (v *Verifier) Verify(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("auth: unexpected signing method %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("auth: parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return "", jwt.ErrTokenInvalidClaims
	}
	if claims.Email == "" {
		return "", ErrNoEmail
	}
	return claims.Email, nil
}
