package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var testSecret = []byte("test-signing-secret")

func signToken(t *testing.T, claims jwt.Claims, method jwt.SigningMethod, key interface{}) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func TestVerifier_Verify(t *testing.T) {
	v := NewVerifier(testSecret)

	token := signToken(t, &Claims{
		Email: "parent@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}, jwt.SigningMethodHS256, testSecret)

	email, err := v.Verify(token)
	if err != nil {
		t.Fatalf("Verify() error: %v", err)
	}
	if email != "parent@example.com" {
		t.Errorf("Verify() = %q, want %q", email, "parent@example.com")
	}
}

func TestVerifier_RejectsWrongSecret(t *testing.T) {
	v := NewVerifier(testSecret)

	token := signToken(t, &Claims{
		Email: "parent@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}, jwt.SigningMethodHS256, []byte("some-other-secret"))

	if _, err := v.Verify(token); err == nil {
		t.Error("Verify() accepted a token signed with the wrong secret")
	}
}

func TestVerifier_RejectsExpiredToken(t *testing.T) {
	v := NewVerifier(testSecret)

	token := signToken(t, &Claims{
		Email: "parent@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	}, jwt.SigningMethodHS256, testSecret)

	if _, err := v.Verify(token); err == nil {
		t.Error("Verify() accepted an expired token")
	}
}

func TestVerifier_RejectsMissingEmail(t *testing.T) {
	v := NewVerifier(testSecret)

	token := signToken(t, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}, jwt.SigningMethodHS256, testSecret)

	_, err := v.Verify(token)
	if !errors.Is(err, ErrNoEmail) {
		t.Errorf("Verify() error = %v, want ErrNoEmail", err)
	}
}

func TestVerifier_RejectsMalformedToken(t *testing.T) {
	v := NewVerifier(testSecret)

	for _, token := range []string{"", "not-a-jwt", strings.Repeat("x.", 40)} {
		if _, err := v.Verify(token); err == nil {
			t.Errorf("Verify(%q) accepted a malformed token", token)
		}
	}
}

func TestVerifier_RejectsUnsignedToken(t *testing.T) {
	v := NewVerifier(testSecret)

	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{
		Email: "parent@example.com",
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	if _, err := v.Verify(token); err == nil {
		t.Error(`Verify() accepted an alg="none" token`)
	}
}
