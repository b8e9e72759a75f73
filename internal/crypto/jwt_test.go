package crypto

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func signTestToken(t *testing.T, secret []byte, aud []string) string {
	t.Helper()
	claims := jwt.MapClaims{
		"aud": aud,
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := token.SignedString(secret)
	if err != nil {
		t.Fatalf("signing test token: %v", err)
	}
	return s
}

func TestAudienceVerifierAcceptsMatchingAudience(t *testing.T) {
	secret := []byte("jwt-test-secret")
	v := NewAudienceVerifier(secret, []string{"mcpgate"})

	tok := signTestToken(t, secret, []string{"mcpgate", "other"})
	if _, err := v.Verify(tok); err != nil {
		t.Fatalf("expected token to verify, got %v", err)
	}
}

func TestAudienceVerifierRejectsMismatchedAudience(t *testing.T) {
	secret := []byte("jwt-test-secret")
	v := NewAudienceVerifier(secret, []string{"mcpgate"})

	tok := signTestToken(t, secret, []string{"somewhere-else"})
	if _, err := v.Verify(tok); err != ErrAudienceMismatch {
		t.Fatalf("expected ErrAudienceMismatch, got %v", err)
	}
}

func TestAudienceVerifierRejectsWrongSecret(t *testing.T) {
	v := NewAudienceVerifier([]byte("correct-secret"), []string{"mcpgate"})
	tok := signTestToken(t, []byte("wrong-secret"), []string{"mcpgate"})

	if _, err := v.Verify(tok); err == nil {
		t.Fatal("expected verification failure for wrong secret")
	}
}
