package token

import (
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

func TestIssueAndVerify(t *testing.T) {
	m, err := NewManager("test-secret", Options{})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	tok, err := m.Issue("admin-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	sub, err := m.Verify(tok)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if sub != "admin-1" {
		t.Fatalf("expected subject admin-1, got %q", sub)
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	m1, _ := NewManager("secret-one", Options{})
	m2, _ := NewManager("secret-two", Options{})
	tok, err := m1.Issue("admin-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := m2.Verify(tok); err == nil {
		t.Fatalf("expected verification to fail with wrong secret")
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	m, _ := NewManager("test-secret", Options{TTL: time.Minute, Leeway: time.Millisecond})
	now := time.Now().UTC().Add(-time.Hour)
	claims := jwt.RegisteredClaims{
		Subject:   "admin-1",
		Issuer:    defaultIssuer,
		Audience:  jwt.ClaimStrings{defaultAudience},
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := m.Verify(tok); err == nil {
		t.Fatalf("expected expired token to be rejected")
	}
}

func TestVerifyRejectsWrongSigningMethod(t *testing.T) {
	m, _ := NewManager("test-secret", Options{})
	claims := jwt.RegisteredClaims{
		Subject:   "admin-1",
		Issuer:    defaultIssuer,
		Audience:  jwt.ClaimStrings{defaultAudience},
		ExpiresAt: jwt.NewNumericDate(time.Now().UTC().Add(time.Hour)),
	}
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}
	if _, err := m.Verify(unsigned); err == nil {
		t.Fatalf("expected alg=none token to be rejected")
	}
}

func TestNewManagerRequiresSecret(t *testing.T) {
	if _, err := NewManager("  ", Options{}); err == nil {
		t.Fatalf("expected empty secret to fail")
	}
}
