package auth

import (
	"testing"
	"time"
)

func TestIssueAndVerify(t *testing.T) {
	tm, err := NewTokenManager("test-secret", "HS256", 30*time.Minute)
	if err != nil {
		t.Fatalf("NewTokenManager: %v", err)
	}

	token, err := tm.Issue("alice@example.com")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	subject, err := tm.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if subject != "alice@example.com" {
		t.Errorf("subject = %q, want alice@example.com", subject)
	}
}

func TestVerifyExpiredToken(t *testing.T) {
	tm, err := NewTokenManager("test-secret", "HS256", -time.Minute)
	if err != nil {
		t.Fatalf("NewTokenManager: %v", err)
	}

	token, err := tm.Issue("alice@example.com")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	if _, err := tm.Verify(token); err == nil {
		t.Error("expected error for expired token")
	}
}

func TestVerifyWrongKey(t *testing.T) {
	issuer, _ := NewTokenManager("secret-a", "HS256", 30*time.Minute)
	verifier, _ := NewTokenManager("secret-b", "HS256", 30*time.Minute)

	token, err := issuer.Issue("alice@example.com")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	if _, err := verifier.Verify(token); err == nil {
		t.Error("expected error for token signed with a different key")
	}
}

func TestVerifyMalformedToken(t *testing.T) {
	tm, _ := NewTokenManager("test-secret", "HS256", 30*time.Minute)

	for _, token := range []string{"", "not-a-token", "a.b.c"} {
		if _, err := tm.Verify(token); err == nil {
			t.Errorf("expected error for malformed token %q", token)
		}
	}
}

func TestNewTokenManagerUnknownAlgorithm(t *testing.T) {
	if _, err := NewTokenManager("test-secret", "XX999", time.Minute); err == nil {
		t.Error("expected error for unknown algorithm")
	}
}
