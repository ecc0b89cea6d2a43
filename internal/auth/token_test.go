package auth

import (
	"strings"
	"testing"
)

func TestHMACVerifier_IssueThenVerify(t *testing.T) {
	v := NewHMACVerifier("test-secret")

	token := v.Issue("ext-123")
	externalID, err := v.Verify(token)
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if externalID != "ext-123" {
		t.Errorf("externalID = %q, want %q", externalID, "ext-123")
	}
}

func TestHMACVerifier_Verify_TamperedID(t *testing.T) {
	v := NewHMACVerifier("test-secret")

	token := v.Issue("ext-123")
	tampered := strings.Replace(token, "ext-123", "ext-456", 1)

	if _, err := v.Verify(tampered); err == nil {
		t.Error("expected error for tampered token, got nil")
	}
}

func TestHMACVerifier_Verify_WrongSecret(t *testing.T) {
	issuer := NewHMACVerifier("secret-a")
	verifier := NewHMACVerifier("secret-b")

	token := issuer.Issue("ext-123")
	if _, err := verifier.Verify(token); err == nil {
		t.Error("expected error for token signed with different secret, got nil")
	}
}

func TestHMACVerifier_Verify_Malformed(t *testing.T) {
	v := NewHMACVerifier("test-secret")

	for _, token := range []string{"", "no-separator", ".sigonly", "idonly."} {
		if _, err := v.Verify(token); err == nil {
			t.Errorf("expected error for malformed token %q, got nil", token)
		}
	}
}

// 外部IDにドットが含まれてもラウンドトリップできることを検証
func TestHMACVerifier_ExternalIDWithDot(t *testing.T) {
	v := NewHMACVerifier("test-secret")

	token := v.Issue("user.with.dots")
	externalID, err := v.Verify(token)
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if externalID != "user.with.dots" {
		t.Errorf("externalID = %q, want %q", externalID, "user.with.dots")
	}
}
