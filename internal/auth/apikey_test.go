package auth

import (
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestHashAndVerifyAPIKey(t *testing.T) {
	t.Parallel()

	hash, err := hashAPIKeyWithCost("changeme123", bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash api key: %v", err)
	}
	if hash == "" {
		t.Fatalf("expected non-empty hash")
	}
	if !VerifyAPIKey(" changeme123 ", hash) {
		t.Fatalf("expected api key verification to succeed")
	}
	if VerifyAPIKey("wrong-key", hash) {
		t.Fatalf("did not expect wrong key to verify")
	}
	if VerifyAPIKey("", hash) {
		t.Fatalf("did not expect empty key to verify")
	}
}

func TestHashAPIKeyRequiresKey(t *testing.T) {
	t.Parallel()

	if _, err := HashAPIKey("  "); err == nil {
		t.Fatalf("expected empty key error")
	}
}
