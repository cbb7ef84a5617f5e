package auth

import (
	"testing"
	"time"

	"github.com/voxgate/voxgate/pkg/models"
)

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("hunter2")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !VerifyPassword(hash, "hunter2") {
		t.Error("correct password rejected")
	}
	if VerifyPassword(hash, "hunter3") {
		t.Error("wrong password accepted")
	}
}

func TestHashPasswordSalted(t *testing.T) {
	a, _ := HashPassword("same")
	b, _ := HashPassword("same")
	if a == b {
		t.Error("two hashes of the same password should differ by salt")
	}
}

func TestVerifyPasswordMalformed(t *testing.T) {
	for _, stored := range []string{"", "nodollar", "zz$zz", "abcd$nothex"} {
		if VerifyPassword(stored, "x") {
			t.Errorf("malformed hash %q accepted", stored)
		}
	}
}

func TestHashPasswordEmpty(t *testing.T) {
	if _, err := HashPassword(""); err == nil {
		t.Fatal("expected error for empty password")
	}
}

func TestTokenRoundTrip(t *testing.T) {
	svc := NewService(Config{JWTSecret: "test-secret", TokenExpiry: time.Hour})
	user := &models.User{ID: "u-1", Username: "alice", Email: "alice@example.com"}

	token, err := svc.GenerateToken(user)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	got, err := svc.ValidateToken(token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if got.ID != user.ID || got.Username != user.Username || got.Email != user.Email {
		t.Errorf("round trip mismatch: %+v", got)
	}
}

func TestValidateRejectsGarbage(t *testing.T) {
	svc := NewService(Config{JWTSecret: "test-secret", TokenExpiry: time.Hour})
	if _, err := svc.ValidateToken("not.a.token"); err == nil {
		t.Fatal("expected error for garbage token")
	}
}

func TestValidateRejectsExpired(t *testing.T) {
	svc := NewService(Config{JWTSecret: "test-secret", TokenExpiry: -time.Minute})
	token, err := svc.GenerateToken(&models.User{ID: "u-1"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := svc.ValidateToken(token); err == nil {
		t.Fatal("expected error for expired token")
	}
}

func TestValidateRejectsWrongSecret(t *testing.T) {
	issuer := NewService(Config{JWTSecret: "secret-a", TokenExpiry: time.Hour})
	verifier := NewService(Config{JWTSecret: "secret-b", TokenExpiry: time.Hour})

	token, _ := issuer.GenerateToken(&models.User{ID: "u-1"})
	if _, err := verifier.ValidateToken(token); err == nil {
		t.Fatal("expected error for token signed with another secret")
	}
}

func TestDisabledService(t *testing.T) {
	svc := NewService(Config{})
	if svc.Enabled() {
		t.Error("service without secret should be disabled")
	}
	if _, err := svc.GenerateToken(&models.User{ID: "u-1"}); err != ErrAuthDisabled {
		t.Errorf("expected ErrAuthDisabled, got %v", err)
	}
}
