package auth

import (
	"context"
	"testing"
	"time"
)

func TestGenerateAndValidateToken(t *testing.T) {
	t.Setenv("CONSELHO_AUTH_SECRET", "test-secret")
	ResetSecretForTests()
	t.Cleanup(ResetSecretForTests)

	token, err := GenerateToken("user-42", "Supervisor", 30*time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	claims, err := ParseAndValidate(token)
	if err != nil {
		t.Fatalf("ParseAndValidate: %v", err)
	}
	if claims.Subject != "user-42" {
		t.Fatalf("unexpected subject: %s", claims.Subject)
	}
	if claims.Role != "supervisor" {
		t.Fatalf("role was not normalized: %s", claims.Role)
	}
	if claims.Issuer != "conselho" {
		t.Fatalf("unexpected issuer: %s", claims.Issuer)
	}
}

func TestParseRejectsExpiredToken(t *testing.T) {
	t.Setenv("CONSELHO_AUTH_SECRET", "test-secret")
	ResetSecretForTests()
	t.Cleanup(ResetSecretForTests)

	if _, err := GenerateToken("user-1", "agent", 0); err == nil {
		t.Fatal("expected error for non-positive ttl")
	}
	if _, err := ParseAndValidate("not-a-token"); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = ContextWithActor(ctx, "user-7", "Admin")

	id, ok := UserIDFromContext(ctx)
	if !ok || id != "user-7" {
		t.Fatalf("unexpected user id: %s, ok=%v", id, ok)
	}
	role, ok := RoleFromContext(ctx)
	if !ok || role != "admin" {
		t.Fatalf("unexpected role: %s, ok=%v", role, ok)
	}

	if _, ok := UserIDFromContext(context.Background()); ok {
		t.Fatal("expected no user id in empty context")
	}
}

func TestPasswordRoundTrip(t *testing.T) {
	hash, err := HashPassword("s3cret-value")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if err := VerifyPassword(hash, "s3cret-value"); err != nil {
		t.Fatalf("VerifyPassword: %v", err)
	}
	if err := VerifyPassword(hash, "wrong"); err == nil {
		t.Fatal("expected mismatch error")
	}
}

func TestAuthenticate(t *testing.T) {
	store := NewInMemoryUsers()
	svc, err := NewService(store)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	ctx := context.Background()

	u, err := svc.Register(ctx, "Agent@Example.com", "hunter2-hunter2", "AGENT")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if u.Role != "agent" || u.Email != "agent@example.com" {
		t.Fatalf("account was not normalized: %+v", u)
	}

	got, err := svc.Authenticate(ctx, "agent@example.com", "hunter2-hunter2")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if got.ID != u.ID {
		t.Fatalf("unexpected account: %s", got.ID)
	}

	if _, err := svc.Authenticate(ctx, "agent@example.com", "wrong"); err != ErrInvalidCredentials {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := svc.Authenticate(ctx, "nobody@example.com", "hunter2-hunter2"); err != ErrInvalidCredentials {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}
