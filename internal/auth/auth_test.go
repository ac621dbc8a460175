package auth

import (
	"context"
	"slices"
	"testing"
	"time"
)

func withSecret(t *testing.T, value string) {
	t.Helper()
	ResetSecretForTests()
	t.Setenv("SHELTERHUB_AUTH_SECRET", value)
	t.Cleanup(ResetSecretForTests)
}

func TestGenerateAndValidate(t *testing.T) {
	withSecret(t, "test-secret")

	token, err := GenerateToken("user-42", []string{"Admin", "volunteer", "admin"}, 30*time.Minute)
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
	if claims.Issuer != "shelterhub" {
		t.Fatalf("unexpected issuer: %s", claims.Issuer)
	}
	if !slices.Contains(claims.Roles, RoleAdmin) || !slices.Contains(claims.Roles, RoleVolunteer) {
		t.Fatalf("roles were not preserved: %v", claims.Roles)
	}
	if len(claims.Roles) != 2 {
		t.Fatalf("expected deduplicated roles, got %v", claims.Roles)
	}
	if claims.ID == "" {
		t.Fatalf("expected jti to be set")
	}
}

func TestGenerateTokenValidation(t *testing.T) {
	withSecret(t, "test-secret")

	if _, err := GenerateToken("", nil, time.Minute); err == nil {
		t.Fatalf("expected error for empty user id")
	}
	if _, err := GenerateToken("user-1", nil, 0); err == nil {
		t.Fatalf("expected error for non-positive ttl")
	}
}

func TestParseRejectsTamperedToken(t *testing.T) {
	withSecret(t, "test-secret")

	token, err := GenerateToken("user-1", []string{RoleVolunteer}, time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if _, err := ParseAndValidate(token + "x"); err == nil {
		t.Fatalf("expected tampered token to fail")
	}
	if _, err := ParseAndValidate(""); err == nil {
		t.Fatalf("expected empty token to fail")
	}
}

func TestParseRejectsForeignSecret(t *testing.T) {
	withSecret(t, "secret-a")
	token, err := GenerateToken("user-1", nil, time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	withSecret(t, "secret-b")
	if _, err := ParseAndValidate(token); err == nil {
		t.Fatalf("expected token signed with another secret to fail")
	}
}

func TestMissingSecret(t *testing.T) {
	withSecret(t, "")

	if _, err := GenerateToken("user-1", nil, time.Minute); err == nil {
		t.Fatalf("expected error when secret is unset")
	}
}

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = ContextWithUser(ctx, "user-7", []string{"Admin", "Admin", "volunteer"})
	id, ok := UserIDFromContext(ctx)
	if !ok || id != "user-7" {
		t.Fatalf("unexpected user id: %s, ok=%v", id, ok)
	}
	roles := RolesFromContext(ctx)
	if len(roles) != 2 {
		t.Fatalf("expected deduplicated roles, got %v", roles)
	}
	if !HasRole(ctx, RoleVolunteer) || !HasRole(ctx, RoleAdmin) {
		t.Fatalf("HasRole missing expected roles: %v", roles)
	}
	if HasRole(ctx, "operator") {
		t.Fatalf("unexpected role found")
	}
}

func TestPasswordHashRoundTrip(t *testing.T) {
	hash, err := HashPassword("hunter2!")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if err := VerifyPassword(hash, "hunter2!"); err != nil {
		t.Fatalf("VerifyPassword: %v", err)
	}
	if err := VerifyPassword(hash, "wrong"); err == nil {
		t.Fatalf("expected mismatch")
	}
	if _, err := HashPassword(""); err == nil {
		t.Fatalf("expected error for empty password")
	}
}
