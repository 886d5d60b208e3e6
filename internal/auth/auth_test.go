package auth

import (
	"testing"
	"time"
)

func TestSessionTokenRoundTrip(t *testing.T) {
	keys, err := NewKeys("test-secret")
	if err != nil {
		t.Fatalf("NewKeys: %v", err)
	}

	token, err := keys.GenerateToken(42, "buyer@example.test", RoleBuyer)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	claims, err := keys.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.Email != "buyer@example.test" {
		t.Errorf("Email = %q", claims.Email)
	}
	if claims.Role != RoleBuyer {
		t.Errorf("Role = %q", claims.Role)
	}
	id, err := claims.UserID()
	if err != nil {
		t.Fatalf("UserID: %v", err)
	}
	if id != 42 {
		t.Errorf("UserID = %d, want 42", id)
	}
}

func TestSessionTokenWrongKeyRejected(t *testing.T) {
	keys, _ := NewKeys("secret-one")
	other, _ := NewKeys("secret-two")

	token, err := keys.GenerateToken(1, "a@example.test", RoleBuyer)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if _, err := other.ValidateToken(token); err == nil {
		t.Fatal("token signed with another key validated")
	}
}

func TestDownloadTokenRoundTrip(t *testing.T) {
	keys, _ := NewKeys("test-secret")

	token, err := keys.GenerateDownloadToken(7, 42, time.Hour)
	if err != nil {
		t.Fatalf("GenerateDownloadToken: %v", err)
	}

	claims, err := keys.ValidateDownloadToken(token)
	if err != nil {
		t.Fatalf("ValidateDownloadToken: %v", err)
	}
	if claims.AssetID != 7 || claims.UserID != 42 {
		t.Errorf("claims = {asset %d, user %d}, want {7, 42}", claims.AssetID, claims.UserID)
	}
}

func TestDownloadTokenExpiryEnforced(t *testing.T) {
	keys, _ := NewKeys("test-secret")

	token, err := keys.GenerateDownloadToken(7, 42, -time.Minute)
	if err != nil {
		t.Fatalf("GenerateDownloadToken: %v", err)
	}
	if _, err := keys.ValidateDownloadToken(token); err == nil {
		t.Fatal("expired download token validated")
	}
}

func TestDownloadTokenNotASessionToken(t *testing.T) {
	keys, _ := NewKeys("test-secret")

	session, err := keys.GenerateToken(42, "a@example.test", RoleBuyer)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	// A session token parses as a download token structurally but carries
	// zero ids, which resolvers treat as malformed.
	claims, err := keys.ValidateDownloadToken(session)
	if err == nil && (claims.AssetID != 0 || claims.UserID != 0) {
		t.Errorf("session token yielded download ids {%d, %d}", claims.AssetID, claims.UserID)
	}
}
