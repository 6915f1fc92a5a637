package security_test

import (
	"testing"
	"time"

	"github.com/Rrens/chat-gateway/internal/security"
)

func TestJWTManager_GenerateAndValidate(t *testing.T) {
	manager := security.NewJWTManager("test-secret-key-with-32-chars!!", 15*time.Minute)

	token, expiresAt, err := manager.GenerateConnectionToken("desktop")
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}

	if token == "" {
		t.Error("token is empty")
	}

	if time.Until(expiresAt) <= 14*time.Minute {
		t.Errorf("unexpected expiry: %v", expiresAt)
	}

	claims, err := manager.ValidateConnectionToken(token)
	if err != nil {
		t.Fatalf("failed to validate token: %v", err)
	}

	if claims.ClientID != "desktop" {
		t.Errorf("client ID mismatch: got %v, want %v", claims.ClientID, "desktop")
	}
}

func TestJWTManager_InvalidToken(t *testing.T) {
	manager := security.NewJWTManager("test-secret-key-with-32-chars!!", 15*time.Minute)

	_, err := manager.ValidateConnectionToken("invalid-token")
	if err == nil {
		t.Error("expected error for invalid token")
	}
}

func TestJWTManager_WrongSecret(t *testing.T) {
	manager1 := security.NewJWTManager("secret-one-with-32-characters!!", 15*time.Minute)
	manager2 := security.NewJWTManager("secret-two-with-32-characters!!", 15*time.Minute)

	token, _, err := manager1.GenerateConnectionToken("desktop")
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}

	_, err = manager2.ValidateConnectionToken(token)
	if err == nil {
		t.Error("expected error when validating with wrong secret")
	}
}

func TestJWTManager_Expired(t *testing.T) {
	manager := security.NewJWTManager("test-secret-key-with-32-chars!!", -time.Minute)

	token, _, err := manager.GenerateConnectionToken("desktop")
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}

	if _, err := manager.ValidateConnectionToken(token); err == nil {
		t.Error("expected error for expired token")
	}
}
