package auth

import (
	"testing"
	"time"

	"github.com/erazemk/zavod/internal/model"
)

var testUser = &model.User{ID: 1, InstituteID: 7, Username: "admin", Role: model.RoleAdmin}

func TestGenerateAndValidateToken(t *testing.T) {
	secret := "test-secret-key"

	token, err := GenerateToken(secret, testUser, 0)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if token == "" {
		t.Fatal("expected non-empty token")
	}

	claims, err := ValidateToken(secret, token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}

	actor := claims.Actor()
	want := model.Actor{UserID: 1, InstituteID: 7, Username: "admin", Role: model.RoleAdmin}
	if actor != want {
		t.Errorf("expected actor %+v, got %+v", want, actor)
	}
	if claims.ID == "" {
		t.Error("expected a token ID")
	}
}

func TestTokensHaveDistinctIDs(t *testing.T) {
	a, _ := GenerateToken("s", testUser, 0)
	b, _ := GenerateToken("s", testUser, 0)
	ca, _ := ValidateToken("s", a)
	cb, _ := ValidateToken("s", b)
	if ca.ID == cb.ID {
		t.Error("expected distinct token IDs")
	}
}

func TestValidateTokenWrongSecret(t *testing.T) {
	token, _ := GenerateToken("secret1", testUser, 0)

	if _, err := ValidateToken("secret2", token); err == nil {
		t.Error("expected error for wrong secret")
	}
}

func TestValidateTokenInvalid(t *testing.T) {
	if _, err := ValidateToken("secret", "not-a-token"); err == nil {
		t.Error("expected error for invalid token")
	}
}

func TestValidateTokenExpired(t *testing.T) {
	token, _ := GenerateToken("s", testUser, time.Nanosecond)
	time.Sleep(1100 * time.Millisecond)

	if _, err := ValidateToken("s", token); err == nil {
		t.Error("expected error for expired token")
	}
}

func TestTokenExpiry(t *testing.T) {
	secret := "test"
	token, _ := GenerateToken(secret, testUser, 0)
	claims, _ := ValidateToken(secret, token)

	diff := time.Now().Add(TokenExpiry).Sub(claims.ExpiresAt.Time)
	if diff < -5*time.Second || diff > 5*time.Second {
		t.Errorf("token expiry too far from expected: diff=%v", diff)
	}

	token, _ = GenerateToken(secret, testUser, time.Hour)
	claims, _ = ValidateToken(secret, token)
	diff = time.Now().Add(time.Hour).Sub(claims.ExpiresAt.Time)
	if diff < -5*time.Second || diff > 5*time.Second {
		t.Errorf("custom ttl not applied: diff=%v", diff)
	}
}
