package auth

import (
	"testing"

	"github.com/google/uuid"

	"reelsmith/internal/models"
)

func TestPasswordHashRoundTrip(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple")
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}
	if hash == "correct horse battery staple" {
		t.Fatal("hash equals plaintext")
	}

	if !CheckPassword(hash, "correct horse battery staple") {
		t.Error("correct password rejected")
	}
	if CheckPassword(hash, "wrong password") {
		t.Error("wrong password accepted")
	}
}

func TestTokenSignVerify(t *testing.T) {
	tm := NewTokenManager("test-secret")
	user := &models.User{
		ID:   uuid.New(),
		Role: models.RoleAdmin,
	}

	token, err := tm.Sign(user)
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}

	claims, err := tm.Verify(token)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if claims.UserID != user.ID {
		t.Errorf("user id = %s, want %s", claims.UserID, user.ID)
	}
	if claims.Role != models.RoleAdmin {
		t.Errorf("role = %s, want admin", claims.Role)
	}
}

func TestTokenWrongSecretRejected(t *testing.T) {
	user := &models.User{ID: uuid.New(), Role: models.RoleUser}

	token, err := NewTokenManager("secret-a").Sign(user)
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}

	if _, err := NewTokenManager("secret-b").Verify(token); err == nil {
		t.Fatal("token signed with a different secret was accepted")
	}
}

func TestTokenGarbageRejected(t *testing.T) {
	tm := NewTokenManager("test-secret")

	for _, tok := range []string{"", "not.a.token", "aaaa.bbbb.cccc"} {
		if _, err := tm.Verify(tok); err == nil {
			t.Errorf("garbage token %q was accepted", tok)
		}
	}
}
