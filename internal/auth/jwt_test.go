package auth

import (
	"errors"
	"testing"

	"github.com/google/uuid"
)

func TestJWTRoundTrip(t *testing.T) {
	svc := NewJWTService("test-secret", 1)
	userID := uuid.New()

	token, err := svc.Generate(userID, "teacher@example.com", "teacher")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	claims, err := svc.Validate(token)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if claims.UserID != userID {
		t.Errorf("user ID: got %s, want %s", claims.UserID, userID)
	}
	if claims.Email != "teacher@example.com" {
		t.Errorf("email: got %s", claims.Email)
	}
	if claims.Role != "teacher" {
		t.Errorf("role: got %s", claims.Role)
	}
}

func TestJWTValidateRejects(t *testing.T) {
	svc := NewJWTService("test-secret", 1)
	other := NewJWTService("other-secret", 1)
	expired := NewJWTService("test-secret", -1)

	foreign, err := other.Generate(uuid.New(), "a@b.c", "student")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	stale, err := expired.Generate(uuid.New(), "a@b.c", "student")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not.a.jwt"},
		{"wrong secret", foreign},
		{"expired", stale},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Validate(tt.token); !errors.Is(err, ErrInvalidToken) {
				t.Errorf("got %v, want ErrInvalidToken", err)
			}
		})
	}
}
