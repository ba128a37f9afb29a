package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestJoinCodeRoundTrip(t *testing.T) {
	m := NewJoinCodeManager("test-secret")

	code, err := m.Generate("room-42")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	roomID, err := m.Validate(code)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if roomID != "room-42" {
		t.Errorf("roomID = %q, want room-42", roomID)
	}
}

func TestJoinCodeWrongSecret(t *testing.T) {
	code, err := NewJoinCodeManager("secret-a").Generate("room-1")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if _, err := NewJoinCodeManager("secret-b").Validate(code); err != ErrInvalidJoinCode {
		t.Errorf("Validate with wrong secret: err = %v, want ErrInvalidJoinCode", err)
	}
}

func TestJoinCodeExpired(t *testing.T) {
	m := NewJoinCodeManager("test-secret")
	claims := &JoinClaims{
		RoomID: "room-1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	}
	code, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := m.Validate(code); err != ErrInvalidJoinCode {
		t.Errorf("Validate expired: err = %v, want ErrInvalidJoinCode", err)
	}
}

func TestJoinCodeGarbage(t *testing.T) {
	m := NewJoinCodeManager("test-secret")
	for _, code := range []string{"", "not-a-token", "a.b.c"} {
		if _, err := m.Validate(code); err != ErrInvalidJoinCode {
			t.Errorf("Validate(%q): err = %v, want ErrInvalidJoinCode", code, err)
		}
	}
}
