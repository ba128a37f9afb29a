package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidJoinCode = errors.New("invalid or expired join code")

// JoinClaims is the payload of a signed join code. A join code grants one
// seat in a specific room; the server that signed it is the only authority
// that can mint one.
type JoinClaims struct {
	RoomID string `json:"room_id"`
	jwt.RegisteredClaims
}

// JoinCodeManager mints and validates HMAC-signed join codes.
type JoinCodeManager struct {
	secret []byte
	expiry time.Duration
}

// NewJoinCodeManager creates a manager with the given secret.
func NewJoinCodeManager(secret string) *JoinCodeManager {
	return &JoinCodeManager{
		secret: []byte(secret),
		expiry: 24 * time.Hour,
	}
}

// Generate creates a join code for a room.
func (m *JoinCodeManager) Generate(roomID string) (string, error) {
	claims := &JoinClaims{
		RoomID: roomID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(m.expiry)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Subject:   roomID,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// Validate parses a join code and returns the room it grants entry to.
func (m *JoinCodeManager) Validate(code string) (string, error) {
	token, err := jwt.ParseWithClaims(code, &JoinClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidJoinCode
		}
		return m.secret, nil
	})
	if err != nil {
		return "", ErrInvalidJoinCode
	}
	claims, ok := token.Claims.(*JoinClaims)
	if !ok || !token.Valid || claims.RoomID == "" {
		return "", ErrInvalidJoinCode
	}
	return claims.RoomID, nil
}
