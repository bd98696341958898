package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Claims is the payload of a room capability token. A token grants the
// subject a single role inside a single room until Exp. Tokens are never
// persisted and never renewed; after expiry a fresh one must be requested.
type Claims struct {
	Room     string `json:"room"`
	UserID   string `json:"userId"`
	Name     string `json:"name,omitempty"`
	Email    string `json:"email,omitempty"`
	Role     string `json:"role"`
	IssuedAt int64  `json:"iat"`
	Exp      int64  `json:"exp"`
}

var (
	ErrInvalidClaims = errors.New("invalid claims")
	ErrMalformed     = errors.New("malformed token")
	ErrBadSignature  = errors.New("bad token signature")
	ErrExpired       = errors.New("expired token")
)

// Mint signs claims with the shared secret and an absolute expiry computed
// from ttl. Room, UserID and Role are required.
func Mint(secret []byte, claims Claims, ttl time.Duration) (string, error) {
	if claims.Room == "" || claims.UserID == "" || claims.Role == "" {
		return "", ErrInvalidClaims
	}
	now := time.Now()
	claims.IssuedAt = now.Unix()
	claims.Exp = now.Add(ttl).Unix()

	payloadBytes, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("marshal claims: %w", err)
	}
	payload := base64.RawURLEncoding.EncodeToString(payloadBytes)
	return payload + "." + sign(secret, payload), nil
}

// Verify checks the signature and expiry of a minted token and returns its
// claims. The signature comparison is constant-time.
func Verify(secret []byte, token string) (Claims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 2 {
		return Claims{}, ErrMalformed
	}
	payload := parts[0]
	signature := parts[1]

	expected := sign(secret, payload)
	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return Claims{}, ErrBadSignature
	}

	decoded, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil {
		return Claims{}, ErrMalformed
	}

	var claims Claims
	if err := json.Unmarshal(decoded, &claims); err != nil {
		return Claims{}, ErrMalformed
	}
	if claims.Room == "" || claims.UserID == "" || claims.Role == "" || claims.Exp == 0 {
		return Claims{}, ErrMalformed
	}
	if time.Now().Unix() >= claims.Exp {
		return Claims{}, ErrExpired
	}
	return claims, nil
}

func sign(secret []byte, payload string) string {
	sum := hmac.New(sha256.New, secret)
	_, _ = sum.Write([]byte(payload))
	return base64.RawURLEncoding.EncodeToString(sum.Sum(nil))
}
