package auth

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestMintAndVerify(t *testing.T) {
	secret := []byte("secret")
	token, err := Mint(secret, Claims{
		Room:   "session:abc123",
		UserID: "user-1",
		Name:   "Avery",
		Email:  "avery@example.com",
		Role:   "editor",
	}, time.Hour)
	if err != nil {
		t.Fatalf("Mint() error = %v", err)
	}
	claims, err := Verify(secret, token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if claims.Room != "session:abc123" || claims.UserID != "user-1" || claims.Role != "editor" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if claims.Email != "avery@example.com" {
		t.Fatalf("email not carried through: %+v", claims)
	}
	if claims.Exp <= claims.IssuedAt {
		t.Fatalf("expiry %d not after issue %d", claims.Exp, claims.IssuedAt)
	}
}

func TestMintRejectsMissingClaims(t *testing.T) {
	secret := []byte("secret")
	cases := []Claims{
		{UserID: "user-1", Role: "editor"},
		{Room: "global", Role: "editor"},
		{Room: "global", UserID: "user-1"},
	}
	for _, claims := range cases {
		if _, err := Mint(secret, claims, time.Hour); !errors.Is(err, ErrInvalidClaims) {
			t.Errorf("Mint(%+v) error = %v, want ErrInvalidClaims", claims, err)
		}
	}
}

func TestVerifyRejectsExpired(t *testing.T) {
	secret := []byte("secret")
	token, err := Mint(secret, Claims{Room: "global", UserID: "user-1", Role: "editor"}, -time.Minute)
	if err != nil {
		t.Fatalf("Mint() error = %v", err)
	}
	if _, err := Verify(secret, token); !errors.Is(err, ErrExpired) {
		t.Fatalf("Verify() error = %v, want ErrExpired", err)
	}
}

func TestVerifyRejectsTampering(t *testing.T) {
	secret := []byte("secret")
	token, err := Mint(secret, Claims{Room: "global", UserID: "user-1", Role: "viewer"}, time.Hour)
	if err != nil {
		t.Fatalf("Mint() error = %v", err)
	}

	// Flip a character in every position of the payload; each mutation must
	// break the signature, never produce a false accept.
	payload := token[:strings.Index(token, ".")]
	for i := 0; i < len(payload); i++ {
		altered := []byte(token)
		if altered[i] == 'A' {
			altered[i] = 'B'
		} else {
			altered[i] = 'A'
		}
		if string(altered) == token {
			continue
		}
		_, err := Verify(secret, string(altered))
		if err == nil {
			t.Fatalf("Verify() accepted token tampered at byte %d", i)
		}
		if !errors.Is(err, ErrBadSignature) && !errors.Is(err, ErrMalformed) {
			t.Fatalf("Verify() error = %v at byte %d, want signature or malformed failure", err, i)
		}
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	token, err := Mint([]byte("secret-a"), Claims{Room: "global", UserID: "user-1", Role: "editor"}, time.Hour)
	if err != nil {
		t.Fatalf("Mint() error = %v", err)
	}
	if _, err := Verify([]byte("secret-b"), token); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("Verify() error = %v, want ErrBadSignature", err)
	}
}

func TestVerifyRejectsMalformed(t *testing.T) {
	secret := []byte("secret")
	for _, token := range []string{"", "justonepart", "a.b.c", "!!!.sig"} {
		if _, err := Verify(secret, token); !errors.Is(err, ErrMalformed) && !errors.Is(err, ErrBadSignature) {
			t.Errorf("Verify(%q) error = %v, want malformed or signature failure", token, err)
		}
	}
}
