package auth

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashToken derives the storage key for a login token. Only the hash is
// ever persisted.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
