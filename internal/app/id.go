package app

import (
	"crypto/rand"
	"encoding/base32"
	"strings"
)

var idEncoding = base32.HexEncoding.WithPadding(base32.NoPadding)

// newID returns a random identifier: 15 random bytes as 24 base32
// characters, lowercased so the ids read cleanly in logs and URLs.
func newID(prefix string) string {
	buf := make([]byte, 15)
	_, _ = rand.Read(buf)
	id := strings.ToLower(idEncoding.EncodeToString(buf))
	if prefix == "" {
		return id
	}
	return prefix + "_" + id
}
