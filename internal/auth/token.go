package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
)

// MakeSessionToken returns a fresh opaque token and the hash under which it
// is stored.
func MakeSessionToken() (token, hash string) {
	rnd := make([]byte, 32)

	// rand.Read() never returns an error.
	_, _ = rand.Read(rnd)
	token = hex.EncodeToString(rnd)

	return token, HashToken(token)
}

// HashToken is the storage key for a session token. Only hashes reach the
// session stores, so a leaked table does not leak live sessions.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
