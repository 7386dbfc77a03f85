// Package pkce generates Proof Key for Code Exchange values (RFC 7636).
package pkce

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
)

// verifierBytes is the amount of entropy behind each verifier.
const verifierBytes = 32

// Method is the only challenge method produced by this package.
const Method = "S256"

// Pair is a code verifier and its derived challenge.
type Pair struct {
	Verifier  string
	Challenge string
}

// Generate returns a new verifier/challenge pair from crypto/rand.
func Generate() (Pair, error) {
	return generate(rand.Reader)
}

func generate(r io.Reader) (Pair, error) {
	buf := make([]byte, verifierBytes)
	if _, err := io.ReadFull(r, buf); err != nil {
		return Pair{}, fmt.Errorf("failed to read random bytes: %w", err)
	}
	verifier := base64.RawURLEncoding.EncodeToString(buf)
	return Pair{Verifier: verifier, Challenge: ChallengeFor(verifier)}, nil
}

// ChallengeFor derives the S256 challenge of a verifier.
func ChallengeFor(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
