package util

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"
)

// ShareTokenBytes is the entropy of a public share token. Hex encoding
// doubles it to 64 characters.
const ShareTokenBytes = 32

var shareTokenPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

func NewToken(size int) (string, error) {
	bytes := make([]byte, size)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return hex.EncodeToString(bytes), nil
}

func NewShareToken() (string, error) {
	return NewToken(ShareTokenBytes)
}

// ValidShareToken reports whether token has the shape NewShareToken produces.
func ValidShareToken(token string) bool {
	return shareTokenPattern.MatchString(token)
}
