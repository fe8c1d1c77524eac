package utils

import (
	"crypto/sha256"
	"encoding/hex"
)

// Fingerprint returns a short hex digest of s. Used to identify credentials
// in log output without ever logging the secret itself.
func Fingerprint(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:12]
}
