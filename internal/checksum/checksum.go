package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Prefix marks every fingerprint produced by this package
const Prefix = "sha256:"

// SHA256Bytes computes the SHA256 hash of a byte slice and returns it as "sha256:hexstring"
func SHA256Bytes(data []byte) string {
	hash := sha256.Sum256(data)
	return Prefix + hex.EncodeToString(hash[:])
}

// Verify checks that data hashes to the expected fingerprint
// Expected format: "sha256:hexstring"
func Verify(data []byte, expectedSum string) error {
	if !strings.HasPrefix(expectedSum, Prefix) {
		return fmt.Errorf("invalid checksum format: must start with '%s'", Prefix)
	}
	if len(expectedSum) != 71 { // "sha256:" (7) + 64 hex chars
		return fmt.Errorf("invalid checksum format: expected 71 characters, got %d", len(expectedSum))
	}

	actualSum := SHA256Bytes(data)
	if actualSum != expectedSum {
		return fmt.Errorf("checksum mismatch: expected %s, got %s", expectedSum, actualSum)
	}

	return nil
}
