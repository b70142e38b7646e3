package internal

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashBindingValue returns the hex SHA-256 of v. It is used wherever a client
// supplied value is turned into a stable identifier.
func HashBindingValue(v string) string {
	sum := sha256.Sum256([]byte(v))
	return hex.EncodeToString(sum[:])
}
