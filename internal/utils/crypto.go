package utils

import (
    "crypto/sha256"
    "encoding/hex"
)

// SHA256Hex digests s to lowercase hex. Refresh tokens are stored only as
// this digest; the raw token never touches the database.
func SHA256Hex(s string) string {
    h := sha256.Sum256([]byte(s))
    return hex.EncodeToString(h[:])
}
