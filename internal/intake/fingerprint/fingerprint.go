// Package fingerprint derives the deduplication key of an intake record.
package fingerprint

import (
	"crypto/md5"
	"encoding/hex"
)

// Generate hashes the identity fields, concatenated in fixed order with no
// separator, into a 32-character lowercase hex digest. dateOfBirth must be the
// submitted YYYY-MM-DD text.
func Generate(givenName, familyName, dateOfBirth, originCode string) string {
	sum := md5.Sum([]byte(givenName + familyName + dateOfBirth + originCode))
	return hex.EncodeToString(sum[:])
}

// Valid reports whether s has the shape of a generated fingerprint.
func Valid(s string) bool {
	if len(s) != 2*md5.Size {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
