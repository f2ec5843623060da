// Package checksum computes the content digests used as catalog versions
// and HTTP entity tags.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// ETag formats a digest as a strong entity tag.
func ETag(sum string) string {
	return `"` + sum + `"`
}

// Matches reports whether an If-Match style value names sum. Quotes and a
// weak prefix are ignored, and "*" matches any digest.
func Matches(ifMatch, sum string) bool {
	v := strings.TrimSpace(ifMatch)
	if v == "*" {
		return sum != ""
	}
	v = strings.TrimPrefix(v, "W/")
	return strings.Trim(v, `"`) == sum
}
