package utils

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
)

// HashString returns the hex MD5 digest of input. It fingerprints documents
// and payloads, not secrets.
func HashString(input string) string {
	sum := md5.Sum([]byte(input))
	return hex.EncodeToString(sum[:])
}

// CacheKey joins non-empty parts with ':' under prefix.
func CacheKey(prefix string, parts ...string) string {
	var b strings.Builder
	b.WriteString(prefix)
	for _, p := range parts {
		if p == "" {
			continue
		}
		b.WriteByte(':')
		b.WriteString(p)
	}
	return b.String()
}
