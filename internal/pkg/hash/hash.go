// Package hash provides hashing utilities.
package hash

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// SHA256Short returns the first n hex characters of the SHA256 of data.
func SHA256Short(data []byte, n int) string {
	sum := sha256.Sum256(data)
	h := hex.EncodeToString(sum[:])
	if n > len(h) {
		return h
	}
	return h[:n]
}

// NormalizeQuery lowercases a query and collapses whitespace.
func NormalizeQuery(query string) string {
	return strings.ToLower(strings.Join(strings.Fields(query), " "))
}

// QueryKey returns a deterministic cache key for a search query and the
// number of results requested. Queries that differ only in case or spacing
// share a key.
func QueryKey(query string, count int) string {
	data := NormalizeQuery(query) + "|" + strconv.Itoa(count)
	return SHA256Short([]byte(data), 32)
}
