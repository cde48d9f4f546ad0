package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// VerdictKey addresses the cached safety scores for an image by content digest.
func VerdictKey(digest string) string {
	return fmt.Sprintf("safety:scores:%s", digest)
}

// Digest returns the hex sha256 of data, used as a content address.
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// RateLimitKey returns the counter key for a rate-limited client.
func RateLimitKey(client string) string {
	return fmt.Sprintf("ratelimit:%s", client)
}
