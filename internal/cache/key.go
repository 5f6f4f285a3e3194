package cache

import (
	"encoding/json"
	"fmt"
	"strings"
)

// KeySeparator joins the segments of a generated key. End-user ids and
// endpoint paths never contain it, so the owner segment can be recovered.
const KeySeparator = "|"

// GenerateKey builds a deterministic key for a read of endpoint with params on
// behalf of endUserID. Parameter order does not matter and nil values are
// dropped, so {a:1,b:nil} and {a:1} share a key.
func GenerateKey(endpoint string, params map[string]any, endUserID string) (string, error) {
	clean := make(map[string]any, len(params))
	for k, v := range params {
		if v == nil {
			continue
		}
		clean[k] = v
	}
	// encoding/json writes map keys in sorted order, nested maps included.
	b, err := json.Marshal(clean)
	if err != nil {
		return "", fmt.Errorf("cache key for %s: %w", endpoint, err)
	}
	return endUserID + KeySeparator + endpoint + KeySeparator + string(b), nil
}

// ownerOf returns the end-user segment of a generated key, or "" for keys
// that were not produced by GenerateKey.
func ownerOf(key string) string {
	i := strings.Index(key, KeySeparator)
	if i <= 0 {
		return ""
	}
	return key[:i]
}
