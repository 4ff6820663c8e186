// ABOUTME: Canonical content hash for nested parameter maps.
// ABOUTME: Flattens, sorts keys, JSON-encodes values, and digests with SHA-256.
package maputil

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// Hash returns the lowercase hex-encoded SHA-256 digest of a nested map.
// The map is flattened first, so a nested map and its flattened form hash
// identically, and map iteration order never affects the result.
func Hash(m map[string]any) (string, error) {
	flat := Flatten(m)
	keys := make([]string, 0, len(flat))
	for k := range flat {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha256.New()
	for _, k := range keys {
		v, err := json.Marshal(flat[k])
		if err != nil {
			return "", fmt.Errorf("hash value for %q: %w", k, err)
		}
		fmt.Fprintf(h, "%s=%s\n", k, v)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
