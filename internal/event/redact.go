package event

import (
	"crypto/sha256"
	"encoding/hex"
)

// RawFields are detail keys that may hold raw log or process output.
// Redaction replaces each with "<key>_hash".
var RawFields = []string{DetailRawLine, DetailStderr}

// HashHex returns the hex SHA-256 digest of s.
func HashHex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// Redact replaces raw text fields in details with their content hash, in
// place. Callers must pass a map they own. Non-string values are dropped.
func Redact(details map[string]any) {
	for _, key := range RawFields {
		v, ok := details[key]
		if !ok {
			continue
		}
		delete(details, key)
		if s, ok := v.(string); ok {
			details[key+"_hash"] = HashHex(s)
		}
	}
}
