package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

// fingerprintVersion is mixed into every key so a change to the encoding
// invalidates old entries instead of misreading them.
const fingerprintVersion = "v1"

// Fingerprint derives the cache key for a request. Each part is length
// prefixed, so ("A","BC","") and ("AB","C","") hash differently.
func Fingerprint(code, identifier, hint string) string {
	h := sha256.New()
	for _, part := range []string{fingerprintVersion, code, identifier, hint} {
		h.Write([]byte(strconv.Itoa(len(part))))
		h.Write([]byte{':'})
		h.Write([]byte(part))
	}
	return hex.EncodeToString(h.Sum(nil))
}
