// Package idgen mints the random identifiers warden hands out, such as
// forensic records (fr_), session archives (arc_), webhook subscriptions
// (wh_), and notifications (ntf_).
package idgen

import (
	"crypto/rand"
	"encoding/hex"
)

// WithPrefix returns prefix followed by 24 hex characters (12 random
// bytes). Collisions are not checked; the space is large enough that
// callers treat results as unique.
func WithPrefix(prefix string) string {
	b := make([]byte, 12)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	return prefix + hex.EncodeToString(b)
}
