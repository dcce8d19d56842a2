package dedup

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/shorelinehq/courier/internal/models"
)

// Fingerprint hashes the (channel, recipient, body) triple into a stable
// hex digest. The NUL separator keeps distinct triples from colliding on
// concatenation boundaries, and the digest is stable across restarts.
func Fingerprint(channel models.Channel, recipient, body string) string {
	h := sha256.New()
	h.Write([]byte(channel))
	h.Write([]byte{0})
	h.Write([]byte(recipient))
	h.Write([]byte{0})
	h.Write([]byte(body))
	return hex.EncodeToString(h.Sum(nil))
}
