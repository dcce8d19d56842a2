package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Sign produces the provider-request signature over the timestamp, message
// id and payload. Binding the message id lets providers reject replays of
// one message's signature against another.
func Sign(secret, messageID string, payload []byte) (signature string, timestamp int64) {
	timestamp = time.Now().Unix()
	toSign := fmt.Sprintf("%d.%s.%s", timestamp, messageID, string(payload))

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(toSign))
	sig := hex.EncodeToString(mac.Sum(nil))

	return fmt.Sprintf("v1=%s", sig), timestamp
}

// Verify checks a signature produced by Sign in constant time.
func Verify(secret, messageID string, payload []byte, timestamp int64, signature string) bool {
	toSign := fmt.Sprintf("%d.%s.%s", timestamp, messageID, string(payload))

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(toSign))
	expected := fmt.Sprintf("v1=%s", hex.EncodeToString(mac.Sum(nil)))

	return hmac.Equal([]byte(expected), []byte(signature))
}
