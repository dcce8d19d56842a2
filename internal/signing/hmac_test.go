package signing

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSignAndVerify(t *testing.T) {
	payload := []byte(`{"to":"a@b.com","body":"x"}`)

	sig, ts := Sign("secret", "msg_1", payload)
	assert.True(t, strings.HasPrefix(sig, "v1="))
	assert.True(t, Verify("secret", "msg_1", payload, ts, sig))
}

func TestVerify_RejectsTampering(t *testing.T) {
	payload := []byte(`{"to":"a@b.com","body":"x"}`)
	sig, ts := Sign("secret", "msg_1", payload)

	assert.False(t, Verify("secret", "msg_1", []byte(`{"to":"a@b.com","body":"y"}`), ts, sig))
	assert.False(t, Verify("wrong", "msg_1", payload, ts, sig))
	assert.False(t, Verify("secret", "msg_1", payload, ts+1, sig))
	assert.False(t, Verify("secret", "msg_2", payload, ts, sig),
		"a signature must not be replayable against another message")
}
