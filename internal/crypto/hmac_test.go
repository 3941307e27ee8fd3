package crypto

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSignIsDeterministic(t *testing.T) {
	a := Sign([]byte("k"), 1700000000, []byte("body"))
	b := Sign([]byte("k"), 1700000000, []byte("body"))
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
	assert.NotEqual(t, a, Sign([]byte("k"), 1700000001, []byte("body")))
	assert.NotEqual(t, a, Sign([]byte("k"), 1700000000, []byte("body!")))
}

func TestVerify(t *testing.T) {
	now := time.Unix(1700000000, 0)
	v := NewVerifier("k", time.Minute)
	v.now = func() time.Time { return now }

	ts := strconv.FormatInt(now.Unix(), 10)
	sig := Sign([]byte("k"), now.Unix(), []byte("body"))

	assert.NoError(t, v.Verify(ts, sig, []byte("body")))
	assert.NoError(t, v.Verify(ts, "sha256="+sig, []byte("body")))
	assert.ErrorIs(t, v.Verify("", sig, []byte("body")), ErrSignatureMissing)
	assert.ErrorIs(t, v.Verify(ts, sig, []byte("tampered")), ErrSignatureMismatch)
	assert.ErrorIs(t, v.Verify(ts, "not-hex", []byte("body")), ErrSignatureMismatch)
	assert.ErrorIs(t, v.Verify("abc", sig, []byte("body")), ErrSignatureStale)

	old := now.Add(-2 * time.Minute).Unix()
	assert.ErrorIs(t, v.Verify(strconv.FormatInt(old, 10), Sign([]byte("k"), old, []byte("body")), []byte("body")), ErrSignatureStale)

	ahead := now.Add(2 * time.Minute).Unix()
	assert.ErrorIs(t, v.Verify(strconv.FormatInt(ahead, 10), Sign([]byte("k"), ahead, []byte("body")), []byte("body")), ErrSignatureStale)
}

func TestVerifierStringRedacts(t *testing.T) {
	assert.NotContains(t, NewVerifier("topsecret", 0).String(), "topsecret")
}
