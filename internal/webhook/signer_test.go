package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSigner_S1_HMACRoundTrip is boundary scenario S1 from spec §8.
func TestSigner_S1_HMACRoundTrip(t *testing.T) {
	body, err := Canonicalize(map[string]interface{}{"a": 1, "b": 2})
	require.NoError(t, err)
	assert.Equal(t, `{"a":1,"b":2}`, string(body))

	timestamp := "1700000000"
	secret := "k"
	signer := NewSigner(secret, DefaultTolerance)

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp + "." + string(body)))
	want := "sha256=" + hex.EncodeToString(mac.Sum(nil))

	assert.Equal(t, want, signer.Sign(body, timestamp))

	now := time.Unix(1700000060, 0).UTC() // age 60s, within tolerance
	assert.NoError(t, signer.Verify(body, want, timestamp, now))

	tooOld := time.Unix(1700001000, 0).UTC() // age 1000s, outside tolerance
	err = signer.Verify(body, want, timestamp, tooOld)
	assert.Error(t, err)
}

func TestSigner_Verify_RejectsTamperedPayload(t *testing.T) {
	signer := NewSigner("k", DefaultTolerance)
	body, _ := Canonicalize(map[string]interface{}{"a": 1})
	now := time.Now()
	sig, ts := signer.SignNow(body, now)

	tampered := []byte(`{"a":2}`)
	err := signer.Verify(tampered, sig, ts, now)
	assert.Error(t, err)
}

func TestSigner_Verify_RejectsMissingHeaders(t *testing.T) {
	signer := NewSigner("k", DefaultTolerance)
	body := []byte(`{"a":1}`)

	assert.Error(t, signer.Verify(body, "", "1700000000", time.Now()))
	assert.Error(t, signer.Verify(body, "sha256=abc", "", time.Now()))
}

func TestSigner_Verify_RejectsEmptyBody(t *testing.T) {
	signer := NewSigner("k", DefaultTolerance)
	assert.Error(t, signer.Verify(nil, "sha256=abc", "1700000000", time.Now()))
}

func TestSigner_Verify_RejectsNonIntegerTimestamp(t *testing.T) {
	signer := NewSigner("k", DefaultTolerance)
	body := []byte(`{"a":1}`)
	assert.Error(t, signer.Verify(body, "sha256=abc", "not-a-number", time.Now()))
}

func TestSigner_Verify_RejectsFutureTimestampBeyondTolerance(t *testing.T) {
	signer := NewSigner("k", 300*time.Second)
	body := []byte(`{"a":1}`)
	now := time.Unix(1700000000, 0)
	future := "1700001000" // 1000s ahead
	sig := signer.Sign(body, future)
	assert.Error(t, signer.Verify(body, sig, future, now))
}

// TestSigner_SignVerify_RoundTripPreservesBody is property 2/3 from spec §8.
func TestSigner_SignVerify_RoundTripPreservesBody(t *testing.T) {
	payloads := []map[string]interface{}{
		{"event_id": "evt_1", "amount": 29.99, "status": "success"},
		{"nested": map[string]interface{}{"x": 1, "y": []interface{}{1, 2, 3}}},
		{},
	}
	signer := NewSigner("super-secret", DefaultTolerance)
	now := time.Now()

	for _, p := range payloads {
		body, err := Canonicalize(p)
		require.NoError(t, err)
		sig, ts := signer.SignNow(body, now)
		assert.NoError(t, signer.Verify(body, sig, ts, now))
	}
}

func TestCanonicalize_SortsKeysAndStripsWhitespace(t *testing.T) {
	out, err := Canonicalize(map[string]interface{}{"z": 1, "a": 2, "m": 3})
	require.NoError(t, err)
	assert.Equal(t, `{"a":2,"m":3,"z":1}`, string(out))
}
