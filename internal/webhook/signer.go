package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	perrors "github.com/kevin07696/billing-pipeline/pkg/errors"
)

const (
	signatureHeaderPrefix = "sha256="
	// DefaultTolerance is the ±300s window from spec §4.7/§6.
	DefaultTolerance = 300 * time.Second
)

// Signer implements the HMAC signer/verifier (C7). Secrets are per
// direction and held out of band — one Signer instance per direction.
type Signer struct {
	secret    []byte
	tolerance time.Duration
}

// NewSigner builds a Signer for one direction's secret. A zero tolerance
// falls back to DefaultTolerance.
func NewSigner(secret string, tolerance time.Duration) *Signer {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &Signer{secret: []byte(secret), tolerance: tolerance}
}

// signingInput builds "<timestamp>.<body>" per §4.7.
func signingInput(timestamp string, body []byte) []byte {
	return []byte(timestamp + "." + string(body))
}

// Sign computes sha256=<hex> over "<timestamp>.<body>".
func (s *Signer) Sign(body []byte, timestamp string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write(signingInput(timestamp, body))
	return signatureHeaderPrefix + hex.EncodeToString(mac.Sum(nil))
}

// SignNow signs body with the current unix timestamp and returns both
// headers ready to attach to an outbound request.
func (s *Signer) SignNow(body []byte, now time.Time) (signatureHeader, timestampHeader string) {
	ts := strconv.FormatInt(now.Unix(), 10)
	return s.Sign(body, ts), ts
}

// Verify implements the consumer side of §4.7: both headers required,
// timestamp parses as an integer, age within tolerance, signature compares
// in constant time. Returns an *errors.AuthError for every rejection
// reason so callers surface a uniform 400/401 at their boundary.
func (s *Signer) Verify(body []byte, signatureHeader, timestampHeader string, now time.Time) error {
	if len(body) == 0 {
		return perrors.NewAuthError("empty body")
	}
	if signatureHeader == "" || timestampHeader == "" {
		return perrors.NewAuthError("missing signature or timestamp header")
	}

	ts, err := strconv.ParseInt(timestampHeader, 10, 64)
	if err != nil {
		return perrors.NewAuthError("timestamp header is not an integer")
	}

	age := now.Unix() - ts
	if age < 0 {
		age = -age
	}
	if time.Duration(age)*time.Second > s.tolerance {
		return perrors.NewAuthError(fmt.Sprintf("timestamp outside tolerance window (age=%ds)", age))
	}

	expected := s.Sign(body, timestampHeader)
	if !strings.HasPrefix(signatureHeader, signatureHeaderPrefix) {
		return perrors.NewAuthError("malformed signature header")
	}
	if subtle.ConstantTimeCompare([]byte(expected), []byte(signatureHeader)) != 1 {
		return perrors.NewAuthError("signature mismatch")
	}
	return nil
}
