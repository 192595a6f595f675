package webhook

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_Post_SucceedsOnFirstAttempt(t *testing.T) {
	var gotSig, gotTS string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get("X-Webhook-Signature")
		gotTS = r.Header.Get("X-Webhook-Timestamp")
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "evt_1", r.Header.Get("X-Webhook-Event-ID"))
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, `{"status":"success"}`, string(body))
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"received":true}`))
	}))
	defer srv.Close()

	signer := NewSigner("secret", DefaultTolerance)
	client := NewClient(srv.URL, signer, nil, "billing-pipeline", "0.1.0", 3, 2*time.Second, nil)

	result, err := client.Post(t.Context(), "/v1/webhooks/payment", map[string]interface{}{"status": "success"}, "evt_1")
	require.NoError(t, err)
	assert.Equal(t, true, result["received"])
	assert.NotEmpty(t, gotSig)
	assert.NotEmpty(t, gotTS)
}

func TestClient_Post_DoesNotRetryOn4xx(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	signer := NewSigner("secret", DefaultTolerance)
	client := NewClient(srv.URL, signer, nil, "app", "1.0", 3, 2*time.Second, nil)

	_, err := client.Post(t.Context(), "/endpoint", map[string]interface{}{"a": 1}, "")
	assert.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestClient_Post_RetriesOn5xxThenSucceeds(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	signer := NewSigner("secret", DefaultTolerance)
	client := NewClient(srv.URL, signer, nil, "app", "1.0", 3, 2*time.Second, nil)

	_, err := client.Post(t.Context(), "/endpoint", map[string]interface{}{"a": 1}, "")
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestClient_Post_PropagatesLastErrorAfterExhaustingRetries(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	signer := NewSigner("secret", DefaultTolerance)
	client := NewClient(srv.URL, signer, nil, "app", "1.0", 1, 2*time.Second, nil)

	_, err := client.Post(t.Context(), "/endpoint", map[string]interface{}{"a": 1}, "")
	assert.Error(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls)) // 1 initial + 1 retry
}

type fakeTokenIssuer struct{ token string }

func (f *fakeTokenIssuer) Mint(now time.Time) (string, error) { return f.token, nil }

func TestClient_Post_AttachesServiceBearerToken(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	signer := NewSigner("secret", DefaultTolerance)
	client := NewClient(srv.URL, signer, &fakeTokenIssuer{token: "tok123"}, "app", "1.0", 0, 2*time.Second, nil)

	_, err := client.Post(t.Context(), "/endpoint", map[string]interface{}{"a": 1}, "")
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok123", gotAuth)
}
