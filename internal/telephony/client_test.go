package telephony

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, server *httptest.Server, secret string) *Client {
	t.Helper()
	cfg := Config{
		APIKey:        "test-key",
		ConnectionID:  "conn-1",
		WebhookSecret: secret,
		MaxSkew:       time.Hour,
	}
	if server != nil {
		cfg.BaseURL = server.URL
		cfg.HTTPClient = server.Client()
	}
	client, err := NewClient(cfg)
	require.NoError(t, err)
	return client
}

func TestDialPostsCallCommand(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/calls", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"call_control_id":"cc-123","call_leg_id":"leg-1","call_session_id":"sess-1"}}`))
	}))
	defer server.Close()

	client := newTestClient(t, server, "")
	resp, err := client.Dial(context.Background(), DialRequest{
		From:        "+61280001000",
		To:          "+61491570006",
		ClientState: "c3RhdGU=",
		TimeoutSecs: 30,
	})
	require.NoError(t, err)
	assert.Equal(t, "cc-123", resp.CallControlID)
	assert.Equal(t, "conn-1", captured["connection_id"])
	assert.Equal(t, "+61491570006", captured["to"])
	assert.Equal(t, "c3RhdGU=", captured["client_state"])
}

func TestDialRequiresNumbers(t *testing.T) {
	client := newTestClient(t, nil, "")
	_, err := client.Dial(context.Background(), DialRequest{From: "+61280001000"})
	assert.Error(t, err)
}

func TestGatherDTMFAction(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/calls/cc-9/actions/gather_using_speak", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"data":{"result":"ok"}}`))
	}))
	defer server.Close()

	client := newTestClient(t, server, "")
	err := client.GatherDTMF(context.Background(), "cc-9", "press one to accept", "12", 1, 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "12", captured["valid_digits"])
	assert.Equal(t, float64(1), captured["maximum_digits"])
	assert.Equal(t, float64(10000), captured["timeout_millis"])
}

func TestPostRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "gateway busy", http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"data":{}}`))
	}))
	defer server.Close()

	client := newTestClient(t, server, "")
	err := client.Hangup(context.Background(), "cc-1")
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestPostDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer server.Close()

	client := newTestClient(t, server, "")
	err := client.Speak(context.Background(), "cc-1", "hello")
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestVerifyWebhookSignature(t *testing.T) {
	payload := []byte(`{"data":{"event_type":"call.answered"}}`)
	secret := "topsecret"
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts + "." + string(payload)))
	signature := hex.EncodeToString(mac.Sum(nil))

	client := newTestClient(t, nil, secret)
	require.NoError(t, client.VerifyWebhookSignature(ts, signature, payload))

	assert.Error(t, client.VerifyWebhookSignature(ts, "deadbeef", payload), "wrong signature")
	assert.Error(t, client.VerifyWebhookSignature("100", signature, payload), "stale timestamp")
	assert.Error(t, client.VerifyWebhookSignature(ts, "", payload), "missing signature")

	// no secret configured: verification is a no-op
	open := newTestClient(t, nil, "")
	assert.NoError(t, open.VerifyWebhookSignature("", "", payload))
}
