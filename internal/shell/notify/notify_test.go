package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Event Tests
// =============================================================================

func TestNewEvent(t *testing.T) {
	e := NewEvent(EventWaveStarted, "run-1", "plan-1").
		WithWave(2, []string{"menu", "payment"}).
		WithMessage("deploying")

	assert.Equal(t, EventWaveStarted, e.Type)
	assert.Equal(t, "run-1", e.RolloutID)
	assert.Equal(t, "plan-1", e.PlanID)
	assert.Equal(t, 2, e.Wave)
	assert.Equal(t, []string{"menu", "payment"}, e.Services)
	assert.Equal(t, "deploying", e.Message)
	assert.False(t, e.Timestamp.IsZero())
}

func TestEvent_WithWaveCopiesServices(t *testing.T) {
	services := []string{"auth"}
	e := NewEvent(EventWaveStarted, "r", "p").WithWave(1, services)
	services[0] = "changed"
	assert.Equal(t, []string{"auth"}, e.Services)
}

// =============================================================================
// Log Notifier Tests
// =============================================================================

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	n := NewLogNotifier(logger)
	err := n.Notify(context.Background(), NewEvent(EventWaveFailed, "run-1", "plan-1").WithWave(1, []string{"auth"}))
	require.NoError(t, err)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "WARN", line["level"])
	assert.Equal(t, "notifier", line["component"])
	assert.Equal(t, "wave.failed", line["type"])
	assert.Equal(t, "run-1", line["rollout_id"])
}

// =============================================================================
// Multi Notifier Tests
// =============================================================================

type recordingNotifier struct {
	events []Event
	err    error
}

func (r *recordingNotifier) Notify(ctx context.Context, event Event) error {
	r.events = append(r.events, event)
	return r.err
}

func TestMulti_DeliversToAllAndJoinsErrors(t *testing.T) {
	errBoom := errors.New("boom")
	a := &recordingNotifier{err: errBoom}
	b := &recordingNotifier{}

	err := Multi{a, b}.Notify(context.Background(), NewEvent(EventRolloutStarted, "r", "p"))
	assert.ErrorIs(t, err, errBoom)
	assert.Len(t, a.events, 1)
	assert.Len(t, b.events, 1)
}

func TestNoOpNotifier(t *testing.T) {
	assert.NoError(t, NoOpNotifier{}.Notify(context.Background(), Event{}))
}

// =============================================================================
// Webhook Notifier Tests
// =============================================================================

func TestWebhookNotifier_Success(t *testing.T) {
	var received Event
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	n := NewWebhookNotifier(WebhookConfig{URL: server.URL, Token: "secret"})
	err := n.Notify(context.Background(), NewEvent(EventRolloutCompleted, "run-1", "plan-1"))
	require.NoError(t, err)

	assert.Equal(t, EventRolloutCompleted, received.Type)
	assert.Equal(t, "run-1", received.RolloutID)
}

func TestWebhookNotifier_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	n := NewWebhookNotifier(WebhookConfig{URL: server.URL, RetryAttempts: 3, RetryDelay: time.Millisecond})
	require.NoError(t, n.Notify(context.Background(), NewEvent(EventWaveStarted, "r", "p")))
	assert.Equal(t, int32(3), calls.Load())
}

func TestWebhookNotifier_ClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte("bad event"))
	}))
	defer server.Close()

	n := NewWebhookNotifier(WebhookConfig{URL: server.URL, RetryAttempts: 3, RetryDelay: time.Millisecond})
	err := n.Notify(context.Background(), NewEvent(EventWaveStarted, "r", "p"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
	assert.Contains(t, err.Error(), "bad event")
	assert.Equal(t, int32(1), calls.Load())
}

func TestWebhookNotifier_GivesUpAfterRetries(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	n := NewWebhookNotifier(WebhookConfig{URL: server.URL, RetryAttempts: 2, RetryDelay: time.Millisecond})
	err := n.Notify(context.Background(), NewEvent(EventWaveStarted, "r", "p"))
	require.Error(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestDefaultWebhookConfig(t *testing.T) {
	cfg := DefaultWebhookConfig()
	assert.Equal(t, 10*time.Second, cfg.Timeout)
	assert.Equal(t, 3, cfg.RetryAttempts)
}
