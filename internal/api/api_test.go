package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"outing-workers/internal/common/database"
	"outing-workers/internal/common/logger"
	"outing-workers/internal/common/observability"
	"outing-workers/internal/conversation"
	"outing-workers/internal/models"
)

var timings = observability.NewToolTimings(100)

func newServer(t *testing.T, store *conversation.Store, checks map[string]database.Pinger, opts Options) *httptest.Server {
	t.Helper()
	h := NewHandler(store, timings, checks, opts, logger.NewTestLogger(t))
	srv := httptest.NewServer(NewRouter(h))
	t.Cleanup(srv.Close)
	return srv
}

func getJSON(t *testing.T, url string, out interface{}) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

type sseEvent struct {
	Name string
	Data string
}

func readEvents(t *testing.T, body io.Reader) []sseEvent {
	t.Helper()
	var (
		events []sseEvent
		cur    sseEvent
	)
	sc := bufio.NewScanner(body)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			cur.Name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			cur.Data = strings.TrimPrefix(line, "data: ")
		case line == "" && cur.Name != "":
			events = append(events, cur)
			cur = sseEvent{}
		}
	}
	return events
}

// ==========================
// Health and readiness
// ==========================

func TestHealthAndMetrics(t *testing.T) {
	srv := newServer(t, conversation.NewStore(conversation.Options{}), nil, Options{})

	var body map[string]string
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/health", &body))
	assert.Equal(t, "ok", body["status"])

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	raw, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(raw), "go_goroutines")
}

func TestReady(t *testing.T) {
	ok := database.PingerFunc(func(context.Context) error { return nil })
	down := database.PingerFunc(func(context.Context) error { return errors.New("connection refused") })

	srv := newServer(t, conversation.NewStore(conversation.Options{}),
		map[string]database.Pinger{"elasticsearch": ok, "redis": ok}, Options{})
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/ready", nil))

	srv = newServer(t, conversation.NewStore(conversation.Options{}),
		map[string]database.Pinger{"elasticsearch": ok, "zeebe": down}, Options{})
	var body struct {
		Status   string   `json:"status"`
		Failures []string `json:"failures"`
	}
	assert.Equal(t, http.StatusServiceUnavailable, getJSON(t, srv.URL+"/ready", &body))
	assert.Equal(t, []string{"zeebe: connection refused"}, body.Failures)
}

// ==========================
// Conversation status
// ==========================

func TestConversationStatus(t *testing.T) {
	store := conversation.NewStore(conversation.Options{})
	srv := newServer(t, store, nil, Options{})

	assert.Equal(t, http.StatusNotFound, getJSON(t, srv.URL+"/conversations/c-1/status", nil))

	store.SetStatus("c-1", models.StatusAnalyzing)
	var body StatusResponse
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/conversations/c-1/status", &body))
	assert.Equal(t, "c-1", body.ConversationID)
	assert.Equal(t, models.StatusAnalyzing, body.Status)
	assert.False(t, body.UpdatedAt.IsZero())
}

func TestConversationTimings(t *testing.T) {
	srv := newServer(t, conversation.NewStore(conversation.Options{}), nil, Options{})
	timings.Add(observability.ToolTiming{ConversationID: "timed", Tool: "search_facilities", Duration: 30 * time.Millisecond})

	var body struct {
		ConversationID string                     `json:"conversationId"`
		Timings        []observability.ToolTiming `json:"timings"`
	}
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/conversations/timed/timings", &body))
	require.Len(t, body.Timings, 1)
	assert.Equal(t, "search_facilities", body.Timings[0].Tool)

	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/conversations/other/timings", &body))
	assert.Empty(t, body.Timings)
}

// ==========================
// SSE stream
// ==========================

func TestStreamStatus_PushesChangesUntilCleared(t *testing.T) {
	store := conversation.NewStore(conversation.Options{})
	store.SetStatus("c-1", models.StatusAnalyzing)
	srv := newServer(t, store, nil, Options{PollInterval: 10 * time.Millisecond, IdleTimeout: 5 * time.Second})

	go func() {
		time.Sleep(80 * time.Millisecond)
		store.SetStatus("c-1", models.StatusWebSearch)
		time.Sleep(80 * time.Millisecond)
		store.Teardown("c-1")
	}()

	resp, err := http.Get(srv.URL + "/chat/stream/c-1")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	events := readEvents(t, resp.Body)
	require.Len(t, events, 3)
	assert.Equal(t, EventStatus, events[0].Name)
	assert.Contains(t, events[0].Data, models.StatusAnalyzing)
	assert.Equal(t, EventStatus, events[1].Name)
	assert.Contains(t, events[1].Data, models.StatusWebSearch)
	assert.Equal(t, EventEnd, events[2].Name)
}

func TestStreamStatus_ClosesWhenIdle(t *testing.T) {
	store := conversation.NewStore(conversation.Options{})
	store.SetStatus("c-1", models.StatusBuildingMap)
	srv := newServer(t, store, nil, Options{PollInterval: 10 * time.Millisecond, IdleTimeout: 100 * time.Millisecond})

	resp, err := http.Get(srv.URL + "/chat/stream/c-1")
	require.NoError(t, err)
	defer resp.Body.Close()

	events := readEvents(t, resp.Body)
	require.Len(t, events, 2)
	assert.Equal(t, EventStatus, events[0].Name)
	assert.Equal(t, EventIdle, events[1].Name)
}

func TestStreamStatus_StopsOnClientDisconnect(t *testing.T) {
	store := conversation.NewStore(conversation.Options{})
	srv := newServer(t, store, nil, Options{PollInterval: 10 * time.Millisecond, IdleTimeout: time.Minute})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/chat/stream/ghost", nil)
	require.NoError(t, err)

	start := time.Now()
	resp, err := http.DefaultClient.Do(req)
	if err == nil {
		_, _ = io.ReadAll(resp.Body)
		resp.Body.Close()
	}
	assert.Less(t, time.Since(start), 5*time.Second)
}
