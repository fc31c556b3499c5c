// internal/workers/outing/resolve-place-to-map/handler_test.go
package resolveplace

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "outing-workers/internal/common/errors"
	"outing-workers/internal/conversation"
	"outing-workers/internal/geocode"
	"outing-workers/internal/models"
	"outing-workers/internal/outing"
)

// ==========================
// Test Logger Implementation
// ==========================

type TestLogger struct {
	t      *testing.T
	fields map[string]interface{}
}

func NewTestLogger(t *testing.T) *TestLogger {
	return &TestLogger{t: t, fields: make(map[string]interface{})}
}

func (l *TestLogger) Debug(msg string, fields map[string]interface{}) {
	l.t.Logf("DEBUG: %s %v", msg, l.mergeFields(fields))
}

func (l *TestLogger) Info(msg string, fields map[string]interface{}) {
	l.t.Logf("INFO: %s %v", msg, l.mergeFields(fields))
}

func (l *TestLogger) Warn(msg string, fields map[string]interface{}) {
	l.t.Logf("WARN: %s %v", msg, l.mergeFields(fields))
}

func (l *TestLogger) Error(msg string, fields map[string]interface{}) {
	l.t.Logf("ERROR: %s %v", msg, l.mergeFields(fields))
}

func (l *TestLogger) With(fields map[string]interface{}) Logger {
	return &TestLogger{t: l.t, fields: l.mergeFields(fields)}
}

func (l *TestLogger) mergeFields(fields map[string]interface{}) map[string]interface{} {
	allFields := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		allFields[k] = v
	}
	for k, v := range fields {
		allFields[k] = v
	}
	return allFields
}

// ==========================
// Fake Kakao keyword API
// ==========================

// kakaoServer answers only the queries listed in places.
func kakaoServer(t *testing.T, places map[string]map[string]string) (*httptest.Server, *atomic.Int32) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "KakaoAK test-key", r.Header.Get("Authorization"))

		docs := []map[string]string{}
		if doc, ok := places[r.URL.Query().Get("query")]; ok {
			docs = append(docs, doc)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"documents": docs})
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func newFixture(t *testing.T, baseURL string) (*Handler, *conversation.Store) {
	log := NewTestLogger(t)
	store := conversation.NewStore(conversation.Options{})
	geo := geocode.NewGeocoder(geocode.Config{
		BaseURL:     baseURL,
		APIKey:      "test-key",
		Timeout:     2 * time.Second,
		MaxAttempts: 3,
	}, nil, log)
	svc := outing.NewService(outing.Deps{Store: store, Places: geo}, 3, log)
	return NewHandler(LoadConfig(), svc, nil, log), store
}

// ==========================
// execute
// ==========================

func TestExecute_ResolvesAfterTruncation(t *testing.T) {
	srv, calls := kakaoServer(t, map[string]map[string]string{
		"서울숲 가족마당": {
			"place_name":        "서울숲 가족마당",
			"road_address_name": "서울 성동구 뚝섬로 273",
			"x":                 "127.0374",
			"y":                 "37.5444",
			"place_url":         "http://place.map.kakao.com/1",
		},
	})
	h, store := newFixture(t, srv.URL)

	out := h.execute(context.Background(), &Input{PlaceText: "서울숲 가족마당 주차장", ConversationID: "c-1"})

	assert.True(t, out.Success)
	assert.Equal(t, 2, out.Attempts)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, "서울 성동구 뚝섬로 273", out.Address)
	assert.InDelta(t, 37.5444, out.Lat, 1e-9)
	assert.Equal(t, geocode.MapLink("서울숲 가족마당", 37.5444, 127.0374), out.MapLink)
	assert.Equal(t, "http://place.map.kakao.com/1", out.PlaceURL)

	status, ok := store.Status("c-1")
	require.True(t, ok)
	assert.Equal(t, models.StatusGeocoding, status)
}

func TestExecute_MissDegradesToSearchLink(t *testing.T) {
	srv, calls := kakaoServer(t, nil)
	h, _ := newFixture(t, srv.URL)

	out := h.Execute(context.Background(), &Input{PlaceText: "어딘가 아주 이상한 장소 이름"})

	assert.False(t, out.Success)
	assert.Equal(t, 3, out.Attempts)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, geocode.SearchLink("어딘가 아주 이상한 장소 이름"), out.MapLink)
	assert.NotEmpty(t, out.Message)
}

func TestExecute_WithoutConversationLeavesStoreUntouched(t *testing.T) {
	srv, _ := kakaoServer(t, nil)
	h, store := newFixture(t, srv.URL)

	h.execute(context.Background(), &Input{PlaceText: "키즈카페"})
	assert.Zero(t, store.Len())
}

// ==========================
// parseInput
// ==========================

func TestParseInput(t *testing.T) {
	h, _ := newFixture(t, "http://unused")

	input, err := h.parseInput(`{"placeText":"서울숲"}`)
	require.NoError(t, err)
	assert.Equal(t, "서울숲", input.PlaceText)

	for _, vars := range []string{`{}`, `{"placeText":""}`, `{"placeText":"   "}`, `{"placeText":3}`} {
		_, err := h.parseInput(vars)
		require.Error(t, err, vars)
		assert.Equal(t, apperrors.ErrCodeMalformedInput, apperrors.CodeOf(err), vars)
	}
}
