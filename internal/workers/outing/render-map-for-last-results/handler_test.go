// internal/workers/outing/render-map-for-last-results/handler_test.go
package rendermap

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "outing-workers/internal/common/errors"
	"outing-workers/internal/conversation"
	"outing-workers/internal/mapview"
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
// Fixtures
// ==========================

func newFixture(t *testing.T) (*Handler, *conversation.Store) {
	log := NewTestLogger(t)
	store := conversation.NewStore(conversation.Options{})
	svc := outing.NewService(outing.Deps{
		Store: store,
		Maps:  mapview.NewRenderer(store, log),
	}, 3, log)
	return NewHandler(LoadConfig(), svc, nil, log), store
}

var catalog = []models.Facility{
	{Name: "어린이대공원", Lat: 37.548, Lng: 127.074, Description: "동물원과 놀이동산"},
	{Name: "서울숲", Lat: 37.544, Lng: 127.037, Address: "서울 성동구 뚝섬로 273"},
	{Name: "국립중앙박물관 어린이박물관", Lat: 37.523, Lng: 126.980, Category: "박물관"},
	{Name: "좌표없음 키즈카페", Category: "키즈카페"},
}

// ==========================
// execute
// ==========================

func TestExecute_RendersStoredCatalogResults(t *testing.T) {
	h, store := newFixture(t)
	store.RecordResults("c-1", catalog, models.SourceRAG)

	out := h.execute(context.Background(), &Input{ConversationID: "c-1"})

	assert.True(t, out.Success)
	assert.Equal(t, mapview.RenderStored, out.Action)
	assert.Equal(t, []int{0, 1, 2}, out.SelectedIndices)
	require.Len(t, out.Facilities, 3)
	assert.Equal(t, "동물원과 놀이동산", out.Facilities[0].Desc)
	assert.Equal(t, "서울 성동구 뚝섬로 273", out.Facilities[1].Desc)
	require.NotNil(t, out.Center)
	assert.InDelta(t, (37.548+37.544+37.523)/3, out.Center.Lat, 1e-9)
	assert.Contains(t, out.MapLink, "https://map.kakao.com/link/to/")

	status, _ := store.Status("c-1")
	assert.Equal(t, models.StatusBuildingMap, status)
}

func TestExecute_SkipsOutOfRangeAndMissingCoordinates(t *testing.T) {
	h, store := newFixture(t)
	store.RecordResults("c-1", catalog, models.SourceRAG)

	out := h.execute(context.Background(), &Input{ConversationID: "c-1", Indices: "3,1,9"})

	assert.True(t, out.Success)
	assert.Equal(t, []int{3, 1, 9}, out.SelectedIndices)
	require.Len(t, out.Facilities, 1)
	assert.Equal(t, "서울숲", out.Facilities[0].Name)
}

func TestExecute_WebResultsRequireGeocoding(t *testing.T) {
	h, store := newFixture(t)
	store.RecordResults("c-1", []models.Facility{{Name: "주말 체험 행사", Link: "https://example.com/e"}}, models.SourceWeb)

	out := h.Execute(context.Background(), &Input{ConversationID: "c-1"})

	assert.False(t, out.Success)
	assert.Equal(t, mapview.RequireGeocode, out.Action)
	assert.Equal(t, mapview.MsgNeedsGeocode, out.Message)
	assert.Empty(t, out.Facilities)
	assert.Nil(t, out.Center)
}

func TestExecute_UnknownConversationRequiresSearch(t *testing.T) {
	h, _ := newFixture(t)

	out := h.execute(context.Background(), &Input{ConversationID: "nobody"})

	assert.False(t, out.Success)
	assert.Equal(t, mapview.RequireSearch, out.Action)
	assert.NotNil(t, out.Facilities)
	assert.NotNil(t, out.SelectedIndices)
}

// ==========================
// parseInput
// ==========================

func TestParseInput(t *testing.T) {
	h, _ := newFixture(t)

	input, err := h.parseInput(`{"conversationId":"c-1","indices":"0,2"}`)
	require.NoError(t, err)
	assert.Equal(t, "0,2", input.Indices)

	_, err = h.parseInput(`{"indices":"0"}`)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeMalformedInput, apperrors.CodeOf(err))

	_, err = h.parseInput(`{"conversationId":"c-1","indices":[0,1]}`)
	require.Error(t, err)
}
