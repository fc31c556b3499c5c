// internal/workers/outing/clear-conversation/handler_test.go
package clearconversation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "outing-workers/internal/common/errors"
	"outing-workers/internal/conversation"
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

func (l *TestLogger) Info(msg string, fields map[string]interface{}) {
	l.t.Logf("INFO: %s %v %v", msg, l.fields, fields)
}

func (l *TestLogger) Warn(msg string, fields map[string]interface{}) {
	l.t.Logf("WARN: %s %v %v", msg, l.fields, fields)
}

func (l *TestLogger) Error(msg string, fields map[string]interface{}) {
	l.t.Logf("ERROR: %s %v %v", msg, l.fields, fields)
}

func (l *TestLogger) With(fields map[string]interface{}) Logger {
	merged := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &TestLogger{t: l.t, fields: merged}
}

// ==========================
// Tests
// ==========================

func TestHandle_ClearsStoredConversation(t *testing.T) {
	store := conversation.NewStore(conversation.Options{})
	var tornDown []string
	store.OnTeardown(func(id string) { tornDown = append(tornDown, id) })

	svc := outing.NewService(outing.Deps{Store: store}, 3, NewTestLogger(t))
	h := NewHandler(LoadConfig(), svc, nil, NewTestLogger(t))

	store.RecordResults("c-1", []models.Facility{{Name: "서울숲", Lat: 37.5, Lng: 127.0}}, models.SourceRAG)

	out, err := h.handle(`{"conversationId":"c-1"}`)
	require.NoError(t, err)
	assert.True(t, out.Cleared)
	assert.Equal(t, []string{"c-1"}, tornDown)
	assert.Empty(t, store.ShownNames("c-1"))

	out, err = h.handle(`{"conversationId":"c-1"}`)
	require.NoError(t, err)
	assert.False(t, out.Cleared)
}

func TestHandle_MalformedInput(t *testing.T) {
	svc := outing.NewService(outing.Deps{Store: conversation.NewStore(conversation.Options{})}, 3, NewTestLogger(t))
	h := NewHandler(LoadConfig(), svc, nil, NewTestLogger(t))

	_, err := h.handle(`{"conversation":"c-1"}`)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeMalformedInput, apperrors.CodeOf(err))
}
