package observability

import (
	"sync"
	"time"
)

const defaultTimingBuffer = 1000

// ToolTiming is one measured call to an engine tool (search, geocode, map render, ...).
type ToolTiming struct {
	ConversationID string        `json:"conversationId"`
	Tool           string        `json:"tool"`
	Duration       time.Duration `json:"duration"`
	Failed         bool          `json:"failed"`
	At             time.Time     `json:"at"`
}

// ToolTimings is a bounded in-memory buffer of timing records.
// The oldest records are dropped once the buffer is full.
type ToolTimings struct {
	mu      sync.Mutex
	records []ToolTiming
	limit   int
}

func NewToolTimings(limit int) *ToolTimings {
	if limit <= 0 {
		limit = defaultTimingBuffer
	}
	return &ToolTimings{limit: limit}
}

func (t *ToolTimings) Add(rec ToolTiming) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.records) >= t.limit {
		t.records = append(t.records[:0], t.records[1:]...)
	}
	t.records = append(t.records, rec)
}

// Drain returns every buffered record and empties the buffer.
func (t *ToolTimings) Drain() []ToolTiming {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := t.records
	t.records = nil
	return out
}

// DrainFor removes and returns the records of one conversation, keeping the rest.
func (t *ToolTimings) DrainFor(conversationID string) []ToolTiming {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []ToolTiming
	kept := t.records[:0]
	for _, rec := range t.records {
		if rec.ConversationID == conversationID {
			out = append(out, rec)
			continue
		}
		kept = append(kept, rec)
	}
	t.records = kept
	return out
}

func (t *ToolTimings) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.records)
}

// For returns a copy of the records of one conversation without removing them.
func (t *ToolTimings) For(conversationID string) []ToolTiming {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := []ToolTiming{}
	for _, rec := range t.records {
		if rec.ConversationID == conversationID {
			out = append(out, rec)
		}
	}
	return out
}

// TimingSummary aggregates the records of one tool.
type TimingSummary struct {
	Calls    int           `json:"calls"`
	Failures int           `json:"failures"`
	Total    time.Duration `json:"total"`
}

// Summarize groups records by tool.
func Summarize(recs []ToolTiming) map[string]TimingSummary {
	out := make(map[string]TimingSummary)
	for _, rec := range recs {
		s := out[rec.Tool]
		s.Calls++
		s.Total += rec.Duration
		if rec.Failed {
			s.Failures++
		}
		out[rec.Tool] = s
	}
	return out
}
