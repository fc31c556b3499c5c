// internal/workers/outing/search-facilities/models.go
package searchfacilities

import (
	"outing-workers/internal/models"
	"outing-workers/internal/retrieval"
)

type Input struct {
	ConversationID string   `json:"conversationId"`
	QueryText      string   `json:"queryText"`
	Location       string   `json:"location,omitempty"`
	IndoorOutdoor  string   `json:"indoorOutdoor,omitempty"`
	ResultCount    int      `json:"resultCount,omitempty"`
	ChildAge       *int     `json:"childAge,omitempty"`
	ExcludedNames  []string `json:"excludedNames,omitempty"`
}

type Output struct {
	Success    bool              `json:"success"`
	Count      int               `json:"count"`
	Facilities []models.Facility `json:"facilities"`
	Source     models.Source     `json:"source"`
	Outcome    retrieval.Outcome `json:"outcome"`
	Relaxed    bool              `json:"relaxed,omitempty"`
	SearchID   string            `json:"searchId,omitempty"`
	Message    string            `json:"message,omitempty"`
}

// inputSchema is used when the activity registry has no schema for the task type.
const inputSchema = `{
  "type": "object",
  "required": ["conversationId", "queryText"],
  "properties": {
    "conversationId": {"type": "string", "minLength": 1},
    "queryText": {"type": "string", "minLength": 1},
    "location": {"type": "string"},
    "indoorOutdoor": {"type": "string"},
    "resultCount": {"type": "integer", "minimum": 1, "maximum": 20},
    "childAge": {"type": "integer", "minimum": 0, "maximum": 19},
    "excludedNames": {"type": "array", "items": {"type": "string"}}
  }
}`
