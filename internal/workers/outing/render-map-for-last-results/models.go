// internal/workers/outing/render-map-for-last-results/models.go
package rendermap

import (
	"outing-workers/internal/mapview"
	"outing-workers/internal/models"
)

type Input struct {
	ConversationID string `json:"conversationId"`
	// Indices is a comma-separated list of positions in the last results, e.g. "0,1,2".
	Indices string `json:"indices,omitempty"`
}

type Output struct {
	Success         bool               `json:"success"`
	Facilities      []models.MapMarker `json:"facilities"`
	Message         string             `json:"message,omitempty"`
	Action          mapview.Action     `json:"action"`
	Center          *models.LatLng     `json:"center,omitempty"`
	MapLink         string             `json:"mapLink,omitempty"`
	SelectedIndices []int              `json:"selectedIndices"`
}

const inputSchema = `{
  "type": "object",
  "required": ["conversationId"],
  "properties": {
    "conversationId": {"type": "string", "minLength": 1},
    "indices": {"type": "string"}
  }
}`
