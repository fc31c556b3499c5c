// internal/workers/outing/resolve-place-to-map/models.go
package resolveplace

type Input struct {
	PlaceText      string `json:"placeText"`
	ConversationID string `json:"conversationId,omitempty"`
}

type Output struct {
	Success  bool    `json:"success"`
	Name     string  `json:"name,omitempty"`
	Address  string  `json:"address,omitempty"`
	Lat      float64 `json:"lat,omitempty"`
	Lng      float64 `json:"lng,omitempty"`
	MapLink  string  `json:"mapLink"`
	PlaceURL string  `json:"placeUrl,omitempty"`
	Attempts int     `json:"attempts"`
	Message  string  `json:"message,omitempty"`
}

const inputSchema = `{
  "type": "object",
  "required": ["placeText"],
  "properties": {
    "placeText": {"type": "string", "minLength": 1},
    "conversationId": {"type": "string"}
  }
}`
