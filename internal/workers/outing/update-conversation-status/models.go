// internal/workers/outing/update-conversation-status/models.go
package updatestatus

type Input struct {
	ConversationID string `json:"conversationId"`
	// Status is the progress text shown to the user. Empty reads the current status.
	Status string `json:"status,omitempty"`
}

type Output struct {
	ConversationID string `json:"conversationId"`
	Status         string `json:"status"`
}

const inputSchema = `{
  "type": "object",
  "required": ["conversationId"],
  "properties": {
    "conversationId": {"type": "string", "minLength": 1},
    "status": {"type": "string"}
  }
}`
