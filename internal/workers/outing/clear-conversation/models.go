// internal/workers/outing/clear-conversation/models.go
package clearconversation

type Input struct {
	ConversationID string `json:"conversationId"`
}

type Output struct {
	ConversationID string `json:"conversationId"`
	// Cleared is false when nothing was stored for the conversation.
	Cleared bool `json:"cleared"`
}

const inputSchema = `{
  "type": "object",
  "required": ["conversationId"],
  "properties": {
    "conversationId": {"type": "string", "minLength": 1}
  }
}`
