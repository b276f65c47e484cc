package llm

// Message is a single message in a chat conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatParams holds per-request overrides for chat completions.
type ChatParams struct {
	// Model overrides the client's default model when set.
	Model string

	// MaxTokens limits the generated tokens. 0 means no limit.
	MaxTokens int

	Temperature float32
}
