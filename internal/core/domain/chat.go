package domain

type ChatRole string

const (
	RoleUser      ChatRole = "user"
	RoleAssistant ChatRole = "assistant"
)

type ChatTurn struct {
	Role    ChatRole `json:"role"`
	Content string   `json:"content"`
}

type ChatRequest struct {
	DocumentID *string    `json:"document_id"`
	Question   string     `json:"question"`
	MaxTokens  int        `json:"max_tokens"`
	History    []ChatTurn `json:"history,omitempty"`
}

type AnswerSource string

const (
	SourceDocument AnswerSource = "document"
	SourceGeneral  AnswerSource = "general"
)

type GroundingChunk struct {
	Index   int     `json:"index"`
	Snippet string  `json:"text"`
	Score   float64 `json:"score"`
}

type ChatAnswer struct {
	Answer     string           `json:"answer"`
	Source     AnswerSource     `json:"source"`
	DocumentID string           `json:"document_id,omitempty"`
	Confidence float64          `json:"confidence"`
	Sources    []GroundingChunk `json:"sources,omitempty"`
}

// Prompt is the provider-neutral request handed to a language model.
type Prompt struct {
	System    string
	Turns     []ChatTurn
	MaxTokens int
	JSON      bool
}
