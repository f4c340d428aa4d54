// Package llm abstracts the chat completion service used by the turn
// processor. A completion either carries reply text or a single function
// call request.
package llm

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/haasonsaas/frontdesk/internal/conversation"
)

// ErrEmptyCompletion is returned when the service answers without choices.
var ErrEmptyCompletion = errors.New("llm: completion has no choices")

// FunctionSpec declares a callable function to the model.
type FunctionSpec struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// Request is a single completion request. When Functions is non-empty the
// model may answer with a function call ("auto" mode); otherwise it must
// answer with text.
type Request struct {
	Messages  conversation.History
	Functions []FunctionSpec
}

// Completion is the model's answer.
type Completion struct {
	Content      string
	FunctionCall *conversation.FunctionCall
	FinishReason string

	PromptTokens     int
	CompletionTokens int
}

// Completer produces chat completions.
type Completer interface {
	Complete(ctx context.Context, req Request) (*Completion, error)
}
