// Package conversation holds per-call conversation state: the message model,
// the session registry that stores one history per live call, and the
// windowing applied to histories before they are sent for completion.
package conversation

// Role identifies the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	// RoleFunction marks a function result fed back to the model.
	RoleFunction Role = "function"
)

// FunctionCall is a model request to invoke a named function. Arguments is
// the raw JSON object exactly as the model produced it.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Message is one history entry. An assistant message carries either Content
// or a FunctionCall. A function message carries the function Name and its
// formatted, human-readable result in Content.
type Message struct {
	Role         Role          `json:"role"`
	Content      string        `json:"content,omitempty"`
	Name         string        `json:"name,omitempty"`
	FunctionCall *FunctionCall `json:"function_call,omitempty"`
}

// System returns a system instruction message.
func System(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// User returns a caller utterance.
func User(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// Assistant returns a textual assistant reply.
func Assistant(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// AssistantCall returns an assistant message requesting a function call.
func AssistantCall(name, arguments string) Message {
	return Message{Role: RoleAssistant, FunctionCall: &FunctionCall{Name: name, Arguments: arguments}}
}

// FunctionResult returns the formatted result of a function call.
func FunctionResult(name, content string) Message {
	return Message{Role: RoleFunction, Name: name, Content: content}
}

// IsFunctionCall reports whether m is an assistant function-call request.
func (m Message) IsFunctionCall() bool {
	return m.Role == RoleAssistant && m.FunctionCall != nil
}

// History is an ordered conversation. Entry 0 is the system instruction.
type History []Message

// Clone returns a deep copy of h.
func (h History) Clone() History {
	if h == nil {
		return nil
	}
	out := make(History, len(h))
	for i, m := range h {
		out[i] = m
		if m.FunctionCall != nil {
			fc := *m.FunctionCall
			out[i].FunctionCall = &fc
		}
	}
	return out
}
