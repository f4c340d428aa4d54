// Package voice adapts the telephony relay to the turn processor: the relay
// wire protocol, the per-call session lifecycle, the websocket endpoint the
// provider connects to, and the webhook that tells the provider to open it.
package voice

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// EventType identifies an inbound relay message.
type EventType string

const (
	EventSetup     EventType = "setup"
	EventPrompt    EventType = "prompt"
	EventInterrupt EventType = "interrupt"
)

// ErrUnknownEvent is wrapped by DecodeEvent for well-formed frames whose type
// is not handled.
var ErrUnknownEvent = errors.New("voice: unknown event type")

// DecodeError reports an inbound frame that is not a valid relay message.
type DecodeError struct {
	Code    string
	Message string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Event is one of SetupEvent, PromptEvent or InterruptEvent.
type Event interface {
	Type() EventType
}

// SetupEvent opens a call.
type SetupEvent struct {
	SessionID        string            `json:"sessionId,omitempty"`
	CallSID          string            `json:"callSid"`
	AccountSID       string            `json:"accountSid,omitempty"`
	From             string            `json:"from,omitempty"`
	To               string            `json:"to,omitempty"`
	Direction        string            `json:"direction,omitempty"`
	CustomParameters map[string]string `json:"customParameters,omitempty"`
}

// PromptEvent carries a transcribed caller utterance.
type PromptEvent struct {
	VoicePrompt string `json:"voicePrompt"`
	Lang        string `json:"lang,omitempty"`
	Last        bool   `json:"last,omitempty"`
}

// InterruptEvent signals that the caller spoke over playback.
type InterruptEvent struct {
	UtteranceUntilInterrupt  string `json:"utteranceUntilInterrupt,omitempty"`
	DurationUntilInterruptMs int    `json:"durationUntilInterruptMs,omitempty"`
}

func (SetupEvent) Type() EventType { return EventSetup }
func (PromptEvent) Type() EventType { return EventPrompt }
func (InterruptEvent) Type() EventType { return EventInterrupt }

type relaySchemaRegistry struct {
	once    sync.Once
	initErr error
	frame   *jsonschema.Schema
	events  map[EventType]*jsonschema.Schema
}

var relaySchemas relaySchemaRegistry

func initRelaySchemas() error {
	relaySchemas.once.Do(func() {
		frame, err := jsonschema.CompileString("relay_frame", relayFrameSchema)
		if err != nil {
			relaySchemas.initErr = err
			return
		}
		relaySchemas.frame = frame

		events := map[EventType]string{
			EventSetup:     relaySetupSchema,
			EventPrompt:    relayPromptSchema,
			EventInterrupt: relayInterruptSchema,
		}
		relaySchemas.events = make(map[EventType]*jsonschema.Schema, len(events))
		for name, schema := range events {
			compiled, err := jsonschema.CompileString("relay_event_"+string(name), schema)
			if err != nil {
				relaySchemas.initErr = err
				return
			}
			relaySchemas.events[name] = compiled
		}
	})
	return relaySchemas.initErr
}

// DecodeEvent parses one inbound relay frame. Frames that are not JSON
// objects with a string "type", or whose fields do not match the event's
// shape, yield a *DecodeError. Frames with any other type yield an error
// wrapping ErrUnknownEvent.
func DecodeEvent(raw []byte) (Event, error) {
	if err := initRelaySchemas(); err != nil {
		return nil, err
	}

	var payload any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, &DecodeError{Code: "invalid_json", Message: err.Error()}
	}
	if err := relaySchemas.frame.Validate(payload); err != nil {
		return nil, &DecodeError{Code: "invalid_frame", Message: err.Error()}
	}

	eventType := EventType(payload.(map[string]any)["type"].(string))
	schema, ok := relaySchemas.events[eventType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, eventType)
	}
	if err := schema.Validate(payload); err != nil {
		return nil, &DecodeError{Code: "invalid_" + string(eventType), Message: err.Error()}
	}

	var (
		event Event
		err   error
	)
	switch eventType {
	case EventSetup:
		var ev SetupEvent
		err = json.Unmarshal(raw, &ev)
		event = ev
	case EventPrompt:
		var ev PromptEvent
		err = json.Unmarshal(raw, &ev)
		event = ev
	case EventInterrupt:
		var ev InterruptEvent
		err = json.Unmarshal(raw, &ev)
		event = ev
	}
	if err != nil {
		return nil, &DecodeError{Code: "invalid_" + string(eventType), Message: err.Error()}
	}
	return event, nil
}

// Directive is an outbound relay message: TextDirective or PlayDirective.
type Directive interface {
	directive() string
}

// TextDirective speaks Token to the caller.
type TextDirective struct {
	Token string
	Last  bool
}

// PlayDirective plays the audio at URL to the caller.
type PlayDirective struct {
	URL string
}

func (TextDirective) directive() string { return "text" }
func (PlayDirective) directive() string { return "play_audio" }

// MarshalJSON encodes the directive with its "type" tag.
func (d TextDirective) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type  string `json:"type"`
		Token string `json:"token"`
		Last  bool   `json:"last"`
	}{Type: d.directive(), Token: d.Token, Last: d.Last})
}

// MarshalJSON encodes the directive with its "type" tag.
func (d PlayDirective) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type string `json:"type"`
		URL  string `json:"url"`
	}{Type: d.directive(), URL: d.URL})
}

// EncodeDirective serializes d for the wire.
func EncodeDirective(d Directive) ([]byte, error) {
	if d == nil {
		return nil, errors.New("voice: nil directive")
	}
	return json.Marshal(d)
}

const relayFrameSchema = `{
  "type": "object",
  "required": ["type"],
  "properties": {
    "type": { "type": "string", "minLength": 1 }
  },
  "additionalProperties": true
}`

const relaySetupSchema = `{
  "type": "object",
  "required": ["callSid"],
  "properties": {
    "callSid": { "type": "string", "minLength": 1 },
    "sessionId": { "type": "string" },
    "accountSid": { "type": "string" },
    "from": { "type": "string" },
    "to": { "type": "string" },
    "direction": { "type": "string" },
    "customParameters": {
      "type": "object",
      "additionalProperties": { "type": "string" }
    }
  },
  "additionalProperties": true
}`

const relayPromptSchema = `{
  "type": "object",
  "required": ["voicePrompt"],
  "properties": {
    "voicePrompt": { "type": "string" },
    "lang": { "type": "string" },
    "last": { "type": "boolean" }
  },
  "additionalProperties": true
}`

const relayInterruptSchema = `{
  "type": "object",
  "properties": {
    "utteranceUntilInterrupt": { "type": "string" },
    "durationUntilInterruptMs": { "type": "integer" }
  },
  "additionalProperties": true
}`
