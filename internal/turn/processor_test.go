package turn

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/haasonsaas/frontdesk/internal/conversation"
	"github.com/haasonsaas/frontdesk/internal/datetime"
	"github.com/haasonsaas/frontdesk/internal/functions"
	"github.com/haasonsaas/frontdesk/internal/llm"
	"github.com/haasonsaas/frontdesk/internal/lookup"
)

type step struct {
	completion *llm.Completion
	err        error
}

type scriptedCompleter struct {
	mu       sync.Mutex
	steps    []step
	requests []llm.Request
}

func (s *scriptedCompleter) Complete(_ context.Context, req llm.Request) (*llm.Completion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, llm.Request{Messages: req.Messages.Clone(), Functions: req.Functions})
	if len(s.steps) == 0 {
		return nil, errors.New("unexpected completion request")
	}
	next := s.steps[0]
	s.steps = s.steps[1:]
	return next.completion, next.err
}

type fakeInvoker struct {
	output string
	err    error
	calls  []conversation.FunctionCall
}

func (f *fakeInvoker) Specs() []llm.FunctionSpec {
	return []llm.FunctionSpec{{Name: functions.FetchInsuranceStatus}, {Name: functions.CheckApptSlots}}
}

func (f *fakeInvoker) Invoke(_ context.Context, call conversation.FunctionCall) (string, error) {
	f.calls = append(f.calls, call)
	return f.output, f.err
}

type recordingSink struct {
	urls []string
	err  error
}

func (r *recordingSink) PlayAudio(_ context.Context, url string) error {
	r.urls = append(r.urls, url)
	return r.err
}

func text(s string) step {
	return step{completion: &llm.Completion{Content: s, FinishReason: "stop"}}
}

func call(name, args string) step {
	return step{completion: &llm.Completion{
		FunctionCall: &conversation.FunctionCall{Name: name, Arguments: args},
		FinishReason: "function_call",
	}}
}

func baseHistory(userTurns int) conversation.History {
	h := conversation.History{conversation.System("system prompt")}
	for i := 0; i < userTurns; i++ {
		h = append(h, conversation.User(fmt.Sprintf("question %d", i)))
		h = append(h, conversation.Assistant(fmt.Sprintf("answer %d", i)))
	}
	return append(h, conversation.User("latest question"))
}

func newTestProcessor(c llm.Completer, inv Invoker) *Processor {
	return NewProcessor(c, inv, Config{CueBaseURL: "https://example.ngrok.app/"}, WithCuePicker(func() int { return 7 }))
}

func TestHandleTurnDirectReply(t *testing.T) {
	completer := &scriptedCompleter{steps: []step{text("  We are open 9 to 5.  ")}}
	sink := &recordingSink{}
	p := newTestProcessor(completer, &fakeInvoker{})

	history := baseHistory(0)
	res, err := p.HandleTurn(context.Background(), history, sink)
	if err != nil {
		t.Fatalf("HandleTurn() error = %v", err)
	}
	if res.Reply != "We are open 9 to 5." {
		t.Errorf("Reply = %q", res.Reply)
	}
	if res.Path != PathDirect {
		t.Errorf("Path = %q, want %q", res.Path, PathDirect)
	}
	if len(res.History) != len(history) {
		t.Errorf("History len = %d, want %d", len(res.History), len(history))
	}
	if len(completer.requests) != 1 {
		t.Fatalf("completion requests = %d, want 1", len(completer.requests))
	}
	if len(completer.requests[0].Functions) != 2 {
		t.Errorf("first request functions = %d, want 2", len(completer.requests[0].Functions))
	}
	if len(sink.urls) != 0 {
		t.Errorf("cues = %v, want none", sink.urls)
	}
}

func TestHandleTurnFunctionCall(t *testing.T) {
	completer := &scriptedCompleter{steps: []step{
		call(functions.FetchInsuranceStatus, `{"name":"Cigna"}`),
		text("Yes, we accept Cigna insurance."),
	}}
	invoker := &fakeInvoker{output: "Good news, we do accept Cigna insurance."}
	sink := &recordingSink{}
	p := newTestProcessor(completer, invoker)

	history := conversation.History{
		conversation.System("system prompt"),
		conversation.User("What insurance do you take, Cigna?"),
	}
	res, err := p.HandleTurn(context.Background(), history, sink)
	if err != nil {
		t.Fatalf("HandleTurn() error = %v", err)
	}
	if res.Path != PathFunction {
		t.Errorf("Path = %q, want %q", res.Path, PathFunction)
	}
	if !strings.Contains(res.Reply, "Cigna") {
		t.Errorf("Reply = %q, want mention of Cigna", res.Reply)
	}

	if len(res.History) != 4 {
		t.Fatalf("History len = %d, want 4", len(res.History))
	}
	if !res.History[2].IsFunctionCall() || res.History[2].FunctionCall.Arguments != `{"name":"Cigna"}` {
		t.Errorf("History[2] = %+v, want function call request", res.History[2])
	}
	if res.History[3].Role != conversation.RoleFunction || res.History[3].Content != invoker.output {
		t.Errorf("History[3] = %+v, want formatted function result", res.History[3])
	}
	if len(history) != 2 {
		t.Errorf("input history mutated, len = %d", len(history))
	}

	if len(completer.requests) != 2 {
		t.Fatalf("completion requests = %d, want 2", len(completer.requests))
	}
	second := completer.requests[1]
	if len(second.Functions) != 0 {
		t.Errorf("second request offered %d functions, want 0", len(second.Functions))
	}
	if len(second.Messages) != 4 {
		t.Errorf("second request messages = %d, want 4", len(second.Messages))
	}

	want := []string{"https://example.ngrok.app/static/keyboard-typing-7.mp3"}
	if len(sink.urls) != 1 || sink.urls[0] != want[0] {
		t.Errorf("cues = %v, want %v", sink.urls, want)
	}
}

type officeLookups struct {
	slots     []lookup.Slot
	insurance []string
	windows   int
}

func (o *officeLookups) FetchInsuranceStatus(_ context.Context, name string) bool {
	o.insurance = append(o.insurance, name)
	return false
}

func (o *officeLookups) FetchApptSlots(_ context.Context, _, _ time.Time) []lookup.Slot {
	o.windows++
	return o.slots
}

func TestHandleTurnWithCatalog(t *testing.T) {
	loc := datetime.MustLoadLocation("America/New_York")
	slots := []lookup.Slot{{ID: 3, StartTime: time.Date(2024, 3, 5, 15, 0, 0, 0, time.UTC)}}

	tests := []struct {
		name          string
		call          step
		wantResult    string
		wantInsurance []string
		wantWindows   int
	}{
		{
			name:        "slot window without offset",
			call:        call(functions.CheckApptSlots, `{"start_time":"2024-03-05T09:00:00","end_time":"2024-03-05T17:00:00"}`),
			wantResult:  functions.FormatSlotsResult(slots, loc),
			wantWindows: 1,
		},
		{
			name:          "provider outside advertised list",
			call:          call(functions.FetchInsuranceStatus, `{"name":"Medicare"}`),
			wantResult:    "Unfortunately, we do not carry or accept Medicare insurance.",
			wantInsurance: []string{"Medicare"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			office := &officeLookups{slots: slots}
			catalog, err := functions.NewCatalog(functions.Dependencies{
				Insurance: office,
				Slots:     office,
				Location:  loc,
				Now:       time.Date(2024, 3, 5, 14, 30, 0, 0, time.UTC),
			})
			if err != nil {
				t.Fatalf("NewCatalog() error = %v", err)
			}
			completer := &scriptedCompleter{steps: []step{tt.call, text("Here is what I found.")}}
			p := newTestProcessor(completer, catalog)

			history := baseHistory(0)
			res, err := p.HandleTurn(context.Background(), history, &recordingSink{})
			if err != nil {
				t.Fatalf("HandleTurn() error = %v", err)
			}
			if res.Path != PathFunction {
				t.Errorf("Path = %q, want %q", res.Path, PathFunction)
			}
			if len(res.History) != len(history)+2 {
				t.Fatalf("History len = %d, want %d", len(res.History), len(history)+2)
			}
			last := res.History[len(res.History)-1]
			if last.Role != conversation.RoleFunction || last.Content != tt.wantResult {
				t.Errorf("History[last] = %+v, want function result %q", last, tt.wantResult)
			}
			if strings.Join(office.insurance, ",") != strings.Join(tt.wantInsurance, ",") {
				t.Errorf("insurance lookups = %v, want %v", office.insurance, tt.wantInsurance)
			}
			if office.windows != tt.wantWindows {
				t.Errorf("slot lookups = %d, want %d", office.windows, tt.wantWindows)
			}
		})
	}
}

func TestHandleTurnWindowsPayload(t *testing.T) {
	completer := &scriptedCompleter{steps: []step{
		call(functions.CheckApptSlots, `{"start_time":"2024-03-05T09:00:00","end_time":"2024-03-05T17:00:00"}`),
		text("We have a 2:30 opening."),
	}}
	p := newTestProcessor(completer, &fakeInvoker{output: "Here are the corresponding available appointment times: [3-5 2:30pm]"})

	history := baseHistory(6) // 1 + 12 + 1 = 14 entries
	res, err := p.HandleTurn(context.Background(), history, nil)
	if err != nil {
		t.Fatalf("HandleTurn() error = %v", err)
	}

	first := completer.requests[0].Messages
	if len(first) != conversation.DefaultWindow {
		t.Fatalf("first payload len = %d, want %d", len(first), conversation.DefaultWindow)
	}
	if first[0] != history[0] {
		t.Errorf("first payload[0] = %+v, want system entry", first[0])
	}
	if first[len(first)-1].Content != "latest question" {
		t.Errorf("first payload last = %+v, want latest question", first[len(first)-1])
	}

	second := completer.requests[1].Messages
	if len(second) != conversation.DefaultWindow+2 {
		t.Errorf("second payload len = %d, want %d", len(second), conversation.DefaultWindow+2)
	}
	if len(res.History) != len(history)+2 {
		t.Errorf("History len = %d, want %d", len(res.History), len(history)+2)
	}
}

func TestHandleTurnFallbacks(t *testing.T) {
	tests := []struct {
		name      string
		steps     []step
		invokeErr error
		wantLen   int
		wantCues  int
		wantCalls int
	}{
		{
			name:    "first completion fails",
			steps:   []step{{err: errors.New("503")}},
			wantLen: 2,
		},
		{
			name:    "empty text",
			steps:   []step{text("   ")},
			wantLen: 2,
		},
		{
			name:      "malformed arguments",
			steps:     []step{call(functions.FetchInsuranceStatus, `{"name":`)},
			invokeErr: &functions.ParseError{Function: functions.FetchInsuranceStatus, Err: errors.New("unexpected end of JSON input")},
			wantLen:   2,
			wantCalls: 1,
		},
		{
			name:      "unknown function",
			steps:     []step{call("book_appointment", `{}`)},
			invokeErr: fmt.Errorf("%w: %q", functions.ErrUnknownFunction, "book_appointment"),
			wantLen:   2,
			wantCalls: 1,
		},
		{
			name:      "second completion fails",
			steps:     []step{call(functions.FetchInsuranceStatus, `{"name":"Aetna"}`), {err: errors.New("timeout")}},
			wantLen:   4,
			wantCues:  1,
			wantCalls: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			invoker := &fakeInvoker{output: "Good news, we do accept Aetna insurance.", err: tt.invokeErr}
			sink := &recordingSink{}
			p := newTestProcessor(&scriptedCompleter{steps: tt.steps}, invoker)

			res, err := p.HandleTurn(context.Background(), baseHistory(0), sink)
			if err != nil {
				t.Fatalf("HandleTurn() error = %v", err)
			}
			if res.Reply != FallbackReply {
				t.Errorf("Reply = %q, want fallback", res.Reply)
			}
			if res.Path != PathFallback {
				t.Errorf("Path = %q, want %q", res.Path, PathFallback)
			}
			if len(res.History) != tt.wantLen {
				t.Errorf("History len = %d, want %d", len(res.History), tt.wantLen)
			}
			if len(sink.urls) != tt.wantCues {
				t.Errorf("cues = %d, want %d", len(sink.urls), tt.wantCues)
			}
			if len(invoker.calls) != tt.wantCalls {
				t.Errorf("invocations = %d, want %d", len(invoker.calls), tt.wantCalls)
			}
		})
	}
}

func TestHandleTurnCueFailureDoesNotAbort(t *testing.T) {
	completer := &scriptedCompleter{steps: []step{
		call(functions.FetchInsuranceStatus, `{"name":"Aetna"}`),
		text("Yes, Aetna is accepted."),
	}}
	p := newTestProcessor(completer, &fakeInvoker{output: "Good news, we do accept Aetna insurance."})

	res, err := p.HandleTurn(context.Background(), baseHistory(0), &recordingSink{err: errors.New("closed")})
	if err != nil {
		t.Fatalf("HandleTurn() error = %v", err)
	}
	if res.Path != PathFunction {
		t.Errorf("Path = %q, want %q", res.Path, PathFunction)
	}
}

func TestHandleTurnInvalidHistory(t *testing.T) {
	p := newTestProcessor(&scriptedCompleter{}, &fakeInvoker{})
	tests := []conversation.History{
		nil,
		{conversation.User("hi")},
	}
	for _, h := range tests {
		if _, err := p.HandleTurn(context.Background(), h, nil); !errors.Is(err, ErrInvalidHistory) {
			t.Errorf("HandleTurn(%v) error = %v, want ErrInvalidHistory", h, err)
		}
	}
}

func TestCueURL(t *testing.T) {
	tests := []struct {
		base  string
		index int
		want  string
	}{
		{"https://a.ngrok.app", 1, "https://a.ngrok.app/static/keyboard-typing-1.mp3"},
		{"https://a.ngrok.app/", 10, "https://a.ngrok.app/static/keyboard-typing-10.mp3"},
		{"https://a.ngrok.app", 11, "https://a.ngrok.app/static/keyboard-typing-1.mp3"},
	}
	for _, tt := range tests {
		if got := CueURL(tt.base, tt.index); got != tt.want {
			t.Errorf("CueURL(%q, %d) = %q, want %q", tt.base, tt.index, got, tt.want)
		}
	}

	for i := 0; i < 200; i++ {
		if n := RandomCue(); n < 1 || n > CueCount {
			t.Fatalf("RandomCue() = %d, want within [1, %d]", n, CueCount)
		}
	}
}
