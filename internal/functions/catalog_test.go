package functions

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/haasonsaas/frontdesk/internal/conversation"
	"github.com/haasonsaas/frontdesk/internal/datetime"
	"github.com/haasonsaas/frontdesk/internal/llm"
	"github.com/haasonsaas/frontdesk/internal/lookup"
)

type fakeLookups struct {
	accepted  map[string]bool
	slots     []lookup.Slot
	insurance []string
	windows   [][2]time.Time
}

func (f *fakeLookups) FetchInsuranceStatus(_ context.Context, name string) bool {
	f.insurance = append(f.insurance, name)
	return f.accepted[name]
}

func (f *fakeLookups) FetchApptSlots(_ context.Context, start, end time.Time) []lookup.Slot {
	f.windows = append(f.windows, [2]time.Time{start, end})
	return f.slots
}

func newTestCatalog(t *testing.T, f *fakeLookups) *Catalog {
	t.Helper()
	c, err := NewCatalog(Dependencies{
		Insurance: f,
		Slots:     f,
		Location:  datetime.MustLoadLocation("America/New_York"),
		Now:       time.Date(2024, 3, 5, 14, 30, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("NewCatalog() error = %v", err)
	}
	return c
}

func TestCatalogSpecs(t *testing.T) {
	c := newTestCatalog(t, &fakeLookups{})

	specs := c.Specs()
	if len(specs) != 2 {
		t.Fatalf("Specs() len = %d, want 2", len(specs))
	}
	if specs[0].Name != FetchInsuranceStatus || specs[1].Name != CheckApptSlots {
		t.Errorf("Specs() names = %q, %q", specs[0].Name, specs[1].Name)
	}

	var params map[string]any
	if err := json.Unmarshal(specs[1].Parameters, &params); err != nil {
		t.Fatalf("unmarshal slot parameters: %v", err)
	}
	props := params["properties"].(map[string]any)
	start := props["start_time"].(map[string]any)
	desc, _ := start["description"].(string)
	if !strings.Contains(desc, "it is currently tuesday, march 5, 2024, 9:30am | Tuesday, march 5, 2024, 9:30am") {
		t.Errorf("start_time description = %q, want reference time", desc)
	}
	if start["format"] != "date-time" {
		t.Errorf("start_time format = %v, want date-time", start["format"])
	}

	if err := json.Unmarshal(specs[0].Parameters, &params); err != nil {
		t.Fatalf("unmarshal insurance parameters: %v", err)
	}
	name := params["properties"].(map[string]any)["name"].(map[string]any)
	if enum, _ := name["enum"].([]any); len(enum) != len(InsuranceProviders) {
		t.Errorf("name enum = %v, want %d providers", name["enum"], len(InsuranceProviders))
	}

	got := c.Names()
	if strings.Join(got, ",") != "check_appt_slots,fetch_insurance_status" {
		t.Errorf("Names() = %v", got)
	}
}

func TestNewCatalogRequiresLookups(t *testing.T) {
	if _, err := NewCatalog(Dependencies{}); err == nil {
		t.Error("NewCatalog() error = nil, want error")
	}
}

func TestCatalogValidateBijection(t *testing.T) {
	ins, err := define(insuranceSpec(), insuranceHandler(&fakeLookups{}))
	if err != nil {
		t.Fatalf("define() error = %v", err)
	}
	if _, err := newCatalog(ins, ins); err == nil {
		t.Error("newCatalog() with duplicate handler error = nil, want error")
	}

	c := &Catalog{
		specs:   []llm.FunctionSpec{insuranceSpec(), {Name: "orphan"}},
		entries: map[string]entry{FetchInsuranceStatus: ins},
	}
	if err := c.Validate(); err == nil || !strings.Contains(err.Error(), "orphan") {
		t.Errorf("Validate() error = %v, want undeclared handler error", err)
	}

	c = &Catalog{
		specs:   nil,
		entries: map[string]entry{FetchInsuranceStatus: ins},
	}
	if err := c.Validate(); err == nil {
		t.Error("Validate() with undeclared handler error = nil, want error")
	}
}

func TestInvokeInsurance(t *testing.T) {
	f := &fakeLookups{accepted: map[string]bool{"Aetna": true}}
	c := newTestCatalog(t, f)

	tests := []struct {
		name string
		args string
		want string
	}{
		{"accepted", `{"name":"Aetna"}`, "Good news, we do accept Aetna insurance."},
		{"rejected", `{"name":"Humana"}`, "Unfortunately, we do not carry or accept Humana insurance."},
		{"outside advertised list", `{"name":"Medicare"}`, "Unfortunately, we do not carry or accept Medicare insurance."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.Invoke(context.Background(), conversation.FunctionCall{Name: FetchInsuranceStatus, Arguments: tt.args})
			if err != nil {
				t.Fatalf("Invoke() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Invoke() = %q, want %q", got, tt.want)
			}
		})
	}
	if strings.Join(f.insurance, ",") != "Aetna,Humana,Medicare" {
		t.Errorf("insurance lookups = %v", f.insurance)
	}
}

func TestInvokeSlots(t *testing.T) {
	loc := datetime.MustLoadLocation("America/New_York")
	f := &fakeLookups{slots: []lookup.Slot{
		{ID: 1, StartTime: time.Date(2024, 3, 5, 14, 30, 0, 0, loc)},
		{ID: 2, StartTime: time.Date(2024, 3, 5, 15, 0, 0, 0, loc)},
	}}
	c := newTestCatalog(t, f)

	got, err := c.Invoke(context.Background(), conversation.FunctionCall{
		Name:      CheckApptSlots,
		Arguments: `{"start_time":"2024-03-05T09:00:00","end_time":"2024-03-05T17:00:00-05:00"}`,
	})
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	want := "Here are the corresponding available appointment times: [3-5 2:30pm, 3-5 3:00pm]"
	if got != want {
		t.Errorf("Invoke() = %q, want %q", got, want)
	}

	if len(f.windows) != 1 {
		t.Fatalf("slot lookups = %d, want 1", len(f.windows))
	}
	wantStart := time.Date(2024, 3, 5, 9, 0, 0, 0, loc)
	if !f.windows[0][0].Equal(wantStart) {
		t.Errorf("start = %v, want %v", f.windows[0][0], wantStart)
	}
	wantEnd := time.Date(2024, 3, 5, 22, 0, 0, 0, time.UTC)
	if !f.windows[0][1].Equal(wantEnd) {
		t.Errorf("end = %v, want %v", f.windows[0][1], wantEnd)
	}
}

func TestInvokeSlotsOffsetlessWindow(t *testing.T) {
	loc := datetime.MustLoadLocation("America/New_York")
	f := &fakeLookups{}
	c := newTestCatalog(t, f)

	got, err := c.Invoke(context.Background(), conversation.FunctionCall{
		Name:      CheckApptSlots,
		Arguments: `{"start_time":"2024-03-05T09:00:00","end_time":"2024-03-05T17:00:00"}`,
	})
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if got != NoSlotsReply {
		t.Errorf("Invoke() = %q, want %q", got, NoSlotsReply)
	}
	if len(f.windows) != 1 {
		t.Fatalf("slot lookups = %d, want 1", len(f.windows))
	}
	if want := time.Date(2024, 3, 5, 17, 0, 0, 0, loc); !f.windows[0][1].Equal(want) {
		t.Errorf("end = %v, want %v", f.windows[0][1], want)
	}
}

func TestRelaxSchema(t *testing.T) {
	raw, err := relaxSchema(json.RawMessage(`{"type":"object","properties":{"format":{"type":"string","enum":["a"]},"when":{"type":"string","format":"date-time"},"tags":{"type":"array","items":{"type":"string","enum":["x"]}}},"required":["when"]}`))
	if err != nil {
		t.Fatalf("relaxSchema() error = %v", err)
	}
	got := string(raw)
	for _, keyword := range []string{`"enum"`, `"date-time"`} {
		if strings.Contains(got, keyword) {
			t.Errorf("relaxSchema() = %s, still contains %s", got, keyword)
		}
	}
	for _, kept := range []string{`"format":{"type":"string"}`, `"required":["when"]`} {
		if !strings.Contains(got, kept) {
			t.Errorf("relaxSchema() = %s, want %s", got, kept)
		}
	}
}

func TestInvokeErrors(t *testing.T) {
	f := &fakeLookups{}
	c := newTestCatalog(t, f)

	tests := []struct {
		name      string
		call      conversation.FunctionCall
		wantParse bool
	}{
		{"unknown function", conversation.FunctionCall{Name: "book_appointment", Arguments: `{}`}, false},
		{"malformed json", conversation.FunctionCall{Name: FetchInsuranceStatus, Arguments: `{"name":`}, true},
		{"missing required", conversation.FunctionCall{Name: FetchInsuranceStatus, Arguments: `{}`}, true},
		{"wrong type", conversation.FunctionCall{Name: CheckApptSlots, Arguments: `{"start_time":1,"end_time":"2024-03-05T17:00:00"}`}, true},
		{"unparseable instant", conversation.FunctionCall{Name: CheckApptSlots, Arguments: `{"start_time":"tomorrow","end_time":"2024-03-05T17:00:00"}`}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Invoke(context.Background(), tt.call)
			if err == nil {
				t.Fatal("Invoke() error = nil, want error")
			}
			var perr *ParseError
			if got := errors.As(err, &perr); got != tt.wantParse {
				t.Errorf("Invoke() error = %v, ParseError = %v, want %v", err, got, tt.wantParse)
			}
			if !tt.wantParse && !errors.Is(err, ErrUnknownFunction) {
				t.Errorf("Invoke() error = %v, want ErrUnknownFunction", err)
			}
		})
	}

	if len(f.insurance) != 0 || len(f.windows) != 0 {
		t.Errorf("lookups ran on invalid calls: insurance=%v windows=%v", f.insurance, f.windows)
	}
}
