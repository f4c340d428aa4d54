// Package functions defines the backend operations the model may call during
// a turn: their declared schemas, a typed dispatch table, argument validation
// and the fixed reply templates that turn results into history text.
package functions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/haasonsaas/frontdesk/internal/conversation"
	"github.com/haasonsaas/frontdesk/internal/llm"
	"github.com/haasonsaas/frontdesk/internal/lookup"
)

// Function names known to the catalog.
const (
	FetchInsuranceStatus = "fetch_insurance_status"
	CheckApptSlots       = "check_appt_slots"
)

// ErrUnknownFunction is returned when the model names a function the catalog
// does not declare.
var ErrUnknownFunction = errors.New("functions: unknown function")

// ParseError reports function arguments that are not valid JSON, do not
// match the declared schema, or carry values the handler cannot interpret.
type ParseError struct {
	Function string
	Err      error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s arguments: %v", e.Function, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// InsuranceLookup answers whether an insurance provider is accepted.
type InsuranceLookup interface {
	FetchInsuranceStatus(ctx context.Context, name string) bool
}

// SlotLookup lists available appointment slots in a time window.
type SlotLookup interface {
	FetchApptSlots(ctx context.Context, start, end time.Time) []lookup.Slot
}

// Dependencies wires the catalog to its lookups.
type Dependencies struct {
	Insurance InsuranceLookup
	Slots     SlotLookup
	// Location renders slot times and interprets offset-less arguments.
	Location *time.Location
	// Now is embedded in guidance text so the model can resolve relative
	// dates. Zero means time.Now().
	Now time.Time
}

type entry struct {
	spec   llm.FunctionSpec
	schema *jsonschema.Schema
	invoke func(ctx context.Context, args json.RawMessage) (string, error)
}

// define binds a declared function to a strongly typed handler. Arguments are
// checked for shape against the declared schema before being decoded into A.
func define[A any](spec llm.FunctionSpec, handle func(ctx context.Context, args A) (string, error)) (entry, error) {
	params, err := relaxSchema(spec.Parameters)
	if err != nil {
		return entry{}, fmt.Errorf("%s parameters: %w", spec.Name, err)
	}
	schema, err := compileSchema(spec.Name, params)
	if err != nil {
		return entry{}, err
	}
	return entry{
		spec:   spec,
		schema: schema,
		invoke: func(ctx context.Context, raw json.RawMessage) (string, error) {
			var args A
			if err := json.Unmarshal(raw, &args); err != nil {
				return "", &ParseError{Function: spec.Name, Err: err}
			}
			return handle(ctx, args)
		},
	}, nil
}

// relaxSchema drops the keywords that only guide the model. An enum names the
// values the model should snap misheard input to, and date-time values may
// omit the offset; handlers decide what to do with anything else.
func relaxSchema(params json.RawMessage) (json.RawMessage, error) {
	var root map[string]any
	if err := json.Unmarshal(params, &root); err != nil {
		return nil, err
	}
	relaxNode(root)
	return json.Marshal(root)
}

func relaxNode(node map[string]any) {
	delete(node, "enum")
	delete(node, "format")
	if props, ok := node["properties"].(map[string]any); ok {
		for _, prop := range props {
			if child, ok := prop.(map[string]any); ok {
				relaxNode(child)
			}
		}
	}
	if items, ok := node["items"].(map[string]any); ok {
		relaxNode(items)
	}
}

func compileSchema(name string, params json.RawMessage) (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	url := name + ".json"
	if err := compiler.AddResource(url, strings.NewReader(string(params))); err != nil {
		return nil, fmt.Errorf("add %s schema: %w", name, err)
	}
	schema, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile %s schema: %w", name, err)
	}
	return schema, nil
}

// Catalog is the static set of functions offered to the model, together with
// exactly one handler per declared name.
type Catalog struct {
	specs   []llm.FunctionSpec
	entries map[string]entry
}

// NewCatalog builds the catalog and checks that declarations and handlers
// correspond one to one.
func NewCatalog(deps Dependencies) (*Catalog, error) {
	if deps.Insurance == nil || deps.Slots == nil {
		return nil, errors.New("functions: insurance and slot lookups are required")
	}
	if deps.Location == nil {
		deps.Location = time.UTC
	}
	if deps.Now.IsZero() {
		deps.Now = time.Now()
	}

	insurance, err := define(insuranceSpec(), insuranceHandler(deps.Insurance))
	if err != nil {
		return nil, err
	}
	slots, err := define(slotsSpec(deps.Now, deps.Location), slotsHandler(deps.Slots, deps.Location))
	if err != nil {
		return nil, err
	}

	return newCatalog(insurance, slots)
}

func newCatalog(entries ...entry) (*Catalog, error) {
	c := &Catalog{entries: make(map[string]entry, len(entries))}
	for _, e := range entries {
		if _, dup := c.entries[e.spec.Name]; dup {
			return nil, fmt.Errorf("functions: duplicate handler for %s", e.spec.Name)
		}
		c.specs = append(c.specs, e.spec)
		c.entries[e.spec.Name] = e
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks that every declared function has exactly one handler and
// every handler is declared.
func (c *Catalog) Validate() error {
	declared := make(map[string]int, len(c.specs))
	for _, spec := range c.specs {
		if strings.TrimSpace(spec.Name) == "" {
			return errors.New("functions: declared function without a name")
		}
		declared[spec.Name]++
	}
	for name, count := range declared {
		if count != 1 {
			return fmt.Errorf("functions: %s declared %d times", name, count)
		}
		if _, ok := c.entries[name]; !ok {
			return fmt.Errorf("functions: %s declared without a handler", name)
		}
	}
	for name := range c.entries {
		if declared[name] == 0 {
			return fmt.Errorf("functions: handler %s is not declared", name)
		}
	}
	return nil
}

// Specs returns the declarations offered to the model, in declaration order.
func (c *Catalog) Specs() []llm.FunctionSpec {
	out := make([]llm.FunctionSpec, len(c.specs))
	copy(out, c.specs)
	return out
}

// Names returns the declared function names, sorted.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.entries))
	for name := range c.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Invoke validates the call's arguments, runs its handler and returns the
// formatted result text. Malformed or mistyped arguments are *ParseError; an
// undeclared name wraps ErrUnknownFunction. Values outside an advertised enum
// still reach the handler.
func (c *Catalog) Invoke(ctx context.Context, call conversation.FunctionCall) (string, error) {
	e, ok := c.entries[call.Name]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownFunction, call.Name)
	}

	raw := json.RawMessage(strings.TrimSpace(call.Arguments))
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return "", &ParseError{Function: call.Name, Err: err}
	}
	if err := e.schema.Validate(doc); err != nil {
		return "", &ParseError{Function: call.Name, Err: err}
	}
	return e.invoke(ctx, raw)
}

func mustParams(v map[string]any) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return raw
}
