package mcp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
)

// ErrDuplicateTool is returned when a tool name is registered twice.
var ErrDuplicateTool = errors.New("duplicate tool")

// ValidationError reports arguments that do not satisfy a tool's schema.
// The handler is never invoked when one is returned.
type ValidationError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Content is one typed block of a tool result.
type Content struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// CallToolResult is the tools/call result envelope.
type CallToolResult struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError,omitempty"`
}

// TextResult builds a successful single-block result.
func TextResult(text string) *CallToolResult {
	return &CallToolResult{Content: []Content{{Type: "text", Text: text}}}
}

// ErrorResult builds a result carrying a tool-level failure. The call itself
// still succeeds at the protocol level.
func ErrorResult(text string) *CallToolResult {
	return &CallToolResult{Content: []Content{{Type: "text", Text: text}}, IsError: true}
}

// Handler executes a tool against raw JSON arguments.
type Handler func(ctx context.Context, args json.RawMessage) (*CallToolResult, error)

// ToolFunc is a handler taking decoded, validated parameters.
type ToolFunc[P any] func(ctx context.Context, params P) (*CallToolResult, error)

// Validator is implemented by parameter structs with cross-field rules.
type Validator interface {
	Validate() error
}

type registeredTool struct {
	handler Handler
	Tool
}

// Registry holds tools in registration order.
type Registry struct {
	tools map[string]*registeredTool
	order []string
	mu    sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*registeredTool)}
}

// Register adds a tool. Names must be unique and non-empty.
func (r *Registry) Register(tool Tool, handler Handler) error {
	if tool.Name == "" {
		return errors.New("tool name is required")
	}
	if handler == nil {
		return fmt.Errorf("tool %s: handler is required", tool.Name)
	}
	if tool.InputSchema == nil {
		tool.InputSchema = map[string]any{"type": "object"}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[tool.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTool, tool.Name)
	}
	r.tools[tool.Name] = &registeredTool{Tool: tool, handler: handler}
	r.order = append(r.order, tool.Name)
	return nil
}

// List returns tool definitions in registration order.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tools := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		tools = append(tools, r.tools[name].Tool)
	}
	return tools
}

func (r *Registry) lookup(name string) (*registeredTool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// AddTool registers a typed tool on the server's registry. Arguments are
// decoded strictly into P (unknown fields and wrong JSON types are
// rejected), checked against P's `validate` tags and, if P implements
// Validator, its Validate method.
func AddTool[P any](s *Server, name, description string, schema map[string]any, fn ToolFunc[P]) error {
	keys := argumentKeys(reflect.TypeOf((*P)(nil)).Elem())

	return s.registry.Register(Tool{
		Name:        name,
		Description: description,
		InputSchema: schema,
	}, func(ctx context.Context, args json.RawMessage) (*CallToolResult, error) {
		var params P
		if err := decodeArgs(args, keys, &params); err != nil {
			return nil, err
		}
		if err := validateArgs(&params); err != nil {
			return nil, err
		}
		return fn(ctx, params)
	})
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func argsValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// decodeArgs decodes args into dest. keys maps both Go field names and JSON
// keys of dest to the JSON key, so errors always name the key the client sent.
func decodeArgs(args json.RawMessage, keys map[string]string, dest any) error {
	trimmed := bytes.TrimSpace(args)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		trimmed = []byte("{}")
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return &ValidationError{Field: "arguments", Reason: "must be a JSON object"}
	}

	unknown := make([]string, 0)
	for key := range fields {
		if k, ok := keys[key]; !ok || k != key {
			unknown = append(unknown, key)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return &ValidationError{Field: unknown[0], Reason: "unknown field"}
	}

	if err := json.Unmarshal(trimmed, dest); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return &ValidationError{Field: argumentKey(typeErr.Field, keys), Reason: fmt.Sprintf("must be %s", typeErr.Type)}
		}
		return &ValidationError{Field: "arguments", Reason: err.Error()}
	}
	return nil
}

func validateArgs(params any) error {
	if err := argsValidator().Struct(params); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			reason := fe.Tag()
			if fe.Param() != "" {
				reason += "=" + fe.Param()
			}
			return &ValidationError{Field: fe.Field(), Reason: reason}
		}
		var invalid *validator.InvalidValidationError
		if !errors.As(err, &invalid) {
			return &ValidationError{Field: "arguments", Reason: err.Error()}
		}
	}

	if v, ok := params.(Validator); ok {
		if err := v.Validate(); err != nil {
			var ve *ValidationError
			if errors.As(err, &ve) {
				return ve
			}
			return &ValidationError{Field: "arguments", Reason: err.Error()}
		}
	}
	return nil
}

// argumentKey resolves a decoder field path such as "ID" or "Paging.Limit"
// to the JSON key it came from.
func argumentKey(field string, keys map[string]string) string {
	if field == "" {
		return "arguments"
	}
	for _, part := range strings.Split(field, ".") {
		if key, ok := keys[part]; ok {
			return key
		}
	}
	return field
}

// argumentKeys indexes the JSON keys of a struct type by both Go field name
// and key.
func argumentKeys(t reflect.Type) map[string]string {
	keys := make(map[string]string)
	if t.Kind() != reflect.Struct {
		return keys
	}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			continue
		}
		if f.Anonymous && name == "" {
			for k, v := range argumentKeys(f.Type) {
				keys[k] = v
			}
			continue
		}
		if name == "" {
			name = f.Name
		}
		keys[f.Name] = name
		keys[name] = name
	}
	return keys
}

// jsonFieldNames returns the JSON object keys a struct type accepts.
func jsonFieldNames(t reflect.Type) map[string]struct{} {
	names := make(map[string]struct{})
	for _, key := range argumentKeys(t) {
		names[key] = struct{}{}
	}
	return names
}
