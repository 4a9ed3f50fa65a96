// Package mcp provides the MCP (Model Context Protocol) server for placefeed.
package mcp

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/thebtf/placefeed/internal/metrics"
)

// Protocol versions this server can speak, newest first.
var supportedProtocolVersions = []string{"2025-06-18", "2025-03-26", "2024-11-05"}

// LatestProtocolVersion is offered when the client asks for an unknown version.
const LatestProtocolVersion = "2025-06-18"

// JSON-RPC error codes.
const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternalError  = -32603
)

// Server is the MCP server that dispatches JSON-RPC requests to registered tools.
type Server struct {
	stdin    io.Reader
	stdout   io.Writer
	registry *Registry
	metrics  *metrics.Collector
	tracer   trace.Tracer
	name     string
	version  string
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics records tool calls on c.
func WithMetrics(c *metrics.Collector) Option {
	return func(s *Server) { s.metrics = c }
}

// WithStdio overrides the streams used by Run.
func WithStdio(in io.Reader, out io.Writer) Option {
	return func(s *Server) {
		s.stdin = in
		s.stdout = out
	}
}

// NewServer creates a new MCP server with an empty tool registry.
func NewServer(name, version string, opts ...Option) *Server {
	s := &Server{
		name:     name,
		version:  version,
		stdin:    os.Stdin,
		stdout:   os.Stdout,
		registry: NewRegistry(),
		tracer:   otel.Tracer("github.com/thebtf/placefeed/internal/mcp"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the server name reported on initialize.
func (s *Server) Name() string {
	return s.name
}

// Registry returns the server's tool registry.
func (s *Server) Registry() *Registry {
	return s.registry
}

// Request represents a JSON-RPC request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// IsNotification reports whether the request expects no response.
func (r *Request) IsNotification() bool {
	return r.ID == nil
}

// Response represents a JSON-RPC response.
type Response struct {
	ID      any    `json:"id"`
	Result  any    `json:"result,omitempty"`
	Error   *Error `json:"error,omitempty"`
	JSONRPC string `json:"jsonrpc"`
}

// Error represents a JSON-RPC error.
type Error struct {
	Data    any    `json:"data,omitempty"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// ToolCallParams represents parameters for tools/call method.
type ToolCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// Tool represents an MCP tool definition.
type Tool struct {
	InputSchema map[string]any `json:"inputSchema"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
}

// InitializeParams is the subset of initialize parameters the server reads.
type InitializeParams struct {
	ProtocolVersion string `json:"protocolVersion"`
}

// Run serves newline-delimited JSON-RPC on stdin/stdout until EOF.
func (s *Server) Run(ctx context.Context) error {
	scanner := bufio.NewScanner(s.stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			s.sendError(nil, codeParseError, "Parse error", err.Error())
			continue
		}

		resp, err := s.handleRequest(ctx, &req)
		if err != nil {
			log.Error().Err(err).Str("method", req.Method).Msg("MCP request failed")
			s.sendError(req.ID, codeInternalError, "Internal error", nil)
			continue
		}
		if resp != nil {
			s.sendResponse(resp)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scanner error: %w", err)
	}
	return nil
}

// handleRequest dispatches the request to the appropriate handler.
// It returns a nil response for notifications and an error only for
// faults no JSON-RPC error can describe.
func (s *Server) handleRequest(ctx context.Context, req *Request) (*Response, error) {
	if req.IsNotification() {
		log.Debug().Str("method", req.Method).Msg("MCP notification")
		return nil, nil
	}

	if req.JSONRPC != "2.0" {
		return errorResponse(req.ID, codeInvalidRequest, "Invalid Request", "jsonrpc must be \"2.0\""), nil
	}

	switch req.Method {
	case "initialize":
		return s.handleInitialize(req), nil
	case "ping":
		return &Response{JSONRPC: "2.0", ID: req.ID, Result: map[string]any{}}, nil
	case "tools/list":
		return s.handleToolsList(req), nil
	case "tools/call":
		return s.handleToolsCall(ctx, req)
	default:
		return errorResponse(req.ID, codeMethodNotFound, "Method not found", nil), nil
	}
}

// negotiateProtocol returns the version the server will speak for a request.
func negotiateProtocol(params json.RawMessage) string {
	var p InitializeParams
	if len(params) > 0 {
		_ = json.Unmarshal(params, &p)
	}
	if slices.Contains(supportedProtocolVersions, p.ProtocolVersion) {
		return p.ProtocolVersion
	}
	return LatestProtocolVersion
}

// handleInitialize handles the initialize request.
func (s *Server) handleInitialize(req *Request) *Response {
	return &Response{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]any{
			"protocolVersion": negotiateProtocol(req.Params),
			"capabilities": map[string]any{
				"tools": map[string]any{"listChanged": false},
			},
			"serverInfo": map[string]any{
				"name":    s.name,
				"version": s.version,
			},
		},
	}
}

// handleToolsList returns the list of available tools.
func (s *Server) handleToolsList(req *Request) *Response {
	return &Response{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]any{
			"tools": s.registry.List(),
		},
	}
}

// handleToolsCall handles tool invocations.
func (s *Server) handleToolsCall(ctx context.Context, req *Request) (*Response, error) {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorResponse(req.ID, codeInvalidParams, "Invalid params", err.Error()), nil
	}

	result, err := s.Dispatch(ctx, params.Name, params.Arguments)
	if err != nil {
		var ve *ValidationError
		if errors.As(err, &ve) {
			return errorResponse(req.ID, codeInvalidParams, "Invalid params", ve), nil
		}
		return nil, err
	}

	return &Response{JSONRPC: "2.0", ID: req.ID, Result: result}, nil
}

// Dispatch validates args against the named tool and runs it.
//
// A *ValidationError means the handler never ran. Any other error, including
// a handler panic, is a fault the caller cannot recover from; tool-level
// failures come back as a result with IsError set.
func (s *Server) Dispatch(ctx context.Context, name string, args json.RawMessage) (result *CallToolResult, err error) {
	ctx, span := s.tracer.Start(ctx, "tools/call "+name,
		trace.WithAttributes(attribute.String("mcp.tool.name", name)))
	start := time.Now()

	defer func() {
		if p := recover(); p != nil {
			result = nil
			err = fmt.Errorf("tool %s panicked: %v", name, p)
		}

		outcome := metrics.OutcomeOK
		var ve *ValidationError
		switch {
		case errors.As(err, &ve):
			outcome = metrics.OutcomeInvalid
		case err != nil:
			outcome = metrics.OutcomeFatal
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		case result.IsError:
			outcome = metrics.OutcomeToolError
		}
		span.SetAttributes(attribute.String("mcp.tool.outcome", outcome))
		span.End()

		elapsed := time.Since(start)
		s.metrics.ObserveTool(name, outcome, elapsed)
		log.Debug().Str("tool", name).Str("outcome", outcome).Dur("elapsed", elapsed).Msg("Tool call")
	}()

	tool, ok := s.registry.lookup(name)
	if !ok {
		return nil, &ValidationError{Field: "name", Reason: fmt.Sprintf("unknown tool %q", name)}
	}

	result, err = tool.handler(ctx, args)
	if err != nil {
		return nil, err
	}
	if result == nil {
		result = &CallToolResult{}
	}
	if result.Content == nil {
		result.Content = []Content{}
	}
	return result, nil
}

func errorResponse(id any, code int, message string, data any) *Response {
	return &Response{
		JSONRPC: "2.0",
		ID:      id,
		Error: &Error{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
}

// sendResponse sends a JSON-RPC response.
func (s *Server) sendResponse(resp *Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal response")
		return
	}
	fmt.Fprintln(s.stdout, string(data))
}

// sendError sends a JSON-RPC error response.
func (s *Server) sendError(id any, code int, message string, data any) {
	s.sendResponse(errorResponse(id, code, message, data))
}
