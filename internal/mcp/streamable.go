package mcp

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
)

// SessionHeader carries the session token on every request after initialize.
const SessionHeader = "Mcp-Session-Id"

// DefaultKeepAlive is the comment interval on idle server streams.
const DefaultKeepAlive = 25 * time.Second

const codeSessionNotFound = -32001

// StreamableHandler implements the session-scoped MCP Streamable HTTP
// transport on a single endpoint:
//
//	POST    JSON-RPC message, answered inline as JSON or a single SSE event
//	GET     server stream for the session (keepalives only)
//	DELETE  terminate the session
//	OPTIONS CORS preflight
type StreamableHandler struct {
	server    *Server
	sessions  *Sessions
	keepAlive time.Duration
}

// StreamableOption configures a StreamableHandler.
type StreamableOption func(*StreamableHandler)

// WithKeepAlive sets the keepalive interval on GET streams.
func WithKeepAlive(d time.Duration) StreamableOption {
	return func(h *StreamableHandler) {
		if d > 0 {
			h.keepAlive = d
		}
	}
}

// NewStreamableHandler creates a transport that keeps its sessions in sessions.
func NewStreamableHandler(server *Server, sessions *Sessions, opts ...StreamableOption) *StreamableHandler {
	h := &StreamableHandler{
		server:    server,
		sessions:  sessions,
		keepAlive: DefaultKeepAlive,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Sessions returns the handler's session registry.
func (h *StreamableHandler) Sessions() *Sessions {
	return h.sessions
}

// Close terminates all sessions.
func (h *StreamableHandler) Close() {
	h.sessions.Close()
}

// ServeHTTP routes by method.
func (h *StreamableHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	writeCORS(w)

	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusNoContent)
	case http.MethodPost:
		h.handlePost(w, r)
	case http.MethodGet:
		h.handleGet(w, r)
	case http.MethodDelete:
		h.handleDelete(w, r)
	default:
		w.Header().Set("Allow", "GET, POST, DELETE, OPTIONS")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *StreamableHandler) handlePost(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		log.Warn().Err(err).Msg("Failed to read MCP request body")
		writeJSONError(w, http.StatusBadRequest, nil, codeParseError, "Parse error")
		return
	}

	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		log.Debug().Err(err).Msg("Failed to decode Streamable HTTP MCP request")
		writeJSONError(w, http.StatusBadRequest, nil, codeParseError, "Parse error")
		return
	}

	if req.JSONRPC != "2.0" {
		writeJSONError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "Invalid Request: jsonrpc must be \"2.0\"")
		return
	}

	var sess *Session
	created := false
	token := r.Header.Get(SessionHeader)
	switch {
	case token == "" && req.Method == "initialize" && req.IsNotification():
		writeJSONError(w, http.StatusBadRequest, nil, codeInvalidRequest, "Invalid Request: initialize requires an id")
		return
	case token == "" && req.Method == "initialize":
		sess = h.sessions.Create()
		created = true
	case token == "":
		writeJSONError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "Bad Request: missing "+SessionHeader)
		return
	default:
		var ok bool
		if sess, ok = h.sessions.Get(token); !ok {
			writeJSONError(w, http.StatusNotFound, req.ID, codeSessionNotFound, "Session not found")
			return
		}
	}
	w.Header().Set(SessionHeader, sess.ID)

	ctx, release := sess.Begin(r.Context())
	defer release()

	// Notifications and client responses are accepted without a body.
	if req.IsNotification() || req.Method == "" {
		if _, err := h.server.handleRequest(ctx, &req); err != nil {
			log.Error().Err(err).Str("sessionId", sess.ID).Msg("MCP notification failed")
		}
		w.WriteHeader(http.StatusAccepted)
		return
	}

	resp, err := h.server.handleRequest(ctx, &req)
	if err != nil {
		log.Error().Err(err).Str("sessionId", sess.ID).Str("method", req.Method).Msg("MCP request failed")
		h.abandon(w, sess, created)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	if created && resp.Error != nil {
		// A failed initialize leaves no session behind.
		h.abandon(w, sess, created)
		writeJSONError(w, http.StatusBadRequest, req.ID, resp.Error.Code, resp.Error.Message)
		return
	}

	payload, err := json.Marshal(resp)
	if err != nil {
		log.Error().Err(err).Str("sessionId", sess.ID).Msg("Failed to marshal MCP response")
		h.abandon(w, sess, created)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	if wantsEventStream(r.Header.Get("Accept")) {
		setStreamHeaders(w)
		w.WriteHeader(http.StatusOK)
		if err := writeSSEEvent(w, "message", payload); err != nil {
			log.Debug().Err(err).Str("sessionId", sess.ID).Msg("Client went away before SSE response")
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(payload); err != nil {
		log.Debug().Err(err).Str("sessionId", sess.ID).Msg("Client went away before response")
	}
}

// abandon drops a session created by the current request.
func (h *StreamableHandler) abandon(w http.ResponseWriter, sess *Session, created bool) {
	if !created {
		return
	}
	w.Header().Del(SessionHeader)
	h.sessions.Terminate(sess.ID)
}

func (h *StreamableHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	if !acceptsEventStream(r.Header.Get("Accept")) {
		http.Error(w, "GET requires Accept: text/event-stream", http.StatusNotAcceptable)
		return
	}

	sess, ok := h.requireSession(w, r)
	if !ok {
		return
	}

	detach, err := sess.attachStream()
	if err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	defer detach()

	flusher, canFlush := w.(http.Flusher)
	w.Header().Set(SessionHeader, sess.ID)
	setStreamHeaders(w)
	w.WriteHeader(http.StatusOK)
	if canFlush {
		flusher.Flush()
	}

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-sess.Done():
			return
		case <-ticker.C:
			if _, err := io.WriteString(w, ": keepalive\n\n"); err != nil {
				log.Debug().Err(err).Str("sessionId", sess.ID).Msg("MCP stream closed")
				return
			}
			if canFlush {
				flusher.Flush()
			}
		}
	}
}

func (h *StreamableHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get(SessionHeader)
	if token == "" {
		http.Error(w, "missing "+SessionHeader, http.StatusBadRequest)
		return
	}
	if !h.sessions.Terminate(token) {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *StreamableHandler) requireSession(w http.ResponseWriter, r *http.Request) (*Session, bool) {
	token := r.Header.Get(SessionHeader)
	if token == "" {
		http.Error(w, "missing "+SessionHeader, http.StatusBadRequest)
		return nil, false
	}
	sess, ok := h.sessions.Get(token)
	if !ok {
		http.Error(w, "session not found", http.StatusNotFound)
		return nil, false
	}
	return sess, true
}

func writeCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET,POST,DELETE,OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept, Authorization, Mcp-Session-Id, Mcp-Protocol-Version")
	w.Header().Set("Access-Control-Expose-Headers", SessionHeader)
}

func setStreamHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

func writeSSEEvent(w http.ResponseWriter, event string, payload []byte) error {
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload); err != nil {
		return err
	}
	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}
	return nil
}

func writeJSONError(w http.ResponseWriter, status int, id any, code int, message string) {
	payload, err := json.Marshal(errorResponse(id, code, message, nil))
	if err != nil {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(payload)
}

// mediaTypes returns the media types listed in an Accept header.
func mediaTypes(accept string) []string {
	var types []string
	for _, part := range strings.Split(accept, ",") {
		mt, _, err := mime.ParseMediaType(strings.TrimSpace(part))
		if err != nil {
			continue
		}
		types = append(types, mt)
	}
	return types
}

func acceptsEventStream(accept string) bool {
	for _, mt := range mediaTypes(accept) {
		if mt == "text/event-stream" {
			return true
		}
	}
	return false
}

// wantsEventStream reports whether text/event-stream is the only type the
// client accepts.
func wantsEventStream(accept string) bool {
	types := mediaTypes(accept)
	if len(types) == 0 {
		return false
	}
	for _, mt := range types {
		if mt != "text/event-stream" {
			return false
		}
	}
	return true
}
