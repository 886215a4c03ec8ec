package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"mcp-sandbox-server/pkg/mcp"
)

const (
	DefaultHeartbeat    = 30 * time.Second
	DefaultMaxBodyBytes = 16 << 20

	shutdownTimeout = 5 * time.Second
)

// Options tunes the HTTP transport. Zero values select the defaults.
type Options struct {
	Heartbeat    time.Duration
	MaxBodyBytes int64
	// Probe is the result served by GET /.
	Probe any
}

type httpServer struct {
	handle Handler
	opts   Options
}

// NewHTTPHandler serves JSON-RPC over POST / and POST /sse/, an event stream
// on GET /sse/ and a capability probe on GET /. Every request is handled on
// its own goroutine by net/http; the server keeps no per-connection state
// beyond the stream loop itself.
func NewHTTPHandler(handle Handler, opts Options) http.Handler {
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = DefaultHeartbeat
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}
	return &httpServer{handle: handle, opts: opts}
}

func (s *httpServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w.Header())
	defer func() {
		if rec := recover(); rec != nil {
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			slog.Error("Panic while handling request", "path", r.URL.Path, "panic", rec)
			writeJSON(w, http.StatusInternalServerError,
				mcp.NewErrorResponse(nil, mcp.CodeInternal, fmt.Sprintf("Internal error: %v", rec)))
		}
	}()

	switch {
	case r.Method == http.MethodOptions:
		w.WriteHeader(http.StatusNoContent)
	case r.Method == http.MethodGet && r.URL.Path == "/":
		writeJSON(w, http.StatusOK, mcp.NewResult(nil, s.opts.Probe))
	case r.Method == http.MethodGet && r.URL.Path == "/sse/":
		s.streamHandler(w, r)
	case r.Method == http.MethodPost && (r.URL.Path == "/" || r.URL.Path == "/sse/"):
		s.rpcHandler(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (s *httpServer) rpcHandler(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		msg := "Failed to read request body"
		if errors.As(err, &tooLarge) {
			msg = fmt.Sprintf("Request body exceeds %d bytes", tooLarge.Limit)
		}
		writeJSON(w, http.StatusBadRequest, mcp.NewErrorResponse(nil, mcp.CodeInvalidRequest, msg))
		return
	}
	if len(body) == 0 {
		writeJSON(w, http.StatusBadRequest, mcp.NewErrorResponse(nil, mcp.CodeInvalidRequest, "No content"))
		return
	}

	req, err := mcp.ParseRequest(body)
	if err != nil {
		slog.Warn("Rejected malformed request", "error", err)
		writeJSON(w, http.StatusBadRequest,
			mcp.NewErrorResponse(mcp.RecoverID(body), mcp.CodeInvalidRequest, "Invalid JSON: "+err.Error()))
		return
	}

	slog.Debug("Received MCP request", "method", req.Method, "id", string(req.ID))
	writeJSON(w, http.StatusOK, s.handle(r.Context(), req))
}

// streamHandler holds the connection open, announcing readiness once and then
// sending a ping every heartbeat until the peer goes away or a write fails.
func (s *httpServer) streamHandler(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported!", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	sessionID := uuid.NewString()
	slog.Info("SSE client registered", "sessionId", sessionID)
	defer slog.Info("SSE client unregistered", "sessionId", sessionID)

	ready := map[string]any{
		"jsonrpc": mcp.Version,
		"method":  "notifications/server/ready",
		"params": map[string]string{
			"message":   "SSE stream established",
			"sessionId": sessionID,
		},
	}
	if err := sendSSEEvent(w, flusher, "message", ready); err != nil {
		return
	}

	ticker := time.NewTicker(s.opts.Heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if err := sendSSEEvent(w, flusher, "ping", map[string]string{"type": "ping"}); err != nil {
				slog.Debug("SSE write failed", "sessionId", sessionID, "error", err)
				return
			}
		}
	}
}

// RunHTTP serves handler on addr until ctx is cancelled, then shuts down
// gracefully. Open event streams end when their request contexts are
// cancelled by the shutdown.
func RunHTTP(ctx context.Context, addr string, handler http.Handler) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return serve(ctx, ln, handler)
}

func serve(ctx context.Context, ln net.Listener, handler http.Handler) error {
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("Starting HTTP server", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		slog.Info("Shutting down HTTP server")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func setCORSHeaders(h http.Header) {
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "Content-Type")
}

func writeJSON(w http.ResponseWriter, status int, resp *mcp.Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		slog.Error("Failed to marshal response", "error", err)
		status = http.StatusInternalServerError
		data, _ = json.Marshal(mcp.NewErrorResponse(resp.ID, mcp.CodeInternal, "failed to encode response"))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// sendSSEEvent sends a properly formatted SSE event.
func sendSSEEvent(w io.Writer, flusher http.Flusher, event string, data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, jsonData); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
