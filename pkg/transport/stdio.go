package transport

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"mcp-sandbox-server/pkg/mcp"
)

// Handler answers a single JSON-RPC request. router.Router.Handle satisfies it.
type Handler func(ctx context.Context, req *mcp.Request) *mcp.Response

const maxStdioLine = 16 << 20

// RunStdio reads newline-delimited JSON requests from in, passes them to
// handle, and writes newline-delimited responses to out. It returns nil on
// EOF or when ctx is cancelled between requests.
func RunStdio(ctx context.Context, in io.Reader, out io.Writer, handle Handler) error {
	slog.Info("Starting stdio transport listener")
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxStdioLine)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil
		}
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var resp *mcp.Response
		req, err := mcp.ParseRequest(line)
		if err != nil {
			slog.Error("Failed to decode MCP request", "error", err, "raw_request", string(line))
			resp = mcp.NewErrorResponse(mcp.RecoverID(line), mcp.CodeInvalidRequest, "Invalid JSON: "+err.Error())
		} else {
			slog.Debug("Received MCP request", "method", req.Method, "id", string(req.ID))
			resp = handle(ctx, req)
		}

		if err := sendResponse(out, resp); err != nil {
			return fmt.Errorf("failed to write MCP response: %w", err)
		}
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("error reading from stdin: %w", err)
	}
	slog.Info("EOF received, shutting down stdio listener")
	return nil
}

// sendResponse marshals and writes a response to the given writer.
func sendResponse(writer io.Writer, resp *mcp.Response) error {
	slog.Debug("Sending MCP response", "id", string(resp.ID))
	respBytes, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	respBytes = append(respBytes, '\n')
	_, err = writer.Write(respBytes)
	return err
}
