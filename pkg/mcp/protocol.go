package mcp

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Version is the fixed JSON-RPC envelope version string.
const Version = "2.0"

// JSON-RPC error codes used by the server.
const (
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInternal       = -32603
	CodeToolExecution  = -32000
)

// Method is one of the closed set of JSON-RPC methods the router understands.
type Method string

const (
	MethodInitialize Method = "initialize"
	MethodToolsList  Method = "tools/list"
	MethodToolsCall  Method = "tools/call"
)

// ErrMalformedRequest is returned by ParseRequest when the body is not a JSON-RPC object.
var ErrMalformedRequest = errors.New("malformed request")

// Request represents an inbound JSON-RPC request.
type Request struct {
	JSONRPC string          `json:"jsonrpc,omitempty"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  Method          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response represents a JSON-RPC response. A nil ID is encoded as null.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Error represents a structured JSON-RPC error.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// NewError creates a new JSON-RPC error.
func NewError(code int, message string) *Error {
	return &Error{Code: code, Message: message}
}

// NewResult builds a successful response echoing id.
func NewResult(id json.RawMessage, result any) *Response {
	return &Response{JSONRPC: Version, ID: id, Result: result}
}

// NewErrorResponse builds an error response echoing id.
func NewErrorResponse(id json.RawMessage, code int, message string) *Response {
	return &Response{JSONRPC: Version, ID: id, Error: NewError(code, message)}
}

// ParseRequest decodes a single JSON-RPC envelope.
func ParseRequest(body []byte) (*Request, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, fmt.Errorf("%w: expected a JSON object", ErrMalformedRequest)
	}
	var req Request
	if err := json.Unmarshal(trimmed, &req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRequest, err)
	}
	return &req, nil
}

// RecoverID extracts a top-level id from a body that failed to parse as a
// request. It returns nil (encoded as null) unless the body is a JSON object
// whose id member is a string or number.
func RecoverID(body []byte) json.RawMessage {
	var probe struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(body, &probe); err != nil || len(probe.ID) == 0 {
		return nil
	}
	switch probe.ID[0] {
	case '"', '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		return probe.ID
	}
	return nil
}
