package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcp-sandbox-server/pkg/command"
	"mcp-sandbox-server/pkg/mcp"
	"mcp-sandbox-server/pkg/sandbox"
	"mcp-sandbox-server/pkg/tool"
)

type fakeCatalog struct {
	result any
	err    error
	called string
	args   json.RawMessage
}

func (f *fakeCatalog) Catalog() []*sdkmcp.Tool {
	return []*sdkmcp.Tool{{Name: "echo"}}
}

func (f *fakeCatalog) Call(_ context.Context, name string, args json.RawMessage) (any, error) {
	f.called = name
	f.args = args
	return f.result, f.err
}

func request(t *testing.T, id string, method mcp.Method, params any) *mcp.Request {
	t.Helper()
	req := &mcp.Request{JSONRPC: mcp.Version, ID: json.RawMessage(id), Method: method}
	if params != nil {
		raw, err := json.Marshal(params)
		require.NoError(t, err)
		req.Params = raw
	}
	return req
}

// roundTrip encodes a response the way the transports do and decodes it
// generically.
func roundTrip(t *testing.T, resp *mcp.Response) map[string]any {
	t.Helper()
	raw, err := json.Marshal(resp)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func callText(t *testing.T, resp *mcp.Response) string {
	t.Helper()
	require.Nil(t, resp.Error)
	res, ok := resp.Result.(*sdkmcp.CallToolResult)
	require.True(t, ok)
	require.Len(t, res.Content, 1)
	txt, ok := res.Content[0].(*sdkmcp.TextContent)
	require.True(t, ok, "expected TextContent in result content")
	return txt.Text
}

func TestInitialize(t *testing.T) {
	r := New(&fakeCatalog{})

	out := roundTrip(t, r.Handle(context.Background(), request(t, `1`, mcp.MethodInitialize, nil)))
	assert.Equal(t, "2.0", out["jsonrpc"])
	assert.EqualValues(t, 1, out["id"])
	result := out["result"].(map[string]any)
	assert.Equal(t, "2024-11-05", result["protocolVersion"])
	assert.Equal(t, map[string]any{"name": "Local Filesystem Server", "version": "1.1.0"}, result["serverInfo"])
	caps := result["capabilities"].(map[string]any)
	assert.Contains(t, caps, "tools")
}

func TestToolsList(t *testing.T) {
	r := New(&fakeCatalog{})

	resp := r.Handle(context.Background(), request(t, `"a"`, mcp.MethodToolsList, nil))
	require.Nil(t, resp.Error)
	list := resp.Result.(*sdkmcp.ListToolsResult)
	require.Len(t, list.Tools, 1)
	assert.Equal(t, "echo", list.Tools[0].Name)
	assert.Equal(t, json.RawMessage(`"a"`), resp.ID)
}

func TestUnknownMethod(t *testing.T) {
	r := New(&fakeCatalog{})

	resp := r.Handle(context.Background(), request(t, `7`, "resources/list", nil))
	require.NotNil(t, resp.Error)
	assert.Equal(t, mcp.CodeMethodNotFound, resp.Error.Code)
	assert.Equal(t, "Unknown method: resources/list", resp.Error.Message)
	assert.Equal(t, json.RawMessage(`7`), resp.ID)
}

func TestToolsCallEncodesResultAsText(t *testing.T) {
	f := &fakeCatalog{result: map[string]string{"html": "<b>&</b>"}}
	r := New(f)

	resp := r.Handle(context.Background(), request(t, `2`, mcp.MethodToolsCall, map[string]any{
		"name":      "echo",
		"arguments": map[string]string{"x": "y"},
	}))
	assert.Equal(t, "echo", f.called)
	assert.JSONEq(t, `{"x":"y"}`, string(f.args))
	assert.Equal(t, "{\n  \"html\": \"<b>&</b>\"\n}", callText(t, resp))

	out := roundTrip(t, resp)
	content := out["result"].(map[string]any)["content"].([]any)
	assert.Equal(t, "text", content[0].(map[string]any)["type"])
}

func TestToolsCallErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		params any
		code   int
		msg    string
	}{
		{"unknown tool", fmt.Errorf("%w: nope", tool.ErrUnknownTool), map[string]any{"name": "nope"}, mcp.CodeMethodNotFound, "Unknown tool: nope"},
		{"tool failure", errors.New("boom"), map[string]any{"name": "echo"}, mcp.CodeToolExecution, "boom"},
		{"missing name", nil, map[string]any{"arguments": map[string]any{}}, mcp.CodeInvalidRequest, ""},
		{"params not object", nil, []string{"echo"}, mcp.CodeInvalidRequest, ""},
		{"arguments not object", nil, map[string]any{"name": "echo", "arguments": "x"}, mcp.CodeInvalidRequest, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := New(&fakeCatalog{err: tc.err})
			resp := r.Handle(context.Background(), request(t, `3`, mcp.MethodToolsCall, tc.params))
			require.NotNil(t, resp.Error)
			assert.Equal(t, tc.code, resp.Error.Code)
			if tc.msg != "" {
				assert.Equal(t, tc.msg, resp.Error.Message)
			}
			assert.Nil(t, resp.Result)
		})
	}
}

func TestToolsCallMissingParams(t *testing.T) {
	r := New(&fakeCatalog{})

	resp := r.Handle(context.Background(), request(t, `4`, mcp.MethodToolsCall, nil))
	require.NotNil(t, resp.Error)
	assert.Equal(t, mcp.CodeInvalidRequest, resp.Error.Code)
}

func TestToolsCallEncodingFailure(t *testing.T) {
	r := New(&fakeCatalog{result: map[string]any{"ch": make(chan int)}})

	resp := r.Handle(context.Background(), request(t, `5`, mcp.MethodToolsCall, map[string]any{"name": "echo"}))
	require.NotNil(t, resp.Error)
	assert.Equal(t, mcp.CodeInternal, resp.Error.Code)
}

func TestWithRegistry(t *testing.T) {
	root, err := sandbox.NewRoot(t.TempDir())
	require.NoError(t, err)
	r := New(tool.NewRegistry(root, command.NewRunner(command.DefaultTimeout)))

	resp := r.Handle(context.Background(), request(t, `1`, mcp.MethodToolsCall, map[string]any{
		"name":      "write_file",
		"arguments": map[string]string{"path": "a.txt", "content": "hi"},
	}))
	var written map[string]any
	require.NoError(t, json.Unmarshal([]byte(callText(t, resp)), &written))
	assert.Equal(t, true, written["success"])

	resp = r.Handle(context.Background(), request(t, `2`, mcp.MethodToolsCall, map[string]any{
		"name":      "write_file",
		"arguments": map[string]string{"path": "../escape.txt", "content": "hi"},
	}))
	require.NotNil(t, resp.Error)
	assert.Equal(t, mcp.CodeToolExecution, resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "path outside allowed directory")

	resp = r.Handle(context.Background(), request(t, `3`, mcp.MethodToolsList, nil))
	assert.Len(t, resp.Result.(*sdkmcp.ListToolsResult).Tools, 7)
}
