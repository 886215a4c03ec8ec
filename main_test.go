package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rpcLine(t *testing.T, id int, method string, params any) string {
	t.Helper()
	req := map[string]any{"jsonrpc": "2.0", "id": id, "method": method}
	if params != nil {
		req["params"] = params
	}
	b, err := json.Marshal(req)
	require.NoError(t, err)
	return string(b)
}

// toolText extracts the JSON text payload of a tools/call response.
func toolText(t *testing.T, resp map[string]any, out any) {
	t.Helper()
	require.Nil(t, resp["error"], "unexpected error: %v", resp["error"])
	content := resp["result"].(map[string]any)["content"].([]any)
	require.Len(t, content, 1)
	item := content[0].(map[string]any)
	assert.Equal(t, "text", item["type"])
	require.NoError(t, json.Unmarshal([]byte(item["text"].(string)), out))
}

func TestStdioTransport_EndToEnd(t *testing.T) {
	root := t.TempDir()
	input := strings.Join([]string{
		rpcLine(t, 1, "initialize", nil),
		rpcLine(t, 2, "tools/call", map[string]any{
			"name":      "apply_patch",
			"arguments": map[string]string{"patch": "*** Begin Patch\n*** Update File: a.txt\nhello\n*** End Patch"},
		}),
		rpcLine(t, 3, "tools/call", map[string]any{
			"name":      "fetch",
			"arguments": map[string]string{"id": "a.txt"},
		}),
		rpcLine(t, 4, "tools/call", map[string]any{
			"name":      "fetch",
			"arguments": map[string]string{"id": "../../etc/passwd"},
		}),
		rpcLine(t, 5, "nope", nil),
	}, "\n") + "\n"

	var out bytes.Buffer
	app := newApp()
	app.SetArgs([]string{root, "--transport=stdio", "--log-level=error"})
	app.SetIn(strings.NewReader(input))
	app.SetOut(&out)
	require.NoError(t, app.ExecuteContext(context.Background()))

	var responses []map[string]any
	scanner := bufio.NewScanner(&out)
	for scanner.Scan() {
		var m map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &m))
		responses = append(responses, m)
	}
	require.Len(t, responses, 5)

	info := responses[0]["result"].(map[string]any)["serverInfo"].(map[string]any)
	assert.Equal(t, "Local Filesystem Server", info["name"])

	var patched struct {
		Success bool     `json:"success"`
		Updated []string `json:"updated"`
	}
	toolText(t, responses[1], &patched)
	assert.True(t, patched.Success)
	assert.Equal(t, []string{"a.txt"}, patched.Updated)

	var fetched struct {
		Text string `json:"text"`
	}
	toolText(t, responses[2], &fetched)
	assert.Equal(t, "hello\n", fetched.Text)

	errObj := responses[3]["error"].(map[string]any)
	assert.EqualValues(t, -32000, errObj["code"])
	assert.Contains(t, errObj["message"], "path outside allowed directory")

	errObj = responses[4]["error"].(map[string]any)
	assert.EqualValues(t, -32601, errObj["code"])
	assert.Equal(t, "Unknown method: nope", errObj["message"])
}

func TestMissingRootFails(t *testing.T) {
	t.Setenv("MCP_SANDBOX_ROOT", "")
	app := newApp()
	app.SetArgs([]string{"--transport=stdio"})
	app.SetOut(&bytes.Buffer{})
	app.SetErr(&bytes.Buffer{})
	assert.Error(t, app.ExecuteContext(context.Background()))

	app = newApp()
	app.SetArgs([]string{filepath.Join(t.TempDir(), "missing"), "--transport=stdio"})
	app.SetIn(strings.NewReader(""))
	app.SetOut(&bytes.Buffer{})
	assert.Error(t, app.ExecuteContext(context.Background()))
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func TestHTTPTransport_EndToEnd(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.md"), []byte("# notes"), 0644))
	port := freePort(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	app := newApp()
	app.SetArgs([]string{root, "--transport=http", "--host=127.0.0.1", fmt.Sprintf("--port=%d", port), "--log-level=error"})
	go func() { done <- app.ExecuteContext(ctx) }()

	url := fmt.Sprintf("http://127.0.0.1:%d/", port)
	var resp *http.Response
	require.Eventually(t, func() bool {
		var err error
		resp, err = http.Get(url)
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body := rpcLine(t, 1, "tools/call", map[string]any{
		"name":      "search",
		"arguments": map[string]string{"query": "notes"},
	})
	resp, err := http.Post(url+"sse/", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	resp.Body.Close()

	var found struct {
		Results []struct {
			ID string `json:"id"`
		} `json:"results"`
	}
	toolText(t, decoded, &found)
	require.Len(t, found.Results, 1)
	assert.Equal(t, "notes.md", found.Results[0].ID)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not shut down")
	}
}
