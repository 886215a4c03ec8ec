package tool

import (
	"fmt"
	"regexp"

	"github.com/google/jsonschema-go/jsonschema"
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

var toolNameRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

func newTool(name Name, description string, input *jsonschema.Schema) *sdkmcp.Tool {
	if !toolNameRegex.MatchString(string(name)) {
		panic(fmt.Errorf("invalid tool name: %s (must match ^[a-zA-Z0-9_-]+$)", name))
	}
	return &sdkmcp.Tool{Name: string(name), Description: description, InputSchema: input}
}

func object(props map[string]*jsonschema.Schema, required ...string) *jsonschema.Schema {
	return &jsonschema.Schema{Type: "object", Properties: props, Required: required}
}

func str(description string) *jsonschema.Schema {
	return &jsonschema.Schema{Type: "string", Description: description}
}

func buildCatalog() []*sdkmcp.Tool {
	return []*sdkmcp.Tool{
		newTool(Shell, "Execute commands within the allowed workspace", object(map[string]*jsonschema.Schema{
			"command": {
				OneOf: []*jsonschema.Schema{
					str("Command string, split using shell word rules with no shell interpretation. Unquoted operators (|, ;, &&, >) are rejected; quote them or use sh -c"),
					{Type: "array", Items: &jsonschema.Schema{Type: "string"}, Description: "Command argv"},
				},
			},
			"workdir": str("Working directory (relative or absolute within allowed root)"),
			"timeout": {Type: "integer", Description: "Timeout (seconds)"},
		}, "command", "workdir")),

		newTool(ApplyPatch, "Apply a multi-file patch in the '*** Begin Patch' format (full-file replacements)", object(map[string]*jsonschema.Schema{
			"patch": str("Patch text (*** Begin Patch / *** Update File: path / *** End Patch)"),
		}, "patch")),

		newTool(Search, "Search for files and directories", object(map[string]*jsonschema.Schema{
			"query": str("Search query (empty = list root)"),
		}, "query")),

		newTool(Fetch, "Fetch file or directory contents", object(map[string]*jsonschema.Schema{
			"id": str("File or directory path"),
		}, "id")),

		newTool(WriteFile, "Write a UTF-8 text file (creates parents)", object(map[string]*jsonschema.Schema{
			"path":    {Type: "string"},
			"content": {Type: "string"},
		}, "path", "content")),

		newTool(CreateDirectory, "Create a directory (and parents)", object(map[string]*jsonschema.Schema{
			"path": {Type: "string"},
		}, "path")),

		newTool(DeleteFile, "Delete a file or directory (recursive for directories)", object(map[string]*jsonschema.Schema{
			"path": {Type: "string"},
		}, "path")),
	}
}
