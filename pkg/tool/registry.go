package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"mcp-sandbox-server/pkg/command"
	"mcp-sandbox-server/pkg/patch"
	"mcp-sandbox-server/pkg/sandbox"
)

var (
	// ErrUnknownTool is returned by Call for names outside the catalog.
	ErrUnknownTool = errors.New("unknown tool")
	// ErrInvalidArgument marks missing or invalid tool arguments. It is
	// always returned before any side effect.
	ErrInvalidArgument = errors.New("invalid argument")
)

// Name identifies one of the fixed tools.
type Name string

const (
	Shell           Name = "shell"
	ApplyPatch      Name = "apply_patch"
	Search          Name = "search"
	Fetch           Name = "fetch"
	WriteFile       Name = "write_file"
	CreateDirectory Name = "create_directory"
	DeleteFile      Name = "delete_file"
)

// Registry executes the fixed tool catalog against one sandbox root.
// It holds no mutable state and is safe for concurrent use.
type Registry struct {
	root    *sandbox.Root
	runner  *command.Runner
	patcher *patch.Applier
	catalog []*sdkmcp.Tool
}

// NewRegistry creates a registry whose tools are confined to root and whose
// shell tool runs through runner.
func NewRegistry(root *sandbox.Root, runner *command.Runner) *Registry {
	r := &Registry{
		root:    root,
		runner:  runner,
		patcher: patch.NewApplier(root),
		catalog: buildCatalog(),
	}
	for _, t := range r.catalog {
		slog.Debug("Registered tool", "tool", t.Name)
	}
	return r
}

// Catalog returns the static tool descriptors in listing order.
func (r *Registry) Catalog() []*sdkmcp.Tool {
	out := make([]*sdkmcp.Tool, len(r.catalog))
	copy(out, r.catalog)
	return out
}

// Call runs the named tool with its raw JSON arguments and returns a value
// ready for JSON encoding.
func (r *Registry) Call(ctx context.Context, name string, args json.RawMessage) (any, error) {
	switch Name(name) {
	case Shell:
		return r.shell(ctx, args)
	case ApplyPatch:
		return r.applyPatch(args)
	case Search:
		return r.search(args)
	case Fetch:
		return r.fetch(args)
	case WriteFile:
		return r.writeFile(args)
	case CreateDirectory:
		return r.createDirectory(args)
	case DeleteFile:
		return r.deleteFile(args)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
}

// decodeArgs unmarshals tool arguments, treating absent arguments as an
// empty object.
func decodeArgs(args json.RawMessage, v any) error {
	if len(args) == 0 || string(args) == "null" {
		args = json.RawMessage("{}")
	}
	if err := json.Unmarshal(args, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	return nil
}

func invalid(format string, a ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, a...))
}
