package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"time"

	"mcp-sandbox-server/pkg/command"
	"mcp-sandbox-server/pkg/patch"
)

// CommandLine accepts either a single command string or an argv array.
type CommandLine struct {
	Line string
	Argv []string
	set  bool
	list bool
}

var errCommandType = errors.New("command must be a string or an array of strings")

// maxTimeoutSeconds keeps the timeout representable as a time.Duration.
const maxTimeoutSeconds = math.MaxInt64 / int64(time.Second)

func (c *CommandLine) UnmarshalJSON(b []byte) error {
	c.set = true
	trimmed := bytes.TrimSpace(b)
	var err error
	if len(trimmed) > 0 && trimmed[0] == '[' {
		c.list = true
		err = json.Unmarshal(trimmed, &c.Argv)
	} else {
		err = json.Unmarshal(trimmed, &c.Line)
	}
	if err != nil {
		return errCommandType
	}
	return nil
}

// argv returns the argument vector, splitting a string command with shell
// word rules.
func (c CommandLine) argv() ([]string, error) {
	if c.list {
		if len(c.Argv) == 0 {
			return nil, command.ErrEmptyCommand
		}
		return c.Argv, nil
	}
	return command.Split(c.Line)
}

type ShellRequest struct {
	Command CommandLine `json:"command"`
	Workdir *string     `json:"workdir"`
	Timeout *int        `json:"timeout,omitempty"`
}

func (r *Registry) shell(ctx context.Context, args json.RawMessage) (any, error) {
	var req ShellRequest
	if err := decodeArgs(args, &req); err != nil {
		return nil, err
	}
	if !req.Command.set || req.Workdir == nil {
		return nil, invalid("shell requires 'command' and 'workdir'")
	}
	argv, err := req.Command.argv()
	if err != nil {
		return nil, invalid("%v", err)
	}
	spec := command.Spec{Argv: argv}
	if req.Timeout != nil {
		if *req.Timeout <= 0 {
			return nil, invalid("timeout must be a positive number of seconds")
		}
		if int64(*req.Timeout) > maxTimeoutSeconds {
			return nil, invalid("timeout must not exceed %d seconds", maxTimeoutSeconds)
		}
		spec.Timeout = time.Duration(*req.Timeout) * time.Second
	}

	workdir, err := r.root.Resolve(*req.Workdir)
	if err != nil {
		return nil, err
	}
	spec.Workdir = workdir
	return r.runner.Run(ctx, spec)
}

type ApplyPatchRequest struct {
	Patch *string `json:"patch"`
}

type ApplyPatchResponse struct {
	Success bool               `json:"success"`
	Updated []string           `json:"updated"`
	Files   []patch.FileChange `json:"files"`
}

func (r *Registry) applyPatch(args json.RawMessage) (any, error) {
	var req ApplyPatchRequest
	if err := decodeArgs(args, &req); err != nil {
		return nil, err
	}
	if req.Patch == nil {
		return nil, invalid("'patch' is required")
	}
	res, err := r.patcher.Apply(*req.Patch)
	if err != nil {
		return nil, err
	}
	return ApplyPatchResponse{Success: true, Updated: res.Updated, Files: res.Files}, nil
}
