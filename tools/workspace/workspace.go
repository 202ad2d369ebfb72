// Package workspace provides file tools sandboxed to a session workspace:
// listing, reading, and writing files under the state's workspace path. All
// paths are relative to the workspace; traversal outside it is rejected.
package workspace

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	axon "github.com/nevindra/axon"
)

const readLimit = 8000

// Register installs the workspace tools into the registry. They resolve the
// workspace root from the session state at call time, so one registration
// serves every session.
func Register(reg *axon.ToolRegistry) error {
	for _, t := range []*axon.Tool{listTool(), readTool(), writeTool()} {
		if err := reg.Register(t); err != nil {
			return err
		}
	}
	return nil
}

func listTool() *axon.Tool {
	return &axon.Tool{
		Name:        "list_workspace_files",
		Description: "Lists files in the session workspace, recursively, with sizes.",
		Parameters: json.RawMessage(`{"type":"object","properties":{
			"path":{"type":"string","description":"Subdirectory to list, relative to the workspace (default: the workspace root)"}
		}}`),
		Handler: func(_ context.Context, args json.RawMessage, tc axon.ToolContext) (axon.ToolOutcome, error) {
			var p struct {
				Path string `json:"path"`
			}
			_ = json.Unmarshal(args, &p)
			root, err := resolve(tc.State.WorkspacePath, p.Path)
			if err != nil {
				return axon.ToolOutcome{Content: "error: " + err.Error(), IsError: true}, nil
			}
			var b strings.Builder
			count := 0
			err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
				if err != nil || d.IsDir() {
					return err
				}
				rel, _ := filepath.Rel(tc.State.WorkspacePath, path)
				info, ierr := d.Info()
				if ierr != nil {
					return nil
				}
				fmt.Fprintf(&b, "%s (%d bytes)\n", rel, info.Size())
				count++
				return nil
			})
			if err != nil {
				return axon.ToolOutcome{Content: "error: " + err.Error(), IsError: true}, nil
			}
			if count == 0 {
				return axon.ToolOutcome{Content: "The workspace is empty."}, nil
			}
			return axon.ToolOutcome{Content: b.String()}, nil
		},
		Meta: axon.ToolMeta{Category: "workspace", Risk: axon.RiskLow, Enabled: true, AlwaysAvailable: true, Parallel: true},
	}
}

func readTool() *axon.Tool {
	return &axon.Tool{
		Name:        "read_workspace_file",
		Description: "Reads a file from the workspace. Large files are truncated.",
		Parameters: json.RawMessage(`{"type":"object","properties":{
			"path":{"type":"string","description":"File path relative to the workspace"}
		},"required":["path"]}`),
		Handler: func(_ context.Context, args json.RawMessage, tc axon.ToolContext) (axon.ToolOutcome, error) {
			var p struct {
				Path string `json:"path"`
			}
			if err := json.Unmarshal(args, &p); err != nil {
				return axon.ToolOutcome{Content: "error: invalid args: " + err.Error(), IsError: true}, nil
			}
			path, err := resolve(tc.State.WorkspacePath, p.Path)
			if err != nil {
				return axon.ToolOutcome{Content: "error: " + err.Error(), IsError: true}, nil
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return axon.ToolOutcome{Content: "error: " + err.Error(), IsError: true}, nil
			}
			content := string(data)
			if len(content) > readLimit {
				content = content[:readLimit] + "\n... (truncated)"
			}
			return axon.ToolOutcome{Content: content}, nil
		},
		Meta: axon.ToolMeta{Category: "workspace", Risk: axon.RiskLow, Enabled: true, AlwaysAvailable: true, Parallel: true},
	}
}

func writeTool() *axon.Tool {
	return &axon.Tool{
		Name:        "write_workspace_file",
		Description: "Writes content to a file in the workspace, creating parent directories as needed.",
		Parameters: json.RawMessage(`{"type":"object","properties":{
			"path":{"type":"string","description":"File path relative to the workspace"},
			"content":{"type":"string","description":"Content to write"}
		},"required":["path","content"]}`),
		Handler: func(_ context.Context, args json.RawMessage, tc axon.ToolContext) (axon.ToolOutcome, error) {
			var p struct {
				Path    string `json:"path"`
				Content string `json:"content"`
			}
			if err := json.Unmarshal(args, &p); err != nil {
				return axon.ToolOutcome{Content: "error: invalid args: " + err.Error(), IsError: true}, nil
			}
			path, err := resolve(tc.State.WorkspacePath, p.Path)
			if err != nil {
				return axon.ToolOutcome{Content: "error: " + err.Error(), IsError: true}, nil
			}
			if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
				return axon.ToolOutcome{Content: "error: " + err.Error(), IsError: true}, nil
			}
			if err := os.WriteFile(path, []byte(p.Content), 0644); err != nil {
				return axon.ToolOutcome{Content: "error: " + err.Error(), IsError: true}, nil
			}
			return axon.ToolOutcome{Content: fmt.Sprintf("Written %d bytes to %s", len(p.Content), p.Path)}, nil
		},
		Meta: axon.ToolMeta{Category: "workspace", Risk: axon.RiskMedium, Enabled: true, AlwaysAvailable: true},
	}
}

// resolve joins a relative path onto the workspace root, rejecting absolute
// paths and traversal out of the sandbox.
func resolve(workspace, path string) (string, error) {
	if workspace == "" {
		return "", fmt.Errorf("no workspace configured for this session")
	}
	if filepath.IsAbs(path) {
		return "", fmt.Errorf("absolute paths not allowed: %s", path)
	}
	if strings.Contains(path, "..") {
		return "", fmt.Errorf("path traversal not allowed: %s", path)
	}
	resolved := filepath.Join(workspace, path)
	if !strings.HasPrefix(resolved, filepath.Clean(workspace)) {
		return "", fmt.Errorf("path escapes workspace: %s", path)
	}
	return resolved, nil
}
