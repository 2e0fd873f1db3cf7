package tools

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// resolve maps a tool-supplied path into the workspace when relative.
func (e *Executor) resolve(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, path[2:])
		}
	}
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(e.workspace, path)
}

type readFileArgs struct {
	Path string `json:"path"`
}

func (e *Executor) readFile(args readFileArgs) Result {
	data, err := os.ReadFile(e.resolve(args.Path))
	if err != nil {
		return Result{Text: fmt.Sprintf("Error: %v", err)}
	}
	return Result{Text: string(data)}
}

type writeFileArgs struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

func (e *Executor) writeFile(args writeFileArgs) Result {
	path := e.resolve(args.Path)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return Result{Text: fmt.Sprintf("Error: %v", err)}
	}
	if err := os.WriteFile(path, []byte(args.Content), 0644); err != nil {
		return Result{Text: fmt.Sprintf("Error: %v", err)}
	}
	return Result{Text: fmt.Sprintf("Written to %s", path)}
}

// Patch is one exact-match replacement. Old must appear exactly once in the
// target file.
type Patch struct {
	Old string `json:"old"`
	New string `json:"new"`
}

type editFileArgs struct {
	Path string `json:"path"`
	Old  string `json:"old"`
	New  string `json:"new"`
}

func (e *Executor) editFile(args editFileArgs) Result {
	return e.applyPatches(e.resolve(args.Path), []Patch{{Old: args.Old, New: args.New}}, true)
}

type patchFileArgs struct {
	Path    string  `json:"path"`
	Patches []Patch `json:"patches"`
}

func (e *Executor) patchFile(args patchFileArgs) Result {
	return e.applyPatches(e.resolve(args.Path), args.Patches, false)
}

// applyPatches validates every patch against the evolving text before
// writing anything back: the whole operation is all-or-nothing per file.
// Each old string must occur exactly once; count != 1 rejects the patch.
func (e *Executor) applyPatches(path string, patches []Patch, single bool) Result {
	data, err := os.ReadFile(path)
	if err != nil {
		return Result{Text: fmt.Sprintf("Error reading file: %v", err)}
	}
	text := string(data)

	var errors []string
	for i, p := range patches {
		count := strings.Count(text, p.Old)
		switch {
		case count == 0:
			errors = append(errors, fmt.Sprintf("Patch %d: `old` not found", i))
		case count > 1:
			errors = append(errors, fmt.Sprintf("Patch %d: `old` matches %d times (must be unique)", i, count))
		default:
			text = strings.Replace(text, p.Old, p.New, 1)
		}
	}
	if len(errors) > 0 {
		if single {
			return Result{Text: "Error: " + strings.TrimPrefix(errors[0], "Patch 0: ")}
		}
		return Result{Text: "Patch failed:\n" + strings.Join(errors, "\n")}
	}

	if err := os.WriteFile(path, []byte(text), 0644); err != nil {
		return Result{Text: fmt.Sprintf("Error writing file: %v", err)}
	}
	if single {
		return Result{Text: fmt.Sprintf("Edited %s", path)}
	}
	return Result{Text: fmt.Sprintf("Patched %d location(s) in %s", len(patches), path)}
}
