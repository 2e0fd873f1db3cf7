package tools

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeWorkspaceFile(t *testing.T, e *Executor, name, content string) string {
	t.Helper()
	path := filepath.Join(e.workspace, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestReadWriteFile(t *testing.T) {
	e := newTestExecutor(t)
	ctx := context.Background()

	result := e.Run(ctx, Call{Name: "write_file", Args: map[string]any{
		"path":    "sub/dir/note.txt",
		"content": "hello",
	}})
	if !strings.HasPrefix(result.Text, "Written to ") {
		t.Fatalf("write result = %q", result.Text)
	}

	result = e.Run(ctx, Call{Name: "read_file", Args: map[string]any{"path": "sub/dir/note.txt"}})
	if result.Text != "hello" {
		t.Errorf("read result = %q", result.Text)
	}
}

func TestReadFile_Missing(t *testing.T) {
	e := newTestExecutor(t)
	result := e.Run(context.Background(), Call{Name: "read_file", Args: map[string]any{"path": "nope.txt"}})
	if !strings.HasPrefix(result.Text, "Error: ") {
		t.Errorf("result = %q, want textual error", result.Text)
	}
}

func TestEditFile_SingleMatch(t *testing.T) {
	e := newTestExecutor(t)
	path := writeWorkspaceFile(t, e, "a.go", "func old() {}\nfunc other() {}\n")

	result := e.Run(context.Background(), Call{Name: "edit_file", Args: map[string]any{
		"path": "a.go",
		"old":  "func old()",
		"new":  "func renamed()",
	}})
	if !strings.HasPrefix(result.Text, "Edited ") {
		t.Fatalf("result = %q", result.Text)
	}

	data, _ := os.ReadFile(path)
	if string(data) != "func renamed() {}\nfunc other() {}\n" {
		t.Errorf("file = %q", string(data))
	}
}

func TestEditFile_DuplicateOldLeavesFileUnchanged(t *testing.T) {
	e := newTestExecutor(t)
	original := "x = 1\nx = 1\n"
	path := writeWorkspaceFile(t, e, "dup.txt", original)

	result := e.Run(context.Background(), Call{Name: "edit_file", Args: map[string]any{
		"path": "dup.txt",
		"old":  "x = 1",
		"new":  "x = 2",
	}})
	if result.Text != "Error: `old` matches 2 times (must be unique)" {
		t.Errorf("result = %q", result.Text)
	}

	data, _ := os.ReadFile(path)
	if string(data) != original {
		t.Error("file modified despite failed edit")
	}
}

func TestEditFile_OldNotFound(t *testing.T) {
	e := newTestExecutor(t)
	original := "hello\n"
	path := writeWorkspaceFile(t, e, "nf.txt", original)

	result := e.Run(context.Background(), Call{Name: "edit_file", Args: map[string]any{
		"path": "nf.txt",
		"old":  "goodbye",
		"new":  "farewell",
	}})
	if result.Text != "Error: `old` not found" {
		t.Errorf("result = %q", result.Text)
	}
	data, _ := os.ReadFile(path)
	if string(data) != original {
		t.Error("file modified despite failed edit")
	}
}

func TestPatchFile_MultiplePatches(t *testing.T) {
	e := newTestExecutor(t)
	path := writeWorkspaceFile(t, e, "multi.txt", "alpha\nbeta\ngamma\n")

	result := e.Run(context.Background(), Call{Name: "patch_file", Args: map[string]any{
		"path": "multi.txt",
		"patches": []map[string]any{
			{"old": "alpha", "new": "ALPHA"},
			{"old": "gamma", "new": "GAMMA"},
		},
	}})
	if !strings.HasPrefix(result.Text, "Patched 2 location(s)") {
		t.Fatalf("result = %q", result.Text)
	}

	data, _ := os.ReadFile(path)
	if string(data) != "ALPHA\nbeta\nGAMMA\n" {
		t.Errorf("file = %q", string(data))
	}
}

func TestPatchFile_AtomicOnPartialFailure(t *testing.T) {
	e := newTestExecutor(t)
	original := "alpha\nbeta\n"
	path := writeWorkspaceFile(t, e, "atomic.txt", original)

	result := e.Run(context.Background(), Call{Name: "patch_file", Args: map[string]any{
		"path": "atomic.txt",
		"patches": []map[string]any{
			{"old": "alpha", "new": "ALPHA"},
			{"old": "missing", "new": "whatever"},
		},
	}})
	if !strings.Contains(result.Text, "Patch 1: `old` not found") {
		t.Fatalf("result = %q, want patch index in error", result.Text)
	}

	data, _ := os.ReadFile(path)
	if string(data) != original {
		t.Error("file modified despite failed patch set")
	}
}

func TestResolve_AbsolutePathUntouched(t *testing.T) {
	e := newTestExecutor(t)
	abs := filepath.Join(t.TempDir(), "outside.txt")
	if err := os.WriteFile(abs, []byte("outside"), 0644); err != nil {
		t.Fatal(err)
	}
	result := e.Run(context.Background(), Call{Name: "read_file", Args: map[string]any{"path": abs}})
	if result.Text != "outside" {
		t.Errorf("result = %q", result.Text)
	}
}
