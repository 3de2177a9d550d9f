package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/nextlevelbuilder/agentrt/internal/security"
)

// ReadFileTool reads file contents through the workspace's path guard.
type ReadFileTool struct {
	guard *security.PathGuard
}

func NewReadFileTool(guard *security.PathGuard) *ReadFileTool {
	return &ReadFileTool{guard: guard}
}

func (t *ReadFileTool) Name() string        { return "read_file" }
func (t *ReadFileTool) Description() string { return "Read the contents of a file." }
func (t *ReadFileTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path": map[string]interface{}{"type": "string", "description": "Path to the file to read."},
		},
		"required": []string{"path"},
	}
}

func (t *ReadFileTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	path, _ := args["path"].(string)
	if path == "" {
		return ErrorResult("path is required")
	}
	resolved, err := t.guard.Resolve(path)
	if err != nil {
		return ErrorResult(err.Error())
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return ErrorResult(fmt.Sprintf("failed to read file: %v", err))
	}
	return SilentResult(string(data))
}

// WriteFileTool atomically writes file contents (temp file + rename) so a
// crash mid-write never leaves a half-written file in the workspace.
type WriteFileTool struct {
	guard   *security.PathGuard
	backups *BackupStore
}

func NewWriteFileTool(guard *security.PathGuard, backups *BackupStore) *WriteFileTool {
	return &WriteFileTool{guard: guard, backups: backups}
}

func (t *WriteFileTool) Name() string        { return "write_file" }
func (t *WriteFileTool) Description() string { return "Write content to a file, creating it if necessary." }
func (t *WriteFileTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path":    map[string]interface{}{"type": "string", "description": "Path to the file to write."},
			"content": map[string]interface{}{"type": "string", "description": "Full file content."},
		},
		"required": []string{"path", "content"},
	}
}

func (t *WriteFileTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	path, _ := args["path"].(string)
	content, _ := args["content"].(string)
	if path == "" {
		return ErrorResult("path is required")
	}
	resolved, err := t.guard.Resolve(path)
	if err != nil {
		return ErrorResult(err.Error())
	}

	if _, statErr := os.Stat(resolved); statErr == nil {
		if !Approved(ctx, "overwrite", path) {
			return ErrorResult("overwrite denied: the user declined this change")
		}
		if err := t.backups.Snapshot(resolved); err != nil {
			return ErrorResult(fmt.Sprintf("failed to back up before write: %v", err))
		}
	}

	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return ErrorResult(fmt.Sprintf("failed to create parent directory: %v", err))
	}
	if err := atomicWrite(resolved, []byte(content)); err != nil {
		return ErrorResult(fmt.Sprintf("failed to write file: %v", err))
	}
	return NewResult(fmt.Sprintf("wrote %d bytes to %s", len(content), path))
}

// EditFileTool replaces text within a file. By default it replaces only
// the first occurrence; callers must pass replace_all=true to replace
// every match, since silently replacing all occurrences is a frequent
// source of unintended edits.
type EditFileTool struct {
	guard   *security.PathGuard
	backups *BackupStore
}

func NewEditFileTool(guard *security.PathGuard, backups *BackupStore) *EditFileTool {
	return &EditFileTool{guard: guard, backups: backups}
}

func (t *EditFileTool) Name() string        { return "edit_file" }
func (t *EditFileTool) Description() string { return "Replace text within an existing file." }
func (t *EditFileTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path":         map[string]interface{}{"type": "string"},
			"old_text":     map[string]interface{}{"type": "string", "description": "Exact text to replace."},
			"new_text":     map[string]interface{}{"type": "string"},
			"replace_all":  map[string]interface{}{"type": "boolean", "description": "Replace every occurrence instead of just the first."},
		},
		"required": []string{"path", "old_text", "new_text"},
	}
}

func (t *EditFileTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	path, _ := args["path"].(string)
	oldText, _ := args["old_text"].(string)
	newText, _ := args["new_text"].(string)
	replaceAll, _ := args["replace_all"].(bool)
	if path == "" || oldText == "" {
		return ErrorResult("path and old_text are required")
	}
	resolved, err := t.guard.Resolve(path)
	if err != nil {
		return ErrorResult(err.Error())
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return ErrorResult(fmt.Sprintf("failed to read file: %v", err))
	}
	content := string(data)
	if !strings.Contains(content, oldText) {
		return ErrorResult("old_text not found in file")
	}
	count := strings.Count(content, oldText)
	if !replaceAll && count > 1 {
		return ErrorResult(fmt.Sprintf("old_text matches %d locations; pass replace_all=true or narrow the match", count))
	}

	if err := t.backups.Snapshot(resolved); err != nil {
		return ErrorResult(fmt.Sprintf("failed to back up before edit: %v", err))
	}

	var updated string
	if replaceAll {
		updated = strings.ReplaceAll(content, oldText, newText)
	} else {
		updated = strings.Replace(content, oldText, newText, 1)
	}
	if err := atomicWrite(resolved, []byte(updated)); err != nil {
		return ErrorResult(fmt.Sprintf("failed to write file: %v", err))
	}
	return NewResult(fmt.Sprintf("replaced %d occurrence(s) in %s", map[bool]int{true: count, false: 1}[replaceAll], path))
}

// DeleteFileTool removes a file after snapshotting it for undo.
type DeleteFileTool struct {
	guard   *security.PathGuard
	backups *BackupStore
}

func NewDeleteFileTool(guard *security.PathGuard, backups *BackupStore) *DeleteFileTool {
	return &DeleteFileTool{guard: guard, backups: backups}
}

func (t *DeleteFileTool) Name() string        { return "delete_file" }
func (t *DeleteFileTool) Description() string { return "Delete a file, keeping a backup for undo_edit." }
func (t *DeleteFileTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{"path": map[string]interface{}{"type": "string"}},
		"required":   []string{"path"},
	}
}

func (t *DeleteFileTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	path, _ := args["path"].(string)
	if path == "" {
		return ErrorResult("path is required")
	}
	resolved, err := t.guard.Resolve(path)
	if err != nil {
		return ErrorResult(err.Error())
	}
	if !Approved(ctx, "delete", path) {
		return ErrorResult("delete denied: the user declined this change")
	}
	if err := t.backups.Snapshot(resolved); err != nil {
		return ErrorResult(fmt.Sprintf("failed to back up before delete: %v", err))
	}
	if err := os.Remove(resolved); err != nil {
		return ErrorResult(fmt.Sprintf("failed to delete file: %v", err))
	}
	return NewResult(fmt.Sprintf("deleted %s", path))
}

// UndoEditTool restores the most recent backup for a path.
type UndoEditTool struct {
	guard   *security.PathGuard
	backups *BackupStore
}

func NewUndoEditTool(guard *security.PathGuard, backups *BackupStore) *UndoEditTool {
	return &UndoEditTool{guard: guard, backups: backups}
}

func (t *UndoEditTool) Name() string        { return "undo_edit" }
func (t *UndoEditTool) Description() string { return "Restore the last backed-up version of a file." }
func (t *UndoEditTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{"path": map[string]interface{}{"type": "string"}},
		"required":   []string{"path"},
	}
}

func (t *UndoEditTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	path, _ := args["path"].(string)
	if path == "" {
		return ErrorResult("path is required")
	}
	resolved, err := t.guard.Resolve(path)
	if err != nil {
		return ErrorResult(err.Error())
	}
	if err := t.backups.Restore(resolved); err != nil {
		return ErrorResult(fmt.Sprintf("failed to restore backup: %v", err))
	}
	return NewResult(fmt.Sprintf("restored %s from backup", path))
}

// ListDirectoryTool lists immediate directory entries.
type ListDirectoryTool struct {
	guard *security.PathGuard
}

func NewListDirectoryTool(guard *security.PathGuard) *ListDirectoryTool {
	return &ListDirectoryTool{guard: guard}
}

func (t *ListDirectoryTool) Name() string        { return "list_directory" }
func (t *ListDirectoryTool) Description() string { return "List files and subdirectories in a directory." }
func (t *ListDirectoryTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{"path": map[string]interface{}{"type": "string", "description": "Directory path (default: project root)."}},
	}
}

func (t *ListDirectoryTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	path, _ := args["path"].(string)
	if path == "" {
		path = "."
	}
	resolved, err := t.guard.Resolve(path)
	if err != nil {
		return ErrorResult(err.Error())
	}
	entries, err := os.ReadDir(resolved)
	if err != nil {
		return ErrorResult(fmt.Sprintf("failed to list directory: %v", err))
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		suffix := ""
		if e.IsDir() {
			suffix = "/"
		}
		names = append(names, e.Name()+suffix)
	}
	sort.Strings(names)
	return SilentResult(strings.Join(names, "\n"))
}

// atomicWrite writes data via a temp file + rename so a crash never leaves
// a half-written file in the workspace.
func atomicWrite(path string, data []byte) error {
	tmp := path + ".tmp-" + fmt.Sprintf("%d", os.Getpid())
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}
