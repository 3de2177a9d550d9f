package tools

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/nextlevelbuilder/agentrt/internal/security"
)

const gitTimeout = 30 * time.Second

func runGit(ctx context.Context, dir string, args ...string) (string, error) {
	runCtx, cancel := context.WithTimeout(ctx, gitTimeout)
	defer cancel()
	cmd := exec.CommandContext(runCtx, "git", args...)
	cmd.Dir = dir
	var out, errBuf bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errBuf
	if err := cmd.Run(); err != nil {
		if runCtx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("git command timed out")
		}
		msg := strings.TrimSpace(errBuf.String())
		if msg == "" {
			msg = err.Error()
		}
		return "", fmt.Errorf("%s", msg)
	}
	return out.String(), nil
}

// GitStatusTool reports working-tree status; always allowed, read-only.
type GitStatusTool struct{ guard *security.PathGuard }

func NewGitStatusTool(guard *security.PathGuard) *GitStatusTool { return &GitStatusTool{guard: guard} }

func (t *GitStatusTool) Name() string                                 { return "git_status" }
func (t *GitStatusTool) Description() string                          { return "Show the working tree status." }
func (t *GitStatusTool) Parameters() map[string]interface{}           { return map[string]interface{}{"type": "object", "properties": map[string]interface{}{}} }
func (t *GitStatusTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	out, err := runGit(ctx, t.guard.Root(), "status", "--short", "--branch")
	if err != nil {
		return ErrorResult(err.Error())
	}
	if strings.TrimSpace(out) == "" {
		return SilentResult("working tree clean")
	}
	return SilentResult(out)
}

// GitDiffTool shows unstaged (or staged, with staged=true) changes.
type GitDiffTool struct{ guard *security.PathGuard }

func NewGitDiffTool(guard *security.PathGuard) *GitDiffTool { return &GitDiffTool{guard: guard} }

func (t *GitDiffTool) Name() string        { return "git_diff" }
func (t *GitDiffTool) Description() string { return "Show unstaged or staged changes." }
func (t *GitDiffTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"staged": map[string]interface{}{"type": "boolean", "description": "Show staged changes instead of unstaged."},
			"path":   map[string]interface{}{"type": "string", "description": "Limit diff to this path."},
		},
	}
}
func (t *GitDiffTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	gitArgs := []string{"diff"}
	if staged, _ := args["staged"].(bool); staged {
		gitArgs = append(gitArgs, "--staged")
	}
	if path, _ := args["path"].(string); path != "" {
		if _, err := t.guard.Resolve(path); err != nil {
			return ErrorResult(err.Error())
		}
		gitArgs = append(gitArgs, "--", path)
	}
	out, err := runGit(ctx, t.guard.Root(), gitArgs...)
	if err != nil {
		return ErrorResult(err.Error())
	}
	if strings.TrimSpace(out) == "" {
		return SilentResult("no changes")
	}
	return SilentResult(out)
}

// GitLogTool shows recent commit history.
type GitLogTool struct{ guard *security.PathGuard }

func NewGitLogTool(guard *security.PathGuard) *GitLogTool { return &GitLogTool{guard: guard} }

func (t *GitLogTool) Name() string        { return "git_log" }
func (t *GitLogTool) Description() string { return "Show recent commit history." }
func (t *GitLogTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"limit": map[string]interface{}{"type": "integer", "description": "Max commits to show (default 10)."},
		},
	}
}
func (t *GitLogTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	limit := 10
	if l, ok := args["limit"].(float64); ok && l > 0 {
		limit = int(l)
	}
	out, err := runGit(ctx, t.guard.Root(), "log", fmt.Sprintf("-%d", limit), "--oneline", "--decorate")
	if err != nil {
		return ErrorResult(err.Error())
	}
	if strings.TrimSpace(out) == "" {
		return SilentResult("no commits")
	}
	return SilentResult(out)
}

// GitCommitTool stages all tracked changes and commits with an explicit,
// required message — commits never happen with an inferred or empty
// message, since an agent committing silently is a surprising side effect.
type GitCommitTool struct{ guard *security.PathGuard }

func NewGitCommitTool(guard *security.PathGuard) *GitCommitTool { return &GitCommitTool{guard: guard} }

func (t *GitCommitTool) Name() string        { return "git_commit" }
func (t *GitCommitTool) Description() string { return "Stage all tracked changes and commit with a message." }
func (t *GitCommitTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"message": map[string]interface{}{"type": "string", "description": "Commit message."},
		},
		"required": []string{"message"},
	}
}
func (t *GitCommitTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	message, _ := args["message"].(string)
	if strings.TrimSpace(message) == "" {
		return ErrorResult("message is required")
	}
	if _, err := runGit(ctx, t.guard.Root(), "add", "-u"); err != nil {
		return ErrorResult(fmt.Sprintf("git add failed: %v", err))
	}
	out, err := runGit(ctx, t.guard.Root(), "commit", "-m", message)
	if err != nil {
		return ErrorResult(fmt.Sprintf("git commit failed: %v", err))
	}
	return NewResult(out)
}
