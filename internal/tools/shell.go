package tools

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/nextlevelbuilder/agentrt/internal/security"
)

// ExecTool executes shell commands directly on the host, inside the
// workspace's command and path guards.
type ExecTool struct {
	guard       *security.PathGuard
	cmdGuard    *security.CommandGuard
	timeout     time.Duration
	workingDir  string
}

// NewExecTool creates a terminal tool scoped to the given workspace.
func NewExecTool(guard *security.PathGuard, cmdGuard *security.CommandGuard) *ExecTool {
	return &ExecTool{
		guard:      guard,
		cmdGuard:   cmdGuard,
		timeout:    60 * time.Second,
		workingDir: guard.Root(),
	}
}

func (t *ExecTool) Name() string        { return "run_command" }
func (t *ExecTool) Description() string { return "Execute a shell command and return its output." }
func (t *ExecTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"command": map[string]interface{}{
				"type":        "string",
				"description": "The shell command to execute.",
			},
			"working_dir": map[string]interface{}{
				"type":        "string",
				"description": "Optional working directory, relative to the project root.",
			},
		},
		"required": []string{"command"},
	}
}

func (t *ExecTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	command, _ := args["command"].(string)
	if command == "" {
		return ErrorResult("command is required")
	}

	if err := t.cmdGuard.Check(command); err != nil {
		return ErrorResult(err.Error())
	}

	cwd := ToolWorkspaceFromCtx(ctx)
	if cwd == "" {
		cwd = t.workingDir
	}
	if wd, _ := args["working_dir"].(string); wd != "" {
		resolved, err := t.guard.Resolve(wd)
		if err != nil {
			return ErrorResult(err.Error())
		}
		cwd = resolved
	}

	return t.executeOnHost(ctx, command, cwd)
}

// executeOnHost runs a command on the host and folds its exit status into
// the result text. A non-zero exit is not itself a tool failure — the
// command ran and reported its own outcome, which the model needs to see
// to decide what to do next. Only a Go-level failure to even start or
// complete the process (timeout, exec error) is an IsError result.
func (t *ExecTool) executeOnHost(ctx context.Context, command, cwd string) *Result {
	runCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "sh", "-c", command)
	cmd.Dir = cwd

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	if runCtx.Err() == context.DeadlineExceeded {
		return ErrorResult(fmt.Sprintf("command timed out after %s", t.timeout))
	}

	var output string
	if stdout.Len() > 0 {
		output = stdout.String()
	}
	if stderr.Len() > 0 {
		if output != "" {
			output += "\n"
		}
		output += "STDERR:\n" + stderr.String()
	}

	exitCode := 0
	if exitErr, ok := err.(*exec.ExitError); ok {
		exitCode = exitErr.ExitCode()
	} else if err != nil {
		// The process never ran (e.g. shell not found) — this is a tool
		// failure, not a command-reported failure.
		return ErrorResult(fmt.Sprintf("failed to execute command: %v", err))
	}

	if output == "" {
		output = "(command completed with no output)"
	}
	if exitCode != 0 {
		output = fmt.Sprintf("%s\n\nexit code: %d", output, exitCode)
	}

	return SilentResult(output)
}
