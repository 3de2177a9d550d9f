package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/agentrt/internal/agent"
	"github.com/nextlevelbuilder/agentrt/internal/sessions"
	"github.com/nextlevelbuilder/agentrt/pkg/protocol"
)

func chatCmd() *cobra.Command {
	var (
		projectRoot string
		sessionID   string
		message     string
		yes         bool
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the runtime interactively or send a one-shot message",
		Long: `Chat with the runtime in a REPL, or send a single message with -m.

Examples:
  agentrt chat                              # Interactive REPL in the current directory
  agentrt chat -p ~/src/proj                # Use a specific project root
  agentrt chat -m "list the files here"     # One-shot message
  agentrt chat -s my-session                # Continue a named session`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd.Context(), projectRoot, sessionID, message, yes)
		},
	}

	cmd.Flags().StringVarP(&projectRoot, "project", "p", "", "project root (default: current directory)")
	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "session id (default: auto-generated)")
	cmd.Flags().StringVarP(&message, "message", "m", "", "one-shot message (omit for interactive mode)")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "auto-approve destructive file operations")
	return cmd
}

// confirmDestructive is the huh-backed permission hook for delete and
// overwrite operations.
func confirmDestructive(action, target string) bool {
	approved := false
	err := huh.NewConfirm().
		Title(fmt.Sprintf("Allow %s of %s?", action, target)).
		Affirmative("Allow").
		Negative("Deny").
		Value(&approved).
		Run()
	if err != nil {
		return false
	}
	return approved
}

func runChat(ctx context.Context, projectRoot, sessionID, message string, yes bool) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	approval := confirmDestructive
	if yes {
		approval = nil
	}

	rt, cleanup, err := buildRuntime(ctx, projectRoot, approval)
	if err != nil {
		return err
	}
	defer cleanup()

	root := projectRoot
	if root == "" {
		root, _ = os.Getwd()
	}
	key := sessions.NewKey(root)
	if sessionID != "" {
		key = sessions.BuildKey(root, sessionID)
	}

	if message != "" {
		return sendAndRender(ctx, rt, key, message)
	}

	fmt.Println("agentrt — type a message, /cancel to stop a run, /reset to clear, /quit to exit")
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "/quit" || line == "/exit":
			return nil
		case line == "/cancel":
			rt.Cancel(key)
			continue
		case line == "/reset":
			if err := rt.ResetSession(key); err != nil {
				fmt.Fprintln(os.Stderr, "reset:", err)
			}
			continue
		}
		if err := sendAndRender(ctx, rt, key, line); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// sendAndRender streams one run's events to the terminal.
func sendAndRender(ctx context.Context, rt *agent.Runtime, key, text string) error {
	events, err := rt.SendMessage(ctx, key, text, nil, agent.RunConfig{})
	if err != nil {
		return err
	}

	for ev := range events {
		switch ev.Kind {
		case protocol.EventToken:
			fmt.Print(ev.Payload)
		case protocol.EventToolExecuting:
			if p, ok := ev.Payload.(protocol.ToolExecutingPayload); ok {
				fmt.Printf("\n[tool] %s...\n", p.Name)
			}
		case protocol.EventToolResult:
			if p, ok := ev.Payload.(protocol.ToolResultPayload); ok {
				status := "ok"
				if !p.Success {
					status = "failed"
				}
				fmt.Printf("[tool] %s %s\n", p.Name, status)
			}
		case protocol.EventError:
			if p, ok := ev.Payload.(protocol.ErrorPayload); ok {
				fmt.Fprintf(os.Stderr, "\n[%s] %s\n", p.Kind, p.Message)
			}
		case protocol.EventFinish:
			if p, ok := ev.Payload.(protocol.FinishPayload); ok {
				fmt.Printf("\n— %s (%d iterations)\n", p.Status, p.Iterations)
			}
		}
	}
	return nil
}
