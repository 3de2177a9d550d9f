// Package crashlog writes fatal-error reports to <appdata>/crash-logs/
// before the process exits. Recoverable errors never
// come through here — only the top-level panic catcher uses it.
package crashlog

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"
)

// Dir returns the crash-log directory, creating it if needed.
func Dir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		base = os.TempDir()
	}
	dir := filepath.Join(base, "agentrt", "crash-logs")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

// Write records a panic (or other fatal condition) with the current stack.
// Returns the log path; failures to write are swallowed — crashing the
// crash handler helps nobody.
func Write(reason interface{}) string {
	dir, err := Dir()
	if err != nil {
		return ""
	}
	path := filepath.Join(dir, time.Now().UTC().Format("20060102-150405")+".txt")
	body := fmt.Sprintf("time: %s\nreason: %v\n\nstack:\n%s\n",
		time.Now().UTC().Format(time.RFC3339), reason, debug.Stack())
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		return ""
	}
	return path
}
