package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// scratchDirName is the scratchpad directory for oversized
// tool outputs and binary artifacts (screenshots), kept under the active
// project root so it travels with the workspace rather than a temp dir.
const scratchDirName = ".scratch"

// writeScratchFile persists data under the active workspace's scratchpad
// directory and returns its path, for tools that must never inline binary
// content into the model's context.
func writeScratchFile(ctx context.Context, prefix, ext string, data []byte) (string, error) {
	root := ToolWorkspaceFromCtx(ctx)
	if root == "" {
		root = "."
	}
	dir := filepath.Join(root, scratchDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, fmt.Sprintf("%s-%s%s", prefix, uuid.NewString(), ext))
	if err := atomicWrite(path, data); err != nil {
		return "", err
	}
	return path, nil
}
