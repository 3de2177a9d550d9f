package agent

import (
	"encoding/base64"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/nextlevelbuilder/agentrt/pkg/protocol"
)

// maxImageBytes is the safety limit for reading image attachments (10MB).
const maxImageBytes = 10 * 1024 * 1024

// Attachment is one user-supplied extra input: an image (attached to the
// live request for vision-capable backends) or a file reference (read
// into the prompt's file-context section).
type Attachment struct {
	Path string
}

// splitAttachments partitions attachments into images and file refs.
func splitAttachments(atts []Attachment) (imagePaths, fileRefs []string) {
	for _, a := range atts {
		if inferImageMime(a.Path) != "" {
			imagePaths = append(imagePaths, a.Path)
		} else {
			fileRefs = append(fileRefs, a.Path)
		}
	}
	return imagePaths, fileRefs
}

// loadImages reads local image files and returns base64-encoded
// ImageContent. Files that fail to read or exceed the size limit are
// skipped with a warning.
func loadImages(paths []string) []protocol.ImageContent {
	var images []protocol.ImageContent
	for _, p := range paths {
		mime := inferImageMime(p)
		if mime == "" {
			continue
		}
		data, err := os.ReadFile(p)
		if err != nil {
			slog.Warn("attachment: failed to read image", "path", p, "error", err)
			continue
		}
		if len(data) > maxImageBytes {
			slog.Warn("attachment: image too large, skipping", "path", p, "size", len(data))
			continue
		}
		images = append(images, protocol.ImageContent{
			MimeType: mime,
			Data:     base64.StdEncoding.EncodeToString(data),
		})
	}
	return images
}

func inferImageMime(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	default:
		return ""
	}
}
