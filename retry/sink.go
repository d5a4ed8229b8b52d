package retry

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ArtifactSink preserves failing artifacts for post-mortem inspection.
// Nothing reads them back.
type ArtifactSink interface {
	// Save stores the artifact of the 0-based attempt of run and returns
	// where it was written.
	Save(runID string, attempt int, artifact string) (string, error)
}

// DirSink writes <Root>/<runID>/attempt_<n>.<Ext>, with n 1-based.
type DirSink struct {
	Root string
	// Ext defaults to "txt".
	Ext string
}

// NewDirSink creates a sink rooted at root.
func NewDirSink(root, ext string) *DirSink {
	return &DirSink{Root: root, Ext: ext}
}

// Save implements ArtifactSink.
func (s *DirSink) Save(runID string, attempt int, artifact string) (string, error) {
	dir := filepath.Join(s.Root, runID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create debug dir: %w", err)
	}
	ext := strings.TrimPrefix(s.Ext, ".")
	if ext == "" {
		ext = "txt"
	}
	path := filepath.Join(dir, fmt.Sprintf("attempt_%d.%s", attempt+1, ext))
	if err := os.WriteFile(path, []byte(artifact), 0o644); err != nil {
		return "", fmt.Errorf("write artifact: %w", err)
	}
	return path, nil
}
