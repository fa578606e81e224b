package browser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

const defaultSessionFile = "default_session.json"

// SessionPath resolves a session name to its storage-state file inside the
// sessions directory. An empty name means the default session.
func SessionPath(dir, name string) string {
	if name == "" {
		name = defaultSessionFile
	}
	return filepath.Join(dir, name)
}

// SaveSession persists cookies and localStorage for the driver's context.
func SaveSession(ctx context.Context, drv Driver, dir, name string) (string, error) {
	path := SessionPath(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create sessions dir: %w", err)
	}
	if err := drv.SaveState(ctx, path); err != nil {
		return "", fmt.Errorf("save session: %w", err)
	}
	return path, nil
}

// ExistingSession returns the path of a saved session if one exists, or ""
// so callers can start a fresh context.
func ExistingSession(dir, name string) string {
	path := SessionPath(dir, name)
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}
