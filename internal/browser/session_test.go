package browser

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionPath(t *testing.T) {
	assert.Equal(t, filepath.Join("sessions", "default_session.json"), SessionPath("sessions", ""))
	assert.Equal(t, filepath.Join("sessions", "work.json"), SessionPath("sessions", "work.json"))
}

func TestExistingSession(t *testing.T) {
	dir := t.TempDir()
	assert.Empty(t, ExistingSession(dir, ""))

	path := filepath.Join(dir, "default_session.json")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o644))
	assert.Equal(t, path, ExistingSession(dir, ""))
}
