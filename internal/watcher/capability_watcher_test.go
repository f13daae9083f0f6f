package watcher

import (
	"os"
	"path/filepath"
	"testing"

	"unisearch/internal/capability"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const emailDoc = `{
	"source_name": "email",
	"source_class": "personal",
	"supported_methods": ["structured", "fulltext"],
	"supported_modes": ["search"],
	"latency_tier": "low",
	"quality_tier": "high",
	"cost_tier": "low"
}`

func TestNew_RejectsMissingDirectory(t *testing.T) {
	reg := capability.New(nil)
	_, err := New(filepath.Join(t.TempDir(), "does-not-exist"), reg, nil)
	assert.Error(t, err)
}

func TestLoadExisting_RegistersJSONFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "email.json"), []byte(emailDoc), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "readme.txt"), []byte("not a capability"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{"), 0o644))

	reg := capability.New(nil)
	w, err := New(dir, reg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { w.watcher.Close() })

	loaded := w.LoadExisting()

	assert.Equal(t, 1, loaded)
	_, ok := reg.Get("email")
	assert.True(t, ok)
}
