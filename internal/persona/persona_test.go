package persona_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aurelia-labs/aurelia/internal/persona"
)

func writeCatalogue(t *testing.T, dir string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "backgrounds"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "avatars"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "backgrounds", "forest.yaml"), []byte("name: forest\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "backgrounds", "castle.yaml"), []byte("name: castle\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "avatars", "idle.yaml"), []byte("name: idle\n"), 0o644))
}

func TestManager_ListsCatalogue(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeCatalogue(t, dir)

	m, err := persona.NewManager(dir)
	require.NoError(t, err)

	assert.Equal(t, []string{"castle.yaml", "forest.yaml"}, m.Backgrounds())
	assert.Equal(t, []string{"idle.yaml"}, m.AvatarConfigs())
}

func TestManager_MissingSubdirIsEmptyCatalogue(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	m, err := persona.NewManager(dir)
	require.NoError(t, err)

	assert.Empty(t, m.Backgrounds())
	assert.Empty(t, m.AvatarConfigs())
}

func TestManager_SwitchAvatarConfig(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeCatalogue(t, dir)

	m, err := persona.NewManager(dir)
	require.NoError(t, err)

	assert.NoError(t, m.SwitchAvatarConfig("idle.yaml"))
	assert.Error(t, m.SwitchAvatarConfig("nonexistent.yaml"))
}
