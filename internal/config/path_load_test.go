package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolvePathPrecedence(t *testing.T) {
	explicit := "/tmp/custom.jsonc"
	resolved, err := ResolvePath(explicit)
	require.NoError(t, err)
	require.Equal(t, explicit, resolved)

	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	resolved, err = ResolvePath("")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(xdg, "jotter", "config.jsonc"), resolved)

	t.Setenv("XDG_CONFIG_HOME", "")
	home := t.TempDir()
	t.Setenv("HOME", home)
	resolved, err = ResolvePath("")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(home, ".config", "jotter", "config.jsonc"), resolved)
}

func TestDefaultStorePath(t *testing.T) {
	data := t.TempDir()
	t.Setenv("XDG_DATA_HOME", data)
	path, err := DefaultStorePath()
	require.NoError(t, err)
	require.Equal(t, filepath.Join(data, "jotter", "items"), path)

	t.Setenv("XDG_DATA_HOME", "")
	home := t.TempDir()
	t.Setenv("HOME", home)
	path, err = DefaultStorePath()
	require.NoError(t, err)
	require.Equal(t, filepath.Join(home, ".local", "share", "jotter", "items"), path)
}

func clearKeys(t *testing.T) {
	t.Helper()
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("DEEPGRAM_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")
}

func TestLoadMissingConfigUsesDefaultsWithWarning(t *testing.T) {
	clearKeys(t)
	path := filepath.Join(t.TempDir(), "missing.jsonc")

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, path, loaded.Path)
	require.False(t, loaded.Exists)
	require.Equal(t, Default(), loaded.Config)
	require.NotEmpty(t, loaded.Warnings)
	require.Contains(t, loaded.Warnings[0].Message, "not found")
}

func TestLoadExistingJSONC(t *testing.T) {
	clearKeys(t)
	path := filepath.Join(t.TempDir(), "config.jsonc")
	contents := `
{
  "gemini": { "api_key": "from-file" },
  "store": { "path": "/var/lib/jotter/items" }
}
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.True(t, loaded.Exists)
	require.Equal(t, "from-file", loaded.Config.Gemini.APIKey)
	require.Equal(t, "/var/lib/jotter/items", loaded.Config.Store.Path)
	require.Empty(t, loaded.Warnings)
}

func TestLoadEnvOverridesKeys(t *testing.T) {
	clearKeys(t)
	t.Setenv("GEMINI_API_KEY", "from-env")
	t.Setenv("OPENAI_API_KEY", "sk-env")
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("gemini:\n  api_key: from-file\n"), 0o600))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "from-env", loaded.Config.Gemini.APIKey)
	require.Equal(t, "sk-env", loaded.Config.OpenAI.APIKey)
}

func TestLoadParseErrorIncludesPath(t *testing.T) {
	clearKeys(t)
	path := filepath.Join(t.TempDir(), "broken.jsonc")
	require.NoError(t, os.WriteFile(path, []byte("{ not-json }"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "parse config")
	require.Contains(t, err.Error(), path)
}

func TestLoadInvalidConfigIncludesPath(t *testing.T) {
	clearKeys(t)
	path := filepath.Join(t.TempDir(), "config.jsonc")
	require.NoError(t, os.WriteFile(path, []byte(`{"dictation": {"provider": "whisper"}}`), 0o600))

	_, err := Load(path)
	require.ErrorContains(t, err, "invalid config")
	require.ErrorContains(t, err, "dictation.provider")
}
