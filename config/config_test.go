package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feedhound/config"
)

func writeSourcesFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sources.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadSourcesFile(t *testing.T) {
	path := writeSourcesFile(t, `
[[source]]
url = "https://example.com/feed.xml"
category = "news"
label = "Example"

[[source]]
url = "https://blog.example.com/atom"
`)

	sources, err := config.LoadSourcesFile(path)
	require.NoError(t, err)
	require.Len(t, sources, 2)

	assert.Equal(t, "https://example.com/feed.xml", sources[0].URL)
	assert.Equal(t, "news", sources[0].Category)
	assert.Equal(t, "Example", sources[0].Label)

	assert.Equal(t, "https://blog.example.com/atom", sources[1].URL)
	assert.Empty(t, sources[1].Category)
	assert.Empty(t, sources[1].Label)
}

func TestLoadSourcesFileErrors(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		content string
	}{
		{
			name: "missing file",
			path: filepath.Join(t.TempDir(), "nope.toml"),
		},
		{
			name:    "invalid toml",
			content: `[[source]`,
		},
		{
			name:    "no source tables",
			content: `title = "empty"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := tt.path
			if path == "" {
				path = writeSourcesFile(t, tt.content)
			}
			_, err := config.LoadSourcesFile(path)
			assert.Error(t, err)
		})
	}
}

func TestBuiltinSources(t *testing.T) {
	static := config.BuiltinStaticSources()
	require.NotEmpty(t, static)
	for _, s := range static {
		assert.NotEmpty(t, s.URL)
		assert.NotEmpty(t, s.Category)
		assert.NotEmpty(t, s.Label)
	}

	seeds := config.BuiltinSources()
	require.Len(t, seeds, len(static))
	for i, s := range seeds {
		assert.Equal(t, static[i].URL, s.URL)
		assert.True(t, s.Builtin)
		assert.True(t, s.Enabled)
	}
}
