package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	opts := Default()

	assert.Equal(t, 64, opts.WordSize)
	assert.Equal(t, "warn", opts.LogLevel)
	assert.Empty(t, opts.Entrypoints)
	assert.Equal(t, Optimize{Enabled: true, MaxIterations: 20, InlineSize: 8, DupTableSize: 1024}, opts.Optimize)
	assert.Equal(t, 1000000, opts.Interp.Fuel)
}

func TestParseYAML(t *testing.T) {
	opts, err := Parse("milc.yaml", []byte(`
word-size: 32
entrypoints: [main, other]
log-level: debug
optimize:
  inline-size: 0
`))
	require.NoError(t, err)

	assert.Equal(t, 32, opts.WordSize)
	assert.Equal(t, []string{"main", "other"}, opts.Entrypoints)
	assert.Equal(t, slog.LevelDebug, opts.Level())
	assert.Equal(t, 0, opts.Optimize.InlineSize)
	assert.True(t, opts.Optimize.Enabled, "unset fields keep their defaults")
	assert.Equal(t, 20, opts.Optimize.MaxIterations)
}

func TestParseTOML(t *testing.T) {
	opts, err := Parse("milc.toml", []byte(`
word-size = 32
log-level = "info"

[optimize]
enabled = false
max-iterations = 3

[interp]
fuel = 500
`))
	require.NoError(t, err)

	assert.Equal(t, 32, opts.WordSize)
	assert.Equal(t, slog.LevelInfo, opts.Level())
	assert.False(t, opts.Optimize.Enabled)
	assert.Equal(t, 3, opts.Optimize.MaxIterations)
	assert.Equal(t, 1024, opts.Optimize.DupTableSize)
	assert.Equal(t, 500, opts.Interp.Fuel)
}

func TestParseEmpty(t *testing.T) {
	opts, err := Parse("empty.yml", nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), opts)
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name string
		file string
		src  string
	}{
		{"word size", "a.yaml", "word-size: 16\n"},
		{"unknown field", "a.yaml", "wordsize: 64\n"},
		{"log level", "a.yaml", "log-level: loud\n"},
		{"negative fuel", "a.toml", "[interp]\nfuel = -1\n"},
		{"zero iterations", "a.toml", "[optimize]\nmax-iterations = 0\n"},
		{"bad yaml", "a.yaml", "word-size: [\n"},
		{"bad toml", "a.toml", "word-size = \n"},
		{"format", "a.json", "{}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.file, []byte(tt.src))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.file)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "milc.yaml")
	require.NoError(t, os.WriteFile(path, []byte("word-size: 32\n"), 0o644))

	opts, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 32, opts.WordSize)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLevelFallback(t *testing.T) {
	assert.Equal(t, slog.LevelWarn, Options{}.Level())
	assert.Equal(t, slog.LevelError, Options{LogLevel: "error"}.Level())
}
