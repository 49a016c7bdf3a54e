// Package config loads milc pipeline options from YAML or TOML files.
// Files are checked against an embedded CUE schema, which also supplies
// the default of every field left out.
package config

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/pelletier/go-toml"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaSrc string

// Options controls one run of the pipeline.
type Options struct {
	WordSize    int      `json:"word-size"`
	Entrypoints []string `json:"entrypoints"`
	LogLevel    string   `json:"log-level"`
	Optimize    Optimize `json:"optimize"`
	Interp      Interp   `json:"interp"`
}

// Optimize bounds the optimizer.
type Optimize struct {
	Enabled       bool `json:"enabled"`
	MaxIterations int  `json:"max-iterations"`
	InlineSize    int  `json:"inline-size"`
	DupTableSize  int  `json:"dup-table-size"`
}

// Interp configures the reference interpreter.
type Interp struct {
	Fuel int `json:"fuel"`
}

// Default returns the options used when no file is given.
func Default() Options {
	opts, err := decode(map[string]any{})
	if err != nil {
		panic(fmt.Sprintf("config: embedded schema: %v", err))
	}
	return opts
}

// Load reads options from a .yaml, .yml or .toml file.
func Load(path string) (Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Options{}, err
	}
	return Parse(path, data)
}

// Parse reads options from data, choosing the format by the extension of
// name.
func Parse(name string, data []byte) (Options, error) {
	var m map[string]any
	switch ext := strings.ToLower(filepath.Ext(name)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &m); err != nil {
			return Options{}, fmt.Errorf("%s: %w", name, err)
		}
	case ".toml":
		tree, err := toml.LoadBytes(data)
		if err != nil {
			return Options{}, fmt.Errorf("%s: %w", name, err)
		}
		m = tree.ToMap()
	default:
		return Options{}, fmt.Errorf("%s: unsupported config format %q", name, ext)
	}
	if m == nil {
		m = map[string]any{}
	}
	opts, err := decode(m)
	if err != nil {
		return Options{}, fmt.Errorf("%s: %w", name, err)
	}
	return opts, nil
}

// decode unifies m with the schema and fills in defaults.
func decode(m map[string]any) (Options, error) {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSrc, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return Options{}, err
	}
	v := schema.LookupPath(cue.ParsePath("#Options")).Unify(ctx.Encode(m))
	if err := v.Validate(); err != nil {
		return Options{}, err
	}
	var opts Options
	if err := v.Decode(&opts); err != nil {
		return Options{}, err
	}
	if opts.Entrypoints == nil {
		opts.Entrypoints = []string{}
	}
	return opts, nil
}

// Level is the slog level named by LogLevel.
func (o Options) Level() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(o.LogLevel)); err != nil {
		return slog.LevelWarn
	}
	return l
}
