// Package config loads the declarative run configuration from spec §6:
// project root, primary file, cursor, iteration counts, deadlines, the
// server list, and per-method overrides. Loading stays a thin
// encoding/json reader with defaults-filling, matching the teacher's own
// lsp.LoadLSPConfig (a json-tagged struct round-trip, no templating or
// schema layer) -- the richer config machinery (multi-location fallback
// search, the `init` template generator) is out of scope per spec §1.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rockerboo/lsp-benchmark/internal/methods"
)

// ServerDescriptor is one server launch entry from spec §3.
type ServerDescriptor struct {
	Label       string   `json:"label"`
	Description string   `json:"description"`
	Command     string   `json:"command"`
	Args        []string `json:"args"`
	BuildSource string   `json:"build_source,omitempty"`
}

// SnapshotStep is one step of a snapshot chain (Variant E).
type SnapshotStep struct {
	File string `json:"file"`
	Line int    `json:"line"`
	Col  int    `json:"col"`
}

// OpenStep is one step of an open chain (Variant E).
type OpenStep struct {
	File string `json:"file"`
	Line *int   `json:"line,omitempty"`
	Col  *int   `json:"col,omitempty"`
}

// MethodOverride is one entry of the config's "methods" map, per spec §3.
type MethodOverride struct {
	Line             *int           `json:"line,omitempty"`
	Col              *int           `json:"col,omitempty"`
	TriggerCharacter string         `json:"trigger_character,omitempty"`
	NewName          string         `json:"new_name,omitempty"`
	RangeStartLine   *int           `json:"range_start_line,omitempty"`
	RangeStartCol    *int           `json:"range_start_col,omitempty"`
	SnapshotChain    []SnapshotStep `json:"snapshot_chain,omitempty"`
	OpenChain        []OpenStep     `json:"open_chain,omitempty"`
	Cold             bool           `json:"cold,omitempty"`
}

// CursorOverride converts a MethodOverride into a methods.CursorOverride.
func (m MethodOverride) CursorOverride() *methods.CursorOverride {
	if m.Line == nil && m.Col == nil && m.TriggerCharacter == "" && m.NewName == "" && m.RangeStartLine == nil {
		return nil
	}
	co := &methods.CursorOverride{TriggerCharacter: m.TriggerCharacter, NewName: m.NewName}
	if m.Line != nil && m.Col != nil {
		co.Position = &methods.Position{Line: *m.Line, Character: *m.Col}
	}
	if m.RangeStartLine != nil && m.RangeStartCol != nil {
		co.RangeStart = &methods.Position{Line: *m.RangeStartLine, Character: *m.RangeStartCol}
	}
	return co
}

// Config is the full input document spec §6 describes.
type Config struct {
	Project      string                    `json:"project"`
	File         string                    `json:"file"`
	Line         int                       `json:"line"`
	Col          int                       `json:"col"`
	Iterations   int                       `json:"iterations"`
	Warmup       int                       `json:"warmup"`
	TimeoutSec   float64                   `json:"timeout"`
	IndexTimeout float64                   `json:"index_timeout"`
	Output       string                    `json:"output"`
	Benchmarks   []string                  `json:"benchmarks"`
	Response     json.RawMessage           `json:"response,omitempty"`
	Methods      map[string]MethodOverride `json:"methods,omitempty"`
	Servers      []ServerDescriptor        `json:"servers"`
}

// defaults mirrors spec §6's default column exactly.
func (c *Config) applyDefaults() {
	if c.Line == 0 {
		c.Line = 102
	}
	if c.Col == 0 {
		c.Col = 15
	}
	if c.Iterations == 0 {
		c.Iterations = 10
	}
	if c.Warmup == 0 {
		c.Warmup = 2
	}
	if c.TimeoutSec == 0 {
		c.TimeoutSec = 10
	}
	if c.IndexTimeout == 0 {
		c.IndexTimeout = 15
	}
	if c.Output == "" {
		c.Output = "benchmarks"
	}
	if len(c.Benchmarks) == 0 {
		c.Benchmarks = []string{"all"}
	}
}

// ExpandedBenchmarks expands an "all" entry to the full method list
// from methods.All, preserving configured order otherwise.
func (c *Config) ExpandedBenchmarks() []string {
	for _, name := range c.Benchmarks {
		if name == "all" {
			return append([]string(nil), methods.All...)
		}
	}
	return c.Benchmarks
}

// ResponseCap returns the configured response-string cap: 0 means
// "full" (uncapped), otherwise a positive byte count, defaulting to 80.
func (c *Config) ResponseCap() int {
	if len(c.Response) == 0 {
		return 80
	}
	var asString string
	if json.Unmarshal(c.Response, &asString) == nil {
		if asString == "full" {
			return 0
		}
	}
	var asInt int
	if json.Unmarshal(c.Response, &asInt) == nil && asInt > 0 {
		return asInt
	}
	return 80
}

// Load reads and validates a configuration file from path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Defaults are filled before decoding, so a key the file sets
	// explicitly to 0 (a 0-based cursor line, iterations=0) keeps its value.
	var cfg Config
	cfg.applyDefaults()
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if cfg.Project == "" {
		return nil, fmt.Errorf("config: \"project\" is required")
	}
	if cfg.File == "" {
		return nil, fmt.Errorf("config: \"file\" is required")
	}
	if len(cfg.Servers) == 0 {
		return nil, fmt.Errorf("config: \"servers\" must list at least one server")
	}

	return &cfg, nil
}
