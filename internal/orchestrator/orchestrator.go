// Package orchestrator drives the full (method × server) matrix spec
// §4.5 describes: fixed execution order, a runner variant choice per
// method, partial-artifact writes after every completed pair, and a
// final atomic emit with the staging tree removed.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/rockerboo/lsp-benchmark/internal/bench"
	"github.com/rockerboo/lsp-benchmark/internal/config"
	"github.com/rockerboo/lsp-benchmark/internal/methods"
	"github.com/rockerboo/lsp-benchmark/internal/obslog"
	"github.com/rockerboo/lsp-benchmark/internal/runner"
)

// Run executes the full matrix described by cfg and returns the
// assembled artifact. A project root that is not a directory is a fatal
// error. A missing primary file is not: every (server, method) pair,
// lifecycle-only methods included, records status=fail with an
// "open: <detail>" reason without spawning its server.
func Run(ctx context.Context, cfg *config.Config) (*bench.Artifact, error) {
	projectRoot, err := filepath.Abs(cfg.Project)
	if err != nil {
		return nil, fmt.Errorf("resolve project root: %w", err)
	}
	if info, err := os.Stat(projectRoot); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("project root %q is not a directory", projectRoot)
	}

	settings := runner.Settings{
		ProjectRoot:    projectRoot,
		PrimaryFile:    cfg.File,
		DefaultCursor:  methods.Position{Line: cfg.Line, Character: cfg.Col},
		Iterations:     cfg.Iterations,
		Warmup:         cfg.Warmup,
		RequestTimeout: secondsToDuration(cfg.TimeoutSec),
		IndexTimeout:   secondsToDuration(cfg.IndexTimeout),
	}

	runID := uuid.NewString()
	stagingDir := filepath.Join(cfg.Output, "partial", runID)
	if err := os.MkdirAll(stagingDir, 0o755); err != nil {
		return nil, fmt.Errorf("create staging dir: %w", err)
	}

	artifact := &bench.Artifact{
		Settings: bench.SettingsSummary{
			Project:        cfg.Project,
			File:           cfg.File,
			Iterations:     cfg.Iterations,
			Warmup:         cfg.Warmup,
			TimeoutSeconds: int(cfg.TimeoutSec),
			IndexTimeout:   int(cfg.IndexTimeout),
		},
	}
	for _, s := range cfg.Servers {
		artifact.Servers = append(artifact.Servers, bench.ServerSummary{
			Label: s.Label, Description: s.Description, Command: s.Command,
		})
	}

	responseCap := cfg.ResponseCap()

	for _, methodName := range cfg.ExpandedBenchmarks() {
		entry := bench.Entry{Name: methodName}
		override := cfg.Methods[methodName]
		spec := buildSpec(methodName, override)

		if input := inputEnvelope(methodName, settings, override); input != nil {
			entry.Input = input
		}

		for _, server := range cfg.Servers {
			obslog.Infof("running %s on %s", methodName, server.Label)
			result := runner.Run(ctx, server, spec, settings)
			capResponse(&result, responseCap)
			entry.Servers = append(entry.Servers, result)
		}

		artifact.Benchmarks = append(artifact.Benchmarks, entry)

		if err := writePartial(stagingDir, artifact); err != nil {
			obslog.Warnf("write partial artifact: %v", err)
		}
	}

	artifact.Timestamp = time.Now().UTC()

	if err := finalize(cfg.Output, stagingDir, artifact); err != nil {
		return nil, err
	}

	return artifact, nil
}

func secondsToDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}

// buildSpec narrows a method name and its config override into the
// runner.MethodSpec that chooses a variant and builds request params.
func buildSpec(name string, override config.MethodOverride) runner.MethodSpec {
	return runner.MethodSpec{
		Name:          name,
		Override:      override.CursorOverride(),
		SnapshotChain: override.SnapshotChain,
		OpenChain:     override.OpenChain,
		Cold:          override.Cold,
	}
}

// inputEnvelope returns the literal request params for position,
// document, and workspace-level methods; lifecycle and diagnostic
// methods carry no "input" per spec §4.5.
func inputEnvelope(name string, settings runner.Settings, override config.MethodOverride) json.RawMessage {
	role := methods.RoleFor(name)
	if role == methods.RoleLifecycle || role == methods.RoleDiagnostic {
		return nil
	}
	uri := "file://" + filepath.Join(settings.ProjectRoot, settings.PrimaryFile)
	params := methods.BuildParams(name, uri, settings.DefaultCursor, override.CursorOverride())
	encoded, err := json.Marshal(params)
	if err != nil {
		return nil
	}
	return encoded
}

// capResponse truncates a result's stored response text to n bytes when
// it is a JSON string and n > 0 (n == 0 means uncapped), per the
// configured response-size policy.
func capResponse(result *bench.ResultRecord, n int) {
	if n <= 0 || len(result.Response) == 0 {
		return
	}
	var asString string
	if json.Unmarshal(result.Response, &asString) != nil {
		return
	}
	if len(asString) <= n {
		return
	}
	truncated, err := json.Marshal(asString[:n])
	if err != nil {
		return
	}
	result.Response = truncated
}

func writePartial(stagingDir string, artifact *bench.Artifact) error {
	data, err := json.MarshalIndent(artifact, "", "  ")
	if err != nil {
		return err
	}
	path := filepath.Join(stagingDir, "artifact.json")
	return os.WriteFile(path, data, 0o644)
}

// finalize writes the completed artifact to <output>/results.json
// atomically (write to a temp file, then rename) and removes the
// staging tree.
func finalize(outputDir, stagingDir string, artifact *bench.Artifact) error {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	data, err := json.MarshalIndent(artifact, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal artifact: %w", err)
	}

	final := filepath.Join(outputDir, "results.json")
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp artifact: %w", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		return fmt.Errorf("rename artifact: %w", err)
	}

	if err := os.RemoveAll(filepath.Dir(stagingDir)); err != nil {
		obslog.Warnf("remove staging tree: %v", err)
	}
	return nil
}
