package runner

import (
	"context"
	"encoding/json"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rockerboo/lsp-benchmark/internal/bench"
	"github.com/rockerboo/lsp-benchmark/internal/config"
	"github.com/rockerboo/lsp-benchmark/internal/lsptest"
	"github.com/rockerboo/lsp-benchmark/internal/methods"
	"github.com/rockerboo/lsp-benchmark/internal/session"
)

// withFakeServer substitutes the package-level spawn indirection for the
// duration of one test, wiring every simulated spawn to an in-process
// lsptest fake running script instead of a real executable.
func withFakeServer(t *testing.T, script lsptest.Script) {
	t.Helper()
	origLookPath := lookPath
	origSpawn := spawnSession
	lookPath = func(string) (string, error) { return "/bin/true", nil }
	spawnSession = func(ctx context.Context, label, command string, args []string, dir string) (*session.Session, error) {
		return session.Attach(ctx, label, lsptest.NewProcess(script)), nil
	}
	t.Cleanup(func() {
		lookPath = origLookPath
		spawnSession = origSpawn
	})
}

func testSettings(iterations, warmup int) Settings {
	return Settings{
		ProjectRoot:    "testdata",
		PrimaryFile:    "main.go",
		DefaultCursor:  methods.Position{Line: 102, Character: 15},
		Iterations:     iterations,
		Warmup:         warmup,
		RequestTimeout: time.Second,
		IndexTimeout:   time.Second,
	}
}

func TestLifecycleVariant(t *testing.T) {
	withFakeServer(t, lsptest.Script{})
	result := Run(context.Background(), config.ServerDescriptor{Label: "gopls", Command: "gopls"},
		MethodSpec{Name: "initialize"}, testSettings(3, 1))

	require.Equal(t, bench.StatusOK, result.Status)
	require.Len(t, result.Iterations, 3)
	assert.Nil(t, result.RSSKB)
	var canonical string
	require.NoError(t, json.Unmarshal(result.Response, &canonical))
	assert.Equal(t, "ok", canonical)
}

func TestDiagnosticsVariant(t *testing.T) {
	withFakeServer(t, lsptest.Script{
		Diagnostics: []lsptest.DiagnosticsEvent{
			{Delay: 10 * time.Millisecond, Diagnostics: []interface{}{map[string]interface{}{"message": "warn"}}},
		},
	})
	result := Run(context.Background(), config.ServerDescriptor{Label: "gopls", Command: "gopls"},
		MethodSpec{Name: "textDocument/diagnostic"}, testSettings(2, 0))

	require.Equal(t, bench.StatusOK, result.Status)
	require.Len(t, result.Iterations, 2)
	for _, it := range result.Iterations {
		assert.GreaterOrEqual(t, it.ElapsedMS, 10.0)
	}
	require.NotNil(t, result.RSSKB)
}

func TestSharedServerHoverVariant(t *testing.T) {
	withFakeServer(t, lsptest.Script{
		Responses: map[string]interface{}{
			"textDocument/hover": map[string]interface{}{"contents": "docs"},
		},
	})
	result := Run(context.Background(), config.ServerDescriptor{Label: "gopls", Command: "gopls"},
		MethodSpec{Name: "textDocument/hover"}, testSettings(3, 2))

	require.Equal(t, bench.StatusOK, result.Status)
	require.Len(t, result.Iterations, 3)
	require.NotNil(t, result.P50)
	require.NotNil(t, result.P95)
	assert.LessOrEqual(t, *result.P50, *result.P95)
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(result.Response, &decoded))
	assert.Equal(t, "docs", decoded["contents"])
}

func TestUnknownMethodClassifiesInvalid(t *testing.T) {
	withFakeServer(t, lsptest.Script{
		ErrorResponses: map[string]string{"textDocument/declaration": "Unknown method textDocument/declaration"},
	})
	result := Run(context.Background(), config.ServerDescriptor{Label: "gopls", Command: "gopls"},
		MethodSpec{Name: "textDocument/declaration"}, testSettings(2, 0))

	require.Equal(t, bench.StatusInvalid, result.Status)
	var asString string
	require.NoError(t, json.Unmarshal(result.Response, &asString))
	assert.Contains(t, asString, "error: Unknown method")
	assert.Nil(t, result.Mean)
}

func TestIndexingTimeoutIsHardFailure(t *testing.T) {
	withFakeServer(t, lsptest.Script{}) // never publishes diagnostics
	settings := testSettings(2, 0)
	settings.IndexTimeout = 20 * time.Millisecond

	result := Run(context.Background(), config.ServerDescriptor{Label: "gopls", Command: "gopls"},
		MethodSpec{Name: "textDocument/definition"}, settings)

	require.Equal(t, bench.StatusFail, result.Status)
	assert.Equal(t, "wait_for_diagnostics: timeout", result.Reason)
	require.NotNil(t, result.RSSKB)
}

func TestIndexingEOFIsHardFailure(t *testing.T) {
	withFakeServer(t, lsptest.Script{ExitAfter: "textDocument/didOpen"})
	result := Run(context.Background(), config.ServerDescriptor{Label: "gopls", Command: "gopls"},
		MethodSpec{Name: "textDocument/definition"}, testSettings(2, 0))

	require.Equal(t, bench.StatusFail, result.Status)
	assert.Equal(t, "wait_for_diagnostics: EOF", result.Reason)
}

func TestAllCallsHangingFailsWholeRecord(t *testing.T) {
	// A method that never answers must fail the whole record regardless
	// of how many measured iterations were configured -- spec §4.4's
	// rule that a hard failure anywhere discards prior successes (here,
	// there are none to discard, but the shape of the result is the
	// same: status=fail, no iteration data retained).
	withFakeServer(t, lsptest.Script{
		Diagnostics: []lsptest.DiagnosticsEvent{{}},
		Hang:        map[string]bool{"textDocument/hover": true},
	})
	settings := testSettings(2, 0)
	settings.RequestTimeout = 20 * time.Millisecond

	result := Run(context.Background(), config.ServerDescriptor{Label: "gopls", Command: "gopls"},
		MethodSpec{Name: "textDocument/hover"}, settings)

	require.Equal(t, bench.StatusFail, result.Status)
	assert.Empty(t, result.Iterations)
}

func TestColdStartTimesFromBeforeDidOpen(t *testing.T) {
	withFakeServer(t, lsptest.Script{
		Diagnostics: []lsptest.DiagnosticsEvent{{Delay: 10 * time.Millisecond}},
		Responses: map[string]interface{}{
			"textDocument/definition": []interface{}{map[string]interface{}{"uri": "file:///a.go"}},
		},
	})
	result := Run(context.Background(), config.ServerDescriptor{Label: "gopls", Command: "gopls"},
		MethodSpec{Name: "textDocument/definition", Cold: true}, testSettings(2, 1))

	require.Equal(t, bench.StatusOK, result.Status)
	for _, it := range result.Iterations {
		assert.GreaterOrEqual(t, it.ElapsedMS, 10.0, "cold-start elapsed must include the indexing wait")
	}
}

func TestLifecycleMissingFileFailsBeforeSpawn(t *testing.T) {
	spawned := false
	origLookPath := lookPath
	origSpawn := spawnSession
	lookPath = func(string) (string, error) { spawned = true; return "/bin/true", nil }
	spawnSession = origSpawn
	t.Cleanup(func() {
		lookPath = origLookPath
		spawnSession = origSpawn
	})

	settings := testSettings(2, 1)
	settings.PrimaryFile = "does-not-exist.go"

	result := Run(context.Background(), config.ServerDescriptor{Label: "gopls", Command: "gopls"},
		MethodSpec{Name: "initialize"}, settings)

	require.Equal(t, bench.StatusFail, result.Status)
	assert.Contains(t, result.Reason, "open:")
	assert.False(t, spawned, "a missing configured file must fail before the server is spawned")
}

func TestSpawnNotFoundIsSkippedNotCrashed(t *testing.T) {
	origLookPath := lookPath
	lookPath = func(string) (string, error) { return "", exec.ErrNotFound }
	t.Cleanup(func() { lookPath = origLookPath })

	result := Run(context.Background(), config.ServerDescriptor{Label: "missing", Command: "does-not-exist"},
		MethodSpec{Name: "initialize"}, testSettings(1, 0))

	require.Equal(t, bench.StatusFail, result.Status)
	assert.Equal(t, "spawn: not found", result.Reason)
}
