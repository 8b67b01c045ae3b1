package session

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rockerboo/lsp-benchmark/internal/lsptest"
)

func attachFake(t *testing.T, script lsptest.Script) *Session {
	t.Helper()
	proc := lsptest.NewProcess(script)
	return Attach(context.Background(), "fake", proc)
}

func TestInitializeHandshake(t *testing.T) {
	sess := attachFake(t, lsptest.Script{InitializeResult: map[string]interface{}{"capabilities": map[string]interface{}{}}})
	defer sess.Teardown()

	result, err := sess.Initialize(context.Background(), "/tmp/project", time.Second)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(result, &decoded))
	assert.Contains(t, decoded, "capabilities")
}

func TestCallReturnsResult(t *testing.T) {
	sess := attachFake(t, lsptest.Script{
		Responses: map[string]interface{}{
			"textDocument/hover": map[string]interface{}{"contents": "docs"},
		},
	})
	defer sess.Teardown()

	_, err := sess.Initialize(context.Background(), "/tmp/project", time.Second)
	require.NoError(t, err)

	raw, err := sess.Call(context.Background(), "textDocument/hover", map[string]interface{}{}, time.Second)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "docs", decoded["contents"])
}

func TestCallTimeoutDoesNotKillChild(t *testing.T) {
	sess := attachFake(t, lsptest.Script{
		Hang: map[string]bool{"textDocument/definition": true},
	})
	defer sess.Teardown()

	_, err := sess.Initialize(context.Background(), "/tmp/project", time.Second)
	require.NoError(t, err)

	_, err = sess.Call(context.Background(), "textDocument/definition", map[string]interface{}{}, 20*time.Millisecond)
	require.Error(t, err)

	ce, ok := err.(*CallError)
	require.True(t, ok)
	assert.Equal(t, "timeout", ce.Kind)

	// The child is still alive and answering after the timeout.
	_, err = sess.Call(context.Background(), "textDocument/hover", map[string]interface{}{}, time.Second)
	require.NoError(t, err)
}

func TestCallRPCError(t *testing.T) {
	sess := attachFake(t, lsptest.Script{
		ErrorResponses: map[string]string{"textDocument/declaration": "Unknown method textDocument/declaration"},
	})
	defer sess.Teardown()

	_, err := sess.Initialize(context.Background(), "/tmp/project", time.Second)
	require.NoError(t, err)

	_, err = sess.Call(context.Background(), "textDocument/declaration", map[string]interface{}{}, time.Second)
	require.Error(t, err)

	ce, ok := err.(*CallError)
	require.True(t, ok)
	assert.Equal(t, "rpc-error", ce.Kind)
	assert.Equal(t, "error: Unknown method textDocument/declaration", ce.Message)
}

func TestWaitForDiagnosticsMatchesByURI(t *testing.T) {
	sess := attachFake(t, lsptest.Script{
		Diagnostics: []lsptest.DiagnosticsEvent{
			{URI: "file:///other.go", Delay: 0},
			{URI: "file:///a.go", Delay: 5 * time.Millisecond, Diagnostics: []interface{}{map[string]interface{}{"message": "warn"}}},
		},
	})
	defer sess.Teardown()

	_, err := sess.Initialize(context.Background(), "/tmp/project", time.Second)
	require.NoError(t, err)
	require.NoError(t, sess.Open(context.Background(), "file:///a.go", "go", "package main"))
	require.NoError(t, sess.Open(context.Background(), "file:///other.go", "go", "package main"))

	raw, err := sess.WaitForDiagnostics(context.Background(), "file:///a.go", time.Second)
	require.NoError(t, err)

	var params struct {
		URI         string        `json:"uri"`
		Diagnostics []interface{} `json:"diagnostics"`
	}
	require.NoError(t, json.Unmarshal(raw, &params))
	assert.Equal(t, "file:///a.go", params.URI)
	assert.Len(t, params.Diagnostics, 1)
}

func TestWaitForDiagnosticsTimesOutWithoutPublish(t *testing.T) {
	sess := attachFake(t, lsptest.Script{})
	defer sess.Teardown()

	_, err := sess.Initialize(context.Background(), "/tmp/project", time.Second)
	require.NoError(t, err)
	require.NoError(t, sess.Open(context.Background(), "file:///a.go", "go", "package main"))

	_, err = sess.WaitForDiagnostics(context.Background(), "file:///a.go", 20*time.Millisecond)
	require.Error(t, err)
}

func TestWaitForDiagnosticsReportsEOFOnChildDeath(t *testing.T) {
	sess := attachFake(t, lsptest.Script{ExitAfter: "textDocument/didOpen"})
	defer sess.Teardown()

	_, err := sess.Initialize(context.Background(), "/tmp/project", time.Second)
	require.NoError(t, err)
	require.NoError(t, sess.Open(context.Background(), "file:///a.go", "go", "package main"))

	_, err = sess.WaitForDiagnostics(context.Background(), "file:///a.go", time.Second)
	require.Error(t, err)

	ce, ok := err.(*CallError)
	require.True(t, ok)
	assert.Equal(t, "eof", ce.Kind)
}

func TestOpenReopenClosesStaleDocumentFirst(t *testing.T) {
	sess := attachFake(t, lsptest.Script{})
	defer sess.Teardown()

	require.NoError(t, sess.Open(context.Background(), "file:///a.go", "go", "v1"))
	require.NoError(t, sess.Open(context.Background(), "file:///a.go", "go", "v2"))

	sess.mu.Lock()
	doc := sess.docs["file:///a.go"]
	sess.mu.Unlock()
	require.NotNil(t, doc)
	assert.Equal(t, int32(1), doc.version, "reopen resets the version counter to 1")
}

func TestChangeIncrementsVersion(t *testing.T) {
	sess := attachFake(t, lsptest.Script{})
	defer sess.Teardown()

	require.NoError(t, sess.Open(context.Background(), "file:///a.go", "go", "v1"))
	require.NoError(t, sess.Change(context.Background(), "file:///a.go", "v2"))
	require.NoError(t, sess.Change(context.Background(), "file:///a.go", "v3"))

	sess.mu.Lock()
	doc := sess.docs["file:///a.go"]
	sess.mu.Unlock()
	assert.Equal(t, int32(3), doc.version)
}

func TestSampleRSSUnmeasuredWithoutRealProcess(t *testing.T) {
	sess := attachFake(t, lsptest.Script{})
	defer sess.Teardown()

	assert.Equal(t, int64(0), sess.SampleRSS(), "the fake transport has no real pid to sample")
}

func TestFileURIAndRootURI(t *testing.T) {
	assert.Equal(t, "file:///tmp/project", RootURI("/tmp/project"))
	assert.Equal(t, "file:///tmp/project/main.go", FileURI("/tmp/project/main.go"))
}
