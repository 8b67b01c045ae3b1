// Package session owns one spawned LSP server end to end: the
// initialize/initialized handshake, open-document tracking and version
// numbers, a typed call-with-deadline operation, diagnostics waiting,
// RSS sampling, and teardown. This is spec §4.3's Session.
//
// Grounded on the teacher's cmd/lsp-session-manager/main.go (handshake
// shape, stale-document refresh on re-open, shutdown/exit sequencing)
// and on the pack's isaacphi/mcp-language-server-style client.go
// (per-document version counters, Close()'s shutdown-then-exit-then-wait
// with a kill fallback).
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/process"
	"github.com/sourcegraph/jsonrpc2"

	"github.com/rockerboo/lsp-benchmark/internal/obslog"
	"github.com/rockerboo/lsp-benchmark/internal/router"
	"github.com/rockerboo/lsp-benchmark/internal/transport"
)

// CallError classifies a failed call/wait into one of the taxonomy kinds
// spec §4.3's outcome table names: timeout, eof, protocol, rpc-error.
type CallError struct {
	Kind    string
	Message string
}

func (e *CallError) Error() string { return e.Message }

func classify(err error) *CallError {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &CallError{Kind: "timeout", Message: "timeout"}
	}
	if errors.Is(err, io.EOF) || errors.Is(err, jsonrpc2.ErrClosed) {
		return &CallError{Kind: "eof", Message: "EOF"}
	}
	var fe *transport.FrameError
	if errors.As(err, &fe) {
		if fe.Kind == transport.FrameEOF {
			return &CallError{Kind: "eof", Message: "EOF"}
		}
		return &CallError{Kind: "protocol", Message: fmt.Sprintf("protocol: %v", fe.Err)}
	}
	var rpcErr *jsonrpc2.Error
	if errors.As(err, &rpcErr) {
		return &CallError{Kind: "rpc-error", Message: "error: " + rpcErr.Message}
	}
	return &CallError{Kind: "protocol", Message: err.Error()}
}

// document tracks one open file's version counter, per spec §4.3.
type document struct {
	uri     string
	version int32
}

// Session is not safe for concurrent callers: spec §5 requires calls
// within one session to be strictly sequential.
type Session struct {
	proc   *transport.Process
	conn   *jsonrpc2.Conn
	router *router.Router

	mu   sync.Mutex
	docs map[string]*document

	label string

	stopProgress context.CancelFunc
}

// Spawn launches command/args in dir and attaches the framed transport.
// It does not perform the handshake; call Initialize next.
func Spawn(ctx context.Context, label, command string, args []string, dir string) (*Session, error) {
	proc, err := transport.Spawn(command, args, dir)
	if err != nil {
		return nil, err
	}
	return Attach(ctx, label, proc), nil
}

// Attach wires an already-built process into a new session without
// spawning anything itself. proc.Cmd may be nil when Stream is backed by
// something other than a real OS process (an in-process fake server
// wired over io.Pipe, for tests).
func Attach(ctx context.Context, label string, proc *transport.Process) *Session {
	r := router.New()
	conn := jsonrpc2.NewConn(ctx, proc.Stream, r)
	progressCtx, stopProgress := context.WithCancel(ctx)
	s := &Session{
		proc:         proc,
		conn:         conn,
		router:       r,
		docs:         make(map[string]*document),
		label:        label,
		stopProgress: stopProgress,
	}
	go s.logProgress(progressCtx)
	go func() {
		<-conn.DisconnectNotify()
		r.NotifyDisconnect()
	}()
	return s
}

// progressValue matches the begin/report/end shapes of a $/progress
// notification's value, per the teacher session manager's handling of
// WorkDoneProgress.
type progressValue struct {
	Kind       string `json:"kind"`
	Title      string `json:"title"`
	Message    string `json:"message"`
	Percentage int    `json:"percentage"`
}

type progressNotification struct {
	Value progressValue `json:"value"`
}

// logProgress drains $/progress notifications for the life of the
// session and logs them at debug level. It never gates
// WaitForDiagnostics -- per spec §4.3 that is satisfied strictly by the
// first matching publishDiagnostics -- this is observability only,
// adopted from the teacher's session manager indexing-progress tracker.
func (s *Session) logProgress(ctx context.Context) {
	for {
		raw, err := s.router.TakeNext(ctx, "$/progress")
		if err != nil {
			return
		}
		var note progressNotification
		if json.Unmarshal(raw, &note) != nil {
			continue
		}
		v := note.Value
		switch v.Kind {
		case "begin", "report":
			obslog.Debugf("%s: progress [%s] %s %s (%d%%)", s.label, v.Kind, v.Title, v.Message, v.Percentage)
		case "end":
			obslog.Debugf("%s: progress [end] %s %s", s.label, v.Title, v.Message)
		}
	}
}

// RootURI converts an absolute project path to a file:// URI.
func RootURI(projectRoot string) string {
	return "file://" + projectRoot
}

// FileURI converts an absolute file path to a file:// URI.
func FileURI(path string) string {
	return "file://" + path
}

func capabilities() map[string]interface{} {
	return map[string]interface{}{
		"textDocument": map[string]interface{}{
			"synchronization": map[string]interface{}{
				"dynamicRegistration": false,
				"didSave":             true,
			},
			"hover": map[string]interface{}{
				"contentFormat": []string{"markdown", "plaintext"},
			},
			"definition":     map[string]interface{}{"linkSupport": true},
			"declaration":    map[string]interface{}{"linkSupport": true},
			"typeDefinition": map[string]interface{}{"linkSupport": true},
			"implementation": map[string]interface{}{"linkSupport": true},
			"references":     map[string]interface{}{},
			"rename":         map[string]interface{}{"prepareSupport": true},
			"completion": map[string]interface{}{
				"completionItem": map[string]interface{}{"snippetSupport": false},
			},
			"signatureHelp": map[string]interface{}{},
			"documentSymbol": map[string]interface{}{
				"hierarchicalDocumentSymbolSupport": true,
			},
			"documentLink":      map[string]interface{}{},
			"formatting":        map[string]interface{}{},
			"foldingRange":      map[string]interface{}{},
			"selectionRange":    map[string]interface{}{},
			"codeLens":          map[string]interface{}{},
			"inlayHint":         map[string]interface{}{},
			"semanticTokens":    map[string]interface{}{"requests": map[string]interface{}{"full": map[string]interface{}{"delta": true}, "range": true}},
			"documentColor":     map[string]interface{}{},
			"publishDiagnostics": map[string]interface{}{"versionSupport": false},
			"diagnostic":        map[string]interface{}{},
		},
		"workspace": map[string]interface{}{
			"workspaceFolders": true,
			"symbol":           map[string]interface{}{},
		},
		"window": map[string]interface{}{
			"workDoneProgress": true,
		},
	}
}

// Initialize sends initialize under deadline, then fires-and-forgets
// initialized on success. The handshake's own elapsed time is the
// caller's (Variant A runner's) concern to time.
func (s *Session) Initialize(ctx context.Context, projectRoot string, deadline time.Duration) (json.RawMessage, error) {
	cctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	rootURI := RootURI(projectRoot)
	params := map[string]interface{}{
		"processId":    os.Getpid(),
		"rootUri":      rootURI,
		"capabilities": capabilities(),
		"workspaceFolders": []map[string]string{
			{"uri": rootURI, "name": "workspace"},
		},
	}

	var result json.RawMessage
	if err := s.conn.Call(cctx, "initialize", params, &result); err != nil {
		return nil, classify(err)
	}

	_ = s.conn.Notify(context.Background(), "initialized", map[string]interface{}{})
	return result, nil
}

// Open sends textDocument/didOpen (version 1). If the uri is already
// tracked open, it is closed and reopened first -- the teacher's
// session manager does the same stale-document refresh, since an LSP
// server's behavior on a double didOpen for one uri is undefined.
func (s *Session) Open(ctx context.Context, uri, languageID, text string) error {
	s.mu.Lock()
	_, already := s.docs[uri]
	s.mu.Unlock()

	if already {
		if err := s.Close(ctx, uri); err != nil {
			obslog.Warnf("%s: close before reopen of %s: %v", s.label, uri, err)
		}
	}

	params := map[string]interface{}{
		"textDocument": map[string]interface{}{
			"uri":        uri,
			"languageId": languageID,
			"version":    1,
			"text":       text,
		},
	}
	if err := s.conn.Notify(ctx, "textDocument/didOpen", params); err != nil {
		return classify(err)
	}

	s.mu.Lock()
	s.docs[uri] = &document{uri: uri, version: 1}
	s.mu.Unlock()
	return nil
}

// Change sends textDocument/didChange with a single full-document
// content replacement and the next version number.
func (s *Session) Change(ctx context.Context, uri, text string) error {
	s.mu.Lock()
	doc, ok := s.docs[uri]
	if !ok {
		doc = &document{uri: uri, version: 1}
		s.docs[uri] = doc
	}
	doc.version++
	version := doc.version
	s.mu.Unlock()

	params := map[string]interface{}{
		"textDocument": map[string]interface{}{
			"uri":     uri,
			"version": version,
		},
		"contentChanges": []map[string]interface{}{
			{"text": text},
		},
	}
	if err := s.conn.Notify(ctx, "textDocument/didChange", params); err != nil {
		return classify(err)
	}
	return nil
}

// Close sends textDocument/didClose. Not required by correctness, but
// kept tidy for chained variants that reopen documents.
func (s *Session) Close(ctx context.Context, uri string) error {
	s.mu.Lock()
	delete(s.docs, uri)
	s.mu.Unlock()

	params := map[string]interface{}{
		"textDocument": map[string]interface{}{"uri": uri},
	}
	return classify(s.conn.Notify(ctx, "textDocument/didClose", params))
}

// Call allocates the next id (handled internally by jsonrpc2.Conn),
// issues method with params, and awaits the response bounded by
// deadline. On timeout the pending entry is dropped by the underlying
// connection; the child is not killed.
func (s *Session) Call(ctx context.Context, method string, params interface{}, deadline time.Duration) (json.RawMessage, error) {
	cctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	var result json.RawMessage
	if err := s.conn.Call(cctx, method, params, &result); err != nil {
		return nil, classify(err)
	}
	return result, nil
}

// WaitForDiagnostics blocks until a publishDiagnostics notification for
// uri is observed, or deadline elapses. A server that emits multiple
// waves is satisfied by the first matching one; diagnostics for other
// documents are discarded and the wait continues.
func (s *Session) WaitForDiagnostics(ctx context.Context, uri string, deadline time.Duration) (json.RawMessage, error) {
	cctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	for {
		raw, err := s.router.TakeNext(cctx, "textDocument/publishDiagnostics")
		if err != nil {
			if errors.Is(err, router.ErrDisconnected) {
				return nil, classify(io.EOF)
			}
			return nil, classify(cctx.Err())
		}

		var params struct {
			URI string `json:"uri"`
		}
		if jsonErr := json.Unmarshal(raw, &params); jsonErr != nil {
			continue
		}
		if params.URI == uri {
			return raw, nil
		}
	}
}

// SampleRSS returns the child's resident set size in kilobytes, or 0 if
// unmeasured (the gopsutil-native equivalent of spawning `ps -o rss=`).
func (s *Session) SampleRSS() int64 {
	pid := s.proc.PID()
	if pid == 0 {
		return 0
	}
	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		return 0
	}
	info, err := proc.MemoryInfo()
	if err != nil || info == nil {
		return 0
	}
	return int64(info.RSS / 1024)
}

// PID returns the child's process id, for status reporting.
func (s *Session) PID() int {
	return s.proc.PID()
}

// Stderr returns the child's captured standard error so far.
func (s *Session) Stderr() string { return s.proc.Stream.Stderr() }

const teardownDeadline = 500 * time.Millisecond
const teardownGrace = 2 * time.Second

// Teardown sends shutdown then exit (best-effort, each bounded), closes
// stdin, and force-terminates if the process does not exit within a
// short grace window. Safe to call even if the handshake never
// completed.
func (s *Session) Teardown() {
	s.stopProgress()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), teardownDeadline)
	_ = s.conn.Call(shutdownCtx, "shutdown", nil, nil)
	cancel()

	exitCtx, exitCancel := context.WithTimeout(context.Background(), teardownDeadline)
	_ = s.conn.Notify(exitCtx, "exit", nil)
	exitCancel()

	_ = s.conn.Close()

	done := make(chan struct{})
	go func() {
		_ = s.proc.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(teardownGrace):
		_ = s.proc.Kill()
		<-done
	}
}
