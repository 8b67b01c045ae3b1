package runner

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rockerboo/lsp-benchmark/internal/bench"
	"github.com/rockerboo/lsp-benchmark/internal/config"
	"github.com/rockerboo/lsp-benchmark/internal/lspfail"
	"github.com/rockerboo/lsp-benchmark/internal/methods"
	"github.com/rockerboo/lsp-benchmark/internal/obslog"
	"github.com/rockerboo/lsp-benchmark/internal/session"
)

// languageID guesses an LSP languageId from a file extension. Servers
// that ignore the field are unaffected; servers that gate capabilities
// on it need something plausible.
func languageID(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".go":
		return "go"
	case ".py":
		return "python"
	case ".rs":
		return "rust"
	case ".ts":
		return "typescript"
	case ".tsx":
		return "typescriptreact"
	case ".js":
		return "javascript"
	case ".sol":
		return "solidity"
	case ".c", ".h":
		return "c"
	case ".cpp", ".cc", ".hpp":
		return "cpp"
	case ".java":
		return "java"
	default:
		return "plaintext"
	}
}

func readFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", lspfail.Open(err)
	}
	return string(data), nil
}

// runLifecycle is Variant A: spec's initialize-only lifecycle measurement.
func runLifecycle(ctx context.Context, server config.ServerDescriptor, settings Settings) bench.ResultRecord {
	if _, err := readFile(settings.primaryAbsPath()); err != nil {
		return failResult(server.Label, err.Error())
	}

	iterations := make([]bench.IterationRecord, 0, settings.Iterations)

	run := func() (reason string, hardFail bool) {
		sess, failed := spawn(ctx, server, settings.ProjectRoot)
		if failed != nil {
			return failed.Reason, true
		}
		defer sess.Teardown()

		start := time.Now()
		_, err := sess.Initialize(ctx, settings.ProjectRoot, settings.RequestTimeout)
		elapsed := round2(time.Since(start).Seconds() * 1000)
		if err != nil {
			ce, _ := err.(*session.CallError)
			if ce == nil {
				ce = &session.CallError{Kind: "protocol", Message: err.Error()}
			}
			return lspfail.Initialize(ce).Reason, true
		}
		iterations = append(iterations, bench.IterationRecord{ElapsedMS: elapsed, Response: rawString("ok")})
		return "", false
	}

	for i := 0; i < settings.Warmup; i++ {
		if reason, hardFail := run(); hardFail {
			return failResult(server.Label, reason)
		}
	}
	iterations = iterations[:0]
	for i := 0; i < settings.Iterations; i++ {
		if reason, hardFail := run(); hardFail {
			return failResult(server.Label, reason)
		}
	}

	return finalize(server.Label, iterations)
}

func rawString(s string) []byte {
	return []byte(`"` + s + `"`)
}

// runDiagnostics is Variant B: a fresh session per iteration, timing the
// wait for the first publishDiagnostics notification.
func runDiagnostics(ctx context.Context, server config.ServerDescriptor, settings Settings) bench.ResultRecord {
	uri := settings.primaryURI()
	text, err := readFile(settings.primaryAbsPath())
	if err != nil {
		return failResult(server.Label, err.Error())
	}

	iterations := make([]bench.IterationRecord, 0, settings.Iterations)
	var lastRSS int64

	for i := 0; i < settings.Warmup+settings.Iterations; i++ {
		sess, failed := spawn(ctx, server, settings.ProjectRoot)
		if failed != nil {
			return *failed
		}
		if hs := handshake(ctx, sess, server, settings); hs != nil {
			return *hs
		}
		if err := sess.Open(ctx, uri, languageID(settings.PrimaryFile), text); err != nil {
			sess.Teardown()
			return failResult(server.Label, lspfail.WaitDiagnostics("EOF").Reason)
		}

		start := time.Now()
		raw, waitErr := sess.WaitForDiagnostics(ctx, uri, settings.IndexTimeout)
		elapsed := round2(time.Since(start).Seconds() * 1000)
		lastRSS = sess.SampleRSS()
		sess.Teardown()

		if waitErr != nil {
			result := failResult(server.Label, reasonFromWait(waitErr))
			result.RSSKB = &lastRSS
			return result
		}

		if i >= settings.Warmup {
			iterations = append(iterations, bench.IterationRecord{ElapsedMS: elapsed, Response: raw})
		}
	}

	result := finalize(server.Label, iterations)
	result.RSSKB = &lastRSS
	return result
}

// runShared is Variant C: one spawned session serving every warmup and
// measured iteration of a position/document/workspace-level method.
func runShared(ctx context.Context, server config.ServerDescriptor, spec MethodSpec, settings Settings) bench.ResultRecord {
	uri := settings.primaryURI()
	text, err := readFile(settings.primaryAbsPath())
	if err != nil {
		return failResult(server.Label, err.Error())
	}

	sess, failed := spawn(ctx, server, settings.ProjectRoot)
	if failed != nil {
		return *failed
	}
	defer sess.Teardown()

	if hs := handshake(ctx, sess, server, settings); hs != nil {
		return *hs
	}
	if err := sess.Open(ctx, uri, languageID(settings.PrimaryFile), text); err != nil {
		return failResult(server.Label, lspfail.WaitDiagnostics("EOF").Reason)
	}
	if _, err := sess.WaitForDiagnostics(ctx, uri, settings.IndexTimeout); err != nil {
		rssVal := sess.SampleRSS()
		result := failResult(server.Label, reasonFromWait(err))
		result.RSSKB = &rssVal
		return result
	}
	rssVal := sess.SampleRSS()

	pos := settings.DefaultCursor
	paramsFn := func(int) interface{} {
		return methods.BuildParams(spec.Name, uri, pos, spec.Override)
	}

	iterations, ce := runLoop(ctx, sess, spec.Name, paramsFn, settings.RequestTimeout, settings.Warmup, settings.Iterations)
	if ce != nil {
		return failResult(server.Label, reasonFor(ce))
	}

	result := finalize(server.Label, iterations)
	result.RSSKB = &rssVal
	return result
}

func reasonFor(ce *session.CallError) string {
	switch ce.Kind {
	case "timeout":
		return lspfail.ErrTimeout.Error()
	case "eof":
		return lspfail.ErrEOF.Error()
	default:
		return ce.Message
	}
}

// runColdStart is Variant D: each iteration spawns fresh, times from
// before didOpen through the measured response, folding indexing wait
// into the measurement.
func runColdStart(ctx context.Context, server config.ServerDescriptor, spec MethodSpec, settings Settings) bench.ResultRecord {
	uri := settings.primaryURI()
	text, err := readFile(settings.primaryAbsPath())
	if err != nil {
		return failResult(server.Label, err.Error())
	}

	iterations := make([]bench.IterationRecord, 0, settings.Iterations)
	pos := settings.DefaultCursor

	runOnce := func() (bench.IterationRecord, *session.CallError, *bench.ResultRecord) {
		sess, failed := spawn(ctx, server, settings.ProjectRoot)
		if failed != nil {
			return bench.IterationRecord{}, nil, failed
		}
		defer sess.Teardown()

		if hs := handshake(ctx, sess, server, settings); hs != nil {
			return bench.IterationRecord{}, nil, hs
		}

		start := time.Now()
		if err := sess.Open(ctx, uri, languageID(settings.PrimaryFile), text); err != nil {
			result := failResult(server.Label, lspfail.WaitDiagnostics("EOF").Reason)
			return bench.IterationRecord{}, nil, &result
		}
		if _, err := sess.WaitForDiagnostics(ctx, uri, settings.IndexTimeout); err != nil {
			result := failResult(server.Label, reasonFromWait(err))
			return bench.IterationRecord{}, nil, &result
		}

		mc := call(ctx, sess, spec.Name, methods.BuildParams(spec.Name, uri, pos, spec.Override), settings.RequestTimeout)
		elapsed := round2(time.Since(start).Seconds() * 1000)
		if isHardFail(mc.callErr) {
			return bench.IterationRecord{}, mc.callErr, nil
		}
		return bench.IterationRecord{ElapsedMS: elapsed, Response: mc.response}, nil, nil
	}

	for i := 0; i < settings.Warmup; i++ {
		if _, ce, failed := runOnce(); failed != nil {
			return *failed
		} else if ce != nil {
			return failResult(server.Label, reasonFor(ce))
		}
	}
	for i := 0; i < settings.Iterations; i++ {
		rec, ce, failed := runOnce()
		if failed != nil {
			return *failed
		}
		if ce != nil {
			return failResult(server.Label, reasonFor(ce))
		}
		iterations = append(iterations, rec)
	}

	return finalize(server.Label, iterations)
}

// runSnapshotChain is the snapshot-chain half of Variant E: one shared
// session driven through successive didChange edits, one measured
// iteration per snapshot step, no warmup.
func runSnapshotChain(ctx context.Context, server config.ServerDescriptor, spec MethodSpec, settings Settings) bench.ResultRecord {
	uri := settings.primaryURI()
	text, err := readFile(settings.primaryAbsPath())
	if err != nil {
		return failResult(server.Label, err.Error())
	}

	sess, failed := spawn(ctx, server, settings.ProjectRoot)
	if failed != nil {
		return *failed
	}
	defer sess.Teardown()

	if hs := handshake(ctx, sess, server, settings); hs != nil {
		return *hs
	}
	if err := sess.Open(ctx, uri, languageID(settings.PrimaryFile), text); err != nil {
		return failResult(server.Label, lspfail.WaitDiagnostics("EOF").Reason)
	}
	if _, err := sess.WaitForDiagnostics(ctx, uri, settings.IndexTimeout); err != nil {
		return failResult(server.Label, reasonFromWait(err))
	}

	iterations := make([]bench.IterationRecord, 0, len(spec.SnapshotChain))
	for _, step := range spec.SnapshotChain {
		stepText, err := readFile(filepath.Join(settings.ProjectRoot, step.File))
		if err != nil {
			return failResult(server.Label, err.Error())
		}
		if err := sess.Change(ctx, uri, stepText); err != nil {
			ce, _ := err.(*session.CallError)
			if isHardFail(ce) {
				return failResult(server.Label, reasonFor(ce))
			}
		}

		stepPos := methods.Position{Line: step.Line, Character: step.Col}
		mc := call(ctx, sess, spec.Name, methods.BuildParams(spec.Name, uri, stepPos, spec.Override), settings.RequestTimeout)
		if isHardFail(mc.callErr) {
			return failResult(server.Label, reasonFor(mc.callErr))
		}
		iterations = append(iterations, bench.IterationRecord{ElapsedMS: mc.elapsedMS, Response: mc.response})
	}

	return finalize(server.Label, iterations)
}

// runOpenChain is the open-chain half of Variant E: a baseline request
// on the primary file, then per step a new document is opened and the
// request re-issued on the original file.
func runOpenChain(ctx context.Context, server config.ServerDescriptor, spec MethodSpec, settings Settings) bench.ResultRecord {
	uri := settings.primaryURI()
	text, err := readFile(settings.primaryAbsPath())
	if err != nil {
		return failResult(server.Label, err.Error())
	}

	sess, failed := spawn(ctx, server, settings.ProjectRoot)
	if failed != nil {
		return *failed
	}
	defer sess.Teardown()

	if hs := handshake(ctx, sess, server, settings); hs != nil {
		return *hs
	}
	if err := sess.Open(ctx, uri, languageID(settings.PrimaryFile), text); err != nil {
		return failResult(server.Label, lspfail.WaitDiagnostics("EOF").Reason)
	}
	if _, err := sess.WaitForDiagnostics(ctx, uri, settings.IndexTimeout); err != nil {
		return failResult(server.Label, reasonFromWait(err))
	}

	iterations := make([]bench.IterationRecord, 0, len(spec.OpenChain)+1)

	baseline := call(ctx, sess, spec.Name, methods.BuildParams(spec.Name, uri, settings.DefaultCursor, spec.Override), settings.RequestTimeout)
	if isHardFail(baseline.callErr) {
		return failResult(server.Label, reasonFor(baseline.callErr))
	}
	iterations = append(iterations, bench.IterationRecord{ElapsedMS: baseline.elapsedMS, Response: baseline.response})

	for _, step := range spec.OpenChain {
		stepPath := filepath.Join(settings.ProjectRoot, step.File)
		stepText, err := readFile(stepPath)
		if err != nil {
			return failResult(server.Label, err.Error())
		}
		stepURI := session.FileURI(stepPath)

		if err := sess.Open(ctx, stepURI, languageID(step.File), stepText); err != nil {
			ce, _ := err.(*session.CallError)
			if isHardFail(ce) {
				return failResult(server.Label, reasonFor(ce))
			}
		}
		if _, err := sess.WaitForDiagnostics(ctx, stepURI, settings.IndexTimeout); err != nil {
			obslog.Warnf("%s: open-chain step %s: %v", server.Label, step.File, err)
		}

		reqPos := settings.DefaultCursor
		if step.Line != nil && step.Col != nil {
			reqPos = methods.Position{Line: *step.Line, Character: *step.Col}
		}
		mc := call(ctx, sess, spec.Name, methods.BuildParams(spec.Name, uri, reqPos, spec.Override), settings.RequestTimeout)
		if isHardFail(mc.callErr) {
			return failResult(server.Label, reasonFor(mc.callErr))
		}
		iterations = append(iterations, bench.IterationRecord{ElapsedMS: mc.elapsedMS, Response: mc.response})
	}

	return finalize(server.Label, iterations)
}

func reasonFromWait(err error) string {
	ce, _ := err.(*session.CallError)
	kind := "timeout"
	if ce != nil && ce.Kind == "eof" {
		kind = "EOF"
	}
	return lspfail.WaitDiagnostics(kind).Reason
}
