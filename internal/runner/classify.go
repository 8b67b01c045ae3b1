package runner

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rockerboo/lsp-benchmark/internal/bench"
	"github.com/rockerboo/lsp-benchmark/internal/session"
)

// measuredCall is one call issued during the measured phase, carrying
// enough to build both the iteration record and the hard-fail check.
type measuredCall struct {
	elapsedMS float64
	response  json.RawMessage
	callErr   *session.CallError
}

// isHardFail reports whether a call error escalates the whole record to
// status=fail per spec §4.4: timeout, EOF, and protocol errors do;
// rpc-error does not (it is recorded as an empty/invalid response).
func isHardFail(ce *session.CallError) bool {
	return ce != nil && (ce.Kind == "timeout" || ce.Kind == "eof" || ce.Kind == "protocol")
}

// call issues one timed request and classifies its outcome.
func call(ctx context.Context, sess *session.Session, method string, params interface{}, timeout time.Duration) measuredCall {
	start := time.Now()
	raw, err := sess.Call(ctx, method, params, timeout)
	elapsed := time.Since(start).Seconds() * 1000

	if err == nil {
		return measuredCall{elapsedMS: round2(elapsed), response: raw}
	}

	ce, ok := err.(*session.CallError)
	if !ok {
		ce = &session.CallError{Kind: "protocol", Message: err.Error()}
	}

	mc := measuredCall{elapsedMS: round2(elapsed), callErr: ce}
	if ce.Kind == "rpc-error" {
		encoded, _ := json.Marshal(ce.Message)
		mc.response = encoded
	}
	return mc
}

func round2(v float64) float64 {
	const scale = 100
	return float64(int64(v*scale+0.5)) / scale
}

// runLoop executes warmup then measured iterations of one call shape,
// stopping immediately on a hard failure (discarding prior iterations,
// per spec §4.4).
func runLoop(ctx context.Context, sess *session.Session, method string, paramsFn func(i int) interface{}, timeout time.Duration, warmup, measured int) ([]bench.IterationRecord, *session.CallError) {
	for i := 0; i < warmup; i++ {
		mc := call(ctx, sess, method, paramsFn(i), timeout)
		if isHardFail(mc.callErr) {
			return nil, mc.callErr
		}
	}

	records := make([]bench.IterationRecord, 0, measured)
	for i := 0; i < measured; i++ {
		mc := call(ctx, sess, method, paramsFn(warmup+i), timeout)
		if isHardFail(mc.callErr) {
			return nil, mc.callErr
		}
		records = append(records, bench.IterationRecord{ElapsedMS: mc.elapsedMS, Response: mc.response})
	}
	return records, nil
}

// finalize applies spec §4.4's canonical-response and classification
// rules to a completed (non-hard-failed) set of measured iterations.
func finalize(serverLabel string, iterations []bench.IterationRecord) bench.ResultRecord {
	if len(iterations) == 0 {
		return bench.ResultRecord{Server: serverLabel, Status: bench.StatusFail, Reason: "no iterations"}
	}

	canonicalIdx := -1
	for i, it := range iterations {
		if bench.ClassifyResponse(it.Response) == bench.Accepted {
			canonicalIdx = i
			break
		}
	}

	if canonicalIdx == -1 {
		return bench.ResultRecord{Server: serverLabel, Status: bench.StatusInvalid, Response: iterations[0].Response}
	}

	canonical := iterations[canonicalIdx].Response
	elapsed := make([]float64, len(iterations))
	final := make([]bench.IterationRecord, len(iterations))
	for i, it := range iterations {
		elapsed[i] = it.ElapsedMS
		rec := bench.IterationRecord{ElapsedMS: it.ElapsedMS}
		if !bench.JSONEqual(it.Response, canonical) {
			rec.Response = it.Response
		}
		final[i] = rec
	}

	mean, p50, p95, min, max := bench.Stats(elapsed)
	return bench.ResultRecord{
		Server:     serverLabel,
		Status:     bench.StatusOK,
		Mean:       &mean,
		P50:        &p50,
		P95:        &p95,
		Min:        &min,
		Max:        &max,
		Response:   canonical,
		Iterations: final,
	}
}

func failResult(serverLabel, reason string) bench.ResultRecord {
	return bench.ResultRecord{Server: serverLabel, Status: bench.StatusFail, Reason: reason}
}
