package bench

import (
	"bytes"
	"encoding/json"
	"math"
	"reflect"
	"sort"
	"strings"
)

// Stats computes mean, p50, p95, min, and max over elapsed (milliseconds)
// per spec §4.4: p50 is the nearest-rank median at sorted index
// floor((n-1)/2); p95 is the sorted value at index ceil(0.95*n)-1,
// clamped to n-1. All values are rounded to two decimal places.
func Stats(elapsed []float64) (mean, p50, p95, min, max float64) {
	n := len(elapsed)
	sorted := append([]float64(nil), elapsed...)
	sort.Float64s(sorted)

	sum := 0.0
	for _, v := range sorted {
		sum += v
	}
	mean = round2(sum / float64(n))

	p50 = round2(sorted[(n-1)/2])

	idx := int(math.Ceil(0.95*float64(n))) - 1
	if idx >= n {
		idx = n - 1
	}
	if idx < 0 {
		idx = 0
	}
	p95 = round2(sorted[idx])

	min = round2(sorted[0])
	max = round2(sorted[n-1])
	return
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// ResponseClass is the accepted/empty classification spec §4.4 assigns
// to each measured response.
type ResponseClass string

const (
	Accepted ResponseClass = "accepted"
	Empty    ResponseClass = "empty"
)

// ClassifyResponse applies spec §4.4's acceptance rule: an object, a
// non-empty array, or a non-null scalar that is not an error envelope
// is accepted; null, [], {}, an error envelope, or a string beginning
// "error:" is empty.
func ClassifyResponse(raw json.RawMessage) ResponseClass {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return Empty
	}
	if string(trimmed) == "{}" || string(trimmed) == "[]" {
		return Empty
	}

	var asString string
	if json.Unmarshal(trimmed, &asString) == nil {
		if strings.HasPrefix(asString, "error:") {
			return Empty
		}
	}

	var envelope struct {
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(trimmed, &envelope) == nil && envelope.Error != nil {
		return Empty
	}

	return Accepted
}

// ErrorEnvelopeMessage extracts "Unknown method ..." style text from an
// {"error":{"message":...}} envelope, or from a bare "error: ..." string
// response, formatted as the canonical "error: <message>" string.
func ErrorEnvelopeMessage(raw json.RawMessage) (string, bool) {
	trimmed := bytes.TrimSpace(raw)

	var asString string
	if json.Unmarshal(trimmed, &asString) == nil && strings.HasPrefix(asString, "error:") {
		return asString, true
	}

	var envelope struct {
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(trimmed, &envelope) == nil && envelope.Error != nil {
		return "error: " + envelope.Error.Message, true
	}

	return "", false
}

// JSONEqual reports whether two JSON values are deeply equal regardless
// of formatting, used to decide whether an iteration's response differs
// from the canonical one.
func JSONEqual(a, b json.RawMessage) bool {
	if len(a) == 0 && len(b) == 0 {
		return true
	}
	var av, bv interface{}
	if err := json.Unmarshal(a, &av); err != nil {
		return false
	}
	if err := json.Unmarshal(b, &bv); err != nil {
		return false
	}
	return reflect.DeepEqual(av, bv)
}
