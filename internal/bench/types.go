// Package bench holds the result data model from spec §3: iteration
// records, result records, and the benchmark artifact, plus the response
// classification and order-statistic rules from spec §4.4.
package bench

import (
	"encoding/json"
	"time"
)

// Status is one of the three result-record states spec §3 defines.
type Status string

const (
	StatusOK      Status = "ok"
	StatusInvalid Status = "invalid"
	StatusFail    Status = "fail"
)

// IterationRecord is one measured (or warmup-discarded) call.
type IterationRecord struct {
	ElapsedMS float64         `json:"elapsed_ms"`
	Response  json.RawMessage `json:"response,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// ResultRecord is one (server, method) outcome. Invariant: Status == OK
// iff len(Iterations) >= 1 and at least one iteration has an accepted
// response; iterations whose response is not accepted are kept alongside
// it. When Status != OK, Iterations is omitted.
type ResultRecord struct {
	Server     string            `json:"server"`
	Status     Status            `json:"status"`
	Reason     string            `json:"reason,omitempty"`
	Mean       *float64          `json:"mean,omitempty"`
	P50        *float64          `json:"p50,omitempty"`
	P95        *float64          `json:"p95,omitempty"`
	Min        *float64          `json:"min,omitempty"`
	Max        *float64          `json:"max,omitempty"`
	RSSKB      *int64            `json:"rss_kb,omitempty"`
	Response   json.RawMessage   `json:"response,omitempty"`
	Iterations []IterationRecord `json:"iterations,omitempty"`
}

// Entry is one benchmarked method across all configured servers.
type Entry struct {
	Name    string          `json:"name"`
	Input   json.RawMessage `json:"input,omitempty"`
	Servers []ResultRecord  `json:"servers"`
}

// ServerSummary echoes a server descriptor into the artifact's metadata.
type ServerSummary struct {
	Label       string `json:"label"`
	Description string `json:"description"`
	Command     string `json:"command"`
}

// SettingsSummary echoes the effective run settings into the artifact.
type SettingsSummary struct {
	Project        string `json:"project"`
	File           string `json:"file"`
	Iterations     int    `json:"iterations"`
	Warmup         int    `json:"warmup"`
	TimeoutSeconds int    `json:"timeout_seconds"`
	IndexTimeout   int    `json:"index_timeout_seconds"`
}

// Artifact is the single JSON document spec §6 describes.
type Artifact struct {
	Timestamp  time.Time       `json:"timestamp"`
	Settings   SettingsSummary `json:"settings"`
	Servers    []ServerSummary `json:"servers"`
	Benchmarks []Entry         `json:"benchmarks"`
}
