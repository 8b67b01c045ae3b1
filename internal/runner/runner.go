// Package runner implements the five benchmark-runner variants from
// spec §4.4: lifecycle-only, diagnostics, shared-server, cold-start, and
// chained iterations. Runners never raise upward -- every path through
// Run returns a populated bench.ResultRecord, per spec §4.4's failure
// propagation rule.
package runner

import (
	"context"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/rockerboo/lsp-benchmark/internal/bench"
	"github.com/rockerboo/lsp-benchmark/internal/config"
	"github.com/rockerboo/lsp-benchmark/internal/lspfail"
	"github.com/rockerboo/lsp-benchmark/internal/methods"
	"github.com/rockerboo/lsp-benchmark/internal/session"
)

// Settings is the subset of spec §3's Run settings a runner needs.
type Settings struct {
	ProjectRoot    string
	PrimaryFile    string // project-relative
	DefaultCursor  methods.Position
	Iterations     int
	Warmup         int
	RequestTimeout time.Duration
	IndexTimeout   time.Duration
}

func (s Settings) primaryAbsPath() string {
	return filepath.Join(s.ProjectRoot, s.PrimaryFile)
}

func (s Settings) primaryURI() string {
	return session.FileURI(s.primaryAbsPath())
}

// MethodSpec is spec §3's Method descriptor, narrowed to what a runner
// needs to pick a variant and build parameters.
type MethodSpec struct {
	Name          string
	Override      *methods.CursorOverride
	SnapshotChain []config.SnapshotStep
	OpenChain     []config.OpenStep
	Cold          bool
}

// Run dispatches to the variant spec §4.4's table assigns to spec.Name.
func Run(ctx context.Context, server config.ServerDescriptor, spec MethodSpec, settings Settings) bench.ResultRecord {
	switch {
	case spec.Name == "initialize":
		return runLifecycle(ctx, server, settings)
	case methods.RoleFor(spec.Name) == methods.RoleDiagnostic:
		return runDiagnostics(ctx, server, settings)
	case spec.Cold:
		return runColdStart(ctx, server, spec, settings)
	case len(spec.SnapshotChain) > 0:
		return runSnapshotChain(ctx, server, spec, settings)
	case len(spec.OpenChain) > 0:
		return runOpenChain(ctx, server, spec, settings)
	default:
		return runShared(ctx, server, spec, settings)
	}
}

// lookPath and spawnSession are indirected through package vars so
// tests can substitute an in-process lsptest fake for the real
// exec.LookPath/session.Spawn pair without a real server binary.
var (
	lookPath    = exec.LookPath
	spawnSession = session.Spawn
)

// spawn locates the launch command and starts a fresh session. Servers
// absent from $PATH are skipped with "spawn: not found" per spec §4.5.
func spawn(ctx context.Context, server config.ServerDescriptor, dir string) (*session.Session, *bench.ResultRecord) {
	if _, err := lookPath(server.Command); err != nil {
		return nil, &bench.ResultRecord{Server: server.Label, Status: bench.StatusFail, Reason: "spawn: not found"}
	}
	sess, err := spawnSession(ctx, server.Label, server.Command, server.Args, dir)
	if err != nil {
		return nil, &bench.ResultRecord{Server: server.Label, Status: bench.StatusFail, Reason: lspfail.Spawn(err).Reason}
	}
	return sess, nil
}

func handshake(ctx context.Context, sess *session.Session, server config.ServerDescriptor, settings Settings) *bench.ResultRecord {
	if _, err := sess.Initialize(ctx, settings.ProjectRoot, settings.RequestTimeout); err != nil {
		sess.Teardown()
		return &bench.ResultRecord{Server: server.Label, Status: bench.StatusFail, Reason: lspfail.Initialize(err).Reason}
	}
	return nil
}
