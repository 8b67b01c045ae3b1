// Copyright 2025 Dave Lage (rockerBOO)
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rockerboo/lsp-benchmark/internal/bench"
	"github.com/rockerboo/lsp-benchmark/internal/config"
	"github.com/rockerboo/lsp-benchmark/internal/obslog"
	"github.com/rockerboo/lsp-benchmark/internal/orchestrator"
)

var (
	configPath string
	verify     bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the configured benchmark matrix and emit a results artifact",
	RunE:  runRun,
}

func init() {
	runCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to the benchmark config file (required)")
	runCmd.Flags().BoolVar(&verify, "verify", false, "exit 1 if any result's status is not ok")
	_ = runCmd.MarkFlagRequired("config")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return &exitError{code: 2, err: fmt.Errorf("fatal configuration error: %w", err)}
	}

	logCfg := obslog.Config{LogPath: "lspbench.log", LogLevel: "info", MaxLogFiles: 5}
	if err := obslog.Init(logCfg); err != nil {
		return &exitError{code: 2, err: fmt.Errorf("fatal configuration error: %w", err)}
	}
	defer obslog.Close()

	artifact, err := orchestrator.Run(context.Background(), cfg)
	if err != nil {
		return &exitError{code: 2, err: fmt.Errorf("fatal configuration error: %w", err)}
	}

	cmd.Printf("wrote %s (%d benchmarks)\n", cfg.Output, len(artifact.Benchmarks))

	if verify {
		if mismatches := verifyArtifact(artifact); len(mismatches) > 0 {
			for _, m := range mismatches {
				cmd.PrintErrln(m)
			}
			return &exitError{code: 1, err: fmt.Errorf("%d benchmark mismatch(es)", len(mismatches))}
		}
	}

	return nil
}

// verifyArtifact reports one line per (server, method) whose status is
// not "ok", per spec's --verify contract: a non-zero exit when any
// result fails the run.
func verifyArtifact(artifact *bench.Artifact) []string {
	var mismatches []string
	for _, entry := range artifact.Benchmarks {
		for _, result := range entry.Servers {
			if result.Status != bench.StatusOK {
				mismatches = append(mismatches, fmt.Sprintf("%s/%s: status=%s reason=%s", entry.Name, result.Server, result.Status, result.Reason))
			}
		}
	}
	return mismatches
}
