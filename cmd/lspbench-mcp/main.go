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

// Command lspbench-mcp exposes the benchmark orchestrator as an MCP tool
// over stdio, the same surface the teacher's bridge used to reach LSP
// servers (server.ServeStdio), now fronting run_benchmark instead of a
// per-language editing bridge.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rockerboo/lsp-benchmark/internal/config"
	"github.com/rockerboo/lsp-benchmark/internal/obslog"
	"github.com/rockerboo/lsp-benchmark/internal/orchestrator"
)

func main() {
	if err := obslog.Init(obslog.Config{LogPath: "lspbench-mcp.log", LogLevel: "info", MaxLogFiles: 5}); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(2)
	}
	defer obslog.Close()

	mcpServer := server.NewMCPServer("lspbench", "1.0.0")
	mcpServer.AddTool(runBenchmarkTool(), handleRunBenchmark)

	obslog.Infof("starting lspbench MCP server")
	if err := server.ServeStdio(mcpServer); err != nil {
		obslog.Errorf("MCP server error: %v", err)
		os.Exit(1)
	}
}

func runBenchmarkTool() mcp.Tool {
	return mcp.NewTool("run_benchmark",
		mcp.WithDescription("Run the configured LSP benchmark matrix and write a results artifact"),
		mcp.WithString("config_path",
			mcp.Required(),
			mcp.Description("Path to the benchmark configuration file (spec §6)"),
		),
	)
}

func handleRunBenchmark(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	configPath, err := request.RequireString("config_path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("fatal configuration error: %v", err)), nil
	}

	artifact, err := orchestrator.Run(ctx, cfg)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("benchmark run failed: %v", err)), nil
	}

	resultsPath := cfg.Output + "/results.json"
	summary := fmt.Sprintf("wrote %s (%d benchmarks across %d servers)", resultsPath, len(artifact.Benchmarks), len(artifact.Servers))
	return mcp.NewToolResultText(summary), nil
}
