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
	"github.com/spf13/cobra"
)

// verifyCmd is sugar for `run --verify`, since --verify is otherwise a
// modifier flag on run per spec §6.
var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Run the configured benchmark matrix and fail if any result is not ok",
	RunE: func(cmd *cobra.Command, args []string) error {
		verify = true
		return runRun(cmd, args)
	},
}

func init() {
	verifyCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to the benchmark config file (required)")
	_ = verifyCmd.MarkFlagRequired("config")
}
