// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mcp-tool-shop/nexus-router/internal/replay"
)

// newReplayCommand builds `nexus-router replay`: rebuild a run view from the
// event stream and report any invariant violations.
func newReplayCommand(flags *GlobalFlags) *cobra.Command {
	var runID string

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Rebuild a run view from its event stream and check invariants",
		RunE: func(cmd *cobra.Command, args []string) error {
			if runID == "" {
				return fmt.Errorf("--run-id is required")
			}

			store, err := openStore(flags.DBPath)
			if err != nil {
				return err
			}
			defer store.Close()

			res, err := replay.Replay(context.Background(), store, runID)
			if err != nil {
				return err
			}

			if !flags.JSON {
				renderReplayResult(runID, res)
				if !res.OK() {
					return fmt.Errorf("replay found %d violation(s)", len(res.Violations))
				}
				return nil
			}
			return printJSON(res)
		},
	}

	cmd.Flags().StringVar(&runID, "run-id", "", "Run to replay")

	return cmd
}
