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
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mcp-tool-shop/nexus-router/internal/eventstore"
	"github.com/mcp-tool-shop/nexus-router/internal/jq"
	"github.com/mcp-tool-shop/nexus-router/internal/replay"
)

// newInspectCommand builds `nexus-router inspect`: a read-only projection
// over the event store, listing runs by status/window or showing a single
// run's view, optionally filtered through a jq expression.
func newInspectCommand(flags *GlobalFlags) *cobra.Command {
	var (
		runID      string
		status     string
		since      string
		until      string
		jqExpr     string
	)

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "List runs or show one run's derived view",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(flags.DBPath)
			if err != nil {
				return err
			}
			defer store.Close()

			ctx := context.Background()

			var result any
			if runID != "" {
				res, err := replay.Replay(ctx, store, runID)
				if err != nil {
					return err
				}
				result = res
			} else {
				filter := eventstore.ListRunsFilter{Status: eventstore.RunStatus(status)}
				if since != "" {
					t, err := time.Parse(time.RFC3339, since)
					if err != nil {
						return fmt.Errorf("--since: %w", err)
					}
					filter.Since = t
				}
				if until != "" {
					t, err := time.Parse(time.RFC3339, until)
					if err != nil {
						return fmt.Errorf("--until: %w", err)
					}
					filter.Until = t
				}
				runs, err := replay.ListRuns(ctx, store, filter)
				if err != nil {
					return err
				}
				result = runs
			}

			if jqExpr != "" {
				generic, err := toJQInput(result)
				if err != nil {
					return err
				}
				filtered, err := jq.NewExecutor(jq.DefaultTimeout, jq.DefaultMaxInputSize).Execute(ctx, jqExpr, generic)
				if err != nil {
					return fmt.Errorf("jq filter: %w", err)
				}
				result = filtered
			}

			return printJSON(result)
		},
	}

	cmd.Flags().StringVar(&runID, "run-id", "", "Show the derived view of a single run instead of listing runs")
	cmd.Flags().StringVar(&status, "status", "", "Filter listed runs by status: RUNNING|COMPLETED|FAILED")
	cmd.Flags().StringVar(&since, "since", "", "Filter listed runs created at or after this RFC3339 timestamp")
	cmd.Flags().StringVar(&until, "until", "", "Filter listed runs created at or before this RFC3339 timestamp")
	cmd.Flags().StringVar(&jqExpr, "jq", "", "Filter the result through a jq expression before printing")

	return cmd
}

// toJQInput round-trips v through JSON so gojq, which only understands the
// generic map[string]any/[]any/float64/... tree, can walk Go structs.
func toJQInput(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	return generic, nil
}
