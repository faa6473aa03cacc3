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

	"github.com/mcp-tool-shop/nexus-router/internal/bundle"
)

// newExportCommand builds `nexus-router export`: serialize one run's events
// into a digest-sealed bundle.
func newExportCommand(flags *GlobalFlags) *cobra.Command {
	var (
		runID         string
		noProvenance  bool
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a run's event stream as a digest-sealed bundle",
		RunE: func(cmd *cobra.Command, args []string) error {
			if runID == "" {
				return fmt.Errorf("--run-id is required")
			}

			store, err := openStore(flags.DBPath)
			if err != nil {
				return err
			}
			defer store.Close()

			b, err := bundle.Export(context.Background(), store, runID, !noProvenance)
			if err != nil {
				return err
			}
			return printJSON(b)
		},
	}

	cmd.Flags().StringVar(&runID, "run-id", "", "Run to export")
	cmd.Flags().BoolVar(&noProvenance, "no-provenance", false, "Omit the provenance metadata block")

	return cmd
}
