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
	"os"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/mcp-tool-shop/nexus-router/internal/bundle"
)

// newImportCommand builds `nexus-router import`: validate and insert a
// previously exported bundle, resolving any run_id conflict per --mode (or,
// interactively, via a huh select prompt when --mode was left unset).
func newImportCommand(flags *GlobalFlags) *cobra.Command {
	var (
		bundlePath  string
		modeFlag    string
		newRunID    string
		noVerify    bool
		noReplay    bool
	)

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a previously exported run bundle",
		RunE: func(cmd *cobra.Command, args []string) error {
			if bundlePath == "" {
				return fmt.Errorf("--bundle is required")
			}

			raw, err := os.ReadFile(bundlePath)
			if err != nil {
				return err
			}
			var b bundle.Bundle
			if err := json.Unmarshal(raw, &b); err != nil {
				return fmt.Errorf("failed to parse bundle: %w", err)
			}

			mode := bundle.ConflictMode(modeFlag)
			if mode == "" {
				mode = resolveConflictMode(cmd)
			}

			store, err := openStore(flags.DBPath)
			if err != nil {
				return err
			}
			defer store.Close()

			result, err := bundle.Import(context.Background(), store, &b, bundle.ImportOptions{
				Mode:              mode,
				NewRunID:          newRunID,
				VerifyDigest:      !noVerify,
				ReplayAfterImport: !noReplay,
			})
			if err != nil {
				return err
			}
			return printJSON(result)
		},
	}

	cmd.Flags().StringVar(&bundlePath, "bundle", "", "Path to an exported bundle file")
	cmd.Flags().StringVar(&modeFlag, "mode", "", "Conflict mode: reject_on_conflict|overwrite|new_run_id (prompted if omitted and interactive)")
	cmd.Flags().StringVar(&newRunID, "new-run-id", "", "Run id to use when --mode=new_run_id (freshly allocated if omitted)")
	cmd.Flags().BoolVar(&noVerify, "no-verify-digest", false, "Skip recomputing and comparing the bundle digest")
	cmd.Flags().BoolVar(&noReplay, "no-replay", false, "Skip strict replay verification after import")

	return cmd
}

// resolveConflictMode prompts interactively for a conflict mode when the
// terminal supports it, defaulting to the safe reject_on_conflict
// otherwise.
func resolveConflictMode(cmd *cobra.Command) bundle.ConflictMode {
	if isNonInteractive() {
		return bundle.ModeRejectOnConflict
	}

	choice := string(bundle.ModeRejectOnConflict)
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Conflict mode").
				Description("This run_id already exists, or may; choose how to resolve a conflict").
				Options(
					huh.NewOption("Reject (skip import)", string(bundle.ModeRejectOnConflict)),
					huh.NewOption("Overwrite existing run", string(bundle.ModeOverwrite)),
					huh.NewOption("Import under a new run_id", string(bundle.ModeNewRunID)),
				).
				Value(&choice),
		),
	)
	if err := form.Run(); err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), "prompt cancelled, defaulting to reject_on_conflict:", err)
		return bundle.ModeRejectOnConflict
	}
	return bundle.ConflictMode(choice)
}
