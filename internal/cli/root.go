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
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mcp-tool-shop/nexus-router/pkg/nexuserr"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

// SetVersion records version information injected via ldflags at build time.
func SetVersion(v, c, b string) {
	version, commit, buildDate = v, c, b
}

// GetVersion returns the recorded version information.
func GetVersion() (string, string, string) {
	return version, commit, buildDate
}

// GlobalFlags holds the router's persistent CLI flags.
type GlobalFlags struct {
	Verbose bool
	Quiet   bool
	JSON    bool
	DBPath  string
}

// NewRootCommand builds the root Cobra command and wires every subcommand.
func NewRootCommand() *cobra.Command {
	flags := &GlobalFlags{}

	cmd := &cobra.Command{
		Use:   "nexus-router",
		Short: "nexus-router - deterministic, auditable tool-dispatch orchestration",
		Long: `nexus-router validates a run request, selects a tool adapter, dispatches
a plan of steps against it, and records every decision as an append-only
event stream that can be exported, imported, and replayed for audit.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
	}

	cmd.PersistentFlags().BoolVarP(&flags.Verbose, "verbose", "v", false, "Enable verbose (debug) logging")
	cmd.PersistentFlags().BoolVarP(&flags.Quiet, "quiet", "q", false, "Suppress non-error output")
	cmd.PersistentFlags().BoolVar(&flags.JSON, "json", false, "Render command output as JSON")
	cmd.PersistentFlags().StringVar(&flags.DBPath, "db", "nexus-router.db", "Path to the event store database")

	cmd.AddCommand(
		newRunCommand(flags),
		newExportCommand(flags),
		newImportCommand(flags),
		newReplayCommand(flags),
		newInspectCommand(flags),
		newValidateAdapterCommand(flags),
	)

	return cmd
}

// HandleExitError prints err and exits with a status reflecting its kind:
// 2 for operational errors, 1 for anything else.
func HandleExitError(err error) {
	if err == nil {
		return
	}
	fmt.Fprintln(os.Stderr, "error:", err)
	if nexuserr.IsOperational(err) {
		os.Exit(2)
	}
	os.Exit(1)
}
