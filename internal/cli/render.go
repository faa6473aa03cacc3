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

	"github.com/mcp-tool-shop/nexus-router/internal/replay"
	"github.com/mcp-tool-shop/nexus-router/internal/router"
)

// renderRunResponse prints a human-readable summary of resp to stdout,
// colorized with lipgloss. JSON mode bypasses this entirely.
func renderRunResponse(resp *router.RunResponse) {
	fmt.Println(renderHeader("run " + resp.Run.RunID))
	fmt.Printf("%s %s\n", renderLabel("adapter:"), resp.Dispatch.AdapterID)
	fmt.Printf("%s %d (%s)\n", renderLabel("steps:"), resp.Summary.Steps, string(resp.Summary.Mode))
	fmt.Printf("%s %d applied, %d skipped\n", renderLabel("outputs:"), resp.Summary.OutputsApplied, resp.Summary.OutputsSkipped)
	if resp.Error != nil {
		fmt.Println(renderViolation(fmt.Sprintf("%s: %s", resp.Error.Code, resp.Error.Message)))
		return
	}
	outcome := "ok"
	for _, r := range resp.Results {
		if r.Status != "ok" {
			outcome = "error"
		}
	}
	fmt.Println(renderOutcome(outcome))
}

// renderReplayResult prints a replay result's run view and any invariant
// violations found while walking the event stream.
func renderReplayResult(runID string, res *replay.Result) {
	fmt.Println(renderHeader("replay " + runID))
	fmt.Printf("%s %s\n", renderLabel("goal:"), res.View.Goal)
	fmt.Printf("%s %d\n", renderLabel("steps:"), len(res.View.Steps))
	fmt.Println(renderOutcome(res.View.Outcome))
	for _, v := range res.Violations {
		fmt.Fprintln(os.Stderr, renderViolation(v))
	}
}
