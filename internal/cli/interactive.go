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
	"os"

	"github.com/mattn/go-isatty"
)

// isNonInteractive reports whether prompting should be skipped: an explicit
// opt-out, common CI markers, or a non-TTY stdout, in that priority order.
func isNonInteractive() bool {
	if os.Getenv("NEXUS_NON_INTERACTIVE") == "true" {
		return true
	}
	if os.Getenv("CI") != "" {
		return true
	}
	return !isatty.IsTerminal(os.Stdout.Fd())
}
