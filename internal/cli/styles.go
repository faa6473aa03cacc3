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

import "github.com/charmbracelet/lipgloss"

var (
	statusOK    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))  // green
	statusWarn  = lipgloss.NewStyle().Foreground(lipgloss.Color("214")) // orange
	statusError = lipgloss.NewStyle().Foreground(lipgloss.Color("196")) // red
	muted       = lipgloss.NewStyle().Foreground(lipgloss.Color("245")) // gray
	header      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
)

const (
	symbolOK    = "✓"
	symbolWarn  = "⚠"
	symbolError = "✗"
)

func renderOutcome(outcome string) string {
	switch outcome {
	case "ok":
		return statusOK.Render(symbolOK + " ok")
	default:
		return statusError.Render(symbolError + " error")
	}
}

func renderViolation(msg string) string {
	return statusWarn.Render(symbolWarn+" ") + msg
}

func renderHeader(text string) string {
	return header.Render(text)
}

func renderLabel(text string) string {
	return muted.Render(text)
}
