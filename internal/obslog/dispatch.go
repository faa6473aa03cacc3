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

package obslog

import "log/slog"

// DispatchEvent describes one tool call about to be dispatched, for
// LogDispatch.
type DispatchEvent struct {
	RunID     string
	StepID    string
	AdapterID string
	Tool      string
	Method    string
}

// LogDispatch logs a tool call immediately before it is dispatched.
func LogDispatch(logger *slog.Logger, ev DispatchEvent) {
	logger.Info("dispatching tool call",
		EventKey, "tool_call_dispatch",
		RunIDKey, ev.RunID,
		StepIDKey, ev.StepID,
		AdapterIDKey, ev.AdapterID,
		ToolKey, ev.Tool,
		MethodKey, ev.Method,
	)
}

// RunOutcome describes a completed run for LogRunOutcome.
type RunOutcome struct {
	RunID      string
	Outcome    string // "ok" | "error"
	AdapterID  string
	Steps      int
	DurationMs int64
}

// LogRunOutcome logs a run's terminal outcome at info (ok) or warn (error).
func LogRunOutcome(logger *slog.Logger, ro RunOutcome) {
	attrs := []any{
		EventKey, "run_outcome",
		RunIDKey, ro.RunID,
		OutcomeKey, ro.Outcome,
		AdapterIDKey, ro.AdapterID,
		"steps", ro.Steps,
		DurationKey, ro.DurationMs,
	}
	if ro.Outcome == "ok" {
		logger.Info("run completed", attrs...)
		return
	}
	logger.Warn("run failed", attrs...)
}

// ToolCallOutcome describes one completed tool call for LogToolCallOutcome.
type ToolCallOutcome struct {
	RunID      string
	StepID     string
	AdapterID  string
	Outcome    string // "ok" | "error"
	DurationMs int64
}

// LogToolCallOutcome logs a tool call's result immediately after dispatch.
func LogToolCallOutcome(logger *slog.Logger, tc ToolCallOutcome) {
	attrs := []any{
		EventKey, "tool_call_outcome",
		RunIDKey, tc.RunID,
		StepIDKey, tc.StepID,
		AdapterIDKey, tc.AdapterID,
		OutcomeKey, tc.Outcome,
		DurationKey, tc.DurationMs,
	}
	if tc.Outcome == "ok" {
		logger.Info("tool call succeeded", attrs...)
		return
	}
	logger.Warn("tool call failed", attrs...)
}
