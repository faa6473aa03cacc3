// Package replay rebuilds a read-only run view from an event stream and
// checks the structural invariants a well-formed run must satisfy.
package replay

import (
	"context"
	"fmt"

	"github.com/mcp-tool-shop/nexus-router/internal/eventstore"
	"github.com/mcp-tool-shop/nexus-router/internal/router"
)

// StepView summarizes one executed step in a run view.
type StepView struct {
	StepID string `json:"step_id"`
	Status string `json:"status"`
}

// RunView is the derived, read-only projection of a run's event stream.
type RunView struct {
	Mode      string     `json:"mode"`
	Goal      string     `json:"goal"`
	Outcome   string     `json:"outcome"`
	Steps     []StepView `json:"steps"`
	ToolsUsed []string   `json:"tools_used"`
}

// Result is the output of Replay: the derived view plus any invariant
// violations found while walking the stream.
type Result struct {
	View       RunView  `json:"view"`
	Violations []string `json:"violations"`
}

// OK reports whether the replay found no violations.
func (r Result) OK() bool { return len(r.Violations) == 0 }

// Replay reads runID's events in seq order and walks the run state machine,
// producing a RunView and any violations found.
func Replay(ctx context.Context, store *eventstore.Store, runID string) (*Result, error) {
	events, err := store.ReadEvents(ctx, runID)
	if err != nil {
		return nil, err
	}

	res := &Result{View: RunView{ToolsUsed: []string{}, Steps: []StepView{}}}

	if len(events) == 0 {
		res.Violations = append(res.Violations, "run has no events")
		return res, nil
	}

	if events[0].Type != router.EventRunStarted {
		res.Violations = append(res.Violations, "first event is not RUN_STARTED")
	} else {
		res.View.Mode = stringField(events[0].Payload, "mode")
		res.View.Goal = stringField(events[0].Payload, "goal")
	}

	for i, e := range events {
		if int64(i+1) != e.Seq {
			res.Violations = append(res.Violations, fmt.Sprintf("seq gap: expected %d, found %d", i+1, e.Seq))
		}
	}

	openSteps := map[string]bool{}
	requested := map[string]string{}     // step_id -> adapter_id
	requestedTool := map[string]string{} // step_id -> call.tool
	seenTerminal := false
	toolsSeen := map[string]struct{}{}
	var toolsUsed []string

	for _, e := range events {
		switch e.Type {
		case router.EventStepStarted:
			stepID := stringField(e.Payload, "step_id")
			openSteps[stepID] = true
		case router.EventToolCallRequested:
			stepID := stringField(e.Payload, "step_id")
			requested[stepID] = stringField(e.Payload, "adapter_id")
			if call, ok := e.Payload["call"].(map[string]any); ok {
				requestedTool[stepID] = stringField(call, "tool")
			}
		case router.EventToolCallSucceeded, router.EventToolCallFailed:
			stepID := stringField(e.Payload, "step_id")
			adapterID, ok := requested[stepID]
			if !ok {
				res.Violations = append(res.Violations, fmt.Sprintf("%s for step %s has no matching TOOL_CALL_REQUESTED", e.Type, stepID))
			} else if e.Payload["adapter_id"] != nil && stringField(e.Payload, "adapter_id") != adapterID {
				res.Violations = append(res.Violations, fmt.Sprintf("%s for step %s has mismatched adapter_id", e.Type, stepID))
			}
			if e.Type == router.EventToolCallSucceeded {
				if tool := requestedTool[stepID]; tool != "" {
					if _, seen := toolsSeen[tool]; !seen {
						toolsSeen[tool] = struct{}{}
						toolsUsed = append(toolsUsed, tool)
					}
				}
			}
			delete(requested, stepID)
			delete(requestedTool, stepID)
		case router.EventStepCompleted:
			stepID := stringField(e.Payload, "step_id")
			if !openSteps[stepID] {
				res.Violations = append(res.Violations, fmt.Sprintf("STEP_COMPLETED for step %s has no matching STEP_STARTED", stepID))
			}
			delete(openSteps, stepID)
			res.View.Steps = append(res.View.Steps, StepView{StepID: stepID, Status: stringField(e.Payload, "status")})
		case router.EventRunCompleted, router.EventRunFailed:
			seenTerminal = true
		}
	}

	for stepID := range openSteps {
		res.Violations = append(res.Violations, fmt.Sprintf("STEP_STARTED for step %s never closed with STEP_COMPLETED", stepID))
	}
	for stepID := range requested {
		res.Violations = append(res.Violations, fmt.Sprintf("TOOL_CALL_REQUESTED for step %s never resolved", stepID))
	}

	last := events[len(events)-1]
	switch last.Type {
	case router.EventRunCompleted:
		res.View.Outcome = "ok"
	case router.EventRunFailed:
		res.View.Outcome = "error"
	default:
		res.Violations = append(res.Violations, "last event is neither RUN_COMPLETED nor RUN_FAILED")
	}
	if !seenTerminal {
		res.Violations = append(res.Violations, "no terminal RUN_COMPLETED or RUN_FAILED event found")
	}

	res.View.ToolsUsed = toolsUsed
	if res.View.ToolsUsed == nil {
		res.View.ToolsUsed = []string{}
	}
	return res, nil
}

func stringField(payload map[string]any, key string) string {
	if payload == nil {
		return ""
	}
	if v, ok := payload[key].(string); ok {
		return v
	}
	return ""
}

// ListRuns is a read-only projection over the store for listing runs by
// status or creation window, used by the inspect CLI command.
func ListRuns(ctx context.Context, store *eventstore.Store, filter eventstore.ListRunsFilter) ([]eventstore.Run, error) {
	return store.ListRuns(ctx, filter)
}
