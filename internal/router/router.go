package router

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mcp-tool-shop/nexus-router/internal/adapter"
	"github.com/mcp-tool-shop/nexus-router/internal/eventstore"
	"github.com/mcp-tool-shop/nexus-router/internal/obslog"
	"github.com/mcp-tool-shop/nexus-router/pkg/nexuserr"
)

// Event type constants, the closed set from the data model.
const (
	EventRunStarted        = "RUN_STARTED"
	EventPlanCreated       = "PLAN_CREATED"
	EventDispatchSelected  = "DISPATCH_SELECTED"
	EventStepStarted       = "STEP_STARTED"
	EventToolCallRequested = "TOOL_CALL_REQUESTED"
	EventToolCallSucceeded = "TOOL_CALL_SUCCEEDED"
	EventToolCallFailed    = "TOOL_CALL_FAILED"
	EventStepCompleted     = "STEP_COMPLETED"
	EventProvenanceEmitted = "PROVENANCE_EMITTED"
	EventRunCompleted      = "RUN_COMPLETED"
	EventRunFailed         = "RUN_FAILED"
)

// Router binds the Event Store, the Adapter Registry, and the planner into
// the state machine described in the data model: validate, select, plan,
// dispatch each step, finalize.
type Router struct {
	Store    *eventstore.Store
	Registry *adapter.Registry
	Planner  Planner
	Metrics  MetricsSink
	Tracer   Tracer
	Logger   *slog.Logger
}

// New constructs a Router. Planner defaults to PassthroughPlanner if nil;
// Metrics, Tracer, and Logger are optional and may be left nil.
func New(store *eventstore.Store, registry *adapter.Registry, opts ...Option) *Router {
	r := &Router{
		Store:    store,
		Registry: registry,
		Planner:  PassthroughPlanner{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Option configures a Router at construction time.
type Option func(*Router)

func WithPlanner(p Planner) Option       { return func(r *Router) { r.Planner = p } }
func WithMetrics(m MetricsSink) Option   { return func(r *Router) { r.Metrics = m } }
func WithTracer(t Tracer) Option         { return func(r *Router) { r.Tracer = t } }
func WithLogger(l *slog.Logger) Option   { return func(r *Router) { r.Logger = l } }

// Run executes one run request to completion. It returns a Go error only
// for bug or unknown-treated-as-bug failures; operational failures are
// always recorded and surfaced inside a well-formed RunResponse instead.
func (r *Router) Run(ctx context.Context, req *RunRequest) (*RunResponse, error) {
	mode := req.EffectiveMode()
	start := time.Now()

	runID, err := r.Store.CreateRun(ctx, string(mode), req.Goal)
	if err != nil {
		return nil, err
	}

	if r.Tracer != nil {
		var span Span
		ctx, span = r.Tracer.StartRunSpan(ctx, runID)
		defer span.End()
	}

	if _, err := r.Store.Append(ctx, runID, EventRunStarted, map[string]any{
		"mode": string(mode),
		"goal": req.Goal,
	}); err != nil {
		return nil, err
	}

	chosen, selectionSource, selectErr := r.selectAdapter(req)
	if selectErr != nil {
		op, _ := nexuserr.AsOperational(selectErr)
		details := map[string]any{}
		if op != nil {
			details = op.Details
		}
		r.mustAppend(ctx, runID, EventRunFailed, map[string]any{
			"reason":     "dispatch_selection_failed",
			"error_code": nexuserr.CodeOf(selectErr),
			"message":    selectErr.Error(),
			"details":    details,
		})
		if err := r.Store.SetRunStatus(ctx, runID, eventstore.StatusFailed); err != nil {
			return nil, err
		}
		committed, _ := r.Store.ReadEvents(ctx, runID)
		if r.Metrics != nil {
			r.Metrics.ObserveRun("error", time.Since(start))
		}
		if r.Logger != nil {
			obslog.LogRunOutcome(r.Logger, obslog.RunOutcome{
				RunID: runID, Outcome: "error", DurationMs: time.Since(start).Milliseconds(),
			})
		}
		return buildFailedResponse(runID, len(committed), selectErr), nil
	}

	caps := chosen.Capabilities()
	if _, err := r.Store.Append(ctx, runID, EventDispatchSelected, map[string]any{
		"adapter_id":   chosen.AdapterID(),
		"adapter_kind": chosen.AdapterKind(),
		"capabilities": caps.Sorted(),
		"selection_source": string(selectionSource),
	}); err != nil {
		return nil, err
	}

	plan, err := r.Planner.Plan(req)
	if err != nil {
		return nil, nexuserr.Bug("UNKNOWN_ERROR", fmt.Sprintf("planner failed: %v", err), nil)
	}
	if _, err := r.Store.Append(ctx, runID, EventPlanCreated, map[string]any{
		"plan": planToAny(plan),
	}); err != nil {
		return nil, err
	}

	outcome := "ok"
	executePlan := plan
	if req.Policy != nil && req.Policy.MaxSteps != nil {
		maxSteps := *req.Policy.MaxSteps
		if len(plan) > maxSteps {
			r.mustAppend(ctx, runID, EventRunFailed, map[string]any{
				"reason":     "max_steps_exceeded",
				"max_steps":  maxSteps,
				"plan_steps": len(plan),
			})
			if err := r.Store.SetRunStatus(ctx, runID, eventstore.StatusFailed); err != nil {
				return nil, err
			}
			outcome = "error"
			executePlan = plan[:maxSteps]
		}
	}

	results := make([]StepResult, 0, len(executePlan))
	toolsUsed := make([]string, 0, len(executePlan))
	outputsApplied, outputsSkipped := 0, 0

	for _, step := range executePlan {
		var stepSpan Span
		stepCtx := ctx
		if r.Tracer != nil {
			stepCtx, stepSpan = r.Tracer.StartStepSpan(ctx, step.StepID)
		}

		if _, err := r.Store.Append(ctx, runID, EventStepStarted, map[string]any{"step_id": step.StepID}); err != nil {
			return nil, err
		}
		recordedCall := callToAny(step.Call)
		if red, ok := chosen.(adapter.ArgsRedactor); ok {
			recordedCall["args"] = red.RedactArgs(step.Call.Args)
		}
		if _, err := r.Store.Append(ctx, runID, EventToolCallRequested, map[string]any{
			"step_id":              step.StepID,
			"call":                 recordedCall,
			"adapter_id":           chosen.AdapterID(),
			"adapter_capabilities": caps.Sorted(),
		}); err != nil {
			return nil, err
		}

		if r.Logger != nil {
			obslog.LogDispatch(r.Logger, obslog.DispatchEvent{
				RunID: runID, StepID: step.StepID, AdapterID: chosen.AdapterID(),
				Tool: step.Call.Tool, Method: step.Call.Method,
			})
		}

		callStart := time.Now()
		output, simulated, dispatchErr := dispatchStep(stepCtx, chosen, r.Registry, mode, req.Policy, step.Call)
		duration := time.Since(callStart)

		if r.Logger != nil {
			toolOutcome := "ok"
			if dispatchErr != nil {
				toolOutcome = "error"
			}
			obslog.LogToolCallOutcome(r.Logger, obslog.ToolCallOutcome{
				RunID: runID, StepID: step.StepID, AdapterID: chosen.AdapterID(),
				Outcome: toolOutcome, DurationMs: duration.Milliseconds(),
			})
		}

		if r.Metrics != nil {
			toolOutcome := "ok"
			if dispatchErr != nil {
				toolOutcome = "error"
			}
			r.Metrics.ObserveToolCall(chosen.AdapterID(), toolOutcome, duration)
		}
		if stepSpan != nil {
			stepSpan.SetAttribute("adapter_id", chosen.AdapterID())
			stepSpan.End()
		}

		if dispatchErr == nil {
			toolsUsed = append(toolsUsed, step.Call.Tool)
			if !simulated {
				outputsApplied++
			}
			if _, err := r.Store.Append(ctx, runID, EventToolCallSucceeded, map[string]any{
				"step_id":     step.StepID,
				"simulated":   simulated,
				"output":      output,
				"adapter_id":  chosen.AdapterID(),
				"duration_ms": duration.Milliseconds(),
			}); err != nil {
				return nil, err
			}
			if _, err := r.Store.Append(ctx, runID, EventStepCompleted, map[string]any{
				"step_id": step.StepID,
				"status":  "ok",
			}); err != nil {
				return nil, err
			}
			results = append(results, StepResult{
				StepID: step.StepID, Status: "ok", Simulated: simulated, Output: output, Evidence: []string{},
			})
			continue
		}

		kind := nexuserr.Classify(dispatchErr)
		if kind == nexuserr.KindOperational {
			outputsSkipped++
			if _, err := r.Store.Append(ctx, runID, EventToolCallFailed, map[string]any{
				"step_id":    step.StepID,
				"error_kind": "operational",
				"error_code": nexuserr.CodeOf(dispatchErr),
				"message":    dispatchErr.Error(),
				"adapter_id": chosen.AdapterID(),
			}); err != nil {
				return nil, err
			}
			if _, err := r.Store.Append(ctx, runID, EventStepCompleted, map[string]any{
				"step_id": step.StepID,
				"status":  "error",
			}); err != nil {
				return nil, err
			}
			outcome = "error"
			results = append(results, StepResult{
				StepID: step.StepID, Status: "error", Simulated: simulated, Output: output, Evidence: []string{},
			})
			continue
		}

		// Bug or unknown: record, mark failed, propagate.
		outputsSkipped++
		r.mustAppend(ctx, runID, EventToolCallFailed, map[string]any{
			"step_id":    step.StepID,
			"error_kind": "bug",
			"error_code": nexuserr.CodeOf(dispatchErr),
			"message":    dispatchErr.Error(),
			"adapter_id": chosen.AdapterID(),
		})
		reason := "bug_error"
		if kind == nexuserr.KindUnknown {
			reason = "unexpected_exception"
		}
		r.mustAppend(ctx, runID, EventRunFailed, map[string]any{
			"reason":  reason,
			"step_id": step.StepID,
		})
		if err := r.Store.SetRunStatus(ctx, runID, eventstore.StatusFailed); err != nil {
			return nil, err
		}
		if r.Metrics != nil {
			r.Metrics.ObserveRun("error", time.Since(start))
		}
		return nil, dispatchErr
	}

	provenance := buildProvenance(req, results)
	if _, err := r.Store.Append(ctx, runID, EventProvenanceEmitted, map[string]any{
		"bundle": provenanceToAny(provenance),
	}); err != nil {
		return nil, err
	}

	if outcome == "ok" {
		if _, err := r.Store.Append(ctx, runID, EventRunCompleted, map[string]any{"outcome": "ok"}); err != nil {
			return nil, err
		}
		if err := r.Store.SetRunStatus(ctx, runID, eventstore.StatusCompleted); err != nil {
			return nil, err
		}
	} else {
		// Terminal marker: appended even if an earlier RUN_FAILED was already
		// recorded for a specific reason (max_steps_exceeded). See the design
		// notes' resolution of the duplicate-terminal-event question.
		if _, err := r.Store.Append(ctx, runID, EventRunFailed, map[string]any{"outcome": "error"}); err != nil {
			return nil, err
		}
		if err := r.Store.SetRunStatus(ctx, runID, eventstore.StatusFailed); err != nil {
			return nil, err
		}
	}

	committed, err := r.Store.ReadEvents(ctx, runID)
	if err != nil {
		return nil, err
	}

	if r.Metrics != nil {
		r.Metrics.ObserveRun(outcome, time.Since(start))
	}
	if r.Logger != nil {
		obslog.LogRunOutcome(r.Logger, obslog.RunOutcome{
			RunID: runID, Outcome: outcome, AdapterID: chosen.AdapterID(),
			Steps: len(executePlan), DurationMs: time.Since(start).Milliseconds(),
		})
	}

	return &RunResponse{
		Summary: Summary{
			Mode: mode, Steps: len(executePlan), ToolsUsed: uniqueInOrder(toolsUsed),
			OutputsTotal: len(executePlan), OutputsApplied: outputsApplied, OutputsSkipped: outputsSkipped,
			AdapterID: chosen.AdapterID(),
		},
		Dispatch: DispatchInfo{AdapterID: chosen.AdapterID(), AdapterKind: chosen.AdapterKind(), SelectionSource: selectionSource},
		Run:      RunInfo{RunID: runID, EventsCommitted: len(committed)},
		Plan:     plan,
		Results:  results,
		Provenance: provenance,
	}, nil
}

// mustAppend appends an event and logs (rather than returns) a store-level
// failure; it is used only on paths that are about to surface an error
// regardless, where a second failure indicates the store itself is broken.
func (r *Router) mustAppend(ctx context.Context, runID, eventType string, payload map[string]any) {
	if _, err := r.Store.Append(ctx, runID, eventType, payload); err != nil {
		if r.Logger != nil {
			r.Logger.Error("failed to append event after terminal failure", "run_id", runID, "type", eventType, "error", err)
		}
	}
}

// selectAdapter resolves the registry entry for this run: an explicit
// request adapter_id wins, otherwise the registry default, then every
// required capability is enforced before DISPATCH_SELECTED is appended.
func (r *Router) selectAdapter(req *RunRequest) (adapter.Adapter, SelectionSource, error) {
	var id string
	source := SelectionDefault
	if req.Dispatch != nil && req.Dispatch.AdapterID != "" {
		id = req.Dispatch.AdapterID
		source = SelectionRequest
	}

	var chosen adapter.Adapter
	if id != "" {
		a, err := r.Registry.Get(id)
		if err != nil {
			return nil, SelectionFailed, nexuserr.Operational("UNKNOWN_ADAPTER", err.Error(), map[string]any{
				"adapter_id":          id,
				"available_adapters":  r.Registry.ListIDs(),
			})
		}
		chosen = a
	} else {
		a, err := r.Registry.GetDefault()
		if err != nil {
			return nil, SelectionFailed, nexuserr.Operational("UNKNOWN_ADAPTER", err.Error(), map[string]any{
				"adapter_id":          r.Registry.DefaultAdapterID(),
				"available_adapters":  r.Registry.ListIDs(),
			})
		}
		chosen = a
	}

	if req.Dispatch != nil {
		for _, cap := range req.Dispatch.RequireCapabilities {
			if err := r.Registry.RequireCapability(chosen.AdapterID(), adapter.Capability(cap)); err != nil {
				return nil, SelectionFailed, err
			}
		}
	}

	return chosen, source, nil
}

func buildFailedResponse(runID string, eventsCommitted int, selectErr error) *RunResponse {
	return &RunResponse{
		Summary: Summary{AdapterID: "none"},
		Dispatch: DispatchInfo{AdapterID: "none", AdapterKind: "none", SelectionSource: SelectionFailed},
		Run:      RunInfo{RunID: runID, EventsCommitted: eventsCommitted},
		Plan:     nil,
		Results:  nil,
		Provenance: Provenance{Artifacts: []Artifact{}, Records: []map[string]any{}},
		Error:    &TopLevelError{Code: nexuserr.CodeOf(selectErr), Message: selectErr.Error()},
	}
}

func buildProvenance(req *RunRequest, results []StepResult) Provenance {
	var artifacts []Artifact
	if req.Context != nil {
		artifacts = req.Context.Artifacts
	}
	records := make([]map[string]any, 0, len(results))
	for _, res := range results {
		records = append(records, map[string]any{
			"step_id": res.StepID,
			"status":  res.Status,
		})
	}
	if artifacts == nil {
		artifacts = []Artifact{}
	}
	return Provenance{Artifacts: artifacts, Records: records}
}

// uniqueInOrder dedups toolsUsed, preserving first-occurrence order.
func uniqueInOrder(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
	}
	return out
}

func planToAny(plan []PlanStep) []any {
	out := make([]any, 0, len(plan))
	for _, step := range plan {
		out = append(out, map[string]any{
			"step_id":                 step.StepID,
			"intent":                  step.Intent,
			"call":                    callToAny(step.Call),
			"expected_output_pointer": step.ExpectedOutputPointer,
		})
	}
	return out
}

func callToAny(c Call) map[string]any {
	return map[string]any{"tool": c.Tool, "method": c.Method, "args": c.Args}
}

func provenanceToAny(p Provenance) map[string]any {
	artifacts := make([]any, 0, len(p.Artifacts))
	for _, a := range p.Artifacts {
		artifacts = append(artifacts, map[string]any{
			"artifact_id": a.ArtifactID,
			"media_type":  a.MediaType,
			"locator":     a.Locator,
			"digest":      map[string]any{"alg": a.Digest.Alg, "value": a.Digest.Value},
		})
	}
	records := make([]any, 0, len(p.Records))
	for _, rec := range p.Records {
		records = append(records, rec)
	}
	return map[string]any{"artifacts": artifacts, "records": records}
}
