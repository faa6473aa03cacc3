package router

import (
	"context"

	"github.com/mcp-tool-shop/nexus-router/internal/adapter"
	"github.com/mcp-tool-shop/nexus-router/pkg/nexuserr"
)

// dispatchStep is the pure per-step decision function: in dry_run it never
// touches the adapter; in apply it enforces the apply capability and the
// policy gate before measuring wall time around the real call.
func dispatchStep(ctx context.Context, chosen adapter.Adapter, registry *adapter.Registry, mode Mode, policy *Policy, call Call) (output map[string]any, simulated bool, err error) {
	if mode == ModeDryRun {
		return map[string]any{
			"simulated":  true,
			"adapter_id": chosen.AdapterID(),
			"tool":       call.Tool,
			"method":     call.Method,
		}, true, nil
	}

	if capErr := registry.RequireCapability(chosen.AdapterID(), adapter.CapabilityApply); capErr != nil {
		return nil, false, capErr
	}

	if gateErr := gateApply(policy); gateErr != nil {
		return nil, false, gateErr
	}

	result, callErr := chosen.Call(ctx, call.Tool, call.Method, call.Args)
	if callErr != nil {
		return nil, false, callErr
	}
	if result == nil {
		result = map[string]any{}
	}
	result["adapter_id"] = chosen.AdapterID()
	return result, false, nil
}

// gateApply evaluates the run's policy for permission to apply. Denial is
// operational, never a bug.
func gateApply(policy *Policy) error {
	if policy == nil || !policy.AllowApply {
		return nexuserr.Operational("APPLY_NOT_ALLOWED", "policy does not permit apply-mode dispatch", map[string]any{
			"allow_apply": policy != nil && policy.AllowApply,
		})
	}
	return nil
}
