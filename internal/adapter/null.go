package adapter

import "context"

// NullAdapter is the always-available test double with only the dry_run
// capability. It never produces a real side effect; Call simply echoes the
// request back, distinct from the router's own dry-run short circuit (which
// never reaches an adapter at all).
type NullAdapter struct {
	id string
}

// NewNullAdapter constructs a NullAdapter. An empty id defaults to "null".
func NewNullAdapter(id string) *NullAdapter {
	if id == "" {
		id = "null"
	}
	return &NullAdapter{id: id}
}

func (n *NullAdapter) AdapterID() string   { return n.id }
func (n *NullAdapter) AdapterKind() string { return "null" }

func (n *NullAdapter) Capabilities() CapabilitySet {
	return NewCapabilitySet(CapabilityDryRun)
}

func (n *NullAdapter) Call(_ context.Context, tool, method string, args map[string]any) (map[string]any, error) {
	return map[string]any{
		"simulated":  true,
		"tool":       tool,
		"method":     method,
		"args_echo":  args,
		"result":     nil,
	}, nil
}
