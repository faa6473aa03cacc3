package adapter

import (
	"fmt"
	"sort"
	"sync"

	"github.com/mcp-tool-shop/nexus-router/pkg/nexuserr"
)

// Registry is an in-process, non-global collection of adapters. It is owned
// by the host process and constructed before any run starts; it is treated
// as read-only once runs begin.
type Registry struct {
	mu               sync.RWMutex
	adapters         map[string]Adapter
	defaultAdapterID string
}

// NewRegistry creates an empty registry. defaultAdapterID names the adapter
// GetDefault should return once registered; it need not be registered yet at
// construction time.
func NewRegistry(defaultAdapterID string) *Registry {
	return &Registry{
		adapters:         make(map[string]Adapter),
		defaultAdapterID: defaultAdapterID,
	}
}

// Register adds an adapter to the registry. It fails if an adapter with the
// same AdapterID is already present.
func (r *Registry) Register(a Adapter) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := a.AdapterID()
	if _, exists := r.adapters[id]; exists {
		return fmt.Errorf("adapter already registered: %s", id)
	}
	r.adapters[id] = a
	return nil
}

// Get returns the adapter registered under id.
func (r *Registry) Get(id string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.adapters[id]
	if !ok {
		return nil, fmt.Errorf("adapter not found: %s", id)
	}
	return a, nil
}

// GetDefault returns the adapter registered under this registry's default id.
func (r *Registry) GetDefault() (Adapter, error) {
	r.mu.RLock()
	id := r.defaultAdapterID
	r.mu.RUnlock()
	if id == "" {
		return nil, fmt.Errorf("no default adapter configured")
	}
	return r.Get(id)
}

// DefaultAdapterID returns the id GetDefault resolves against.
func (r *Registry) DefaultAdapterID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaultAdapterID
}

// ListIDs returns every registered adapter_id, sorted lexicographically.
func (r *Registry) ListIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.adapters))
	for id := range r.adapters {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// AdapterSummary describes one registered adapter for listing purposes.
type AdapterSummary struct {
	AdapterID    string   `json:"adapter_id"`
	AdapterKind  string   `json:"adapter_kind"`
	Capabilities []string `json:"capabilities"`
}

// ListAdapters returns a sorted summary of every registered adapter.
func (r *Registry) ListAdapters() []AdapterSummary {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]AdapterSummary, 0, len(r.adapters))
	for id, a := range r.adapters {
		out = append(out, AdapterSummary{
			AdapterID:    id,
			AdapterKind:  a.AdapterKind(),
			Capabilities: a.Capabilities().Sorted(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AdapterID < out[j].AdapterID })
	return out
}

// FindByCapability returns the ids of every registered adapter that has cap,
// sorted lexicographically.
func (r *Registry) FindByCapability(cap Capability) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []string
	for id, a := range r.adapters {
		if a.Capabilities().Has(cap) {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// HasCapability reports whether the adapter registered under id has cap. It
// returns false (rather than erroring) when id is not registered.
func (r *Registry) HasCapability(id string, cap Capability) bool {
	a, err := r.Get(id)
	if err != nil {
		return false
	}
	return a.Capabilities().Has(cap)
}

// RequireCapability returns an operational CAPABILITY_MISSING error if the
// adapter registered under id lacks cap.
func (r *Registry) RequireCapability(id string, cap Capability) error {
	a, err := r.Get(id)
	if err != nil {
		return nexuserr.Operational("UNKNOWN_ADAPTER", err.Error(), map[string]any{
			"adapter_id":         id,
			"available_adapters": r.ListIDs(),
		})
	}
	if !a.Capabilities().Has(cap) {
		return nexuserr.Operational("CAPABILITY_MISSING", fmt.Sprintf("adapter %q lacks capability %q", id, cap), map[string]any{
			"adapter_id":           id,
			"required_capability":  string(cap),
			"adapter_capabilities": a.Capabilities().Sorted(),
		})
	}
	return nil
}
