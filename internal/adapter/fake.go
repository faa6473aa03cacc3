package adapter

import (
	"context"
	"fmt"
	"sync"

	"github.com/mcp-tool-shop/nexus-router/pkg/nexuserr"
)

// toolMethodKey identifies a (tool, method) pair in a FakeAdapter's response
// table.
type toolMethodKey struct {
	tool   string
	method string
}

// responseKind tags which variant a Response carries. A Response is the
// tagged variant the source's dynamically-callable response table is
// replaced with: a literal value, a factory over the call args, or a raised
// operational/bug error.
type responseKind int

const (
	responseLiteral responseKind = iota
	responseFactory
	responseRaiseOperational
	responseRaiseBug
)

// Response describes how a FakeAdapter should answer one (tool, method)
// call. Build one with Literal, Factory, RaiseOperational, or RaiseBug.
type Response struct {
	kind    responseKind
	literal map[string]any
	factory func(args map[string]any) map[string]any
	code    string
	message string
}

// Literal returns a Response that always yields value.
func Literal(value map[string]any) Response {
	return Response{kind: responseLiteral, literal: value}
}

// Factory returns a Response computed from the call's args each time.
func Factory(fn func(args map[string]any) map[string]any) Response {
	return Response{kind: responseFactory, factory: fn}
}

// RaiseOperational returns a Response that fails every call operationally.
func RaiseOperational(code, message string) Response {
	return Response{kind: responseRaiseOperational, code: code, message: message}
}

// RaiseBug returns a Response that fails every call with a bug error.
func RaiseBug(code, message string) Response {
	return Response{kind: responseRaiseBug, code: code, message: message}
}

// CallRecord captures one Call invocation for test assertions.
type CallRecord struct {
	Tool   string
	Method string
	Args   map[string]any
}

// FakeAdapter is a test double whose responses are configured per
// (tool, method) pair via a response table, in place of the source's
// dynamically-callable responses.
type FakeAdapter struct {
	mu          sync.Mutex
	id          string
	caps        CapabilitySet
	responses   map[toolMethodKey]Response
	defaultResp *Response
	callLog     []CallRecord
}

// NewFakeAdapter constructs a FakeAdapter. An empty id defaults to "fake".
// Default capabilities are {dry_run, apply}; pass custom ones via
// NewFakeAdapterWithCapabilities.
func NewFakeAdapter(id string) *FakeAdapter {
	return NewFakeAdapterWithCapabilities(id, NewCapabilitySet(CapabilityDryRun, CapabilityApply))
}

// NewFakeAdapterWithCapabilities constructs a FakeAdapter with an explicit
// capability set.
func NewFakeAdapterWithCapabilities(id string, caps CapabilitySet) *FakeAdapter {
	if id == "" {
		id = "fake"
	}
	return &FakeAdapter{
		id:        id,
		caps:      caps,
		responses: make(map[toolMethodKey]Response),
	}
}

func (f *FakeAdapter) AdapterID() string            { return f.id }
func (f *FakeAdapter) AdapterKind() string          { return "fake" }
func (f *FakeAdapter) Capabilities() CapabilitySet  { return f.caps }

// SetResponse configures the Response for a specific (tool, method) pair.
func (f *FakeAdapter) SetResponse(tool, method string, resp Response) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[toolMethodKey{tool, method}] = resp
}

// SetDefaultResponse configures the Response used when no specific
// (tool, method) entry matches.
func (f *FakeAdapter) SetDefaultResponse(resp Response) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.defaultResp = &resp
}

// SetOperationalError is shorthand for SetResponse(tool, method, RaiseOperational(...)).
func (f *FakeAdapter) SetOperationalError(tool, method, code, message string) {
	f.SetResponse(tool, method, RaiseOperational(code, message))
}

// SetBugError is shorthand for SetResponse(tool, method, RaiseBug(...)).
func (f *FakeAdapter) SetBugError(tool, method, code, message string) {
	f.SetResponse(tool, method, RaiseBug(code, message))
}

// CallLog returns a copy of every call this adapter has serviced, in order.
func (f *FakeAdapter) CallLog() []CallRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]CallRecord, len(f.callLog))
	copy(out, f.callLog)
	return out
}

// Reset clears the response table and call log.
func (f *FakeAdapter) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses = make(map[toolMethodKey]Response)
	f.defaultResp = nil
	f.callLog = nil
}

func (f *FakeAdapter) Call(_ context.Context, tool, method string, args map[string]any) (map[string]any, error) {
	f.mu.Lock()
	resp, ok := f.responses[toolMethodKey{tool, method}]
	if !ok {
		if f.defaultResp == nil {
			f.mu.Unlock()
			return nil, nexuserr.Bug("UNKNOWN_ERROR", fmt.Sprintf("no response configured for %s.%s", tool, method), nil)
		}
		resp = *f.defaultResp
	}
	f.callLog = append(f.callLog, CallRecord{Tool: tool, Method: method, Args: args})
	f.mu.Unlock()

	switch resp.kind {
	case responseLiteral:
		return resp.literal, nil
	case responseFactory:
		return resp.factory(args), nil
	case responseRaiseOperational:
		return nil, nexuserr.Operational(resp.code, resp.message, nil)
	case responseRaiseBug:
		return nil, nexuserr.Bug(resp.code, resp.message, nil)
	default:
		return nil, nexuserr.Bug("UNKNOWN_ERROR", "fake adapter response has no kind", nil)
	}
}
