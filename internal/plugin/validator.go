// Package plugin implements a read-only lint over adapter factories and
// their optional declarative manifests. Go has no dynamic `importlib`-style
// loading, so factories are resolved through a host-owned factory registry
// keyed by the same "module:function"-shaped reference string rather than
// discovered via reflection.
package plugin

import (
	"fmt"
	"regexp"

	"github.com/mcp-tool-shop/nexus-router/internal/adapter"
	"github.com/mcp-tool-shop/nexus-router/pkg/nexuserr"
)

// AdapterFactory constructs an adapter from a config mapping.
type AdapterFactory func(config map[string]any) (adapter.Adapter, error)

// FactoryRegistry is the host-owned, additive-only substitute for dynamic
// module loading. It is constructed per invocation (e.g. once per CLI run),
// never a package-level global, per the no-process-wide-state rule.
type FactoryRegistry struct {
	factories map[string]AdapterFactory
}

// NewFactoryRegistry creates an empty factory registry.
func NewFactoryRegistry() *FactoryRegistry {
	return &FactoryRegistry{factories: make(map[string]AdapterFactory)}
}

// Register adds a factory under ref (conventionally "module:function"-shaped).
func (fr *FactoryRegistry) Register(ref string, factory AdapterFactory) {
	fr.factories[ref] = factory
}

const manifestSchemaVersion = 1

var validManifestConfigTypes = map[string]struct{}{
	"string": {}, "number": {}, "boolean": {}, "object": {}, "array": {},
}

var adapterIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_:.\-]+$`)
var adapterKindPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

var standardCapabilities = map[string]struct{}{
	"dry_run": {}, "apply": {}, "timeout": {}, "external": {},
}

// ConfigSchemaEntry describes one key of a manifest's config_schema.
type ConfigSchemaEntry struct {
	Type     string `json:"type" yaml:"type"`
	Required bool   `json:"required" yaml:"required"`
}

// Manifest is the optional declarative companion to an adapter factory.
type Manifest struct {
	SchemaVersion            int                          `json:"schema_version" yaml:"schema_version"`
	Kind                     string                       `json:"kind" yaml:"kind"`
	Capabilities             []string                     `json:"capabilities" yaml:"capabilities"`
	SupportedRouterVersions  string                       `json:"supported_router_versions,omitempty" yaml:"supported_router_versions,omitempty"`
	ErrorCodes               []string                     `json:"error_codes,omitempty" yaml:"error_codes,omitempty"`
	ConfigSchema             map[string]ConfigSchemaEntry `json:"config_schema,omitempty" yaml:"config_schema,omitempty"`
}

// Check is one named validation outcome.
type Check struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// Report is the validator's output: ok iff every check passed.
type Report struct {
	OK       bool           `json:"ok"`
	Metadata map[string]any `json:"metadata"`
	Checks   []Check        `json:"checks"`
}

// Strict, when true, makes an unrecognized capability fail CAPABILITIES_VALID
// instead of merely being noted in that check's Detail.
type Options struct {
	Strict bool
}

// Validate loads the adapter factory named factoryRef from registry, invokes
// it with config, and runs the fixed check list against the resulting
// adapter and optional manifest. It never dispatches a call through the
// adapter.
func Validate(registry *FactoryRegistry, factoryRef string, config map[string]any, manifest *Manifest, opts Options) (*Report, error) {
	report := &Report{Metadata: map[string]any{"factory_ref": factoryRef}}

	factory, ok := registry.factories[factoryRef]
	if !ok {
		return nil, nexuserr.Operational("ADAPTER_LOAD_FAILED", fmt.Sprintf("no factory registered for %q", factoryRef), map[string]any{
			"factory_ref": factoryRef,
			"cause":       "not_registered",
		})
	}

	a, err := factory(config)
	if err != nil {
		report.Checks = append(report.Checks, Check{Name: "LOAD_OK", Passed: false, Detail: err.Error()})
		report.OK = false
		return report, nil
	}
	report.Checks = append(report.Checks, Check{Name: "LOAD_OK", Passed: true})

	protocolOK := a.AdapterID() != "" && a.AdapterKind() != ""
	report.Checks = append(report.Checks, Check{Name: "PROTOCOL_FIELDS", Passed: protocolOK})

	idOK := adapterIDPattern.MatchString(a.AdapterID())
	report.Checks = append(report.Checks, Check{Name: "ADAPTER_ID_FORMAT", Passed: idOK})

	kindOK := adapterKindPattern.MatchString(a.AdapterKind())
	report.Checks = append(report.Checks, Check{Name: "ADAPTER_KIND_FORMAT", Passed: kindOK})

	caps := a.Capabilities()
	report.Checks = append(report.Checks, Check{Name: "CAPABILITIES_TYPE", Passed: caps != nil})

	capsValid := true
	var unknownCaps []string
	for _, cap := range caps.Sorted() {
		if _, known := standardCapabilities[cap]; !known {
			unknownCaps = append(unknownCaps, cap)
			if opts.Strict {
				capsValid = false
			}
		}
	}
	capsDetail := ""
	if len(unknownCaps) > 0 {
		capsDetail = fmt.Sprintf("unrecognized capabilities: %v", unknownCaps)
	}
	report.Checks = append(report.Checks, Check{Name: "CAPABILITIES_VALID", Passed: capsValid, Detail: capsDetail})

	report.Metadata["adapter_id"] = a.AdapterID()
	report.Metadata["adapter_kind"] = a.AdapterKind()
	report.Metadata["capabilities"] = caps.Sorted()

	if manifest != nil {
		report.Checks = append(report.Checks, validateManifest(manifest, a)...)
	}

	report.OK = allPassed(report.Checks)
	return report, nil
}

func validateManifest(m *Manifest, a adapter.Adapter) []Check {
	var checks []Check

	present := m.SchemaVersion != 0 || m.Kind != ""
	checks = append(checks, Check{Name: "MANIFEST_PRESENT", Passed: present})

	schemaOK := m.SchemaVersion == manifestSchemaVersion
	detail := ""
	if !schemaOK {
		detail = fmt.Sprintf("unsupported schema_version %d; refusing to best-effort parse", m.SchemaVersion)
	}
	checks = append(checks, Check{Name: "MANIFEST_SCHEMA", Passed: schemaOK, Detail: detail})

	kindMatch := m.Kind == a.AdapterKind()
	checks = append(checks, Check{Name: "MANIFEST_KIND_MATCH", Passed: kindMatch})

	manifestCaps := make(map[string]struct{}, len(m.Capabilities))
	for _, c := range m.Capabilities {
		manifestCaps[c] = struct{}{}
	}
	actualCaps := a.Capabilities()
	capsMatch := len(manifestCaps) == len(actualCaps)
	if capsMatch {
		for c := range manifestCaps {
			if !actualCaps.Has(adapterCapability(c)) {
				capsMatch = false
				break
			}
		}
	}
	checks = append(checks, Check{Name: "MANIFEST_CAPS_MATCH", Passed: capsMatch})

	for key, entry := range m.ConfigSchema {
		if _, ok := validManifestConfigTypes[entry.Type]; !ok {
			checks = append(checks, Check{Name: "MANIFEST_SCHEMA", Passed: false, Detail: fmt.Sprintf("config_schema key %q has unknown type %q", key, entry.Type)})
		}
	}

	return checks
}

func adapterCapability(s string) adapter.Capability { return adapter.Capability(s) }

func allPassed(checks []Check) bool {
	for _, c := range checks {
		if !c.Passed {
			return false
		}
	}
	return true
}
