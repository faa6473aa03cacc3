// Package schemas provides access to embedded JSON schemas.
package schemas

import (
	_ "embed"
)

// Embed the external-interface JSON Schemas into the binary so request
// authors, IDE tooling, and downstream validators can consume them without
// carrying this repository's source tree.

//go:embed run_request.schema.json
var runRequestSchema []byte

//go:embed run_response.schema.json
var runResponseSchema []byte

//go:embed bundle.schema.json
var bundleSchema []byte

//go:embed adapter_manifest.schema.json
var adapterManifestSchema []byte

// GetRunRequestSchema returns the run request JSON Schema as raw bytes.
func GetRunRequestSchema() []byte {
	return runRequestSchema
}

// GetRunResponseSchema returns the run response JSON Schema as raw bytes.
func GetRunResponseSchema() []byte {
	return runResponseSchema
}

// GetBundleSchema returns the export bundle JSON Schema as raw bytes.
func GetBundleSchema() []byte {
	return bundleSchema
}

// GetAdapterManifestSchema returns the adapter manifest JSON Schema as raw
// bytes.
func GetAdapterManifestSchema() []byte {
	return adapterManifestSchema
}
