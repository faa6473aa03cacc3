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

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcp-tool-shop/nexus-router/internal/plugin"
)

func TestFactoryBaseName(t *testing.T) {
	assert.Equal(t, "subprocess", factoryBaseName("builtin:subprocess"))
	assert.Equal(t, "null", factoryBaseName("null"))
	assert.Equal(t, "fake", factoryBaseName("some:nested:fake"))
}

func TestBuiltinFactoriesRegistersNullFakeSubprocess(t *testing.T) {
	reg := builtinFactories()

	report, err := plugin.Validate(reg, "builtin:null", map[string]any{"adapter_id": "n1"}, nil, plugin.Options{})
	require.NoError(t, err)
	assert.True(t, report.OK)

	report, err = plugin.Validate(reg, "builtin:fake", map[string]any{"adapter_id": "f1"}, nil, plugin.Options{})
	require.NoError(t, err)
	assert.True(t, report.OK)

	report, err = plugin.Validate(reg, "builtin:subprocess", map[string]any{
		"adapter_id": "s1",
		"base_cmd":   []any{"/bin/sh", "-c", "true"},
	}, nil, plugin.Options{})
	require.NoError(t, err)
	assert.True(t, report.OK)
}

func TestLoadConfigEmptyPathReturnsEmptyMap(t *testing.T) {
	config, err := loadConfig("")
	require.NoError(t, err)
	assert.Empty(t, config)
}

func TestLoadConfigParsesYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("adapter_id: n1\nbase_cmd: [\"/bin/sh\"]\n"), 0o644))

	config, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "n1", config["adapter_id"])
}

func TestResolveManifestExplicitPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "m.yaml")
	require.NoError(t, os.WriteFile(path, []byte("schema_version: 1\nkind: \"null\"\ncapabilities: [dry_run]\n"), 0o644))

	m, err := resolveManifest(path, "", "builtin:null")
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, "null", m.Kind)
}

func TestResolveManifestGlobsDirectoryByFactoryBaseName(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "null.manifest.yaml"), []byte("schema_version: 1\nkind: \"null\"\ncapabilities: [dry_run]\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "fake.manifest.yaml"), []byte("schema_version: 1\nkind: fake\ncapabilities: [dry_run, apply]\n"), 0o644))

	m, err := resolveManifest("", dir, "builtin:null")
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, "null", m.Kind)
}

func TestResolveManifestReturnsNilWhenNothingConfigured(t *testing.T) {
	m, err := resolveManifest("", "", "builtin:null")
	require.NoError(t, err)
	assert.Nil(t, m)
}
