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
	"encoding/json"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mcp-tool-shop/nexus-router/internal/adapter"
	"github.com/mcp-tool-shop/nexus-router/internal/adapter/subprocess"
	"github.com/mcp-tool-shop/nexus-router/internal/eventstore"
	"github.com/mcp-tool-shop/nexus-router/internal/obslog"
)

func openStore(dbPath string) (*eventstore.Store, error) {
	return eventstore.Open(dbPath)
}

func buildLogger(flags *GlobalFlags) *slog.Logger {
	cfg := obslog.FromEnv()
	if flags.Verbose {
		cfg.Level = "debug"
	}
	if flags.Quiet {
		cfg.Level = "error"
	}
	return obslog.New(cfg)
}

// adapterConfigFile is the optional YAML shape accepted by --adapter-config:
// one or more subprocess adapters layered over the always-present null
// adapter, plus which one is default.
type adapterConfigFile struct {
	DefaultAdapterID string                     `yaml:"default_adapter_id"`
	Subprocess       []subprocessAdapterConfig `yaml:"subprocess"`
}

type subprocessAdapterConfig struct {
	AdapterID      string            `yaml:"adapter_id"`
	BaseCmd        []string          `yaml:"base_cmd"`
	TimeoutSeconds float64           `yaml:"timeout_seconds"`
	Cwd            string            `yaml:"cwd"`
	Env            map[string]string `yaml:"env"`
	StrictStderr   bool              `yaml:"strict_stderr"`
}

// buildRegistry always registers a "null" dry-run adapter, then layers in
// any subprocess adapters named in an optional YAML config file.
func buildRegistry(configPath string) (*adapter.Registry, error) {
	defaultID := "null"
	var cfg adapterConfigFile

	if configPath != "" {
		raw, err := os.ReadFile(configPath)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return nil, err
		}
		if cfg.DefaultAdapterID != "" {
			defaultID = cfg.DefaultAdapterID
		}
	}

	registry := adapter.NewRegistry(defaultID)
	if err := registry.Register(adapter.NewNullAdapter("null")); err != nil {
		return nil, err
	}
	for _, sc := range cfg.Subprocess {
		a, err := subprocess.New(subprocess.Config{
			BaseCmd:        sc.BaseCmd,
			AdapterID:      sc.AdapterID,
			TimeoutSeconds: sc.TimeoutSeconds,
			Cwd:            sc.Cwd,
			Env:            sc.Env,
			StrictStderr:   sc.StrictStderr,
		})
		if err != nil {
			return nil, err
		}
		if err := registry.Register(a); err != nil {
			return nil, err
		}
	}

	return registry, nil
}

// printJSON writes v to stdout as indented JSON, the uniform machine-
// readable output shape for every subcommand.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// decodeRequestFile parses a run request from YAML or JSON (JSON is a YAML
// subset, so one path handles both) into out, a struct tagged with `json`
// field names. yaml.v3 decodes into a generic map first and the result is
// re-marshaled to JSON before the final decode, so the struct's `json`
// tags, not yaml.v3's own field-casing convention, govern key matching.
func decodeRequestFile(path string, out any) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var generic any
	if err := yaml.Unmarshal(raw, &generic); err != nil {
		return err
	}
	normalized, err := json.Marshal(generic)
	if err != nil {
		return err
	}
	return json.Unmarshal(normalized, out)
}
