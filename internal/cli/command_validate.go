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
	"fmt"
	"os"
	"path/filepath"

	"github.com/AlecAivazis/survey/v2"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mcp-tool-shop/nexus-router/internal/adapter"
	"github.com/mcp-tool-shop/nexus-router/internal/adapter/subprocess"
	"github.com/mcp-tool-shop/nexus-router/internal/plugin"
)

// builtinFactories returns the factory registry populated with every
// adapter kind this binary ships. It is built fresh per invocation, never
// held in a package-level global.
func builtinFactories() *plugin.FactoryRegistry {
	reg := plugin.NewFactoryRegistry()

	reg.Register("builtin:null", func(config map[string]any) (adapter.Adapter, error) {
		id, _ := config["adapter_id"].(string)
		return adapter.NewNullAdapter(id), nil
	})

	reg.Register("builtin:fake", func(config map[string]any) (adapter.Adapter, error) {
		id, _ := config["adapter_id"].(string)
		return adapter.NewFakeAdapter(id), nil
	})

	reg.Register("builtin:subprocess", func(config map[string]any) (adapter.Adapter, error) {
		baseCmd, _ := config["base_cmd"].([]any)
		cmd := make([]string, 0, len(baseCmd))
		for _, c := range baseCmd {
			if s, ok := c.(string); ok {
				cmd = append(cmd, s)
			}
		}
		adapterID, _ := config["adapter_id"].(string)
		rawEnv, _ := config["env"].(map[string]any)
		env, err := subprocess.ParseEnv(rawEnv)
		if err != nil {
			return nil, err
		}
		return subprocess.New(subprocess.Config{BaseCmd: cmd, AdapterID: adapterID, Env: env})
	})

	return reg
}

// newValidateAdapterCommand builds `nexus-router validate-adapter`: a
// read-only lint over an adapter factory and its optional manifest, never
// dispatching a call through the resulting adapter.
func newValidateAdapterCommand(flags *GlobalFlags) *cobra.Command {
	var (
		factoryRef  string
		configPath  string
		manifestPath string
		manifestDir string
		strict      bool
	)

	cmd := &cobra.Command{
		Use:   "validate-adapter",
		Short: "Lint an adapter factory and its optional declarative manifest",
		RunE: func(cmd *cobra.Command, args []string) error {
			if factoryRef == "" {
				return fmt.Errorf("--factory is required")
			}

			config, err := loadConfig(configPath)
			if err != nil {
				return err
			}

			manifest, err := resolveManifest(manifestPath, manifestDir, factoryRef)
			if err != nil {
				return err
			}

			if manifest != nil {
				config = fillMissingConfig(cmd, config, manifest)
			}

			report, err := plugin.Validate(builtinFactories(), factoryRef, config, manifest, plugin.Options{Strict: strict})
			if err != nil {
				return err
			}
			return printJSON(report)
		},
	}

	cmd.Flags().StringVar(&factoryRef, "factory", "", `Factory reference, e.g. "builtin:subprocess"`)
	cmd.Flags().StringVar(&configPath, "config", "", "Path to a YAML/JSON adapter config mapping")
	cmd.Flags().StringVar(&manifestPath, "manifest", "", "Path to a single declarative manifest file")
	cmd.Flags().StringVar(&manifestDir, "manifest-dir", "", "Directory to glob for **/*.manifest.yaml when --manifest is omitted")
	cmd.Flags().BoolVar(&strict, "strict", false, "Fail (rather than warn) on unrecognized capabilities")

	return cmd
}

func loadConfig(path string) (map[string]any, error) {
	if path == "" {
		return map[string]any{}, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var config map[string]any
	if err := yaml.Unmarshal(raw, &config); err != nil {
		return nil, fmt.Errorf("failed to parse adapter config: %w", err)
	}
	return config, nil
}

// resolveManifest loads --manifest directly, or else globs --manifest-dir
// with doublestar for "**/*.manifest.yaml" and picks the file whose base
// name matches factoryRef's function component.
func resolveManifest(manifestPath, manifestDir, factoryRef string) (*plugin.Manifest, error) {
	path := manifestPath
	if path == "" && manifestDir != "" {
		matches, err := doublestar.Glob(os.DirFS(manifestDir), "**/*.manifest.yaml")
		if err != nil {
			return nil, fmt.Errorf("failed to glob manifest directory: %w", err)
		}
		want := factoryBaseName(factoryRef) + ".manifest.yaml"
		for _, m := range matches {
			if filepath.Base(m) == want {
				path = filepath.Join(manifestDir, m)
				break
			}
		}
	}
	if path == "" {
		return nil, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m plugin.Manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	return &m, nil
}

func factoryBaseName(factoryRef string) string {
	for i := len(factoryRef) - 1; i >= 0; i-- {
		if factoryRef[i] == ':' {
			return factoryRef[i+1:]
		}
	}
	return factoryRef
}

// fillMissingConfig prompts interactively (via survey) for any manifest
// config_schema key marked required that config does not already supply,
// when the terminal supports it; otherwise it leaves the gap for the
// validator's own checks to surface.
func fillMissingConfig(cmd *cobra.Command, config map[string]any, manifest *plugin.Manifest) map[string]any {
	if isNonInteractive() {
		return config
	}
	for key, entry := range manifest.ConfigSchema {
		if !entry.Required {
			continue
		}
		if _, ok := config[key]; ok {
			continue
		}
		var value string
		prompt := &survey.Input{Message: fmt.Sprintf("%s (%s, required by manifest):", key, entry.Type)}
		if err := survey.AskOne(prompt, &value); err != nil {
			fmt.Fprintln(cmd.ErrOrStderr(), "prompt cancelled:", err)
			continue
		}
		config[key] = value
	}
	return config
}
