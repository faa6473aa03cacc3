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
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/mcp-tool-shop/nexus-router/internal/observability"
	"github.com/mcp-tool-shop/nexus-router/internal/obslog"
	"github.com/mcp-tool-shop/nexus-router/internal/router"
)

// newRunCommand builds `nexus-router run`: load a run request, execute it
// against the configured registry, print the response.
func newRunCommand(flags *GlobalFlags) *cobra.Command {
	var (
		requestPath   string
		adapterConfig string
		otlpService   string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute a run request against the configured adapter registry",
		Long: `run validates a run request, selects a dispatch adapter, executes its
plan step by step, and records every decision to the event store. It always
prints a well-formed response, even when the run fails.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if requestPath == "" {
				return fmt.Errorf("--request is required")
			}

			var req router.RunRequest
			if err := decodeRequestFile(requestPath, &req); err != nil {
				return fmt.Errorf("failed to parse run request: %w", err)
			}

			store, err := openStore(flags.DBPath)
			if err != nil {
				return err
			}
			defer store.Close()

			registry, err := buildRegistry(adapterConfig)
			if err != nil {
				return err
			}

			logger := buildLogger(flags)
			metrics := observability.NewMetrics(prometheus.DefaultRegisterer)

			ctx := context.Background()
			var opts []router.Option
			opts = append(opts, router.WithMetrics(metrics), router.WithLogger(logger))
			if otlpService != "" {
				tracer, shutdown, err := observability.NewTracer(ctx, otlpService)
				if err != nil {
					return fmt.Errorf("failed to initialize tracer: %w", err)
				}
				defer shutdown(ctx)
				opts = append(opts, router.WithTracer(tracer))
			}

			rt := router.New(store, registry, opts...)
			resp, err := rt.Run(ctx, &req)
			if err != nil {
				obslog.LogRunOutcome(logger, obslog.RunOutcome{Outcome: "error"})
				return err
			}

			if !flags.JSON {
				renderRunResponse(resp)
				return nil
			}
			return printJSON(resp)
		},
	}

	cmd.Flags().StringVar(&requestPath, "request", "", "Path to a run request file (YAML or JSON)")
	cmd.Flags().StringVar(&adapterConfig, "adapter-config", "", "Path to an adapter registry YAML config")
	cmd.Flags().StringVar(&otlpService, "otel-service-name", "", "Enable OpenTelemetry tracing under this service name")

	return cmd
}
