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

package obslog

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, FormatJSON, cfg.Format)
}

func TestFromEnvDebugForcesDebugAndSource(t *testing.T) {
	t.Setenv("NEXUS_DEBUG", "true")
	t.Setenv("NEXUS_LOG_LEVEL", "")
	t.Setenv("NEXUS_LOG_FORMAT", "")
	t.Setenv("NEXUS_LOG_SOURCE", "")

	cfg := FromEnv()
	assert.Equal(t, "debug", cfg.Level)
	assert.True(t, cfg.AddSource)
}

func TestFromEnvReadsLevelFormatSource(t *testing.T) {
	t.Setenv("NEXUS_DEBUG", "")
	t.Setenv("NEXUS_LOG_LEVEL", "WARN")
	t.Setenv("NEXUS_LOG_FORMAT", "TEXT")
	t.Setenv("NEXUS_LOG_SOURCE", "1")

	cfg := FromEnv()
	assert.Equal(t, "warn", cfg.Level)
	assert.Equal(t, FormatText, cfg.Format)
	assert.True(t, cfg.AddSource)
}

func TestNewBuildsJSONHandlerByDefault(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "info", Format: FormatJSON, Output: &buf})
	logger.Info("hello", "x", 1)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "hello", decoded["msg"])
	assert.Equal(t, float64(1), decoded["x"])
}

func TestNewRespectsLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "warn", Format: FormatJSON, Output: &buf})
	logger.Info("should be dropped")
	assert.Empty(t, buf.String())

	logger.Warn("should appear")
	assert.NotEmpty(t, buf.String())
}

func TestParseLevelTrace(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "trace", Format: FormatJSON, Output: &buf})
	assert.True(t, logger.Enabled(context.Background(), LevelTrace))
}

func TestWithRunContextAndStepContext(t *testing.T) {
	var buf bytes.Buffer
	base := New(&Config{Level: "info", Format: FormatJSON, Output: &buf})

	withRun := WithRunContext(base, "run-1")
	withRun.Info("a")
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "run-1", decoded[RunIDKey])

	buf.Reset()
	withStep := WithStepContext(base, "run-1", "step-1")
	withStep.Info("b")
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "run-1", decoded[RunIDKey])
	assert.Equal(t, "step-1", decoded[StepIDKey])
}

func TestTraceSkippedWhenNotEnabled(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "debug", Format: FormatJSON, Output: &buf})
	Trace(logger, "should not appear")
	assert.Empty(t, buf.String())
}

func TestTraceLogsWhenEnabled(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "trace", Format: FormatJSON, Output: &buf})
	Trace(logger, "trace line", slog.String("k", "v"))
	assert.Contains(t, buf.String(), "trace line")
}
