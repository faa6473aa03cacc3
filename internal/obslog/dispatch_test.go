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
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogDispatch(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "info", Format: FormatJSON, Output: &buf})

	LogDispatch(logger, DispatchEvent{RunID: "r1", StepID: "s1", AdapterID: "a1", Tool: "fs", Method: "read"})

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "r1", decoded[RunIDKey])
	assert.Equal(t, "s1", decoded[StepIDKey])
	assert.Equal(t, "a1", decoded[AdapterIDKey])
	assert.Equal(t, "fs", decoded[ToolKey])
	assert.Equal(t, "read", decoded[MethodKey])
}

func TestLogRunOutcomeOkLogsAtInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "info", Format: FormatJSON, Output: &buf})

	LogRunOutcome(logger, RunOutcome{RunID: "r1", Outcome: "ok", AdapterID: "a1", Steps: 2, DurationMs: 10})

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "INFO", decoded["level"])
	assert.Equal(t, "ok", decoded[OutcomeKey])
}

func TestLogRunOutcomeErrorLogsAtWarn(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "info", Format: FormatJSON, Output: &buf})

	LogRunOutcome(logger, RunOutcome{RunID: "r1", Outcome: "error", AdapterID: "a1", Steps: 1, DurationMs: 5})

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "WARN", decoded["level"])
}

func TestLogToolCallOutcomeOkAndError(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "info", Format: FormatJSON, Output: &buf})

	LogToolCallOutcome(logger, ToolCallOutcome{RunID: "r1", StepID: "s1", AdapterID: "a1", Outcome: "ok", DurationMs: 3})
	var ok map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &ok))
	assert.Equal(t, "INFO", ok["level"])

	buf.Reset()
	LogToolCallOutcome(logger, ToolCallOutcome{RunID: "r1", StepID: "s2", AdapterID: "a1", Outcome: "error", DurationMs: 3})
	var errDecoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &errDecoded))
	assert.Equal(t, "WARN", errDecoded["level"])
}
