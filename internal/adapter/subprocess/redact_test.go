package subprocess

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultRedactTextBearerToken(t *testing.T) {
	got := DefaultRedactText("Authorization: Bearer abc123.def456")
	assert.Contains(t, got, redactedPlaceholder)
	assert.NotContains(t, got, "abc123")
}

func TestDefaultRedactTextAPIKeyAssignment(t *testing.T) {
	got := DefaultRedactText(`api_key: "sk-live-1234567890"`)
	assert.Contains(t, got, redactedPlaceholder)
	assert.NotContains(t, got, "sk-live-1234567890")
}

func TestDefaultRedactTextGenericSecretAssignment(t *testing.T) {
	got := DefaultRedactText(`password = "hunter2"`)
	assert.Contains(t, got, redactedPlaceholder)
	assert.NotContains(t, got, "hunter2")
}

func TestDefaultRedactTextLeavesPlainTextAlone(t *testing.T) {
	got := DefaultRedactText("hello world, nothing sensitive here")
	assert.Equal(t, "hello world, nothing sensitive here", got)
}

func TestDefaultRedactArgsRedactsSensitiveKeys(t *testing.T) {
	args := map[string]any{
		"username": "alice",
		"password": "hunter2",
		"nested": map[string]any{
			"api_key": "sk-123",
			"note":    "keep me",
		},
	}

	got := DefaultRedactArgs(args).(map[string]any)
	assert.Equal(t, "alice", got["username"])
	assert.Equal(t, redactedPlaceholder, got["password"])

	nested := got["nested"].(map[string]any)
	assert.Equal(t, redactedPlaceholder, nested["api_key"])
	assert.Equal(t, "keep me", nested["note"])
}

func TestDefaultRedactArgsWalksSlices(t *testing.T) {
	args := map[string]any{
		"entries": []any{
			map[string]any{"secret": "s1"},
			map[string]any{"secret": "s2"},
		},
	}

	got := DefaultRedactArgs(args).(map[string]any)
	entries := got["entries"].([]any)
	first := entries[0].(map[string]any)
	assert.Equal(t, redactedPlaceholder, first["secret"])
}

func TestDefaultRedactArgsDoesNotMutateOriginal(t *testing.T) {
	args := map[string]any{"password": "hunter2"}
	DefaultRedactArgs(args)
	assert.Equal(t, "hunter2", args["password"])
}
