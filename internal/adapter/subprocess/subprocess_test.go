package subprocess

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcp-tool-shop/nexus-router/internal/adapter"
	"github.com/mcp-tool-shop/nexus-router/pkg/nexuserr"
)

func requireUnix(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("subprocess tests assume a /bin/sh shell")
	}
}

// newShellAdapter builds an adapter whose child process is "/bin/sh -c
// <script>". The subprocess protocol appends "call <tool> <method>
// --json-args-file <path>" after base_cmd, so inside the script $4 is the
// path to the JSON args file.
func newShellAdapter(t *testing.T, script string, opts ...func(*Config)) *SubprocessAdapter {
	t.Helper()
	requireUnix(t)
	cfg := Config{BaseCmd: []string{"/bin/sh", "-c", script}, TimeoutSeconds: 2}
	for _, o := range opts {
		o(&cfg)
	}
	a, err := New(cfg)
	require.NoError(t, err)
	return a
}

func TestNewRejectsEmptyBaseCmd(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestNewDerivesAdapterID(t *testing.T) {
	a := newShellAdapter(t, `cat "$4"`)
	assert.Contains(t, a.AdapterID(), "subprocess:sh:")
	assert.Len(t, a.AdapterID(), len("subprocess:sh:")+6)
}

func TestNewHonorsExplicitAdapterID(t *testing.T) {
	a := newShellAdapter(t, `cat "$4"`, func(c *Config) { c.AdapterID = "my-adapter" })
	assert.Equal(t, "my-adapter", a.AdapterID())
}

func TestAdapterKindAndCapabilities(t *testing.T) {
	a := newShellAdapter(t, `cat "$4"`)
	assert.Equal(t, "subprocess", a.AdapterKind())
	caps := a.Capabilities()
	assert.True(t, caps.Has(adapter.CapabilityApply))
	assert.True(t, caps.Has(adapter.CapabilityTimeout))
	assert.True(t, caps.Has(adapter.CapabilityExternal))
	assert.False(t, caps.Has(adapter.CapabilityDryRun))
}

func TestNewRejectsMissingCwd(t *testing.T) {
	requireUnix(t)
	_, err := New(Config{BaseCmd: []string{"/bin/sh", "-c", "true"}, Cwd: "/does/not/exist"})
	require.Error(t, err)
	assert.Equal(t, "CWD_NOT_FOUND", nexuserr.CodeOf(err))
}

func TestNewRejectsNonDirectoryCwd(t *testing.T) {
	requireUnix(t)
	f, err := os.CreateTemp("", "nexus-router-cwd-test-*")
	require.NoError(t, err)
	defer os.Remove(f.Name())
	f.Close()

	_, err = New(Config{BaseCmd: []string{"/bin/sh", "-c", "true"}, Cwd: f.Name()})
	require.Error(t, err)
	assert.Equal(t, "CWD_NOT_DIRECTORY", nexuserr.CodeOf(err))
}

func TestCallSuccessEchoesArgsBackAsJSON(t *testing.T) {
	a := newShellAdapter(t, `cat "$4"`)

	out, err := a.Call(context.Background(), "fs", "read", map[string]any{"path": "/x"})
	require.NoError(t, err)
	assert.Equal(t, "fs", out["tool"])
	assert.Equal(t, "read", out["method"])
	assert.Equal(t, a.AdapterID(), out["adapter_id"])
	args := out["args"].(map[string]any)
	assert.Equal(t, "/x", args["path"])
	assert.False(t, a.LastCleanupFailed())
}

func TestCallTimeout(t *testing.T) {
	a := newShellAdapter(t, `sleep 5`, func(c *Config) { c.TimeoutSeconds = 0.05 })

	_, err := a.Call(context.Background(), "fs", "read", nil)
	require.Error(t, err)
	assert.Equal(t, "TIMEOUT", nexuserr.CodeOf(err))

	op, ok := nexuserr.AsOperational(err)
	require.True(t, ok)
	assert.Equal(t, 0.05, op.Details["timeout_s"])
	digest, _ := op.Details["args_digest"].(string)
	assert.Len(t, digest, 12)
	assert.False(t, a.LastCleanupFailed(), "the args temp file is cleaned up even on timeout")
	assertNoLeftoverTempFiles(t)
}

// assertNoLeftoverTempFiles fails the test if any handoff file with this
// adapter's prefix survived a call.
func assertNoLeftoverTempFiles(t *testing.T) {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(os.TempDir(), tempFilePrefix+"*"))
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestCallCommandNotFound(t *testing.T) {
	requireUnix(t)
	a, err := New(Config{BaseCmd: []string{"/definitely/not/a/real/binary"}, TimeoutSeconds: 1})
	require.NoError(t, err)

	_, err = a.Call(context.Background(), "fs", "read", nil)
	require.Error(t, err)
	assert.Equal(t, "COMMAND_NOT_FOUND", nexuserr.CodeOf(err))
}

func TestCallNonZeroExit(t *testing.T) {
	a := newShellAdapter(t, `exit 7`)

	_, err := a.Call(context.Background(), "fs", "read", nil)
	require.Error(t, err)
	assert.Equal(t, "NONZERO_EXIT", nexuserr.CodeOf(err))
	op, ok := nexuserr.AsOperational(err)
	require.True(t, ok)
	assert.Equal(t, 7, op.Details["returncode"])
}

func TestCallInvalidJSONOutput(t *testing.T) {
	a := newShellAdapter(t, `echo not-json`)

	_, err := a.Call(context.Background(), "fs", "read", nil)
	require.Error(t, err)
	assert.Equal(t, "INVALID_JSON_OUTPUT", nexuserr.CodeOf(err))
}

func TestCallStrictStderrFailsOnSuccessWithStderrOutput(t *testing.T) {
	a := newShellAdapter(t, `cat "$4"; echo "warning" >&2`, func(c *Config) { c.StrictStderr = true })

	_, err := a.Call(context.Background(), "fs", "read", nil)
	require.Error(t, err)
	assert.Equal(t, "STDERR_ON_SUCCESS", nexuserr.CodeOf(err))
}

func TestCallNonStrictStderrIgnoresStderrOnSuccess(t *testing.T) {
	a := newShellAdapter(t, `cat "$4"; echo "warning" >&2`)

	out, err := a.Call(context.Background(), "fs", "read", nil)
	require.NoError(t, err)
	assert.Equal(t, "fs", out["tool"])
}

func TestCallRedactsStderrExcerptOnNonZeroExit(t *testing.T) {
	a := newShellAdapter(t, `echo "password=hunter2" >&2; exit 1`)

	_, err := a.Call(context.Background(), "fs", "read", nil)
	require.Error(t, err)
	op, ok := nexuserr.AsOperational(err)
	require.True(t, ok)
	excerpt, _ := op.Details["stderr_excerpt"].(string)
	assert.NotContains(t, excerpt, "hunter2")
	assert.Contains(t, excerpt, redactedPlaceholder)
}

func TestParseEnvRejectsNonStringValues(t *testing.T) {
	_, err := ParseEnv(map[string]any{"PORT": 8080})
	require.Error(t, err)
	assert.Equal(t, "ENV_INVALID", nexuserr.CodeOf(err))

	env, err := ParseEnv(map[string]any{"HOME": "/tmp"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"HOME": "/tmp"}, env)

	env, err = ParseEnv(nil)
	require.NoError(t, err)
	assert.Nil(t, env)
}

func TestRedactArgsScrubsForEventRecording(t *testing.T) {
	a := newShellAdapter(t, `cat "$4"`)

	args := map[string]any{"path": "/x", "api_key": "sk-123"}
	got := a.RedactArgs(args)
	assert.Equal(t, "/x", got["path"])
	assert.Equal(t, redactedPlaceholder, got["api_key"])
	assert.Equal(t, "sk-123", args["api_key"], "original args are untouched")
}

func TestArgsDigest12HasFixedLength(t *testing.T) {
	got := argsDigest12(map[string]any{"a": 1.0})
	assert.Len(t, got, 12)
}

func TestCallUsesTimeoutShorterThanParentContext(t *testing.T) {
	a := newShellAdapter(t, `cat "$4"`)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	out, err := a.Call(ctx, "fs", "read", map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, "read", out["method"])
}
