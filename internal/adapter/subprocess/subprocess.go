// Package subprocess implements the external-process transport adapter:
// secure temp-file payload handoff, timeout enforcement, structured error
// mapping, redaction of anything bound for the event stream, and a
// cleanup-with-one-retry discipline on the handoff file.
package subprocess

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/mcp-tool-shop/nexus-router/internal/adapter"
	"github.com/mcp-tool-shop/nexus-router/pkg/canonjson"
	"github.com/mcp-tool-shop/nexus-router/pkg/nexuserr"
)

const (
	defaultTimeoutSeconds    = 30.0
	defaultMaxStdoutChars    = 200_000
	defaultMaxStderrChars    = 50_000
	defaultCleanupRetryDelay = 100 * time.Millisecond
	tempFilePrefix           = "nexus-router-args-"
)

// Config configures a SubprocessAdapter.
type Config struct {
	// BaseCmd is the executable and leading arguments; must be non-empty.
	BaseCmd []string
	// AdapterID overrides the derived "subprocess:<basename>:<hash>" id.
	AdapterID string
	// TimeoutSeconds bounds the child's wall-clock runtime.
	TimeoutSeconds float64
	// Cwd, if set, must exist and be a directory.
	Cwd string
	// Env overrides/extends the parent process environment. All keys and
	// values are strings by construction here; a dynamically-typed config
	// source (YAML/JSON) goes through ParseEnv, which raises ENV_INVALID.
	Env map[string]string
	// MaxStdoutChars / MaxStderrChars bound diagnostic excerpts only; the
	// full stdout is always used for JSON parsing.
	MaxStdoutChars int
	MaxStderrChars int
	// RedactArgs / RedactText scrub anything bound for the event stream.
	RedactArgs RedactArgsFunc
	RedactText RedactTextFunc
	// CleanupRetryDelay is the pause before the one cleanup retry.
	CleanupRetryDelay time.Duration
	// StrictStderr, if true, turns any non-blank stderr on an otherwise
	// successful call into an operational STDERR_ON_SUCCESS.
	StrictStderr bool
}

// SubprocessAdapter dispatches tool calls to an external command.
type SubprocessAdapter struct {
	cfg              Config
	id               string
	lastCleanupFailed bool
}

// New constructs a SubprocessAdapter, applying defaults for any zero-valued
// optional field and deriving AdapterID when not provided.
func New(cfg Config) (*SubprocessAdapter, error) {
	if len(cfg.BaseCmd) == 0 {
		return nil, fmt.Errorf("subprocess adapter: base_cmd must be non-empty")
	}
	if cfg.TimeoutSeconds <= 0 {
		cfg.TimeoutSeconds = defaultTimeoutSeconds
	}
	if cfg.MaxStdoutChars <= 0 {
		cfg.MaxStdoutChars = defaultMaxStdoutChars
	}
	if cfg.MaxStderrChars <= 0 {
		cfg.MaxStderrChars = defaultMaxStderrChars
	}
	if cfg.CleanupRetryDelay <= 0 {
		cfg.CleanupRetryDelay = defaultCleanupRetryDelay
	}
	if cfg.RedactArgs == nil {
		cfg.RedactArgs = DefaultRedactArgs
	}
	if cfg.RedactText == nil {
		cfg.RedactText = DefaultRedactText
	}

	id := cfg.AdapterID
	if id == "" {
		id = deriveAdapterID(cfg.BaseCmd)
	}

	if cfg.Cwd != "" {
		info, err := os.Stat(cfg.Cwd)
		if err != nil {
			return nil, nexuserr.Operational("CWD_NOT_FOUND", fmt.Sprintf("cwd does not exist: %s", cfg.Cwd), map[string]any{"cwd": cfg.Cwd})
		}
		if !info.IsDir() {
			return nil, nexuserr.Operational("CWD_NOT_DIRECTORY", fmt.Sprintf("cwd is not a directory: %s", cfg.Cwd), map[string]any{"cwd": cfg.Cwd})
		}
	}

	return &SubprocessAdapter{cfg: cfg, id: id}, nil
}

func deriveAdapterID(baseCmd []string) string {
	cmdStr := strings.Join(baseCmd, " ")
	sum := sha256.Sum256([]byte(cmdStr))
	return fmt.Sprintf("subprocess:%s:%s", filepath.Base(baseCmd[0]), hex.EncodeToString(sum[:])[:6])
}

func (s *SubprocessAdapter) AdapterID() string   { return s.id }
func (s *SubprocessAdapter) AdapterKind() string { return "subprocess" }

func (s *SubprocessAdapter) Capabilities() adapter.CapabilitySet {
	return adapter.NewCapabilitySet(adapter.CapabilityApply, adapter.CapabilityTimeout, adapter.CapabilityExternal)
}

// LastCleanupFailed reports whether the most recent call's temp-file cleanup
// failed after its retry. It never causes Call itself to fail.
func (s *SubprocessAdapter) LastCleanupFailed() bool { return s.lastCleanupFailed }

// RedactArgs returns a copy of args with sensitive values scrubbed, for
// recording in the event stream. The payload sent to the child is never
// redacted.
func (s *SubprocessAdapter) RedactArgs(args map[string]any) map[string]any {
	out, ok := s.cfg.RedactArgs(args).(map[string]any)
	if !ok {
		return args
	}
	return out
}

func (s *SubprocessAdapter) Call(ctx context.Context, tool, method string, args map[string]any) (map[string]any, error) {
	payload := map[string]any{"tool": tool, "method": method, "args": args}
	canonical, err := canonjson.Marshal(payload)
	if err != nil {
		return nil, nexuserr.Bug("OS_ERROR", fmt.Sprintf("failed to canonicalize payload: %v", err), nil)
	}
	argsDigest := argsDigest12(args)

	path, err := s.writeTempFile(canonical)
	if err != nil {
		return nil, nexuserr.Operational("OS_ERROR", fmt.Sprintf("failed to write args file: %v", err), map[string]any{"args_digest": argsDigest})
	}
	defer s.cleanup(path)

	cmdArgs := append(append([]string{}, s.cfg.BaseCmd[1:]...), "call", tool, method, "--json-args-file", path)

	timeout := time.Duration(s.cfg.TimeoutSeconds * float64(time.Second))
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, s.cfg.BaseCmd[0], cmdArgs...)
	if s.cfg.Cwd != "" {
		cmd.Dir = s.cfg.Cwd
	}
	cmd.Env = s.mergedEnv()

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	if runCtx.Err() == context.DeadlineExceeded {
		return nil, nexuserr.Operational("TIMEOUT", fmt.Sprintf("command timed out after %.3fs", s.cfg.TimeoutSeconds), map[string]any{
			"timeout_s":   s.cfg.TimeoutSeconds,
			"args_digest": argsDigest,
		})
	}

	if runErr != nil {
		if errors.Is(runErr, os.ErrPermission) || errors.Is(runErr, syscall.EACCES) {
			return nil, nexuserr.Operational("PERMISSION_DENIED", fmt.Sprintf("permission denied executing: %s", s.cfg.BaseCmd[0]), map[string]any{
				"args_digest": argsDigest,
			})
		}
		var execErr *exec.Error
		if errors.As(runErr, &execErr) || errors.Is(runErr, os.ErrNotExist) {
			return nil, nexuserr.Operational("COMMAND_NOT_FOUND", fmt.Sprintf("command not found: %s", s.cfg.BaseCmd[0]), map[string]any{
				"base_cmd":    s.cfg.BaseCmd[0],
				"args_digest": argsDigest,
			})
		}
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			excerpt := s.cfg.RedactText(truncate(stderr.String(), s.cfg.MaxStderrChars))
			return nil, nexuserr.Operational("NONZERO_EXIT", fmt.Sprintf("command exited with status %d", exitErr.ExitCode()), map[string]any{
				"returncode":      exitErr.ExitCode(),
				"stderr_excerpt":  excerpt,
				"args_digest":     argsDigest,
			})
		}
		return nil, nexuserr.Operational("OS_ERROR", runErr.Error(), map[string]any{"args_digest": argsDigest})
	}

	stdoutStr := stdout.String()
	var result map[string]any
	if jsonErr := json.Unmarshal([]byte(stdoutStr), &result); jsonErr != nil {
		head, tail := excerptForJSONError(stdoutStr, 200, 100)
		return nil, nexuserr.Operational("INVALID_JSON_OUTPUT", fmt.Sprintf("stdout was not a single JSON object: %v", jsonErr), map[string]any{
			"stdout_len":  len(stdoutStr),
			"json_error":  jsonErr.Error(),
			"stdout_head": s.cfg.RedactText(head),
			"stdout_tail": s.cfg.RedactText(tail),
			"args_digest": argsDigest,
		})
	}

	if s.cfg.StrictStderr && strings.TrimSpace(stderr.String()) != "" {
		excerpt := s.cfg.RedactText(truncate(stderr.String(), s.cfg.MaxStderrChars))
		return nil, nexuserr.Operational("STDERR_ON_SUCCESS", "command wrote to stderr despite success", map[string]any{
			"stderr_excerpt": excerpt,
			"args_digest":    argsDigest,
		})
	}

	result["adapter_id"] = s.id
	return result, nil
}

// ParseEnv validates a dynamically-typed env mapping, as decoded from a
// YAML or JSON config, and returns it as strings. A non-string value is
// operational ENV_INVALID.
func ParseEnv(raw map[string]any) (map[string]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		s, ok := v.(string)
		if !ok {
			return nil, nexuserr.Operational("ENV_INVALID", fmt.Sprintf("env value for %q is not a string", k), map[string]any{
				"key": k,
			})
		}
		out[k] = s
	}
	return out, nil
}

func (s *SubprocessAdapter) mergedEnv() []string {
	base := os.Environ()
	if len(s.cfg.Env) == 0 {
		return base
	}
	merged := make([]string, 0, len(base)+len(s.cfg.Env))
	merged = append(merged, base...)
	for k, v := range s.cfg.Env {
		merged = append(merged, fmt.Sprintf("%s=%s", k, v))
	}
	return merged
}

func (s *SubprocessAdapter) writeTempFile(data []byte) (string, error) {
	f, err := os.CreateTemp("", tempFilePrefix+"*.json")
	if err != nil {
		return "", err
	}
	path := f.Name()
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(path)
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", err
	}
	if err := os.Chmod(path, 0o600); err != nil {
		os.Remove(path)
		return "", err
	}
	return path, nil
}

// cleanup removes the handoff temp file, retrying once after
// CleanupRetryDelay on failure. A second failure sets LastCleanupFailed but
// never fails the call itself.
func (s *SubprocessAdapter) cleanup(path string) {
	s.lastCleanupFailed = false
	if err := os.Remove(path); err == nil || os.IsNotExist(err) {
		return
	}
	time.Sleep(s.cfg.CleanupRetryDelay)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		s.lastCleanupFailed = true
	}
}

func argsDigest12(args map[string]any) string {
	canonical, err := canonjson.Marshal(args)
	if err != nil {
		canonical = []byte("{}")
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])[:12]
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

func excerptForJSONError(s string, head, tail int) (string, string) {
	if len(s) <= head+tail {
		return s, ""
	}
	return s[:head], s[len(s)-tail:]
}
