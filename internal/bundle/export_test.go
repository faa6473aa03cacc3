package bundle

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcp-tool-shop/nexus-router/internal/eventstore"
)

func openTestStore(t *testing.T) *eventstore.Store {
	t.Helper()
	s, err := eventstore.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestExportRunNotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := Export(context.Background(), s, "does-not-exist", false)
	require.Error(t, err)
}

func TestExportProducesValidDigest(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	runID, err := s.CreateRun(ctx, "dry_run", "goal")
	require.NoError(t, err)
	_, err = s.Append(ctx, runID, "RUN_STARTED", map[string]any{"mode": "dry_run"})
	require.NoError(t, err)
	_, err = s.Append(ctx, runID, "RUN_COMPLETED", map[string]any{"outcome": "ok"})
	require.NoError(t, err)

	b, err := Export(ctx, s, runID, false)
	require.NoError(t, err)
	assert.Equal(t, BundleVersion, b.BundleVersion)
	assert.Equal(t, runID, b.Run["run_id"])
	assert.Len(t, b.Events, 2)
	assert.NotEmpty(t, b.Digests.SHA256)
	assert.Nil(t, b.Provenance)

	ok, err := VerifyBundleDigest(b)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestExportDigestIsDeterministicAndExcludesExportedAt(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	runID, err := s.CreateRun(ctx, "dry_run", "goal")
	require.NoError(t, err)
	_, err = s.Append(ctx, runID, "RUN_STARTED", map[string]any{})
	require.NoError(t, err)

	first, err := Export(ctx, s, runID, false)
	require.NoError(t, err)
	second, err := Export(ctx, s, runID, false)
	require.NoError(t, err)

	assert.Equal(t, first.Digests.SHA256, second.Digests.SHA256)
}

func TestExportWithProvenance(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	runID, err := s.CreateRun(ctx, "dry_run", "goal")
	require.NoError(t, err)

	b, err := Export(ctx, s, runID, true)
	require.NoError(t, err)
	require.NotNil(t, b.Provenance)
	assert.Equal(t, runID, b.Provenance["source_run_id"])
	assert.Equal(t, "direct", b.Provenance["export_method"])

	ok, err := VerifyBundleDigest(b)
	require.NoError(t, err)
	assert.True(t, ok, "provenance must not affect the digest")
}

func TestVerifyBundleDigestDetectsTampering(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	runID, err := s.CreateRun(ctx, "dry_run", "goal")
	require.NoError(t, err)

	b, err := Export(ctx, s, runID, false)
	require.NoError(t, err)

	b.Run["goal"] = "tampered"
	ok, err := VerifyBundleDigest(b)
	require.NoError(t, err)
	assert.False(t, ok)
}
