package bundle

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcp-tool-shop/nexus-router/pkg/nexuserr"
)

func TestImportFreshRunSucceeds(t *testing.T) {
	srcStore := openTestStore(t)
	ctx := context.Background()

	runID, err := srcStore.CreateRun(ctx, "dry_run", "goal")
	require.NoError(t, err)
	_, err = srcStore.Append(ctx, runID, "RUN_STARTED", map[string]any{})
	require.NoError(t, err)
	_, err = srcStore.Append(ctx, runID, "RUN_COMPLETED", map[string]any{"outcome": "ok"})
	require.NoError(t, err)

	b, err := Export(ctx, srcStore, runID, false)
	require.NoError(t, err)

	dstStore := openTestStore(t)
	result, err := Import(ctx, dstStore, b, ImportOptions{VerifyDigest: true})
	require.NoError(t, err)
	assert.Equal(t, "ok", result.Status)
	assert.Equal(t, runID, result.ImportedRunID)

	run, err := dstStore.GetRun(ctx, runID)
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, "goal", run.Goal)

	events, err := dstStore.ReadEvents(ctx, runID)
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestImportDigestMismatchFails(t *testing.T) {
	srcStore := openTestStore(t)
	ctx := context.Background()
	runID, err := srcStore.CreateRun(ctx, "dry_run", "goal")
	require.NoError(t, err)

	b, err := Export(ctx, srcStore, runID, false)
	require.NoError(t, err)
	b.Run["goal"] = "tampered"

	dstStore := openTestStore(t)
	_, err = Import(ctx, dstStore, b, ImportOptions{VerifyDigest: true})
	require.Error(t, err)
	assert.Equal(t, "DIGEST_MISMATCH", nexuserr.CodeOf(err))
}

func TestImportRejectsOnConflictByDefault(t *testing.T) {
	srcStore := openTestStore(t)
	ctx := context.Background()
	runID, err := srcStore.CreateRun(ctx, "dry_run", "goal")
	require.NoError(t, err)
	b, err := Export(ctx, srcStore, runID, false)
	require.NoError(t, err)

	dstStore := openTestStore(t)
	_, err = Import(ctx, dstStore, b, ImportOptions{Mode: ModeRejectOnConflict})
	require.NoError(t, err)

	result, err := Import(ctx, dstStore, b, ImportOptions{Mode: ModeRejectOnConflict})
	require.NoError(t, err)
	assert.Equal(t, "skipped", result.Status)
	require.NotNil(t, result.Conflict)
	assert.Equal(t, "run_id_exists", result.Conflict.Reason)
	assert.Equal(t, runID, result.Conflict.ExistingRunID)
}

func TestImportOverwriteReplacesExistingRun(t *testing.T) {
	srcStore := openTestStore(t)
	ctx := context.Background()
	runID, err := srcStore.CreateRun(ctx, "dry_run", "original goal")
	require.NoError(t, err)
	b, err := Export(ctx, srcStore, runID, false)
	require.NoError(t, err)

	dstStore := openTestStore(t)
	_, err = Import(ctx, dstStore, b, ImportOptions{Mode: ModeOverwrite})
	require.NoError(t, err)

	result, err := Import(ctx, dstStore, b, ImportOptions{Mode: ModeOverwrite})
	require.NoError(t, err)
	assert.Equal(t, "ok", result.Status)
	assert.Equal(t, runID, result.ImportedRunID)

	run, err := dstStore.GetRun(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, "original goal", run.Goal)
}

func TestImportNewRunIDRemapsPayloadReferences(t *testing.T) {
	srcStore := openTestStore(t)
	ctx := context.Background()
	runID, err := srcStore.CreateRun(ctx, "dry_run", "goal")
	require.NoError(t, err)
	_, err = srcStore.Append(ctx, runID, "CUSTOM_EVENT", map[string]any{"run_id": runID, "note": "nested reference"})
	require.NoError(t, err)

	b, err := Export(ctx, srcStore, runID, false)
	require.NoError(t, err)

	dstStore := openTestStore(t)
	_, err = Import(ctx, dstStore, b, ImportOptions{Mode: ModeRejectOnConflict})
	require.NoError(t, err)

	result, err := Import(ctx, dstStore, b, ImportOptions{Mode: ModeNewRunID})
	require.NoError(t, err)
	assert.Equal(t, "ok", result.Status)
	assert.NotEqual(t, runID, result.ImportedRunID)

	events, err := dstStore.ReadEvents(ctx, result.ImportedRunID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, result.ImportedRunID, events[0].RunID)
	assert.Equal(t, result.ImportedRunID, events[0].Payload["run_id"], "nested run_id inside the payload is remapped too")
}

func TestRoundTripWithRemapChangesDigestButPreservesView(t *testing.T) {
	srcStore := openTestStore(t)
	ctx := context.Background()
	runID, err := srcStore.CreateRun(ctx, "dry_run", "goal")
	require.NoError(t, err)
	_, err = srcStore.Append(ctx, runID, "RUN_STARTED", map[string]any{"mode": "dry_run", "goal": "goal"})
	require.NoError(t, err)
	_, err = srcStore.Append(ctx, runID, "RUN_COMPLETED", map[string]any{"outcome": "ok", "run_id": runID})
	require.NoError(t, err)

	b, err := Export(ctx, srcStore, runID, false)
	require.NoError(t, err)
	srcDigest := b.Digests.SHA256

	dstStore := openTestStore(t)
	result, err := Import(ctx, dstStore, b, ImportOptions{
		Mode: ModeNewRunID, NewRunID: "r2", VerifyDigest: true, ReplayAfterImport: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", result.Status)
	assert.Equal(t, "r2", result.ImportedRunID)
	require.NotNil(t, result.ReplayOK)
	assert.True(t, *result.ReplayOK)

	events, err := dstStore.ReadEvents(ctx, "r2")
	require.NoError(t, err)
	for _, e := range events {
		assert.Equal(t, "r2", e.RunID)
	}
	assert.Equal(t, "r2", events[1].Payload["run_id"], "nested run_id rewritten")

	reexported, err := Export(ctx, dstStore, "r2", false)
	require.NoError(t, err)
	assert.NotEqual(t, srcDigest, reexported.Digests.SHA256, "remapped run hashes differently")

	again, err := Export(ctx, srcStore, runID, false)
	require.NoError(t, err)
	assert.Equal(t, srcDigest, again.Digests.SHA256, "source digest remains stable")
}

func TestImportReplayAfterImportReportsOK(t *testing.T) {
	srcStore := openTestStore(t)
	ctx := context.Background()
	runID, err := srcStore.CreateRun(ctx, "dry_run", "goal")
	require.NoError(t, err)
	_, err = srcStore.Append(ctx, runID, "RUN_STARTED", map[string]any{"mode": "dry_run", "goal": "goal"})
	require.NoError(t, err)
	_, err = srcStore.Append(ctx, runID, "RUN_COMPLETED", map[string]any{"outcome": "ok"})
	require.NoError(t, err)

	b, err := Export(ctx, srcStore, runID, false)
	require.NoError(t, err)

	dstStore := openTestStore(t)
	result, err := Import(ctx, dstStore, b, ImportOptions{ReplayAfterImport: true})
	require.NoError(t, err)
	require.NotNil(t, result.ReplayOK)
	assert.True(t, *result.ReplayOK)
	assert.Empty(t, result.Violations)
}

func TestValidateBundleStructureRejectsMissingRunFields(t *testing.T) {
	b := &Bundle{BundleVersion: BundleVersion, Run: map[string]any{"run_id": "r1"}}
	err := validateBundleStructure(b)
	require.Error(t, err)
	assert.Equal(t, "INVALID_BUNDLE", nexuserr.CodeOf(err))
}
