// Package bundle implements the canonical export/import round-trip: a
// self-describing, digest-sealed snapshot of one run.
package bundle

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/mcp-tool-shop/nexus-router/internal/eventstore"
	"github.com/mcp-tool-shop/nexus-router/pkg/canonjson"
	"github.com/mcp-tool-shop/nexus-router/pkg/nexuserr"
)

// BundleVersion is the wire format version stamped on every export.
const BundleVersion = "0.3"

// Digests carries the bundle's content digest.
type Digests struct {
	SHA256 string `json:"sha256"`
}

// Bundle is the exported snapshot of one run.
type Bundle struct {
	BundleVersion string         `json:"bundle_version"`
	ExportedAt    string         `json:"exported_at"`
	Run           map[string]any `json:"run"`
	Events        []map[string]any `json:"events"`
	Digests       Digests        `json:"digests"`
	Provenance    map[string]any `json:"provenance,omitempty"`
}

const isoMillisLayout = "2006-01-02T15:04:05.000Z"

// Export reads runID's run row and events from store and builds a Bundle.
// It returns an operational RUN_NOT_FOUND error if the run does not exist.
func Export(ctx context.Context, store *eventstore.Store, runID string, includeProvenance bool) (*Bundle, error) {
	run, err := store.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, nexuserr.Operational("RUN_NOT_FOUND", "run does not exist", map[string]any{"run_id": runID})
	}

	events, err := store.ReadEvents(ctx, runID)
	if err != nil {
		return nil, err
	}

	runData := map[string]any{
		"run_id":     run.RunID,
		"mode":       run.Mode,
		"goal":       run.Goal,
		"status":     string(run.Status),
		"created_at": run.CreatedAt.UTC().Format(isoMillisLayout),
	}

	eventsData := make([]map[string]any, 0, len(events))
	for _, e := range events {
		eventsData = append(eventsData, map[string]any{
			"event_id": e.EventID,
			"run_id":   e.RunID,
			"seq":      float64(e.Seq),
			"type":     e.Type,
			"payload":  e.Payload,
			"ts":       e.Timestamp.UTC().Format(isoMillisLayout),
		})
	}

	digest, err := computeBundleDigest(runData, eventsData)
	if err != nil {
		return nil, nexuserr.Bug("OS_ERROR", "failed to compute bundle digest: "+err.Error(), nil)
	}

	b := &Bundle{
		BundleVersion: BundleVersion,
		ExportedAt:    time.Now().UTC().Format(isoMillisLayout),
		Run:           runData,
		Events:        eventsData,
		Digests:       Digests{SHA256: digest},
	}

	if includeProvenance {
		b.Provenance = map[string]any{
			"export_method":   "direct",
			"source_db_path":  "",
			"source_run_id":   runID,
			"export_version":  BundleVersion,
		}
	}

	return b, nil
}

// computeBundleDigest hashes the canonical JSON of {run, events} only,
// deliberately excluding exported_at and provenance so repeat exports are
// bit-equal in digest.
func computeBundleDigest(run map[string]any, events []map[string]any) (string, error) {
	eventsAny := make([]any, len(events))
	for i, e := range events {
		eventsAny[i] = e
	}
	canonical, err := canonjson.Marshal(map[string]any{"run": run, "events": eventsAny})
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// VerifyBundleDigest recomputes a bundle's digest and compares it to the
// stored one.
func VerifyBundleDigest(b *Bundle) (bool, error) {
	got, err := computeBundleDigest(b.Run, b.Events)
	if err != nil {
		return false, err
	}
	return got == b.Digests.SHA256, nil
}
