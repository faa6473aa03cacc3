package bundle

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/mcp-tool-shop/nexus-router/internal/eventstore"
	"github.com/mcp-tool-shop/nexus-router/internal/replay"
	"github.com/mcp-tool-shop/nexus-router/pkg/canonjson"
	"github.com/mcp-tool-shop/nexus-router/pkg/nexuserr"
)

// ConflictMode selects how Import handles an existing run_id.
type ConflictMode string

const (
	ModeRejectOnConflict ConflictMode = "reject_on_conflict"
	ModeOverwrite        ConflictMode = "overwrite"
	ModeNewRunID         ConflictMode = "new_run_id"
)

// ImportOptions configures Import.
type ImportOptions struct {
	Mode               ConflictMode
	NewRunID           string // only consulted when Mode == ModeNewRunID
	VerifyDigest       bool
	ReplayAfterImport  bool
}

// ImportResult reports the outcome of an Import call.
type ImportResult struct {
	Status        string   `json:"status"` // "ok" | "skipped"
	ImportedRunID string   `json:"imported_run_id,omitempty"`
	Conflict      *Conflict `json:"conflict,omitempty"`
	ReplayOK      *bool    `json:"replay_ok,omitempty"`
	Violations    []string `json:"violations,omitempty"`
}

// Conflict describes why an import was skipped.
type Conflict struct {
	Reason        string `json:"reason"`
	ExistingRunID string `json:"existing_run_id"`
}

// Import validates bundle, resolves any run_id conflict per opts.Mode, and
// inserts the run and its events within a single atomic transaction.
func Import(ctx context.Context, store *eventstore.Store, b *Bundle, opts ImportOptions) (*ImportResult, error) {
	if err := validateBundleStructure(b); err != nil {
		return nil, err
	}

	if opts.VerifyDigest {
		ok, err := VerifyBundleDigest(b)
		if err != nil {
			return nil, nexuserr.Bug("OS_ERROR", "failed to verify bundle digest: "+err.Error(), nil)
		}
		if !ok {
			return nil, nexuserr.Operational("DIGEST_MISMATCH", "bundle digest does not match its contents", map[string]any{
				"expected": b.Digests.SHA256,
			})
		}
	}

	originalRunID, _ := b.Run["run_id"].(string)

	existing, err := store.GetRun(ctx, originalRunID)
	if err != nil {
		return nil, err
	}

	runData := b.Run
	eventsData := b.Events
	targetRunID := originalRunID

	if existing != nil {
		switch opts.Mode {
		case ModeOverwrite:
			if err := deleteRun(ctx, store, originalRunID); err != nil {
				return nil, err
			}
		case ModeNewRunID:
			targetRunID = opts.NewRunID
			if targetRunID == "" {
				targetRunID = uuid.NewString()
			}
			runData, eventsData = remapRunID(runData, eventsData, originalRunID, targetRunID)
		default: // reject_on_conflict
			return &ImportResult{
				Status: "skipped",
				Conflict: &Conflict{Reason: "run_id_exists", ExistingRunID: originalRunID},
			}, nil
		}
	} else if opts.Mode == ModeNewRunID && opts.NewRunID != "" && opts.NewRunID != originalRunID {
		targetRunID = opts.NewRunID
		runData, eventsData = remapRunID(runData, eventsData, originalRunID, targetRunID)
	}

	if err := insertRunAndEvents(ctx, store, runData, eventsData); err != nil {
		return nil, err
	}

	result := &ImportResult{Status: "ok", ImportedRunID: targetRunID}

	if opts.ReplayAfterImport {
		replayResult, err := replay.Replay(ctx, store, targetRunID)
		if err != nil {
			return nil, err
		}
		ok := replayResult.OK()
		result.ReplayOK = &ok
		result.Violations = replayResult.Violations
	}

	return result, nil
}

func validateBundleStructure(b *Bundle) error {
	if b.BundleVersion == "" {
		return nexuserr.Operational("INVALID_BUNDLE", "missing bundle_version", nil)
	}
	if b.Run == nil {
		return nexuserr.Operational("INVALID_BUNDLE", "missing run", nil)
	}
	for _, field := range []string{"run_id", "mode", "goal", "status", "created_at"} {
		if _, ok := b.Run[field]; !ok {
			return nexuserr.Operational("INVALID_BUNDLE", fmt.Sprintf("run missing field %q", field), nil)
		}
	}
	for i, e := range b.Events {
		for _, field := range []string{"event_id", "run_id", "seq", "type", "payload", "ts"} {
			if _, ok := e[field]; !ok {
				return nexuserr.Operational("INVALID_BUNDLE", fmt.Sprintf("event %d missing field %q", i, field), nil)
			}
		}
	}
	return nil
}

// remapRunID rewrites run_id everywhere it appears: the run row, every
// event's own run_id column, and (recursively, as a generic tree rewrite)
// any run_id field nested inside an event payload.
func remapRunID(run map[string]any, events []map[string]any, oldID, newID string) (map[string]any, []map[string]any) {
	newRun := make(map[string]any, len(run))
	for k, v := range run {
		newRun[k] = v
	}
	newRun["run_id"] = newID

	newEvents := make([]map[string]any, len(events))
	for i, e := range events {
		ne := make(map[string]any, len(e))
		for k, v := range e {
			ne[k] = v
		}
		ne["run_id"] = newID
		ne["event_id"] = uuid.NewString()
		if payload, ok := e["payload"].(map[string]any); ok {
			rewritten := canonjson.RewriteTree(payload, "run_id", func(old string) string {
				if old == oldID {
					return newID
				}
				return old
			})
			ne["payload"] = rewritten
		}
		newEvents[i] = ne
	}
	return newRun, newEvents
}

// seqAsInt64 normalizes the seq field, which arrives as float64 from a JSON
// decode but as an integer type from in-process bundles.
func seqAsInt64(v any) int64 {
	switch t := v.(type) {
	case float64:
		return int64(t)
	case int64:
		return t
	case int:
		return int64(t)
	default:
		return 0
	}
}

func deleteRun(ctx context.Context, store *eventstore.Store, runID string) error {
	db := store.DB()
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nexuserr.Bug("OS_ERROR", "failed to begin transaction: "+err.Error(), nil)
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM events WHERE run_id = ?`, runID); err != nil {
		return nexuserr.Bug("OS_ERROR", "failed to delete events: "+err.Error(), nil)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE run_id = ?`, runID); err != nil {
		return nexuserr.Bug("OS_ERROR", "failed to delete run: "+err.Error(), nil)
	}
	return tx.Commit()
}

func insertRunAndEvents(ctx context.Context, store *eventstore.Store, run map[string]any, events []map[string]any) error {
	db := store.DB()
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nexuserr.Bug("OS_ERROR", "failed to begin transaction: "+err.Error(), nil)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (run_id, mode, goal, status, created_at) VALUES (?, ?, ?, ?, ?)`,
		run["run_id"], run["mode"], run["goal"], run["status"], run["created_at"],
	)
	if err != nil {
		return nexuserr.Operational("RUN_CONFLICT", "failed to insert run: "+err.Error(), map[string]any{"run_id": run["run_id"]})
	}

	for _, e := range events {
		payload, _ := e["payload"].(map[string]any)
		canonical, err := canonjson.MarshalString(payload)
		if err != nil {
			return nexuserr.Bug("OS_ERROR", "failed to canonicalize payload during import: "+err.Error(), nil)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO events (event_id, run_id, seq, type, payload_json, ts) VALUES (?, ?, ?, ?, ?, ?)`,
			e["event_id"], e["run_id"], seqAsInt64(e["seq"]), e["type"], canonical, e["ts"],
		)
		if err != nil {
			return nexuserr.Operational("SEQ_DUPLICATE", "duplicate (run_id, seq) on import: "+err.Error(), map[string]any{
				"run_id": e["run_id"], "seq": e["seq"],
			})
		}
	}

	if err := tx.Commit(); err != nil {
		return nexuserr.Bug("OS_ERROR", "failed to commit import: "+err.Error(), nil)
	}
	return nil
}
