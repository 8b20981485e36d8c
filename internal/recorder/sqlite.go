package recorder

import (
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteRecorder persists historical events to a SQLite database.
type SQLiteRecorder struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(dbPath string) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL mode for better concurrent read performance (dashboards read while the agent writes).
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Printf("[INFO] sqlite recorder opened: %s", dbPath)
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS pool_events (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp   INTEGER NOT NULL,
			pool_ref    TEXT NOT NULL,
			chain_id    INTEGER,
			event_type  TEXT,
			status      TEXT,
			coverage    INTEGER,
			premium_bps INTEGER,
			deadline    INTEGER,
			tx_hash     TEXT,
			note        TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_pool_events_ts ON pool_events(timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_pool_events_ref ON pool_events(pool_ref)`,

		`CREATE TABLE IF NOT EXISTS resolutions (
			id               INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp        INTEGER NOT NULL,
			pool_ref         TEXT NOT NULL,
			chain_id         INTEGER,
			judge_verdict    INTEGER,
			judge_confidence REAL,
			auditor_verdict  INTEGER,
			consensus        INTEGER,
			claim_approved   INTEGER,
			security_default INTEGER,
			emergency        INTEGER,
			tx_hash          TEXT,
			evidence_bytes   INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_resolutions_ts ON resolutions(timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_resolutions_ref ON resolutions(pool_ref)`,

		`CREATE TABLE IF NOT EXISTS engagement_events (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp    INTEGER NOT NULL,
			platform     TEXT,
			kind         TEXT,
			content_hash TEXT,
			target_id    TEXT,
			ok           INTEGER,
			note         TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_engagement_ts ON engagement_events(timestamp)`,

		`CREATE TABLE IF NOT EXISTS heartbeat_runs (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp      INTEGER NOT NULL,
			duration_ms    INTEGER,
			pools_tracked  INTEGER,
			pools_created  INTEGER,
			pools_resolved INTEGER,
			errors         INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_heartbeat_ts ON heartbeat_runs(timestamp)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

func (r *SQLiteRecorder) RecordPoolEvent(evt *PoolEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO pool_events
		(timestamp, pool_ref, chain_id, event_type, status, coverage, premium_bps, deadline, tx_hash, note)
		VALUES (?,?,?,?,?,?,?,?,?,?)`,
		time.Now().Unix(), evt.PoolRef, chainIDValue(evt.ChainID),
		evt.EventType, evt.Status, evt.Coverage, evt.PremiumBps,
		evt.Deadline, evt.TxHash, evt.Note,
	)
	return err
}

func (r *SQLiteRecorder) RecordResolution(evt *ResolutionEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO resolutions
		(timestamp, pool_ref, chain_id, judge_verdict, judge_confidence, auditor_verdict,
		 consensus, claim_approved, security_default, emergency, tx_hash, evidence_bytes)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		time.Now().Unix(), evt.PoolRef, chainIDValue(evt.ChainID),
		boolInt(evt.JudgeVerdict), evt.JudgeConfidence, boolInt(evt.AuditorVerdict),
		boolInt(evt.Consensus), boolInt(evt.ClaimApproved), boolInt(evt.SecurityDefault),
		boolInt(evt.Emergency), evt.TxHash, evt.EvidenceBytes,
	)
	return err
}

func (r *SQLiteRecorder) RecordEngagement(evt *EngagementEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO engagement_events
		(timestamp, platform, kind, content_hash, target_id, ok, note)
		VALUES (?,?,?,?,?,?,?)`,
		time.Now().Unix(), evt.Platform, evt.Kind,
		evt.ContentHash, evt.TargetID, boolInt(evt.OK), evt.Note,
	)
	return err
}

func (r *SQLiteRecorder) RecordHeartbeat(run *HeartbeatRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO heartbeat_runs
		(timestamp, duration_ms, pools_tracked, pools_created, pools_resolved, errors)
		VALUES (?,?,?,?,?,?)`,
		time.Now().Unix(), run.DurationMS, run.PoolsTracked,
		run.PoolsCreated, run.PoolsResolved, run.Errors,
	)
	return err
}

func (r *SQLiteRecorder) Close() error {
	log.Println("[INFO] closing sqlite recorder")
	return r.db.Close()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func chainIDValue(id *uint64) any {
	if id == nil {
		return nil
	}
	return int64(*id)
}
