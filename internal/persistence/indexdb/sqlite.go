// Package indexdb maintains a queryable sqlite index of the action stream.
// The JSONL journals remain the source of truth; the index may drop writes
// under backpressure and is rebuildable from them.
package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"factoryverse.ai/internal/persistence/log"
	"factoryverse.ai/internal/protocol"
	"factoryverse.ai/internal/sim/tuning"
)

// SQLiteIndex owns the database through a single writer goroutine; all other
// goroutines hand rows over a buffered channel and never touch the db.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool
}

type reqKind int

const (
	reqEvent reqKind = iota + 1
	reqCall
)

type req struct {
	kind  reqKind
	event eventRow
	call  log.CallRecord
}

type eventRow struct {
	Tick     uint64
	AgentID  uint64
	ActionID uint64
	Category string
	Type     string
	OK       bool
	Raw      []byte
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		// High buffer so a burst of completions cannot stall the tick loop.
		ch: make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	// WAL is much faster for append-style workloads; NORMAL durability is
	// acceptable for a derived index.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS config (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS calls (
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			agent_id INTEGER NOT NULL,
			action TEXT NOT NULL,
			call_id TEXT NOT NULL,
			accepted INTEGER NOT NULL,
			code TEXT,
			action_id INTEGER,
			PRIMARY KEY (tick, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_calls_agent_tick ON calls(agent_id, tick);`,
		`CREATE TABLE IF NOT EXISTS events (
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			agent_id INTEGER NOT NULL,
			action_id INTEGER NOT NULL,
			category TEXT NOT NULL,
			type TEXT NOT NULL,
			ok INTEGER NOT NULL,
			raw_json TEXT NOT NULL,
			PRIMARY KEY (tick, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_events_agent_tick ON events(agent_id, tick);`,
		`CREATE INDEX IF NOT EXISTS idx_events_action ON events(action_id);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// WriteEvent indexes one completion event. Never blocks; drops when the
// writer falls behind.
func (s *SQLiteIndex) WriteEvent(e protocol.Event) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	raw, err := json.Marshal(e)
	if err != nil {
		return err
	}
	row := eventRow{
		Tick:     eventUint(e, "t"),
		AgentID:  eventUint(e, "agent_id"),
		ActionID: eventUint(e, "action_id"),
		Category: eventStr(e, "category"),
		Type:     eventStr(e, "type"),
		OK:       e["ok"] == true,
		Raw:      raw,
	}
	select {
	case s.ch <- req{kind: reqEvent, event: row}:
	default:
	}
	return nil
}

// WriteCall indexes one acknowledged invocation.
func (s *SQLiteIndex) WriteCall(r log.CallRecord) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqCall, call: r}:
	default:
	}
	return nil
}

func eventUint(e protocol.Event, key string) uint64 {
	switch v := e[key].(type) {
	case uint64:
		return v
	case int:
		if v >= 0 {
			return uint64(v)
		}
	case int64:
		if v >= 0 {
			return uint64(v)
		}
	case float64:
		if v >= 0 {
			return uint64(v)
		}
	}
	return 0
}

func eventStr(e protocol.Event, key string) string {
	s, _ := e[key].(string)
	return s
}

// UpsertTuning stores the applied tuning values as canonical JSON so replay
// tools can reconstruct the run's configuration.
func (s *SQLiteIndex) UpsertTuning(tune tuning.Tuning) error {
	if s == nil {
		return nil
	}
	b, err := json.Marshal(tune)
	if err != nil {
		return err
	}
	sum := sha256.Sum256(b)
	digest := hex.EncodeToString(sum[:])
	now := time.Now().UTC().Format(time.RFC3339Nano)

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	if _, err := tx.Exec(
		`INSERT OR REPLACE INTO config(name,digest,json,updated_at) VALUES('tuning',?,?,?)`,
		digest, string(b), now,
	); err != nil {
		return err
	}
	return tx.Commit()
}

// EventCount reports how many events are indexed for an agent. Intended for
// admin tooling and tests; runs outside the writer goroutine.
func (s *SQLiteIndex) EventCount(agentID uint64) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM events WHERE agent_id = ?`, agentID).Scan(&n)
	return n, err
}

// EventsForAction returns the raw journal lines indexed for one action id,
// in tick order.
func (s *SQLiteIndex) EventsForAction(actionID uint64) ([]string, error) {
	rows, err := s.db.Query(`SELECT raw_json FROM events WHERE action_id = ? ORDER BY tick, seq`, actionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		out = append(out, raw)
	}
	return out, rows.Err()
}

// Flush waits until the writer has drained everything submitted before the
// call. Test/shutdown helper; commits land on the writer's idle path.
func (s *SQLiteIndex) Flush() {
	if s == nil || s.closed.Load() {
		return
	}
	for len(s.ch) > 0 {
		time.Sleep(time.Millisecond)
	}
	time.Sleep(10 * time.Millisecond)
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertEvent, _ := s.db.Prepare(`INSERT OR REPLACE INTO events(tick,seq,agent_id,action_id,category,type,ok,raw_json) VALUES(?,?,?,?,?,?,?,?)`)
	insertCall, _ := s.db.Prepare(`INSERT OR REPLACE INTO calls(tick,seq,agent_id,action,call_id,accepted,code,action_id) VALUES(?,?,?,?,?,?,?,?)`)
	defer func() {
		if insertEvent != nil {
			_ = insertEvent.Close()
		}
		if insertCall != nil {
			_ = insertCall.Close()
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 250 * time.Millisecond

		lastEventTick uint64
		eventSeq      int
		lastCallTick  uint64
		callSeq       int
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqEvent:
			ev := r.event
			if ev.Tick != lastEventTick {
				lastEventTick = ev.Tick
				eventSeq = 0
			}
			seq := eventSeq
			eventSeq++
			if insertEvent != nil {
				ok := 0
				if ev.OK {
					ok = 1
				}
				if _, err := tx.Stmt(insertEvent).Exec(
					int64(ev.Tick), seq, int64(ev.AgentID), int64(ev.ActionID),
					ev.Category, ev.Type, ok, string(ev.Raw),
				); err != nil {
					rollback()
					continue
				}
				opCount++
			}

		case reqCall:
			c := r.call
			if c.Tick != lastCallTick {
				lastCallTick = c.Tick
				callSeq = 0
			}
			seq := callSeq
			callSeq++
			if insertCall != nil {
				accepted := 0
				if c.Accepted {
					accepted = 1
				}
				if _, err := tx.Stmt(insertCall).Exec(
					int64(c.Tick), seq, int64(c.AgentID), c.Action, c.CallID,
					accepted, c.Code, int64(c.ActionID),
				); err != nil {
					rollback()
					continue
				}
				opCount++
			}
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
		if len(s.ch) == 0 {
			// Idle channel: land the batch so readers observe it promptly.
			commit()
		}
	}

	commit()
}
