// Copyright 2025 Zintix Labs
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

package checkpoint

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/zintix-labs/hdxlab/errs"

	_ "modernc.org/sqlite"
)

// SQLiteStore 把 checkpoint（zstd 壓縮）與索引欄位存進同一張表，依 run id upsert。
type SQLiteStore struct {
	path string

	mu sync.RWMutex
	db *sql.DB
}

func NewSQLiteStore(path string) *SQLiteStore {
	return &SQLiteStore{path: path}
}

func (s *SQLiteStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return errs.Configf("checkpoint: sqlite path is required")
	}
	if s.db != nil {
		return nil
	}
	if dir := filepath.Dir(s.path); s.path != ":memory:" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errs.WrapKind(err, errs.KindIO, "checkpoint: create sqlite dir")
		}
	}
	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return errs.WrapKind(err, errs.KindIO, "checkpoint: open sqlite")
	}
	// sweep 會從多個 goroutine 寫入；sqlite 只允許單一寫者
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return errs.WrapKind(err, errs.KindIO, "checkpoint: ping sqlite")
	}
	if err := createTables(ctx, db); err != nil {
		_ = db.Close()
		return errs.WrapKind(err, errs.KindIO, "checkpoint: create tables")
	}
	s.db = db
	return nil
}

func (s *SQLiteStore) Save(ctx context.Context, rec *Record) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}
	b, err := Encode(rec)
	if err != nil {
		return err
	}
	payload, err := Compress(b)
	if err != nil {
		return err
	}
	e := entryOf(rec)
	_, err = db.ExecContext(ctx, `
		INSERT INTO checkpoints (run_id, schema_version, gamma, iter, status, saved_at, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			schema_version = excluded.schema_version,
			gamma = excluded.gamma,
			iter = excluded.iter,
			status = excluded.status,
			saved_at = excluded.saved_at,
			payload = excluded.payload
	`, e.RunID, rec.Version, e.Gamma, e.Iter, e.Status, e.SavedAt.UTC().Format(time.RFC3339Nano), payload)
	if err != nil {
		return errs.WrapKind(err, errs.KindIO, "checkpoint: upsert "+e.RunID)
	}
	return nil
}

func (s *SQLiteStore) Load(ctx context.Context, runID string) ([]byte, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, false, err
	}
	var payload []byte
	err = db.QueryRowContext(ctx, `SELECT payload FROM checkpoints WHERE run_id = ?`, runID).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, errs.WrapKind(err, errs.KindIO, "checkpoint: query "+runID)
	}
	b, err := Decompress(payload)
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]Entry, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, `SELECT run_id, gamma, iter, status, saved_at FROM checkpoints ORDER BY run_id`)
	if err != nil {
		return nil, errs.WrapKind(err, errs.KindIO, "checkpoint: list")
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		var e Entry
		var saved string
		if err := rows.Scan(&e.RunID, &e.Gamma, &e.Iter, &e.Status, &saved); err != nil {
			return nil, errs.WrapKind(err, errs.KindIO, "checkpoint: scan row")
		}
		e.SavedAt, _ = time.Parse(time.RFC3339Nano, saved)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.WrapKind(err, errs.KindIO, "checkpoint: list rows")
	}
	return out, nil
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *SQLiteStore) getDB() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, errs.Warnf("checkpoint: sqlite store is not initialized").WithKind(errs.KindIO)
	}
	return s.db, nil
}

func createTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS checkpoints (
			run_id TEXT PRIMARY KEY,
			schema_version INTEGER NOT NULL,
			gamma REAL NOT NULL,
			iter INTEGER NOT NULL,
			status TEXT NOT NULL,
			saved_at TEXT NOT NULL,
			payload BLOB NOT NULL
		);
	`)
	return err
}
