package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"github.com/rcliao/uma-friends/internal/model"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db      *sql.DB
	path    string
	entropy *rand.Rand
}

// NewSQLiteStore opens or creates a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	s := &SQLiteStore{
		db:      db,
		path:    dbPath,
		entropy: rand.New(rand.NewSource(time.Now().UnixNano())),
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

// DB exposes the connection so the reference tables can share the file.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

func (s *SQLiteStore) newID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS raw_friends (
		key         TEXT NOT NULL,
		posted_at   TEXT NOT NULL,
		friend_code TEXT,
		fingerprint TEXT NOT NULL,
		doc         TEXT NOT NULL,
		ingested_at TEXT NOT NULL,
		UNIQUE (key, posted_at)
	);
	CREATE INDEX IF NOT EXISTS idx_raw_posted ON raw_friends(posted_at);

	CREATE TABLE IF NOT EXISTS failed_friends (
		key         TEXT NOT NULL,
		posted_at   TEXT NOT NULL,
		friend_code TEXT,
		fingerprint TEXT NOT NULL,
		doc         TEXT NOT NULL,
		ingested_at TEXT NOT NULL,
		UNIQUE (key, posted_at)
	);

	CREATE TABLE IF NOT EXISTS friends (
		id            TEXT PRIMARY KEY,
		key           TEXT NOT NULL,
		posted_at     TEXT NOT NULL,
		friend_code   TEXT,
		character_id  TEXT,
		support_id    TEXT,
		support_limit INTEGER,
		comment       TEXT,
		doc           TEXT NOT NULL,
		created_at    TEXT NOT NULL,
		UNIQUE (key, posted_at)
	);
	CREATE INDEX IF NOT EXISTS idx_friends_character ON friends(character_id);
	CREATE INDEX IF NOT EXISTS idx_friends_support ON friends(support_id);
	CREATE INDEX IF NOT EXISTS idx_friends_posted ON friends(posted_at DESC);

	CREATE TABLE IF NOT EXISTS friend_factors (
		friend_id    TEXT NOT NULL REFERENCES friends(id) ON DELETE CASCADE,
		scope        TEXT NOT NULL,
		name         TEXT NOT NULL,
		type         TEXT NOT NULL,
		level        INTEGER NOT NULL,
		character_id TEXT,
		support_id   TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_factors_friend ON friend_factors(friend_id);
	CREATE INDEX IF NOT EXISTS idx_factors_character ON friend_factors(name, type, level, character_id);
	CREATE INDEX IF NOT EXISTS idx_factors_support ON friend_factors(name, type, level, support_id);

	CREATE TABLE IF NOT EXISTS friend_parents (
		friend_id    TEXT NOT NULL REFERENCES friends(id) ON DELETE CASCADE,
		character_id TEXT NOT NULL,
		factor_name  TEXT NOT NULL,
		factor_level INTEGER NOT NULL,
		PRIMARY KEY (friend_id, character_id, factor_name)
	);
	CREATE INDEX IF NOT EXISTS idx_parents_character ON friend_parents(character_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func (s *SQLiteStore) HasRaw(ctx context.Context, key model.NaturalKey) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM raw_friends WHERE key = ? AND posted_at = ?`,
		key.Key, formatTime(key.PostedAt)).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *SQLiteStore) FindRaw(ctx context.Context, key model.NaturalKey) (*model.RawFriend, error) {
	var doc string
	err := s.db.QueryRowContext(ctx,
		`SELECT doc FROM raw_friends WHERE key = ? AND posted_at = ?`,
		key.Key, formatTime(key.PostedAt)).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var r model.RawFriend
	if err := json.Unmarshal([]byte(doc), &r); err != nil {
		return nil, fmt.Errorf("decode raw %s: %w", key, err)
	}
	return &r, nil
}

func (s *SQLiteStore) InsertRaw(ctx context.Context, raws []model.RawFriend) (InsertResult, error) {
	return s.inTx(ctx, func(tx *sql.Tx) (InsertResult, error) {
		return insertRaws(ctx, tx, "raw_friends", raws)
	})
}

func (s *SQLiteStore) InsertFailed(ctx context.Context, raws []model.RawFriend) (InsertResult, error) {
	return s.inTx(ctx, func(tx *sql.Tx) (InsertResult, error) {
		return insertRaws(ctx, tx, "failed_friends", raws)
	})
}

func (s *SQLiteStore) inTx(ctx context.Context, fn func(tx *sql.Tx) (InsertResult, error)) (InsertResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return InsertResult{}, err
	}
	defer tx.Rollback()

	res, err := fn(tx)
	if err != nil {
		return InsertResult{}, err
	}
	if err := tx.Commit(); err != nil {
		return InsertResult{}, err
	}
	return res, nil
}

// insertRaws writes raws into one of the raw-shaped tables.
func insertRaws(ctx context.Context, tx *sql.Tx, table string, raws []model.RawFriend) (InsertResult, error) {
	var res InsertResult
	now := formatTime(time.Now())
	query := `INSERT INTO ` + table + ` (key, posted_at, friend_code, fingerprint, doc, ingested_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (key, posted_at) DO NOTHING`
	for _, r := range raws {
		doc, err := json.Marshal(r)
		if err != nil {
			return res, fmt.Errorf("encode raw %s: %w", r.Key, err)
		}
		out, err := tx.ExecContext(ctx, query,
			r.Key.Key, formatTime(r.Key.PostedAt), r.IdentityCode, r.Fingerprint, string(doc), now)
		if err != nil {
			return res, fmt.Errorf("insert %s %s: %w", table, r.Key, err)
		}
		if n, _ := out.RowsAffected(); n == 0 {
			res.Duplicates++
			continue
		}
		res.Inserted++
	}
	return res, nil
}

func (s *SQLiteStore) CountRaw(ctx context.Context) (int64, error) {
	return s.Count(ctx, CollectionRaw)
}

func (s *SQLiteStore) ListRaw(ctx context.Context) ([]model.RawFriend, error) {
	return s.listRaws(ctx, "raw_friends")
}

func (s *SQLiteStore) ListFailed(ctx context.Context) ([]model.RawFriend, error) {
	return s.listRaws(ctx, "failed_friends")
}

func (s *SQLiteStore) listRaws(ctx context.Context, table string) ([]model.RawFriend, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT doc FROM `+table+` ORDER BY posted_at, rowid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var raws []model.RawFriend
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var r model.RawFriend
		if err := json.Unmarshal([]byte(doc), &r); err != nil {
			return nil, fmt.Errorf("decode %s row: %w", table, err)
		}
		raws = append(raws, r)
	}
	return raws, rows.Err()
}

var tables = map[Collection]string{
	CollectionRaw:    "raw_friends",
	CollectionClean:  "friends",
	CollectionFailed: "failed_friends",
}

func (s *SQLiteStore) Count(ctx context.Context, c Collection) (int64, error) {
	table, ok := tables[c]
	if !ok {
		return 0, fmt.Errorf("invalid collection %q", c)
	}
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table).Scan(&n)
	return n, err
}

func (s *SQLiteStore) Drop(ctx context.Context, c Collection) (int64, error) {
	table, ok := tables[c]
	if !ok {
		return 0, fmt.Errorf("invalid collection %q", c)
	}
	// factors and parents of clean records go with them (ON DELETE CASCADE)
	out, err := s.db.ExecContext(ctx, `DELETE FROM `+table)
	if err != nil {
		return 0, err
	}
	return out.RowsAffected()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
