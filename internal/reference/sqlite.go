package reference

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// SQLiteSource reads reference data from a sqlite database.
type SQLiteSource struct {
	db    *sql.DB
	owned bool
}

// OpenSQLite opens or creates the reference tables in the database at path.
func OpenSQLite(path string) (*SQLiteSource, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	s, err := NewSQLiteSource(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	s.owned = true
	return s, nil
}

// NewSQLiteSource uses an already open database. Close leaves it open.
func NewSQLiteSource(db *sql.DB) (*SQLiteSource, error) {
	s := &SQLiteSource{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate reference: %w", err)
	}
	return s, nil
}

func (s *SQLiteSource) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS players (
		id        TEXT PRIMARY KEY,
		name      TEXT NOT NULL DEFAULT '',
		image_url TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_players_image ON players(image_url);

	CREATE TABLE IF NOT EXISTS player_unique_skills (
		player_id TEXT NOT NULL,
		skill_id  TEXT NOT NULL,
		PRIMARY KEY (player_id, skill_id)
	);
	CREATE INDEX IF NOT EXISTS idx_player_unique_skills_skill ON player_unique_skills(skill_id);

	CREATE TABLE IF NOT EXISTS skills (
		id        TEXT PRIMARY KEY,
		name      TEXT NOT NULL,
		is_unique INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_skills_name ON skills(name);

	CREATE TABLE IF NOT EXISTS races (
		id   TEXT PRIMARY KEY,
		name TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_races_name ON races(name);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteSource) Close() error {
	if !s.owned {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteSource) CharacterByImage(ctx context.Context, image string) (string, bool, error) {
	return s.queryID(ctx, `SELECT id FROM players WHERE image_url = ? ORDER BY id LIMIT 1`, image)
}

func (s *SQLiteSource) SkillByName(ctx context.Context, name string) (Skill, bool, error) {
	var sk Skill
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, is_unique FROM skills WHERE name = ? ORDER BY id LIMIT 1`, name,
	).Scan(&sk.ID, &sk.Name, &sk.Unique)
	if errors.Is(err, sql.ErrNoRows) {
		return Skill{}, false, nil
	}
	if err != nil {
		return Skill{}, false, err
	}
	return sk, true, nil
}

func (s *SQLiteSource) CharacterByUniqueSkill(ctx context.Context, skillID string) (string, bool, error) {
	return s.queryID(ctx, `SELECT player_id FROM player_unique_skills WHERE skill_id = ? ORDER BY player_id LIMIT 1`, skillID)
}

func (s *SQLiteSource) RaceByName(ctx context.Context, name string) (string, bool, error) {
	return s.queryID(ctx, `SELECT id FROM races WHERE name = ? ORDER BY id LIMIT 1`, name)
}

func (s *SQLiteSource) queryID(ctx context.Context, query string, arg string) (string, bool, error) {
	var id string
	err := s.db.QueryRowContext(ctx, query, arg).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return id, true, nil
}
