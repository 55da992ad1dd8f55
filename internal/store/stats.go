package store

import (
	"context"
	"os"
)

// Stats holds database statistics.
type Stats struct {
	DBPath      string           `json:"db_path"`
	DBSizeBytes int64            `json:"db_size_bytes"`
	Raw         int64            `json:"raw"`
	Clean       int64            `json:"clean"`
	Failed      int64            `json:"failed"`
	Factors     int64            `json:"factors"`
	Parents     int64            `json:"parents"`
	Characters  []CharacterStats `json:"characters"`
	FactorTypes []TypeStats      `json:"factor_types"`
}

// CharacterStats counts clean records per main character.
type CharacterStats struct {
	CharacterID string `json:"character_id"`
	Count       int    `json:"count"`
}

// TypeStats counts total-scope factors per type.
type TypeStats struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

const topCharacters = 10

// Stats returns database statistics.
func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{DBPath: s.path}

	// DB file size
	if info, err := os.Stat(s.path); err == nil {
		st.DBSizeBytes = info.Size()
	}

	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM raw_friends`).Scan(&st.Raw)
	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM friends`).Scan(&st.Clean)
	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM failed_friends`).Scan(&st.Failed)
	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM friend_factors WHERE scope = ?`, scopeTotal).Scan(&st.Factors)
	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM friend_parents`).Scan(&st.Parents)

	rows, err := s.db.QueryContext(ctx, `
		SELECT character_id, COUNT(*) AS cnt
		FROM friends WHERE character_id IS NOT NULL
		GROUP BY character_id ORDER BY cnt DESC, character_id LIMIT ?`, topCharacters)
	if err != nil {
		return st, err
	}
	for rows.Next() {
		var c CharacterStats
		rows.Scan(&c.CharacterID, &c.Count)
		st.Characters = append(st.Characters, c)
	}
	rows.Close()

	rows, err = s.db.QueryContext(ctx, `
		SELECT type, COUNT(*) AS cnt
		FROM friend_factors WHERE scope = ?
		GROUP BY type ORDER BY cnt DESC, type`, scopeTotal)
	if err != nil {
		return st, err
	}
	defer rows.Close()
	for rows.Next() {
		var t TypeStats
		rows.Scan(&t.Type, &t.Count)
		st.FactorTypes = append(st.FactorTypes, t)
	}

	return st, nil
}
