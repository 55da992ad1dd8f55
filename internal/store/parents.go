package store

import (
	"context"
	"fmt"
)

// Parent is an ancestor guessed for a clean friend record.
type Parent struct {
	FriendID    string `json:"friend_id"`
	CharacterID string `json:"character_id"`
	FactorName  string `json:"factor_name"`
	FactorLevel int    `json:"factor_level"`
}

// Parents returns the guessed parents of a friend record.
func (s *SQLiteStore) Parents(ctx context.Context, friendID string) ([]Parent, error) {
	var exists int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM friends WHERE id = ?`, friendID).Scan(&exists); err != nil {
		return nil, err
	}
	if exists == 0 {
		return nil, fmt.Errorf("friend not found: %s", friendID)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT friend_id, character_id, factor_name, factor_level FROM friend_parents
		 WHERE friend_id = ? ORDER BY character_id, factor_name`, friendID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	parents := []Parent{}
	for rows.Next() {
		var p Parent
		if err := rows.Scan(&p.FriendID, &p.CharacterID, &p.FactorName, &p.FactorLevel); err != nil {
			return nil, err
		}
		parents = append(parents, p)
	}
	return parents, rows.Err()
}
