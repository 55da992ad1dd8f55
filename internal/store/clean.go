package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rcliao/uma-friends/internal/model"
)

const (
	scopeMain  = "main"
	scopeTotal = "total"
)

func (s *SQLiteStore) InsertClean(ctx context.Context, friends []model.CleanFriend) (InsertResult, error) {
	return s.inTx(ctx, func(tx *sql.Tx) (InsertResult, error) {
		return s.insertCleans(ctx, tx, friends)
	})
}

func (s *SQLiteStore) insertCleans(ctx context.Context, tx *sql.Tx, friends []model.CleanFriend) (InsertResult, error) {
	var res InsertResult
	now := formatTime(time.Now())
	for _, f := range friends {
		if f.ID == "" {
			f.ID = s.newID()
		}
		doc, err := json.Marshal(f)
		if err != nil {
			return res, fmt.Errorf("encode friend %s: %w", f.Key, err)
		}

		var characterID, supportID *string
		var supportLimit *int
		if f.MainCharacter != nil {
			characterID = &f.MainCharacter.ID
		}
		if f.Support != nil {
			supportID, supportLimit = f.Support.ID, f.Support.Limit
		}

		out, err := tx.ExecContext(ctx,
			`INSERT INTO friends (id, key, posted_at, friend_code, character_id, support_id, support_limit, comment, doc, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT (key, posted_at) DO NOTHING`,
			f.ID, f.Key.Key, formatTime(f.Key.PostedAt), f.IdentityCode, characterID, supportID, supportLimit,
			f.Comment, string(doc), now)
		if err != nil {
			return res, fmt.Errorf("insert friend %s: %w", f.Key, err)
		}
		if n, _ := out.RowsAffected(); n == 0 {
			res.Duplicates++
			continue
		}
		res.Inserted++

		if err := insertFactors(ctx, tx, f, characterID, supportID); err != nil {
			return res, err
		}
		for _, p := range f.Parents {
			_, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO friend_parents (friend_id, character_id, factor_name, factor_level)
				 VALUES (?, ?, ?, ?)`,
				f.ID, p.CharacterID, p.Factor.Name, p.Factor.Level)
			if err != nil {
				return res, fmt.Errorf("insert parent of %s: %w", f.ID, err)
			}
		}
	}
	return res, nil
}

func insertFactors(ctx context.Context, tx *sql.Tx, f model.CleanFriend, characterID, supportID *string) error {
	insert := func(scope string, lf model.LeveledFactor) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO friend_factors (friend_id, scope, name, type, level, character_id, support_id)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			f.ID, scope, lf.Name, string(lf.Type), lf.Level, characterID, supportID)
		if err != nil {
			return fmt.Errorf("insert %s factor of %s: %w", scope, f.ID, err)
		}
		return nil
	}
	for _, lf := range f.Factors {
		if err := insert(scopeTotal, lf); err != nil {
			return err
		}
	}
	if f.MainCharacter != nil {
		for _, lf := range f.MainCharacter.Factors {
			if err := insert(scopeMain, lf); err != nil {
				return err
			}
		}
	}
	return nil
}

// afterSwapClear is called inside SwapFailed once the buffer rows are
// removed. Tests set it to simulate a failure mid-swap.
var afterSwapClear func() error

func (s *SQLiteStore) SwapFailed(ctx context.Context, read []model.NaturalKey, clean []model.CleanFriend, failed []model.RawFriend) (SwapResult, error) {
	var res SwapResult
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return res, err
	}
	defer tx.Rollback()

	if res.Promoted, err = s.insertCleans(ctx, tx, clean); err != nil {
		return SwapResult{}, err
	}
	for _, k := range read {
		out, err := tx.ExecContext(ctx,
			`DELETE FROM failed_friends WHERE key = ? AND posted_at = ?`, k.Key, formatTime(k.PostedAt))
		if err != nil {
			return SwapResult{}, fmt.Errorf("clear failed %s: %w", k, err)
		}
		n, _ := out.RowsAffected()
		res.Removed += int(n)
	}
	if afterSwapClear != nil {
		if err := afterSwapClear(); err != nil {
			return SwapResult{}, err
		}
	}
	if res.Buffered, err = insertRaws(ctx, tx, "failed_friends", failed); err != nil {
		return SwapResult{}, err
	}

	if err := tx.Commit(); err != nil {
		return SwapResult{}, fmt.Errorf("commit swap: %w", err)
	}
	return res, nil
}

func (s *SQLiteStore) FindClean(ctx context.Context, p FindParams) ([]model.CleanFriend, error) {
	limit := p.Limit
	if limit <= 0 {
		limit = 20
	}

	var where []string
	var args []interface{}

	if p.CharacterID != "" {
		where = append(where, "f.character_id = ?")
		args = append(args, p.CharacterID)
	}
	if p.SupportID != "" {
		where = append(where, "f.support_id = ?")
		args = append(args, p.SupportID)
	}
	if p.FactorName != "" || p.FactorType != "" || p.MinLevel > 0 {
		scope := scopeTotal
		if p.MainOnly {
			scope = scopeMain
		}
		sub := []string{"ff.scope = ?", "ff.level >= ?"}
		subArgs := []interface{}{scope, p.MinLevel}
		if p.FactorName != "" {
			sub = append(sub, "ff.name = ?")
			subArgs = append(subArgs, p.FactorName)
		}
		if p.FactorType != "" {
			sub = append(sub, "ff.type = ?")
			subArgs = append(subArgs, string(p.FactorType))
		}
		// the denormalized ids let sqlite use the composite factor indexes
		if p.CharacterID != "" {
			sub = append(sub, "ff.character_id = ?")
			subArgs = append(subArgs, p.CharacterID)
		}
		if p.SupportID != "" {
			sub = append(sub, "ff.support_id = ?")
			subArgs = append(subArgs, p.SupportID)
		}
		where = append(where, "f.id IN (SELECT ff.friend_id FROM friend_factors ff WHERE "+strings.Join(sub, " AND ")+")")
		args = append(args, subArgs...)
	}
	if p.ParentID != "" {
		where = append(where, "f.id IN (SELECT fp.friend_id FROM friend_parents fp WHERE fp.character_id = ?)")
		args = append(args, p.ParentID)
	}

	query := `SELECT f.doc FROM friends f`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY f.posted_at DESC, f.id LIMIT ?`
	args = append(args, limit)

	return s.queryCleans(ctx, query, args...)
}

func (s *SQLiteStore) queryCleans(ctx context.Context, query string, args ...interface{}) ([]model.CleanFriend, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var friends []model.CleanFriend
	for rows.Next() {
		f, err := scanClean(rows)
		if err != nil {
			return nil, err
		}
		friends = append(friends, f)
	}
	return friends, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanClean(row scanner) (model.CleanFriend, error) {
	var doc string
	if err := row.Scan(&doc); err != nil {
		return model.CleanFriend{}, err
	}
	var f model.CleanFriend
	if err := json.Unmarshal([]byte(doc), &f); err != nil {
		return model.CleanFriend{}, fmt.Errorf("decode friend: %w", err)
	}
	return f, nil
}
