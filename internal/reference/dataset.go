package reference

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
)

// UniqueRarity is the rarity label of unique skills in the game data dump.
const UniqueRarity = "固有"

// Character is a playable character as listed in the game data dump.
type Character struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	ImageURL     string   `json:"gwImgUrl"`
	UniqueSkills []string `json:"uniqueSkillList"`
}

// DumpSkill is a skill as listed in the game data dump.
type DumpSkill struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Rarity string `json:"rare"`
}

// Race is a race as listed in the game data dump.
type Race struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Dataset is the part of the game data dump the resolver reads.
type Dataset struct {
	Players []Character `json:"players"`
	Skills  []DumpSkill `json:"skills"`
	Races   []Race      `json:"races"`
}

var datasetSections = []string{"players", "skills", "races"}

// ReadDataset decodes a game data dump. Every section must be present.
func ReadDataset(r io.Reader) (Dataset, error) {
	var sections map[string]json.RawMessage
	if err := json.NewDecoder(r).Decode(&sections); err != nil {
		return Dataset{}, fmt.Errorf("decode dataset: %w", err)
	}
	for _, name := range datasetSections {
		if _, ok := sections[name]; !ok {
			return Dataset{}, fmt.Errorf("dataset is missing %q", name)
		}
	}
	var ds Dataset
	if err := json.Unmarshal(sections["players"], &ds.Players); err != nil {
		return Dataset{}, fmt.Errorf("decode players: %w", err)
	}
	if err := json.Unmarshal(sections["skills"], &ds.Skills); err != nil {
		return Dataset{}, fmt.Errorf("decode skills: %w", err)
	}
	if err := json.Unmarshal(sections["races"], &ds.Races); err != nil {
		return Dataset{}, fmt.Errorf("decode races: %w", err)
	}
	return ds, nil
}

// LoadStats counts the rows written by Replace.
type LoadStats struct {
	Players      int `json:"players"`
	UniqueSkills int `json:"unique_skills"`
	Skills       int `json:"skills"`
	Races        int `json:"races"`
}

// Replace swaps the whole reference dataset in one transaction.
func (s *SQLiteSource) Replace(ctx context.Context, ds Dataset) (LoadStats, error) {
	var stats LoadStats
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return stats, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"players", "player_unique_skills", "skills", "races"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return stats, fmt.Errorf("clear %s: %w", table, err)
		}
	}

	for _, p := range ds.Players {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO players (id, name, image_url) VALUES (?, ?, ?)`,
			p.ID, p.Name, p.ImageURL); err != nil {
			return stats, fmt.Errorf("insert player %s: %w", p.ID, err)
		}
		stats.Players++
		for _, skillID := range p.UniqueSkills {
			if _, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO player_unique_skills (player_id, skill_id) VALUES (?, ?)`,
				p.ID, skillID); err != nil {
				return stats, fmt.Errorf("insert unique skill %s: %w", skillID, err)
			}
			stats.UniqueSkills++
		}
	}
	for _, sk := range ds.Skills {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO skills (id, name, is_unique) VALUES (?, ?, ?)`,
			sk.ID, sk.Name, sk.Rarity == UniqueRarity); err != nil {
			return stats, fmt.Errorf("insert skill %s: %w", sk.ID, err)
		}
		stats.Skills++
	}
	for _, r := range ds.Races {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO races (id, name) VALUES (?, ?)`, r.ID, r.Name); err != nil {
			return stats, fmt.Errorf("insert race %s: %w", r.ID, err)
		}
		stats.Races++
	}

	if err := tx.Commit(); err != nil {
		return stats, fmt.Errorf("commit: %w", err)
	}
	return stats, nil
}
