// Package model defines the friend record types shared by the crawl and normalize stages.
package model

import (
	"fmt"
	"time"
)

// KeyMode selects what the first half of a NaturalKey holds.
type KeyMode string

const (
	// KeyIdentity keys records by the trainer's friend code.
	KeyIdentity KeyMode = "identity"
	// KeyFingerprint keys records by the content fingerprint, for pages where
	// the friend code cannot be trusted.
	KeyFingerprint KeyMode = "fingerprint"
)

// ValidKeyModes are the allowed key modes.
var ValidKeyModes = map[KeyMode]bool{
	KeyIdentity:    true,
	KeyFingerprint: true,
}

// NaturalKey is the unique identity of a record in every store.
type NaturalKey struct {
	Key      string    `json:"key"`
	PostedAt time.Time `json:"posted_at"`
}

func (k NaturalKey) String() string {
	return fmt.Sprintf("%s@%s", k.Key, k.PostedAt.UTC().Format(time.RFC3339))
}

// RawFriend is one listing item exactly as it was scraped.
type RawFriend struct {
	IdentityCode            *string    `json:"friend_code"`
	SupportReference        *string    `json:"support_id"`
	SupportLimit            *string    `json:"support_limit"`
	CharacterImageReference *string    `json:"character_image_url"`
	FactorStrings           []string   `json:"factors"`
	Comment                 *string    `json:"comment"`
	PostedAt                *time.Time `json:"post_date"`
	Fingerprint             string     `json:"hash_digest"`
	Key                     NaturalKey `json:"natural_key"`
}

// Identity returns the friend code or an empty string.
func (r RawFriend) Identity() string {
	if r.IdentityCode == nil {
		return ""
	}
	return *r.IdentityCode
}

// FactorType is the semantic class of a factor.
type FactorType string

const (
	FactorBlueStat    FactorType = "blue_stat"
	FactorFieldType   FactorType = "field_type"
	FactorDistance    FactorType = "distance"
	FactorStrategy    FactorType = "strategy"
	FactorURA         FactorType = "ura"
	FactorCommonSkill FactorType = "common_skill"
	FactorUniqueSkill FactorType = "unique_skill"
	FactorRace        FactorType = "race"
	// FactorUnknown is only produced when race names are checked against the
	// reference set and neither a skill nor a race matched.
	FactorUnknown FactorType = "unknown"
)

// ValidFactorTypes are the allowed factor types.
var ValidFactorTypes = map[FactorType]bool{
	FactorBlueStat:    true,
	FactorFieldType:   true,
	FactorDistance:    true,
	FactorStrategy:    true,
	FactorURA:         true,
	FactorCommonSkill: true,
	FactorUniqueSkill: true,
	FactorRace:        true,
	FactorUnknown:     true,
}

// Factor is a parsed factor string. MainLevel is nil when the factor is
// wholly inherited from ancestors.
type Factor struct {
	Name       string     `json:"name"`
	Type       FactorType `json:"type"`
	TotalLevel int        `json:"total_level"`
	MainLevel  *int       `json:"main_level,omitempty"`
}

// LeveledFactor is a factor projected onto a single level, either the main
// character's own level or the aggregate level.
type LeveledFactor struct {
	Name  string     `json:"name"`
	Type  FactorType `json:"type"`
	Level int        `json:"level"`
}

// Support is the support card a trainer lends.
type Support struct {
	ID    *string `json:"id,omitempty"`
	Limit *int    `json:"limit,omitempty"`
}

// MainCharacter is the record's own primary character.
type MainCharacter struct {
	ID      string          `json:"id"`
	Factors []LeveledFactor `json:"factors,omitempty"`
}

// ParentGuess is an ancestor inferred from a unique skill factor.
type ParentGuess struct {
	CharacterID string        `json:"id"`
	Factor      LeveledFactor `json:"factor"`
}

// CleanFriend is the normalized, queryable form of a RawFriend.
type CleanFriend struct {
	ID            string          `json:"id,omitempty"`
	IdentityCode  *string         `json:"friend_code"`
	PostedAt      *time.Time      `json:"post_date"`
	Comment       *string         `json:"comment"`
	Support       *Support        `json:"support"`
	MainCharacter *MainCharacter  `json:"main_uma"`
	Factors       []LeveledFactor `json:"factors"`
	Parents       []ParentGuess   `json:"parents"`
	Key           NaturalKey      `json:"natural_key"`
}
