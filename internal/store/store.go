// Package store provides the friend storage interface and SQLite implementation.
package store

import (
	"context"
	"fmt"

	"github.com/rcliao/uma-friends/internal/model"
)

// Collection names one of the record stores.
type Collection string

const (
	CollectionRaw    Collection = "raw"
	CollectionClean  Collection = "clean"
	CollectionFailed Collection = "failed"
)

// Collections lists every collection in pipeline order.
var Collections = []Collection{CollectionRaw, CollectionClean, CollectionFailed}

// ParseCollection validates a collection name.
func ParseCollection(s string) (Collection, error) {
	for _, c := range Collections {
		if string(c) == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("invalid collection %q (valid: raw, clean, failed)", s)
}

// InsertResult counts the outcome of a batch insert. Records whose natural
// key is already stored are counted as duplicates, never as errors.
type InsertResult struct {
	Inserted   int `json:"inserted"`
	Duplicates int `json:"duplicates"`
}

func (r InsertResult) add(o InsertResult) InsertResult {
	return InsertResult{Inserted: r.Inserted + o.Inserted, Duplicates: r.Duplicates + o.Duplicates}
}

// FindParams filters clean records. Empty fields do not filter.
type FindParams struct {
	CharacterID string
	SupportID   string
	// FactorName, FactorType and MinLevel match one factor of the record.
	FactorName string
	FactorType model.FactorType
	MinLevel   int
	// MainOnly matches factors of the main character instead of the totals.
	MainOnly bool
	// ParentID matches records with a guessed parent.
	ParentID string
	Limit    int
}

// SwapResult counts the outcome of SwapFailed.
type SwapResult struct {
	Promoted InsertResult `json:"promoted"`
	Removed  int          `json:"removed"`
	Buffered InsertResult `json:"buffered"`
}

// Store defines the friend storage interface.
type Store interface {
	// HasRaw reports whether a raw record with the natural key exists.
	HasRaw(ctx context.Context, key model.NaturalKey) (bool, error)

	// FindRaw returns the raw record with the natural key, or nil.
	FindRaw(ctx context.Context, key model.NaturalKey) (*model.RawFriend, error)

	// InsertRaw stores raw records, absorbing natural key collisions.
	InsertRaw(ctx context.Context, raws []model.RawFriend) (InsertResult, error)

	CountRaw(ctx context.Context) (int64, error)

	// ListRaw returns every raw record, oldest post first.
	ListRaw(ctx context.Context) ([]model.RawFriend, error)

	// InsertClean stores clean records, assigning ids to those without one.
	InsertClean(ctx context.Context, friends []model.CleanFriend) (InsertResult, error)

	// InsertFailed adds raw records to the failed buffer.
	InsertFailed(ctx context.Context, raws []model.RawFriend) (InsertResult, error)

	// ListFailed returns the failed buffer, oldest post first.
	ListFailed(ctx context.Context) ([]model.RawFriend, error)

	// SwapFailed promotes clean records and replaces the buffered records
	// named by read with failed, in one transaction.
	SwapFailed(ctx context.Context, read []model.NaturalKey, clean []model.CleanFriend, failed []model.RawFriend) (SwapResult, error)

	Count(ctx context.Context, c Collection) (int64, error)

	// Drop deletes every record of the collection and returns how many.
	Drop(ctx context.Context, c Collection) (int64, error)

	FindClean(ctx context.Context, p FindParams) ([]model.CleanFriend, error)
	Search(ctx context.Context, p SearchParams) ([]SearchResult, error)
	Parents(ctx context.Context, friendID string) ([]Parent, error)
	Stats(ctx context.Context) (*Stats, error)
	Export(ctx context.Context, collections ...Collection) (*Dump, error)
	Import(ctx context.Context, d *Dump) (ImportResult, error)

	// Close closes the store.
	Close() error
}
