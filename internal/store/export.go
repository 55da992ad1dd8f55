package store

import (
	"context"
	"fmt"

	"github.com/rcliao/uma-friends/internal/model"
)

// Dump is a portable copy of the record stores.
type Dump struct {
	Raw    []model.RawFriend   `json:"raw,omitempty"`
	Clean  []model.CleanFriend `json:"clean,omitempty"`
	Failed []model.RawFriend   `json:"failed,omitempty"`
}

// ImportResult counts the outcome of Import per collection.
type ImportResult struct {
	Raw    InsertResult `json:"raw"`
	Clean  InsertResult `json:"clean"`
	Failed InsertResult `json:"failed"`
}

// ExportClean returns every clean record, oldest post first.
func (s *SQLiteStore) ExportClean(ctx context.Context) ([]model.CleanFriend, error) {
	return s.queryCleans(ctx, `SELECT doc FROM friends ORDER BY posted_at, id`)
}

// Export returns the named collections, or all of them when none are named.
func (s *SQLiteStore) Export(ctx context.Context, collections ...Collection) (*Dump, error) {
	if len(collections) == 0 {
		collections = Collections
	}
	d := &Dump{}
	for _, c := range collections {
		var err error
		switch c {
		case CollectionRaw:
			d.Raw, err = s.ListRaw(ctx)
		case CollectionClean:
			d.Clean, err = s.ExportClean(ctx)
		case CollectionFailed:
			d.Failed, err = s.ListFailed(ctx)
		default:
			err = fmt.Errorf("invalid collection %q", c)
		}
		if err != nil {
			return nil, fmt.Errorf("export %s: %w", c, err)
		}
	}
	return d, nil
}

// Import stores records from an export. Records already present (same natural
// key) are counted as duplicates; clean records keep their ids.
func (s *SQLiteStore) Import(ctx context.Context, d *Dump) (ImportResult, error) {
	var res ImportResult
	var err error
	if res.Raw, err = s.InsertRaw(ctx, d.Raw); err != nil {
		return res, fmt.Errorf("import raw: %w", err)
	}
	if res.Clean, err = s.InsertClean(ctx, d.Clean); err != nil {
		return res, fmt.Errorf("import clean: %w", err)
	}
	if res.Failed, err = s.InsertFailed(ctx, d.Failed); err != nil {
		return res, fmt.Errorf("import failed: %w", err)
	}
	return res, nil
}
