package store

import (
	"context"
	"testing"
	"time"

	"github.com/rcliao/uma-friends/internal/model"
)

func TestExportImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	src := newTestStore(t)
	src.InsertRaw(ctx, []model.RawFriend{rawFriend("a", posted), rawFriend("b", posted)})
	src.InsertClean(ctx, []model.CleanFriend{cleanFriend("a", posted, "special")})
	src.InsertFailed(ctx, []model.RawFriend{rawFriend("b", posted)})

	dump, err := src.Export(ctx)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if len(dump.Raw) != 2 || len(dump.Clean) != 1 || len(dump.Failed) != 1 {
		t.Fatalf("unexpected dump %+v", dump)
	}

	dst := newTestStore(t)
	res, err := dst.Import(ctx, dump)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if res.Raw.Inserted != 2 || res.Clean.Inserted != 1 || res.Failed.Inserted != 1 {
		t.Errorf("unexpected import result %+v", res)
	}

	got, _ := dst.ExportClean(ctx)
	if got[0].ID != dump.Clean[0].ID {
		t.Errorf("expected id %s to be kept, got %s", dump.Clean[0].ID, got[0].ID)
	}

	// importing twice only yields duplicates
	res, _ = dst.Import(ctx, dump)
	if res.Raw.Duplicates != 2 || res.Clean.Duplicates != 1 || res.Failed.Duplicates != 1 {
		t.Errorf("expected duplicates on second import, got %+v", res)
	}
}

func TestExportSelectedCollections(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	s.InsertRaw(ctx, []model.RawFriend{rawFriend("a", posted)})
	s.InsertClean(ctx, []model.CleanFriend{cleanFriend("a", posted, "special")})

	dump, err := s.Export(ctx, CollectionClean)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if dump.Raw != nil || len(dump.Clean) != 1 {
		t.Errorf("expected clean records only, got %+v", dump)
	}
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	s.InsertRaw(ctx, []model.RawFriend{rawFriend("a", posted), rawFriend("b", posted), rawFriend("c", posted)})
	s.InsertClean(ctx, []model.CleanFriend{
		cleanFriend("a", posted, "special"),
		cleanFriend("b", posted.Add(time.Minute), "special"),
	})
	s.InsertFailed(ctx, []model.RawFriend{rawFriend("c", posted)})

	st, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if st.Raw != 3 || st.Clean != 2 || st.Failed != 1 {
		t.Errorf("unexpected counts %+v", st)
	}
	if st.Factors != 4 || st.Parents != 2 {
		t.Errorf("expected 4 factors and 2 parents, got %d and %d", st.Factors, st.Parents)
	}
	if len(st.Characters) != 1 || st.Characters[0].CharacterID != "special" || st.Characters[0].Count != 2 {
		t.Errorf("unexpected characters %+v", st.Characters)
	}
	if len(st.FactorTypes) != 2 {
		t.Errorf("expected blue_stat and unique_skill, got %+v", st.FactorTypes)
	}
	if st.DBSizeBytes == 0 {
		t.Error("expected db size")
	}
}
