package pipeline_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/rcliao/uma-friends/internal/chrono"
	"github.com/rcliao/uma-friends/internal/crawl"
	"github.com/rcliao/uma-friends/internal/crawl/crawltest"
	"github.com/rcliao/uma-friends/internal/extract"
	"github.com/rcliao/uma-friends/internal/model"
	"github.com/rcliao/uma-friends/internal/pipeline"
	"github.com/rcliao/uma-friends/internal/reconcile"
	"github.com/rcliao/uma-friends/internal/reference"
	"github.com/rcliao/uma-friends/internal/retry"
	"github.com/rcliao/uma-friends/internal/store"
	"github.com/rcliao/uma-friends/internal/telemetry"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var (
	jst   = time.FixedZone("JST", 9*60*60)
	clock = chrono.Fixed{T: time.Date(2021, 8, 1, 12, 0, 0, 0, jst), Loc: jst}

	itemA = crawltest.Item{FriendCode: "100000001", Image: "i_1.png", Factors: []string{"スピード3(代表3)", "芝1"}, Comment: "よろしく", PostDate: "07/15 19:09"}
	// i_2.png is not in the reference data yet.
	itemB = crawltest.Item{FriendCode: "100000002", Image: "i_2.png", Factors: []string{"差し2(代表2)"}, PostDate: "07/15 18:00"}
	itemC = crawltest.Item{FriendCode: "100000003", Image: "i_3.png", Factors: []string{"逃げ1(代表1)"}, PostDate: "07/14 09:30"}
	itemD = crawltest.Item{FriendCode: "100000004", Image: "i_1.png", PostDate: "07/13 08:00"}
)

type fixture struct {
	store *store.SQLiteStore
	refs  *reference.SQLiteSource
	rec   *telemetry.Recorder
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "friends.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	refs, err := reference.NewSQLiteSource(s.DB())
	require.NoError(t, err)
	_, err = refs.Replace(context.Background(), reference.Dataset{
		Players: []reference.Character{
			{ID: "speed", ImageURL: "i_1.png"},
			{ID: "runner", ImageURL: "i_3.png"},
		},
	})
	require.NoError(t, err)
	return fixture{store: s, refs: refs, rec: &telemetry.Recorder{}}
}

func (f fixture) pipeline() *pipeline.Pipeline {
	opts := pipeline.Options{
		Crawl: crawl.Config{
			URL:       "https://example.test/friends",
			StepLimit: 10,
			Locate:    retry.Every(0, 5),
			ListItems: retry.Every(0, 3),
			LoadMore:  retry.Every(0, 3),
			Settle:    retry.Every(0, 5),
		},
		KeyMode: model.KeyIdentity,
	}
	return pipeline.New(f.store, f.refs, clock, opts, f.rec)
}

func (f fixture) storeRaw(t *testing.T, items ...crawltest.Item) {
	t.Helper()
	ext := extract.New(clock, model.KeyIdentity, telemetry.Nop{})
	var raws []model.RawFriend
	for _, item := range items {
		r, err := ext.FromItemMarkup(item.HTML())
		require.NoError(t, err)
		raws = append(raws, r)
	}
	_, err := f.store.InsertRaw(context.Background(), raws)
	require.NoError(t, err)
}

func identities(t *testing.T, raws []model.RawFriend) []string {
	t.Helper()
	var out []string
	for _, r := range raws {
		out = append(out, r.Identity())
	}
	return out
}

func TestRunStoresOnlyListingsNewerThanTheFrontier(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.storeRaw(t, itemC)

	page := &crawltest.Page{Batches: [][]crawltest.Item{{itemA}, {itemB, itemC}, {itemD}}}
	rep, err := f.pipeline().Run(ctx, page.Open)
	require.NoError(t, err)

	assert.NotEmpty(t, rep.RunID)
	assert.Equal(t, crawl.StopFrontier, rep.StopReason)
	assert.Equal(t, 1, rep.Steps)
	assert.Equal(t, 1, page.Clicks(), "the batch holding D is never loaded")
	assert.True(t, page.Closed())

	assert.Equal(t, 3, rep.Extracted)
	assert.Equal(t, store.InsertResult{Inserted: 2, Duplicates: 1}, rep.Raw)
	assert.Equal(t, store.InsertResult{Inserted: 1}, rep.Clean)
	assert.Equal(t, store.InsertResult{Inserted: 1}, rep.Failed)

	raws, err := f.store.ListRaw(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"100000001", "100000002", "100000003"}, identities(t, raws))

	clean, err := f.store.ExportClean(ctx)
	require.NoError(t, err)
	require.Len(t, clean, 1)
	assert.Equal(t, "100000001", *clean[0].IdentityCode)
	require.NotNil(t, clean[0].MainCharacter)
	assert.Equal(t, "speed", clean[0].MainCharacter.ID)

	failed, err := f.store.ListFailed(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"100000002"}, identities(t, failed))
}

func TestRunReconcilesBeforeCrawling(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.storeRaw(t, itemC)
	page := &crawltest.Page{Batches: [][]crawltest.Item{{itemB, itemC}}}
	_, err := f.pipeline().Run(ctx, page.Open)
	require.NoError(t, err)

	// The reference data learns about B's character.
	_, err = f.refs.Replace(ctx, reference.Dataset{
		Players: []reference.Character{
			{ID: "speed", ImageURL: "i_1.png"},
			{ID: "closer", ImageURL: "i_2.png"},
			{ID: "runner", ImageURL: "i_3.png"},
		},
	})
	require.NoError(t, err)

	page = &crawltest.Page{Batches: [][]crawltest.Item{{itemB, itemC}}}
	rep, err := f.pipeline().Run(ctx, page.Open)
	require.NoError(t, err)
	assert.Equal(t, reconcile.Report{Buffered: 1, Promoted: 1}, rep.Reconcile)
	assert.Equal(t, store.InsertResult{Duplicates: 2}, rep.Raw)

	n, err := f.store.Count(ctx, store.CollectionFailed)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRunCrawlErrorKeepsStores(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	page := &crawltest.Page{Batches: [][]crawltest.Item{{itemA}}, NoSection: true}

	_, err := f.pipeline().Run(ctx, page.Open)
	var pse *crawl.PageStructureError
	require.ErrorAs(t, err, &pse)
	assert.True(t, page.Closed())
	assert.True(t, f.rec.Has(telemetry.LevelBroken, "pipeline.run"))

	n, err := f.store.Count(ctx, store.CollectionRaw)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRunOpenError(t *testing.T) {
	f := newFixture(t)
	boom := errors.New("no chrome")
	_, err := f.pipeline().Run(context.Background(), func(context.Context) (crawl.Gateway, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestIngestMarkup(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	// The same listing twice on one page is stored once.
	markup := crawltest.List(itemA, itemB, itemA, itemD)
	rep, err := f.pipeline().IngestMarkup(ctx, markup)
	require.NoError(t, err)
	assert.Equal(t, 4, rep.Extracted)
	assert.Equal(t, store.InsertResult{Inserted: 3, Duplicates: 1}, rep.Raw)
	assert.Equal(t, store.InsertResult{Inserted: 2}, rep.Clean)
	assert.Equal(t, store.InsertResult{Inserted: 1}, rep.Failed)

	raws, err := f.store.ListRaw(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"100000004", "100000002", "100000001"}, identities(t, raws), "stored oldest first")

	// Ingesting again changes nothing.
	rep, err = f.pipeline().IngestMarkup(ctx, markup)
	require.NoError(t, err)
	assert.Equal(t, store.InsertResult{Duplicates: 4}, rep.Raw)
	assert.Zero(t, rep.Clean.Inserted)
}

func TestRenormalize(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.storeRaw(t, itemC)
	page := &crawltest.Page{Batches: [][]crawltest.Item{{itemA, itemB, itemC}}}
	_, err := f.pipeline().Run(ctx, page.Open)
	require.NoError(t, err)

	// C was stored before any normalization ran.
	rep, err := f.pipeline().Renormalize(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, rep.Extracted)
	assert.Equal(t, store.InsertResult{Inserted: 1, Duplicates: 1}, rep.Clean)
	assert.Equal(t, store.InsertResult{Duplicates: 1}, rep.Failed)
}
