package crawl_test

import (
	"context"
	"errors"
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
	"github.com/rcliao/uma-friends/internal/retry"
	"github.com/rcliao/uma-friends/internal/telemetry"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type frontier map[string]bool

func (f frontier) CountRaw(context.Context) (int64, error) {
	return int64(len(f)), nil
}

func (f frontier) HasRaw(_ context.Context, key model.NaturalKey) (bool, error) {
	return f[key.String()], nil
}

var (
	itemA = crawltest.Item{FriendCode: "100000001", Image: "i_1.png", Factors: []string{"スピード3(代表3)"}, PostDate: "07/15 19:09"}
	itemB = crawltest.Item{FriendCode: "100000002", Image: "i_2.png", Factors: []string{"芝2"}, PostDate: "07/15 18:00"}
	itemC = crawltest.Item{FriendCode: "100000003", Image: "i_3.png", Factors: []string{"逃げ1(代表1)"}, PostDate: "07/14 09:30"}
	itemD = crawltest.Item{FriendCode: "100000004", Image: "i_4.png", PostDate: "07/13 08:00"}
)

func fastConfig() crawl.Config {
	return crawl.Config{
		URL:       "https://example.test/friends",
		StepLimit: 10,
		Locate:    retry.Every(0, 5),
		ListItems: retry.Every(0, 3),
		LoadMore:  retry.Every(0, 3),
		Settle:    retry.Every(0, 5),
	}
}

func keyer() extract.Extractor {
	clock := chrono.Fixed{T: time.Date(2021, 8, 1, 12, 0, 0, 0, time.FixedZone("JST", 9*60*60))}
	return extract.New(clock, model.KeyIdentity, telemetry.Nop{})
}

func keyOf(t *testing.T, item crawltest.Item) string {
	t.Helper()
	r, err := keyer().FromItemMarkup(item.HTML())
	require.NoError(t, err)
	return r.Key.String()
}

func TestRunStopsAtFrontierOnFirstPage(t *testing.T) {
	page := &crawltest.Page{Batches: [][]crawltest.Item{{itemA, itemB, itemC}, {itemD}}}
	f := frontier{keyOf(t, itemC): true}

	res, err := crawl.New(fastConfig(), f, keyer(), telemetry.Nop{}).Run(context.Background(), page.Open)
	require.NoError(t, err)

	assert.Equal(t, crawl.StopFrontier, res.StopReason)
	assert.Equal(t, 0, res.Steps)
	assert.Equal(t, 0, page.Clicks())
	assert.True(t, page.Closed())
	assert.Contains(t, res.Markup, "100000001")
	assert.Contains(t, res.Markup, "100000003")
	assert.NotContains(t, res.Markup, "100000004")
	assert.Equal(t, []crawl.State{crawl.Connecting, crawl.LocatingSection, crawl.Paging, crawl.Settling, crawl.Done}, res.States)
	assert.Equal(t, []string{"https://example.test/friends"}, page.Navigated())
	assert.Equal(t, 3, res.Searched)
	assert.Equal(t, 3, res.Shown)
}

func TestRunPagesUntilFrontier(t *testing.T) {
	page := &crawltest.Page{Batches: [][]crawltest.Item{{itemA}, {itemB}, {itemC}, {itemD}}}
	f := frontier{keyOf(t, itemC): true}

	res, err := crawl.New(fastConfig(), f, keyer(), telemetry.Nop{}).Run(context.Background(), page.Open)
	require.NoError(t, err)

	assert.Equal(t, crawl.StopFrontier, res.StopReason)
	assert.Equal(t, 2, res.Steps)
	assert.Equal(t, 2, page.Clicks())
}

func TestRunEmptyStorePagesToTheEnd(t *testing.T) {
	page := &crawltest.Page{Batches: [][]crawltest.Item{{itemA}, {itemB}, {itemC}}}

	res, err := crawl.New(fastConfig(), frontier{}, keyer(), telemetry.Nop{}).Run(context.Background(), page.Open)
	require.NoError(t, err)

	assert.Equal(t, crawl.StopNoLoadMore, res.StopReason)
	assert.Equal(t, 2, res.Steps)
	assert.Contains(t, res.Markup, "100000003")
}

func TestRunStepLimit(t *testing.T) {
	tests := []struct {
		name  string
		limit int
		want  int
	}{
		{name: "zero", limit: 0, want: 0},
		{name: "two", limit: 2, want: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page := &crawltest.Page{Batches: [][]crawltest.Item{{itemA}, {itemB}, {itemC}, {itemD}}}
			cfg := fastConfig()
			cfg.StepLimit = tt.limit

			res, err := crawl.New(cfg, frontier{}, keyer(), telemetry.Nop{}).Run(context.Background(), page.Open)
			require.NoError(t, err)
			assert.Equal(t, crawl.StopStepLimit, res.StopReason)
			assert.Equal(t, tt.want, res.Steps)
			assert.Equal(t, tt.want, page.Clicks())
		})
	}
}

func TestRunNoItems(t *testing.T) {
	page := &crawltest.Page{Batches: [][]crawltest.Item{{}}}
	rec := &telemetry.Recorder{}
	f := frontier{"something": true}

	res, err := crawl.New(fastConfig(), f, keyer(), rec).Run(context.Background(), page.Open)
	require.NoError(t, err)
	assert.Equal(t, crawl.StopNoItems, res.StopReason)
	assert.True(t, rec.Has(telemetry.LevelWarning, "crawler.paging"))
}

func TestRunWaitsForSection(t *testing.T) {
	page := &crawltest.Page{HostDelay: 3, Batches: [][]crawltest.Item{{itemA}}}

	res, err := crawl.New(fastConfig(), frontier{}, keyer(), telemetry.Nop{}).Run(context.Background(), page.Open)
	require.NoError(t, err)
	assert.Equal(t, crawl.StopNoLoadMore, res.StopReason)
}

func TestRunPageStructureErrors(t *testing.T) {
	tests := []struct {
		name    string
		page    *crawltest.Page
		stage   crawl.State
		element string
	}{
		{
			name:    "host never appears",
			page:    &crawltest.Page{HostDelay: 100, Batches: [][]crawltest.Item{{itemA}}},
			stage:   crawl.LocatingSection,
			element: crawl.TagSection,
		},
		{
			name:    "search wrapper missing",
			page:    &crawltest.Page{NoSection: true, Batches: [][]crawltest.Item{{itemA}}},
			stage:   crawl.LocatingSection,
			element: crawl.TagSection,
		},
		{
			name:    "results missing",
			page:    &crawltest.Page{NoResults: true, Batches: [][]crawltest.Item{{itemA}}},
			stage:   crawl.Settling,
			element: crawl.ClassResults,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := crawl.New(fastConfig(), frontier{}, keyer(), telemetry.Nop{}).Run(context.Background(), tt.page.Open)

			var pse *crawl.PageStructureError
			require.ErrorAs(t, err, &pse)
			assert.Equal(t, tt.stage, pse.Stage)
			assert.Equal(t, tt.element, pse.Element)
			assert.ErrorIs(t, err, retry.ErrExhausted)
			assert.True(t, tt.page.Closed())
			assert.Equal(t, crawl.Failed, res.States[len(res.States)-1])
		})
	}
}

func TestRunSettlesOnRepeatedReading(t *testing.T) {
	page := &crawltest.Page{
		Batches:  [][]crawltest.Item{{itemA}},
		Readings: []string{"10件中 3件を表示", "10件中 8件を表示", "10件中 8件を表示"},
	}
	rec := &telemetry.Recorder{}

	res, err := crawl.New(fastConfig(), frontier{}, keyer(), rec).Run(context.Background(), page.Open)
	require.NoError(t, err)
	assert.Equal(t, 10, res.Searched)
	assert.Equal(t, 8, res.Shown)
	assert.True(t, rec.Has(telemetry.LevelWarning, "crawler.settling"))
}

func TestRunUnsettledCountIsNotFatal(t *testing.T) {
	page := &crawltest.Page{
		Batches:  [][]crawltest.Item{{itemA}},
		Readings: []string{"1件中 1件を表示", "2件中 2件を表示", "3件中 3件を表示", "4件中 4件を表示", "5件中 5件を表示", "6件中 6件を表示"},
	}
	rec := &telemetry.Recorder{}

	res, err := crawl.New(fastConfig(), frontier{}, keyer(), rec).Run(context.Background(), page.Open)
	require.NoError(t, err)
	assert.Equal(t, 5, res.Searched)
	assert.True(t, rec.Has(telemetry.LevelWarning, "crawler.settling"))
}

func TestRunReleasesGatewayOnNavigateError(t *testing.T) {
	boom := errors.New("boom")
	page := &crawltest.Page{NavigateErr: boom, Batches: [][]crawltest.Item{{itemA}}}

	_, err := crawl.New(fastConfig(), frontier{}, keyer(), telemetry.Nop{}).Run(context.Background(), page.Open)
	require.ErrorIs(t, err, boom)
	assert.True(t, page.Closed())
}

func TestRunOpenError(t *testing.T) {
	boom := errors.New("no browser")
	open := func(context.Context) (crawl.Gateway, error) { return nil, boom }

	res, err := crawl.New(fastConfig(), frontier{}, keyer(), telemetry.Nop{}).Run(context.Background(), open)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, []crawl.State{crawl.Failed}, res.States)
}
