//go:build integration

package browser_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rcliao/uma-friends/internal/browser"
	"github.com/rcliao/uma-friends/internal/chrono"
	"github.com/rcliao/uma-friends/internal/crawl"
	"github.com/rcliao/uma-friends/internal/extract"
	"github.com/rcliao/uma-friends/internal/model"
	"github.com/rcliao/uma-friends/internal/retry"
	"github.com/rcliao/uma-friends/internal/telemetry"
)

// listingPage renders two items into a shadow root and a third on "load more".
const listingPage = `<!doctype html>
<html><body>
<gds-uma-musume-friends></gds-uma-musume-friends>
<script>
const item = (code, date) =>
  '<li class="-r-uma-musume-friends-list-item">' +
  '<span class="-r-uma-musume-friends-list-item__trainerId__text">' + code + '</span>' +
  '<span class="-r-uma-musume-friends-list-item__postDate">' + date + '</span></li>';
customElements.define('gds-uma-musume-friends', class extends HTMLElement {
  connectedCallback() {
    const root = this.attachShadow({mode: 'open'});
    root.innerHTML =
      '<div class="-r-uma-musume-friends__search-wrap"></div>' +
      '<p class="-r-uma-musume-friends__results">3件中 2件を表示</p>' +
      '<ul>' + item('100000001', '07/15 19:09') + item('100000002', '07/15 18:00') + '</ul>' +
      '<button class="-r-uma-musume-friends__next">もっと見る</button>';
    root.querySelector('button').addEventListener('click', (e) => {
      root.querySelector('ul').insertAdjacentHTML('beforeend', item('100000003', '07/14 09:30'));
      root.querySelector('.-r-uma-musume-friends__results').textContent = '3件中 3件を表示';
      e.target.remove();
    });
  }
});
</script>
</body></html>`

type noFrontier struct{}

func (noFrontier) CountRaw(context.Context) (int64, error)                { return 0, nil }
func (noFrontier) HasRaw(context.Context, model.NaturalKey) (bool, error) { return false, nil }

func TestCrawlLocalListing(t *testing.T) {
	if os.Getenv("UMA_FRIENDS_CHROME_BIN") == "" && os.Getenv("CI") != "" {
		t.Skip("no chrome available")
	}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, listingPage)
	}))
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	cfg := crawl.Config{
		URL:       ts.URL,
		StepLimit: 5,
		Locate:    retry.Every(500*time.Millisecond, 20),
		ListItems: retry.Every(200*time.Millisecond, 5),
		LoadMore:  retry.Every(200*time.Millisecond, 3),
		Settle:    retry.Every(200*time.Millisecond, 10),
	}
	ext := extract.New(chrono.Fixed{T: time.Date(2021, 8, 1, 0, 0, 0, 0, time.UTC)}, model.KeyIdentity, telemetry.Nop{})
	opener := browser.Opener(browser.Options{
		Bin:       os.Getenv("UMA_FRIENDS_CHROME_BIN"),
		Headless:  true,
		NoSandbox: true,
	})

	res, err := crawl.New(cfg, noFrontier{}, ext, telemetry.Nop{}).Run(ctx, opener)
	require.NoError(t, err)
	require.Equal(t, crawl.StopNoLoadMore, res.StopReason)
	require.Equal(t, 1, res.Steps)
	require.Equal(t, 3, res.Shown)

	friends, err := ext.FromMarkup(res.Markup)
	require.NoError(t, err)
	require.Len(t, friends, 3)
	require.Equal(t, "100000003", friends[2].Identity())
}
