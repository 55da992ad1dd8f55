// Package crawl drives the listing page through its "load more" pagination
// until the already-ingested frontier, the step limit, or the end of the list.
package crawl

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/rcliao/uma-friends/internal/retry"
	"github.com/rcliao/uma-friends/internal/telemetry"
)

var tracer = otel.Tracer("uma-friends/crawl")

// Page markers.
const (
	TagSection      = "gds-uma-musume-friends"
	ClassSearchWrap = "-r-uma-musume-friends__search-wrap"
	ClassItem       = "-r-uma-musume-friends-list-item"
	ClassNext       = "-r-uma-musume-friends__next"
	ClassResults    = "-r-uma-musume-friends__results"

	clickScript = "() => this.click()"
)

const (
	report_paging   = "crawler.paging"
	report_settling = "crawler.settling"
	report_close    = "crawler.close"
)

// Config bounds the work of one crawl.
type Config struct {
	URL       string
	StepLimit int
	// Locate bounds the wait for the section and its shadow content.
	Locate retry.Policy
	// ListItems bounds the wait for loaded items before a frontier check.
	ListItems retry.Policy
	// LoadMore bounds the search for the "load more" control.
	LoadMore retry.Policy
	// Settle bounds the wait for the result count to stop changing.
	Settle retry.Policy
	// ClickPause is slept after every successful "load more".
	ClickPause time.Duration
}

// DefaultConfig returns the bounds used against the live page.
func DefaultConfig(url string) Config {
	return Config{
		URL:        url,
		StepLimit:  200,
		Locate:     retry.Every(time.Second, 30),
		ListItems:  retry.Every(2*time.Second, 15),
		LoadMore:   retry.Every(time.Second, 20),
		Settle:     retry.Every(time.Second, 100),
		ClickPause: 2 * time.Second,
	}
}

// Result is what a finished crawl hands to extraction.
type Result struct {
	Markup     string
	Steps      int
	StopReason StopReason
	Searched   int
	Shown      int
	States     []State
}

// Crawler runs the state machine.
type Crawler struct {
	cfg      Config
	frontier Frontier
	keyer    Keyer
	tel      telemetry.API
}

// New creates a Crawler over the raw store frontier.
func New(cfg Config, frontier Frontier, keyer Keyer, tel telemetry.API) *Crawler {
	return &Crawler{
		cfg:      cfg,
		frontier: frontier,
		keyer:    keyer,
		tel:      telemetry.NewScopedAPI("crawl", tel),
	}
}

// Run acquires a gateway, walks every state and releases the gateway on every
// exit path.
func (c *Crawler) Run(ctx context.Context, open Opener) (res Result, err error) {
	ctx, span := tracer.Start(ctx, "Crawler.Run")
	defer span.End()

	gw, err := open(ctx)
	if err != nil {
		return Result{States: []State{Failed}}, fmt.Errorf("open gateway: %w", err)
	}
	defer func() {
		if cerr := gw.Close(); cerr != nil {
			c.tel.ReportWarning(report_close, cerr)
		}
	}()

	res, err = c.walk(ctx, gw)
	span.SetAttributes(
		attribute.Int("steps", res.Steps),
		attribute.String("stop_reason", string(res.StopReason)),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return res, err
}

func (c *Crawler) walk(ctx context.Context, gw Gateway) (Result, error) {
	var res Result
	var section Element

	state := Connecting
	for {
		res.States = append(res.States, state)
		c.tel.ReportDebug("state", state.String())

		sctx, span := tracer.Start(ctx, "Crawler."+state.String(), trace.WithSpanKind(trace.SpanKindInternal))
		next, err := c.enter(sctx, gw, state, &res, &section)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()

		if err != nil {
			return failed(res, err)
		}
		if state == Done {
			return res, nil
		}
		state = next
	}
}

// enter runs one state and returns the state that follows it.
func (c *Crawler) enter(ctx context.Context, gw Gateway, state State, res *Result, section *Element) (State, error) {
	var err error
	switch state {
	case Connecting:
		if err = gw.Navigate(ctx, c.cfg.URL); err != nil {
			err = fmt.Errorf("navigate %s: %w", c.cfg.URL, err)
		}
		return LocatingSection, err
	case LocatingSection:
		*section, err = c.locate(ctx, gw)
		return Paging, err
	case Paging:
		res.Steps, res.StopReason, err = c.page(ctx, gw, *section)
		return Settling, err
	case Settling:
		res.Searched, res.Shown, err = c.settle(ctx, gw, *section)
		return Done, err
	case Done:
		if res.Markup, err = gw.InnerHTML(ctx, *section); err != nil {
			err = fmt.Errorf("read section: %w", err)
		}
		return Done, err
	}
	return Failed, fmt.Errorf("no transition from %s", state)
}

func failed(res Result, err error) (Result, error) {
	res.States = append(res.States, Failed)
	return res, err
}

func (c *Crawler) locate(ctx context.Context, gw Gateway) (Element, error) {
	var root Element
	err := c.cfg.Locate.Do(ctx, func() error {
		host, err := gw.FindByTag(ctx, TagSection)
		if err != nil {
			return notReady(err, TagSection)
		}
		shadow, err := gw.OpenShadowRoot(ctx, host)
		if err != nil {
			return notReady(err, "shadow root")
		}
		wraps, err := gw.FindAllByClass(ctx, shadow, ClassSearchWrap)
		if err != nil {
			return err
		}
		if len(wraps) == 0 {
			return retry.NotReady(ClassSearchWrap)
		}
		root = shadow
		return nil
	})
	if errors.Is(err, retry.ErrExhausted) {
		return nil, &PageStructureError{Stage: LocatingSection, Element: TagSection, Err: err}
	}
	if err != nil {
		return nil, fmt.Errorf("locate section: %w", err)
	}
	c.tel.ReportInfo("loaded section shadow root")
	return root, nil
}

func notReady(err error, what string) error {
	if errors.Is(err, ErrNoElement) {
		return retry.NotReady("%s", what)
	}
	return err
}

func (c *Crawler) page(ctx context.Context, gw Gateway, section Element) (int, StopReason, error) {
	steps := 0
	c.tel.ReportInfo("start paging", "limit", c.cfg.StepLimit)
	for {
		if steps >= c.cfg.StepLimit {
			c.tel.ReportInfo("reached step limit", "limit", c.cfg.StepLimit)
			return steps, StopStepLimit, nil
		}

		n, err := c.frontier.CountRaw(ctx)
		if err != nil {
			return steps, "", fmt.Errorf("count raw: %w", err)
		}
		if n > 0 {
			items, err := c.listItems(ctx, gw, section)
			if err != nil {
				return steps, "", err
			}
			c.tel.ReportDebug("fetched items", "count", len(items))
			if len(items) == 0 {
				c.tel.ReportWarning(report_paging, "there are no items on the page", c.cfg.URL)
				return steps, StopNoItems, nil
			}
			seen, err := c.seen(ctx, gw, items[len(items)-1])
			if err != nil {
				return steps, "", err
			}
			if seen {
				return steps, StopFrontier, nil
			}
		}

		clicked, err := c.loadMore(ctx, gw, section)
		if err != nil {
			return steps, "", err
		}
		if !clicked {
			c.tel.ReportInfo("load more control not found")
			return steps, StopNoLoadMore, nil
		}
		steps++
		c.tel.ReportCount("steps", int64(steps))
		if err := pause(ctx, c.cfg.ClickPause); err != nil {
			return steps, "", err
		}
	}
}

func (c *Crawler) listItems(ctx context.Context, gw Gateway, section Element) ([]Element, error) {
	var items []Element
	err := c.cfg.ListItems.Do(ctx, func() error {
		var err error
		items, err = gw.FindAllByClass(ctx, section, ClassItem)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			return retry.NotReady(ClassItem)
		}
		return nil
	})
	if err != nil && !errors.Is(err, retry.ErrExhausted) {
		return nil, fmt.Errorf("list items: %w", err)
	}
	return items, nil
}

// seen reports whether the oldest loaded item is already in the raw store.
func (c *Crawler) seen(ctx context.Context, gw Gateway, last Element) (bool, error) {
	markup, err := gw.InnerHTML(ctx, last)
	if err != nil {
		return false, fmt.Errorf("read last item: %w", err)
	}
	r, err := c.keyer.FromItemMarkup(markup)
	if err != nil {
		return false, fmt.Errorf("key last item: %w", err)
	}
	found, err := c.frontier.HasRaw(ctx, r.Key)
	if err != nil {
		return false, fmt.Errorf("check frontier: %w", err)
	}
	if found {
		c.tel.ReportInfo("found already ingested item on page", "key", r.Key.String())
	}
	return found, nil
}

func (c *Crawler) loadMore(ctx context.Context, gw Gateway, section Element) (bool, error) {
	err := c.cfg.LoadMore.Do(ctx, func() error {
		buttons, err := gw.FindAllByClass(ctx, section, ClassNext)
		if err != nil {
			return err
		}
		if len(buttons) == 0 {
			return retry.NotReady(ClassNext)
		}
		// a plain click is intercepted by an overlay on the live page
		_, err = gw.ExecuteScript(ctx, buttons[0], clickScript)
		return err
	})
	if errors.Is(err, retry.ErrExhausted) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load more: %w", err)
	}
	return true, nil
}

var countPattern = regexp.MustCompile(`\d[\d,]*`)

// settle waits until the results line reads the same twice in a row, then
// compares the searched and shown counts on it.
func (c *Crawler) settle(ctx context.Context, gw Gateway, section Element) (searched, shown int, err error) {
	var last string
	err = c.cfg.Settle.Do(ctx, func() error {
		results, err := gw.FindAllByClass(ctx, section, ClassResults)
		if err != nil {
			return err
		}
		if len(results) == 0 {
			return retry.NotReady(ClassResults)
		}
		text, err := gw.Text(ctx, results[0])
		if err != nil {
			return err
		}
		text = strings.TrimSpace(text)
		if text != last {
			last = text
			return retry.NotReady("result count changing")
		}
		return nil
	})
	switch {
	case errors.Is(err, retry.ErrExhausted) && last == "":
		return 0, 0, &PageStructureError{Stage: Settling, Element: ClassResults, Err: err}
	case errors.Is(err, retry.ErrExhausted):
		c.tel.ReportWarning(report_settling, "result count did not settle", last)
	case err != nil:
		return 0, 0, fmt.Errorf("settle: %w", err)
	}
	c.tel.ReportInfo("section loaded", "result", last)

	counts := countPattern.FindAllString(last, -1)
	if len(counts) < 2 {
		return 0, 0, nil
	}
	searched, _ = strconv.Atoi(strings.ReplaceAll(counts[0], ",", ""))
	shown, _ = strconv.Atoi(strings.ReplaceAll(counts[1], ",", ""))
	if searched != shown {
		// paging outran the page: records were searched but never rendered
		c.tel.ReportWarning(report_settling, "searched and shown counts differ", searched, shown)
	}
	return searched, shown, nil
}

func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
