// Package crawltest provides an in-memory listing page that satisfies
// crawl.Gateway, for tests of the crawler and everything built on it.
package crawltest

import (
	"context"
	"fmt"
	"html"
	"strings"
	"sync"

	"github.com/rcliao/uma-friends/internal/crawl"
)

// Item is one listing entry. Empty fields are left out of the markup.
type Item struct {
	FriendCode   string
	SupportID    string
	SupportLimit string
	Image        string
	Factors      []string
	Comment      string
	PostDate     string
}

// HTML renders the inner markup of the item.
func (i Item) HTML() string {
	var b strings.Builder
	if i.FriendCode != "" {
		fmt.Fprintf(&b, `<span class="-r-uma-musume-friends-list-item__trainerId__text">%s</span>`, html.EscapeString(i.FriendCode))
	}
	if i.SupportID != "" || i.SupportLimit != "" {
		b.WriteString(`<div class="-r-uma-musume-friends-list-item__support-wrap">`)
		if i.SupportID != "" {
			fmt.Fprintf(&b, `<a href="https://gamewith.jp/uma-musume/article/show/%s"></a>`, html.EscapeString(i.SupportID))
		}
		if i.SupportLimit != "" {
			fmt.Fprintf(&b, `<span class="-r-uma-musume-friends-list-item__limitNumber">%s</span>`, html.EscapeString(i.SupportLimit))
		}
		b.WriteString(`</div>`)
	}
	if i.Image != "" {
		fmt.Fprintf(&b, `<div class="-r-uma-musume-friends-list-item__mainUmaMusume-wrap"><img src="%s"></div>`, html.EscapeString(i.Image))
	}
	if len(i.Factors) > 0 {
		b.WriteString(`<ul>`)
		for _, f := range i.Factors {
			fmt.Fprintf(&b, `<li class="-r-uma-musume-friends-list-item__factor-list__item">%s</li>`, html.EscapeString(f))
		}
		b.WriteString(`</ul>`)
	}
	if i.Comment != "" {
		fmt.Fprintf(&b, `<p class="-r-uma-musume-friends-list-item__comment">%s</p>`, html.EscapeString(i.Comment))
	}
	if i.PostDate != "" {
		fmt.Fprintf(&b, `<span class="-r-uma-musume-friends-list-item__postDate">%s</span>`, html.EscapeString(i.PostDate))
	}
	return b.String()
}

type element struct {
	kind  string
	index int
}

// Page is a fake listing. Batches[0] is shown on load and every "load more"
// click appends the next batch below the loaded ones.
type Page struct {
	Batches [][]Item
	// HostDelay is the number of lookups of the section tag that fail before it appears.
	HostDelay int
	// NoSection hides the search wrapper inside the shadow root.
	NoSection bool
	// NoResults hides the result count line.
	NoResults bool
	// Readings are successive texts of the result count line; the last one
	// repeats. When empty the line reports every loaded item as shown.
	Readings []string
	// NavigateErr is returned by Navigate.
	NavigateErr error

	mu        sync.Mutex
	loaded    int
	clicks    int
	lookups   int
	readings  int
	navigated []string
	closed    bool
}

// Open satisfies crawl.Opener.
func (p *Page) Open(_ context.Context) (crawl.Gateway, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.loaded = min(1, len(p.Batches))
	return &gateway{page: p}, nil
}

// Clicks returns how many times "load more" was clicked.
func (p *Page) Clicks() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.clicks
}

// Closed reports whether the gateway was released.
func (p *Page) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Navigated returns every url visited.
func (p *Page) Navigated() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.navigated...)
}

func (p *Page) items() []Item {
	var out []Item
	for _, batch := range p.Batches[:p.loaded] {
		out = append(out, batch...)
	}
	return out
}

func (p *Page) resultText() string {
	if len(p.Readings) == 0 {
		n := len(p.items())
		return fmt.Sprintf("%d件中 %d件を表示", n, n)
	}
	i := min(p.readings, len(p.Readings)-1)
	p.readings++
	return p.Readings[i]
}

// Markup renders the shadow root content as the page currently shows it.
func (p *Page) Markup() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.markup()
}

func (p *Page) markup() string {
	var b strings.Builder
	if !p.NoSection {
		b.WriteString(`<div class="-r-uma-musume-friends__search-wrap"></div>`)
	}
	b.WriteString(List(p.items()...))
	if p.loaded < len(p.Batches) {
		b.WriteString(`<button class="-r-uma-musume-friends__next">もっと見る</button>`)
	}
	return b.String()
}

// List renders items as the listing shows them, newest first.
func List(items ...Item) string {
	var b strings.Builder
	b.WriteString(`<ul class="-r-uma-musume-friends-list">`)
	for _, item := range items {
		fmt.Fprintf(&b, `<li class="-r-uma-musume-friends-list-item">%s</li>`, item.HTML())
	}
	b.WriteString(`</ul>`)
	return b.String()
}

type gateway struct {
	page *Page
}

func (g *gateway) Navigate(_ context.Context, url string) error {
	p := g.page
	p.mu.Lock()
	defer p.mu.Unlock()
	p.navigated = append(p.navigated, url)
	return p.NavigateErr
}

func (g *gateway) FindByTag(_ context.Context, tag string) (crawl.Element, error) {
	p := g.page
	p.mu.Lock()
	defer p.mu.Unlock()
	if tag != crawl.TagSection {
		return nil, crawl.ErrNoElement
	}
	p.lookups++
	if p.lookups <= p.HostDelay {
		return nil, crawl.ErrNoElement
	}
	return element{kind: "host"}, nil
}

func (g *gateway) OpenShadowRoot(_ context.Context, host crawl.Element) (crawl.Element, error) {
	if el, ok := host.(element); !ok || el.kind != "host" {
		return nil, crawl.ErrNoElement
	}
	return element{kind: "shadow"}, nil
}

func (g *gateway) FindAllByClass(_ context.Context, root crawl.Element, class string) ([]crawl.Element, error) {
	p := g.page
	p.mu.Lock()
	defer p.mu.Unlock()
	if el, ok := root.(element); !ok || el.kind != "shadow" {
		return nil, fmt.Errorf("find %s: not a shadow root", class)
	}
	switch class {
	case crawl.ClassSearchWrap:
		if p.NoSection {
			return nil, nil
		}
		return []crawl.Element{element{kind: "wrap"}}, nil
	case crawl.ClassItem:
		items := p.items()
		out := make([]crawl.Element, len(items))
		for i := range items {
			out[i] = element{kind: "item", index: i}
		}
		return out, nil
	case crawl.ClassNext:
		if p.loaded >= len(p.Batches) {
			return nil, nil
		}
		return []crawl.Element{element{kind: "next"}}, nil
	case crawl.ClassResults:
		if p.NoResults {
			return nil, nil
		}
		return []crawl.Element{element{kind: "results"}}, nil
	}
	return nil, nil
}

func (g *gateway) ExecuteScript(_ context.Context, target crawl.Element, js string) (string, error) {
	p := g.page
	p.mu.Lock()
	defer p.mu.Unlock()
	el, ok := target.(element)
	if !ok || el.kind != "next" || !strings.Contains(js, "click()") {
		return "", fmt.Errorf("unsupported script %q", js)
	}
	if p.loaded < len(p.Batches) {
		p.loaded++
	}
	p.clicks++
	return "", nil
}

func (g *gateway) InnerHTML(_ context.Context, target crawl.Element) (string, error) {
	p := g.page
	p.mu.Lock()
	defer p.mu.Unlock()
	el, _ := target.(element)
	switch el.kind {
	case "shadow":
		return p.markup(), nil
	case "item":
		items := p.items()
		if el.index >= len(items) {
			return "", crawl.ErrNoElement
		}
		return items[el.index].HTML(), nil
	}
	return "", fmt.Errorf("inner html of %q", el.kind)
}

func (g *gateway) Text(_ context.Context, target crawl.Element) (string, error) {
	p := g.page
	p.mu.Lock()
	defer p.mu.Unlock()
	if el, _ := target.(element); el.kind != "results" {
		return "", fmt.Errorf("text of %q", el.kind)
	}
	return p.resultText(), nil
}

func (g *gateway) Close() error {
	p := g.page
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}
