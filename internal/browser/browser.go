// Package browser drives a real Chrome through go-rod for the crawler.
package browser

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/rcliao/uma-friends/internal/crawl"
)

// Options selects how Chrome is reached.
type Options struct {
	// Bin is the Chrome executable; empty lets the launcher find or download one.
	Bin       string
	Headless  bool
	NoSandbox bool
	// ControlURL connects to an already running Chrome instead of launching one.
	ControlURL string
}

// Gateway is a crawl.Gateway over one Chrome page.
type Gateway struct {
	browser  *rod.Browser
	page     *rod.Page
	launcher *launcher.Launcher
}

var _ crawl.Gateway = (*Gateway)(nil)

// Open launches or connects to Chrome and opens a blank page.
func Open(ctx context.Context, opts Options) (*Gateway, error) {
	g := &Gateway{}

	controlURL := opts.ControlURL
	if controlURL == "" {
		l := launcher.New().
			Context(ctx).
			Headless(opts.Headless).
			NoSandbox(opts.NoSandbox).
			Set("disable-dev-shm-usage")
		if opts.Bin != "" {
			l = l.Bin(opts.Bin)
		}
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("launch chrome: %w", err)
		}
		controlURL = u
		g.launcher = l
	}

	g.browser = rod.New().ControlURL(controlURL).Context(ctx)
	if err := g.browser.Connect(); err != nil {
		g.cleanup()
		return nil, fmt.Errorf("connect to chrome: %w", err)
	}

	page, err := g.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		g.Close()
		return nil, fmt.Errorf("open page: %w", err)
	}
	g.page = page
	return g, nil
}

// Opener adapts Open to crawl.Opener.
func Opener(opts Options) crawl.Opener {
	return func(ctx context.Context) (crawl.Gateway, error) {
		g, err := Open(ctx, opts)
		if err != nil {
			return nil, err
		}
		return g, nil
	}
}

func (g *Gateway) Navigate(ctx context.Context, url string) error {
	page := g.page.Context(ctx)
	if err := page.Navigate(url); err != nil {
		return err
	}
	return page.WaitLoad()
}

func (g *Gateway) FindByTag(ctx context.Context, tag string) (crawl.Element, error) {
	els, err := g.page.Context(ctx).Elements(tag)
	if err != nil {
		return nil, err
	}
	if len(els) == 0 {
		return nil, crawl.ErrNoElement
	}
	return els.First(), nil
}

func (g *Gateway) OpenShadowRoot(ctx context.Context, host crawl.Element) (crawl.Element, error) {
	el, err := element(host)
	if err != nil {
		return nil, err
	}
	root, err := el.Context(ctx).ShadowRoot()
	var noShadow *rod.NoShadowRootError
	if errors.As(err, &noShadow) {
		return nil, crawl.ErrNoElement
	}
	if err != nil {
		return nil, err
	}
	return root, nil
}

func (g *Gateway) FindAllByClass(ctx context.Context, root crawl.Element, class string) ([]crawl.Element, error) {
	el, err := element(root)
	if err != nil {
		return nil, err
	}
	els, err := el.Context(ctx).Elements(fmt.Sprintf(`[class~=%q]`, class))
	if err != nil {
		return nil, err
	}
	out := make([]crawl.Element, len(els))
	for i, e := range els {
		out[i] = e
	}
	return out, nil
}

func (g *Gateway) ExecuteScript(ctx context.Context, target crawl.Element, js string) (string, error) {
	el, err := element(target)
	if err != nil {
		return "", err
	}
	res, err := el.Context(ctx).Eval(js)
	if err != nil {
		return "", err
	}
	return res.Value.Str(), nil
}

func (g *Gateway) InnerHTML(ctx context.Context, target crawl.Element) (string, error) {
	return g.ExecuteScript(ctx, target, `() => this.innerHTML`)
}

func (g *Gateway) Text(ctx context.Context, target crawl.Element) (string, error) {
	el, err := element(target)
	if err != nil {
		return "", err
	}
	return el.Context(ctx).Text()
}

// Close closes the browser and, when it was launched here, waits for the
// process to exit and removes its profile.
func (g *Gateway) Close() error {
	var err error
	if g.browser != nil {
		err = g.browser.Close()
	}
	g.cleanup()
	return err
}

func (g *Gateway) cleanup() {
	if g.launcher != nil {
		g.launcher.Cleanup()
		g.launcher = nil
	}
}

func element(e crawl.Element) (*rod.Element, error) {
	el, ok := e.(*rod.Element)
	if !ok || el == nil {
		return nil, fmt.Errorf("not a browser element: %T", e)
	}
	return el, nil
}
