package crawl

import (
	"context"
	"errors"
	"fmt"

	"github.com/rcliao/uma-friends/internal/model"
)

// ErrNoElement is returned by a Gateway when a looked-up element is absent.
// The crawler treats it as "try again", until its own budget runs out.
var ErrNoElement = errors.New("no such element")

// Element is an opaque handle to a DOM node or shadow root owned by a Gateway.
type Element any

// Gateway is the browser automation surface the crawler drives.
type Gateway interface {
	Navigate(ctx context.Context, url string) error
	// FindByTag returns the first element with the tag, or ErrNoElement.
	FindByTag(ctx context.Context, tag string) (Element, error)
	// OpenShadowRoot returns the shadow root of host, or ErrNoElement if it is
	// not attached yet.
	OpenShadowRoot(ctx context.Context, host Element) (Element, error)
	// FindAllByClass returns every descendant of root with the class, possibly none.
	FindAllByClass(ctx context.Context, root Element, class string) ([]Element, error)
	// ExecuteScript runs js with `this` bound to target and returns the result as a string.
	ExecuteScript(ctx context.Context, target Element, js string) (string, error)
	InnerHTML(ctx context.Context, el Element) (string, error)
	Text(ctx context.Context, el Element) (string, error)
	Close() error
}

// Opener acquires a Gateway for one crawl.
type Opener func(ctx context.Context) (Gateway, error)

// Frontier answers whether an item was ingested by an earlier run.
type Frontier interface {
	CountRaw(ctx context.Context) (int64, error)
	HasRaw(ctx context.Context, key model.NaturalKey) (bool, error)
}

// Keyer extracts the natural key of a single item from its markup.
type Keyer interface {
	FromItemMarkup(markup string) (model.RawFriend, error)
}

// PageStructureError means an expected part of the page never appeared.
type PageStructureError struct {
	Stage   State
	Element string
	Err     error
}

func (e *PageStructureError) Error() string {
	return fmt.Sprintf("page structure: %s never appeared while %s: %v", e.Element, e.Stage, e.Err)
}

func (e *PageStructureError) Unwrap() error {
	return e.Err
}
