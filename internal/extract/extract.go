// Package extract turns listing markup into raw friend records.
package extract

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/rcliao/uma-friends/internal/chrono"
	"github.com/rcliao/uma-friends/internal/fingerprint"
	"github.com/rcliao/uma-friends/internal/model"
	"github.com/rcliao/uma-friends/internal/telemetry"
)

// Class markers of the listing page.
const (
	ClassItem          = "-r-uma-musume-friends-list-item"
	ClassSupportWrap   = "-r-uma-musume-friends-list-item__support-wrap"
	ClassLimitNumber   = "-r-uma-musume-friends-list-item__limitNumber"
	ClassTrainerID     = "-r-uma-musume-friends-list-item__trainerId__text"
	ClassMainCharacter = "-r-uma-musume-friends-list-item__mainUmaMusume-wrap"
	ClassFactorItem    = "-r-uma-musume-friends-list-item__factor-list__item"
	ClassComment       = "-r-uma-musume-friends-list-item__comment"
	ClassPostDate      = "-r-uma-musume-friends-list-item__postDate"
)

const report_post_time = "extractor.post-time"

// ByClass selects elements carrying class name. The markers start with a dash,
// so an attribute selector is used instead of a class selector.
func ByClass(name string) string {
	return fmt.Sprintf(`[class~=%q]`, name)
}

// Extractor reads raw records out of item fragments.
type Extractor struct {
	clock chrono.API
	mode  model.KeyMode
	tel   telemetry.API
}

// New creates an Extractor that dates posts with clock and keys records by mode.
func New(clock chrono.API, mode model.KeyMode, tel telemetry.API) Extractor {
	return Extractor{
		clock: clock,
		mode:  mode,
		tel:   telemetry.NewScopedAPI("extract", tel),
	}
}

// FromMarkup parses a whole listing section and extracts every item in page order.
func (e Extractor) FromMarkup(markup string) ([]model.RawFriend, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("parse section: %w", err)
	}
	items := doc.Find(ByClass(ClassItem))
	friends := make([]model.RawFriend, 0, items.Length())
	items.Each(func(_ int, item *goquery.Selection) {
		friends = append(friends, e.FromSelection(item))
	})
	return friends, nil
}

// FromItemMarkup extracts one record from the inner markup of a single item.
func (e Extractor) FromItemMarkup(markup string) (model.RawFriend, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return model.RawFriend{}, fmt.Errorf("parse item: %w", err)
	}
	return e.FromSelection(doc.Selection), nil
}

// FromSelection extracts the seven raw fields. A missing marker leaves its field
// nil; extraction itself never fails.
func (e Extractor) FromSelection(item *goquery.Selection) model.RawFriend {
	var r model.RawFriend

	if wrap := item.Find(ByClass(ClassSupportWrap)).First(); wrap.Length() > 0 {
		if href, ok := wrap.Find("a").First().Attr("href"); ok {
			href = strings.TrimRight(strings.TrimSpace(href), "/")
			r.SupportReference = ptr(href[strings.LastIndex(href, "/")+1:])
		}
	}
	r.SupportLimit = firstText(item, ClassLimitNumber)
	r.IdentityCode = firstText(item, ClassTrainerID)

	if wrap := item.Find(ByClass(ClassMainCharacter)).First(); wrap.Length() > 0 {
		if src, ok := wrap.Find("img").First().Attr("src"); ok {
			r.CharacterImageReference = ptr(strings.TrimSpace(src))
		}
	}

	factors := item.Find(ByClass(ClassFactorItem))
	if factors.Length() > 0 {
		r.FactorStrings = make([]string, 0, factors.Length())
		factors.Each(func(_ int, f *goquery.Selection) {
			r.FactorStrings = append(r.FactorStrings, strings.TrimSpace(f.Text()))
		})
	}

	r.Comment = firstText(item, ClassComment)

	if s := firstText(item, ClassPostDate); s != nil {
		posted, err := ParsePostTime(*s, e.clock.Now(), e.clock.Location())
		if err != nil {
			e.tel.ReportWarning(report_post_time, *s, err)
		} else {
			r.PostedAt = &posted
		}
	}

	fingerprint.Attach(&r, e.mode)
	return r
}

func firstText(item *goquery.Selection, class string) *string {
	sel := item.Find(ByClass(class)).First()
	if sel.Length() == 0 {
		return nil
	}
	return ptr(strings.TrimSpace(sel.Text()))
}

func ptr[T any](v T) *T {
	return &v
}
