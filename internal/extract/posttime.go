package extract

import (
	"fmt"
	"strings"
	"time"
)

// PostTimeLayout is the "MM/DD HH:MM" stamp shown on each item.
const PostTimeLayout = "1/2 15:04"

// ParsePostTime dates a year-less stamp. It is read in loc with the year of now;
// a result after now belongs to the previous year. The instant is returned in UTC.
func ParsePostTime(s string, now time.Time, loc *time.Location) (time.Time, error) {
	parsed, err := time.ParseInLocation(PostTimeLayout, strings.TrimSpace(s), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse post time %q: %w", s, err)
	}
	now = now.In(loc)
	posted := withYear(parsed, now.Year(), loc)
	if posted.After(now) {
		posted = withYear(parsed, now.Year()-1, loc)
	}
	return posted.UTC(), nil
}

func withYear(t time.Time, year int, loc *time.Location) time.Time {
	return time.Date(year, t.Month(), t.Day(), t.Hour(), t.Minute(), 0, 0, loc)
}
