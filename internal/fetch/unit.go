package fetch

import (
	"fmt"
	"time"

	"github.com/yegors/skyfetch/internal/opensky"
)

// FetchUnit is one (airport, day, kind) fetch task: the atomic scheduling
// and storage granularity. Immutable once planned.
type FetchUnit struct {
	Airport string
	Day     time.Time // UTC midnight of the calendar day
	Begin   time.Time
	End     time.Time
	Kind    opensky.Kind
}

// Key returns the identity tuple used by the existence check and the sink's
// idempotent write.
func (u FetchUnit) Key() string {
	return fmt.Sprintf("%s|%s|%s", u.Airport, u.Day.Format("2006-01-02"), u.Kind)
}

func (u FetchUnit) String() string {
	return fmt.Sprintf("%s %s %s", u.Airport, u.Day.Format("2006-01-02"), u.Kind)
}

// Bound is one end of a fetch range: a calendar date, optionally carrying a
// time of day. Date-only bounds expand to whole days during planning.
type Bound struct {
	Time     time.Time
	HasClock bool
}

var boundLayouts = []struct {
	layout   string
	hasClock bool
}{
	{"2006-01-02", false},
	{"2006-01-02 15:04:05", true},
	{"2006-01-02T15:04:05", true},
}

// ParseBound parses a date or datetime string. Accepted formats are
// YYYY-MM-DD, "YYYY-MM-DD HH:MM:SS", and YYYY-MM-DDTHH:MM:SS, all UTC.
func ParseBound(s string) (Bound, error) {
	for _, l := range boundLayouts {
		if t, err := time.ParseInLocation(l.layout, s, time.UTC); err == nil {
			return Bound{Time: t, HasClock: l.hasClock}, nil
		}
	}
	return Bound{}, fmt.Errorf("invalid date/datetime format: %q (use YYYY-MM-DD, 'YYYY-MM-DD HH:MM:SS', or YYYY-MM-DDTHH:MM:SS)", s)
}

// Day returns the UTC midnight of the bound's calendar day.
func (b Bound) Day() time.Time {
	y, m, d := b.Time.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
