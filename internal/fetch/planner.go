package fetch

import (
	"sort"
	"strings"
	"time"

	"github.com/yegors/skyfetch/internal/opensky"
	"github.com/yegors/skyfetch/pkg/logger"
)

// ValidateAirports splits a comma-separated list of ICAO codes, uppercases
// and trims them, and drops anything that is not exactly 4 characters. Each
// dropped code is logged as a warning; the run proceeds with the rest.
func ValidateAirports(airports string, log *logger.Logger) (valid []string, dropped []string) {
	for _, raw := range strings.Split(airports, ",") {
		code := strings.ToUpper(strings.TrimSpace(raw))
		if code == "" {
			continue
		}
		if len(code) != 4 {
			log.Warn("Invalid airport code, skipping",
				logger.String("code", code),
			)
			dropped = append(dropped, code)
			continue
		}
		valid = append(valid, code)
	}
	return valid, dropped
}

// Plan expands an airport list and a date range into discrete fetch units,
// one per airport per calendar day. Units come out date-major then
// airport-minor, both ascending, so reruns are reproducible.
//
// Date-only bounds yield full-day windows (00:00:00-23:59:59 UTC). A bound
// carrying a time of day narrows the first or last day's window; interior
// days are always full days.
func Plan(airports []string, kind opensky.Kind, start, end Bound) ([]FetchUnit, error) {
	if len(airports) == 0 {
		return nil, ErrNoValidAirports
	}

	startAt := start.Time
	endAt := end.Time
	if !end.HasClock {
		endAt = endOfDay(end.Day())
	}
	if startAt.After(endAt) {
		return nil, ErrInvalidRange
	}

	sorted := make([]string, len(airports))
	copy(sorted, airports)
	sort.Strings(sorted)

	firstDay := start.Day()
	lastDay := end.Day()

	var units []FetchUnit
	for day := firstDay; !day.After(lastDay); day = day.AddDate(0, 0, 1) {
		begin := day
		finish := endOfDay(day)
		if day.Equal(firstDay) && start.HasClock {
			begin = start.Time
		}
		if day.Equal(lastDay) && end.HasClock {
			finish = end.Time
		}
		for _, airport := range sorted {
			units = append(units, FetchUnit{
				Airport: airport,
				Day:     day,
				Begin:   begin,
				End:     finish,
				Kind:    kind,
			})
		}
	}

	return units, nil
}

func endOfDay(day time.Time) time.Time {
	return day.Add(23*time.Hour + 59*time.Minute + 59*time.Second)
}
