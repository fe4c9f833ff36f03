package observation

import (
	"context"
	"time"
)

// WindowFunc fetches the observations of the window beginning at start.
// A window without data may return an empty or nil table.
type WindowFunc func(ctx context.Context, start time.Time) (*Table, error)

// MonthlyWindows returns the UTC start of every calendar month touched by
// [start, end], in order. A range inside a single month, or one where end
// precedes start, yields only the month containing start.
func MonthlyWindows(start, end time.Time) []time.Time {
	s := start.UTC()
	e := end.UTC()

	first := time.Date(s.Year(), s.Month(), 1, 0, 0, 0, 0, time.UTC)
	windows := []time.Time{first}
	for m := first.AddDate(0, 1, 0); !m.After(e); m = m.AddDate(0, 1, 0) {
		windows = append(windows, m)
	}
	return windows
}

// MonthSpan returns the number of windows MonthlyWindows yields for
// [start, end] without building them.
func MonthSpan(start, end time.Time) int {
	s := start.UTC()
	e := end.UTC()
	n := (e.Year()-s.Year())*12 + int(e.Month()) - int(s.Month()) + 1
	if n < 1 {
		return 1
	}
	return n
}

// CollectWindows fetches every window one at a time, concatenates the results
// in window order and trims them to [start, end]. The first fetch error stops
// the collection and is returned as is.
func CollectWindows(ctx context.Context, windows []time.Time, fetch WindowFunc, start, end time.Time) (*Table, error) {
	parts := make([]*Table, 0, len(windows))
	for _, w := range windows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		part, err := fetch(ctx, w)
		if err != nil {
			return nil, err
		}
		parts = append(parts, part)
	}
	return Concat(parts...).Between(start, end), nil
}
