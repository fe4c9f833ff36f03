package observation

import (
	"strings"
	"time"
)

// Source names an upstream data provider.
type Source string

const (
	SourceSynoptic Source = "synoptic"
	SourceUtahAQ   Source = "utahaq"
)

// SeriesKey identifies one station's series from one source.
type SeriesKey struct {
	Source  Source `json:"source"`
	Station string `json:"stid"`
}

// Key returns a canonical string key for indexing this series in stores.
// Station codes are case-insensitive upstream.
func (k SeriesKey) Key() string {
	return string(k.Source) + ":" + strings.ToUpper(k.Station)
}

// Bound is one end of a requested time range, given either as a timestamp
// or as a string already in the provider's format.
type Bound struct {
	at        time.Time
	formatted string
}

// At returns a bound for t. The timestamp is formatted as given, without
// converting its zone.
func At(t time.Time) Bound {
	return Bound{at: t}
}

// Formatted returns a bound that is sent to the provider verbatim.
func Formatted(s string) Bound {
	return Bound{formatted: s}
}

// IsZero reports whether the bound is unset.
func (b Bound) IsZero() bool {
	return b.formatted == "" && b.at.IsZero()
}

// Format renders the bound using layout unless it was given pre-formatted.
func (b Bound) Format(layout string) string {
	if b.formatted != "" {
		return b.formatted
	}
	return b.at.Format(layout)
}

// TimeseriesQuery selects observations from the station timeseries API.
type TimeseriesQuery struct {
	// Stations are sent comma-joined in the given order; duplicates are kept.
	Stations []string
	Start    Bound
	End      Bound
	// Vars selects variables. Empty means the provider default (all).
	Vars []string
}

// ArchiveQuery selects one station's readings from the monthly archive.
type ArchiveQuery struct {
	Station  string
	Start    time.Time // inclusive
	End      time.Time // inclusive
	Datatype string
}
