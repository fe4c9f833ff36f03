package observation

import (
	"context"
	"time"
)

// TimeseriesProvider abstracts a JSON station timeseries API (e.g. SynopticData).
type TimeseriesProvider interface {
	Name() string
	Timeseries(ctx context.Context, q TimeseriesQuery) (*Table, error)
}

// ArchiveProvider abstracts a month-partitioned download archive (e.g. UtahAQ).
type ArchiveProvider interface {
	Name() string
	Archive(ctx context.Context, q ArchiveQuery) (*Table, error)
}

// Store is the contract the collection store must satisfy.
type Store interface {
	Append(key SeriesKey, t *Table) int
	Latest(key SeriesKey) (Row, error)
	Range(key SeriesKey, from, to time.Time) (*Table, error)
}
