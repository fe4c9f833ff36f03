package observation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/i474232898/station-observations/internal/logger"
)

// ErrProviderNotConfigured is returned when a call targets a provider the
// service was built without.
var ErrProviderNotConfigured = errors.New("provider not configured")

// Service orchestrates the providers and the collection store.
type Service struct {
	timeseries TimeseriesProvider
	archive    ArchiveProvider
	store      Store
	log        *logger.Logger
}

// NewService creates a new Service. Either provider may be nil.
func NewService(store Store, timeseries TimeseriesProvider, archive ArchiveProvider, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		timeseries: timeseries,
		archive:    archive,
		store:      store,
		log:        log.Named("observation-service"),
	}
}

// Timeseries fetches station observations from the timeseries provider.
func (s *Service) Timeseries(ctx context.Context, q TimeseriesQuery) (*Table, error) {
	if s.timeseries == nil {
		return nil, fmt.Errorf("timeseries: %w", ErrProviderNotConfigured)
	}
	return s.timeseries.Timeseries(ctx, q)
}

// Archive fetches one station's readings from the archive provider. An empty
// table with a nil error means the archive held nothing for the range.
func (s *Service) Archive(ctx context.Context, q ArchiveQuery) (*Table, error) {
	if s.archive == nil {
		return nil, fmt.Errorf("archive: %w", ErrProviderNotConfigured)
	}
	return s.archive.Archive(ctx, q)
}

// CollectTimeseries fetches q and appends each station's rows to the store.
// It returns the number of rows stored.
func (s *Service) CollectTimeseries(ctx context.Context, q TimeseriesQuery) (int, error) {
	table, err := s.Timeseries(ctx, q)
	if err != nil {
		return 0, err
	}

	stored := 0
	order, parts := table.ByStation()
	for _, stid := range order {
		stored += s.store.Append(SeriesKey{Source: SourceSynoptic, Station: stid}, parts[stid])
	}
	s.log.Debug("collected timeseries",
		logger.Strings("stations", q.Stations),
		logger.Int("rows", table.Len()),
		logger.Int("stored", stored))
	return stored, nil
}

// CollectArchive fetches q and appends the rows to the store.
// It returns the number of rows stored.
func (s *Service) CollectArchive(ctx context.Context, q ArchiveQuery) (int, error) {
	table, err := s.Archive(ctx, q)
	if err != nil {
		return 0, err
	}

	key := SeriesKey{Source: SourceUtahAQ, Station: strings.ToUpper(q.Station)}
	stored := s.store.Append(key, table)
	s.log.Debug("collected archive",
		logger.String("station", key.Station),
		logger.Int("rows", table.Len()),
		logger.Int("stored", stored))
	return stored, nil
}

// Latest delegates to the underlying store.
func (s *Service) Latest(key SeriesKey) (Row, error) {
	return s.store.Latest(key)
}

// Collected delegates to the underlying store.
func (s *Service) Collected(key SeriesKey, from, to time.Time) (*Table, error) {
	return s.store.Range(key, from, to)
}
