package httpapi

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/station-observations/internal/common"
	"github.com/i474232898/station-observations/internal/observation"
	"github.com/i474232898/station-observations/internal/providers"
	"github.com/i474232898/station-observations/internal/store"
)

// ArrowStreamType is the media type of Arrow IPC stream responses.
const ArrowStreamType = "application/vnd.apache.arrow.stream"

var (
	validate = validator.New()

	compactTime = regexp.MustCompile(`^\d{12}$`)
)

// Limits bounds the work a single request may cause upstream.
type Limits struct {
	// ArchiveMaxMonths caps the calendar months one archive request may
	// span. Zero means unlimited.
	ArchiveMaxMonths int
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, service *observation.Service, limits Limits) {
	v1 := app.Group("/api/v1")

	v1.Get("/synoptic/timeseries", func(c *fiber.Ctx) error {
		var req timeseriesQuery
		if err := req.bind(c); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		table, err := service.Timeseries(c.UserContext(), req.toQuery())
		if err != nil {
			return providerError(err)
		}
		return writeTable(c, req.Format, table)
	})

	v1.Get("/utahaq/archive", func(c *fiber.Ctx) error {
		req := archiveQuery{maxMonths: limits.ArchiveMaxMonths}
		if err := req.bind(c); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		table, err := service.Archive(c.UserContext(), req.toQuery())
		if err != nil {
			return providerError(err)
		}
		if table.Len() == 0 {
			return fiber.NewError(fiber.StatusNotFound, "no archive data for requested station and range")
		}
		return writeTable(c, req.Format, table)
	})

	v1.Get("/collected/latest", func(c *fiber.Ctx) error {
		key, err := parseSeriesKey(c)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		row, err := service.Latest(key)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fiber.NewError(fiber.StatusNotFound, "no observations collected for requested series")
			}
			return fiber.NewError(fiber.StatusInternalServerError, "failed to read collected observations")
		}

		one := observation.NewTable(row.Station != "", key.Source == observation.SourceSynoptic)
		one.AppendRow(row)
		return c.JSON(fiber.Map{"series": key, "observation": one})
	})

	v1.Get("/collected", func(c *fiber.Ctx) error {
		var req collectedQuery
		if err := req.bind(c); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		table, err := service.Collected(req.Series, req.From, req.To)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fiber.NewError(fiber.StatusNotFound, "no observations collected for requested range")
			}
			return fiber.NewError(fiber.StatusInternalServerError, "failed to read collected observations")
		}

		return c.JSON(fiber.Map{
			"series":       req.Series,
			"from":         req.From,
			"to":           req.To,
			"observations": table,
		})
	})
}

// providerError maps provider failures onto HTTP errors.
func providerError(err error) error {
	switch {
	case errors.Is(err, observation.ErrNoData):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, observation.ErrInvalidCredentials):
		return fiber.NewError(fiber.StatusBadGateway, "provider rejected the configured access token")
	case errors.Is(err, observation.ErrProviderNotConfigured):
		return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
	case errors.Is(err, providers.ErrCircuitOpen):
		return fiber.NewError(fiber.StatusServiceUnavailable, "provider temporarily unavailable")
	default:
		return fiber.NewError(fiber.StatusBadGateway, "failed to fetch observations: "+err.Error())
	}
}

func writeTable(c *fiber.Ctx, format string, table *observation.Table) error {
	if format == "arrow" {
		var buf bytes.Buffer
		if err := table.WriteIPC(&buf); err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "failed to encode arrow stream")
		}
		c.Set(fiber.HeaderContentType, ArrowStreamType)
		return c.Send(buf.Bytes())
	}
	return c.JSON(fiber.Map{
		"rows":         table.Len(),
		"columns":      table.Columns(),
		"observations": table,
	})
}

// timeseriesQuery holds query parameters for the timeseries endpoint.
type timeseriesQuery struct {
	Stations []string `validate:"required,min=1,dive,required"`
	Start    string   `validate:"required"`
	End      string   `validate:"required"`
	Vars     []string
	Format   string `validate:"omitempty,oneof=json arrow"`

	start, end observation.Bound
}

func (q *timeseriesQuery) bind(c *fiber.Ctx) error {
	q.Stations = common.SplitList(c.Query("stid"))
	q.Vars = common.SplitList(c.Query("vars"))
	q.Start = c.Query("start")
	q.End = c.Query("end")
	q.Format = c.Query("format", "json")

	if q.Start == "" || q.End == "" {
		return errors.New("start and end query parameters are required")
	}
	var err error
	if q.start, err = parseBound(q.Start); err != nil {
		return err
	}
	if q.end, err = parseBound(q.End); err != nil {
		return err
	}
	return nil
}

func (q timeseriesQuery) toQuery() observation.TimeseriesQuery {
	return observation.TimeseriesQuery{
		Stations: q.Stations,
		Start:    q.start,
		End:      q.end,
		Vars:     q.Vars,
	}
}

// archiveQuery holds query parameters for the archive endpoint.
type archiveQuery struct {
	Station  string    `validate:"required"`
	Datatype string    `validate:"required"`
	Start    time.Time `validate:"required"`
	End      time.Time `validate:"required,gtefield=Start"`
	Format   string    `validate:"omitempty,oneof=json arrow"`

	maxMonths int
}

func (q *archiveQuery) bind(c *fiber.Ctx) error {
	q.Station = c.Query("stid")
	q.Datatype = c.Query("datatype")
	q.Format = c.Query("format", "json")

	startStr := c.Query("start")
	endStr := c.Query("end")
	if startStr == "" || endStr == "" {
		return errors.New("start and end query parameters are required")
	}
	var err error
	if q.Start, err = parseTime(startStr); err != nil {
		return err
	}
	if q.End, err = parseTime(endStr); err != nil {
		return err
	}
	if q.maxMonths > 0 {
		if n := observation.MonthSpan(q.Start, q.End); n > q.maxMonths {
			return fmt.Errorf("requested range spans %d months; at most %d allowed", n, q.maxMonths)
		}
	}
	return nil
}

func (q archiveQuery) toQuery() observation.ArchiveQuery {
	return observation.ArchiveQuery{
		Station:  q.Station,
		Start:    q.Start,
		End:      q.End,
		Datatype: q.Datatype,
	}
}

// seriesQuery identifies a collected series.
type seriesQuery struct {
	Source  string `validate:"required,oneof=synoptic utahaq"`
	Station string `validate:"required"`
}

func parseSeriesKey(c *fiber.Ctx) (observation.SeriesKey, error) {
	q := seriesQuery{Source: c.Query("source"), Station: c.Query("stid")}
	if err := validate.Struct(q); err != nil {
		return observation.SeriesKey{}, err
	}
	return observation.SeriesKey{Source: observation.Source(q.Source), Station: q.Station}, nil
}

// collectedQuery holds query parameters for the collected history endpoint.
type collectedQuery struct {
	Series observation.SeriesKey
	From   time.Time `validate:"required"`
	To     time.Time `validate:"required,gtefield=From"`
}

func (h *collectedQuery) bind(c *fiber.Ctx) error {
	key, err := parseSeriesKey(c)
	if err != nil {
		return err
	}
	h.Series = key

	fromStr := c.Query("from")
	toStr := c.Query("to")
	if fromStr == "" || toStr == "" {
		return errors.New("from and to query parameters are required")
	}

	if h.From, err = parseTime(fromStr); err != nil {
		return err
	}
	if h.To, err = parseTime(toStr); err != nil {
		return err
	}
	return nil
}

// parseBound accepts the provider's compact YYYYMMDDHHMM form verbatim, or
// any form parseTime understands.
func parseBound(s string) (observation.Bound, error) {
	if compactTime.MatchString(s) {
		return observation.Formatted(s), nil
	}
	ts, err := parseTime(s)
	if err != nil {
		return observation.Bound{}, err
	}
	return observation.At(ts), nil
}

// parseTime tries to parse either RFC3339 or Unix seconds.
func parseTime(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts, nil
	}
	if unix, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC(), nil
	}
	return time.Time{}, errors.New("invalid time format; use RFC3339 or unix seconds")
}

// ErrorHandler renders errors as {"error": true, "message": ...}.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
	}
	return c.Status(code).JSON(fiber.Map{
		"error":   true,
		"message": err.Error(),
	})
}
