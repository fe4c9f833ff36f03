package providers

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/i474232898/station-observations/internal/logger"
	"github.com/i474232898/station-observations/internal/observation"
)

const (
	// UtahAQBaseURL is the UtahAQ mobile archive download endpoint.
	UtahAQBaseURL = "http://meso2.chpc.utah.edu/aq/cgi-bin/download_mobile_archive.cgi"

	colDate      = "Date"
	colTimeUTC   = "TimeUTC"
	colErrorCode = "esampler_error_code"
	colPM25      = "esampler_pm25_ugm3"
	colRH        = "esampler_rh_pcent"

	// PM25Column and RHColumn are the normalized measurement names.
	PM25Column = "pm25_ugm3"
	RHColumn   = "rh_pct"
)

var (
	errMissingStation  = errors.New("archive query requires a station")
	errMissingDatatype = errors.New("archive query requires a datatype")

	archiveTimeLayouts = []string{
		"2006-01-02 15:04:05",
		"2006-01-02 15:04",
		"2006-01-02 15:04:05Z",
		"01/02/2006 15:04:05",
		"2006/01/02 15:04:05",
	}
)

// UtahAQProvider implements observation.ArchiveProvider for the UtahAQ
// mobile archive, which serves one calendar month per request.
type UtahAQProvider struct {
	name    string
	token   string
	baseURL string
	client  *http.Client
	circuit *gobreaker.CircuitBreaker
	log     *logger.Logger
}

func NewUtahAQProvider(client *http.Client, token string, opts ...Option) *UtahAQProvider {
	o := applyOptions(UtahAQBaseURL, opts)
	return &UtahAQProvider{
		name:    string(observation.SourceUtahAQ),
		token:   token,
		baseURL: o.baseURL,
		client:  client,
		circuit: newBreaker("utahaq"),
		log:     o.log.Named("utahaq"),
	}
}

func (p *UtahAQProvider) Name() string {
	return p.name
}

// Archive fetches every month touched by [q.Start, q.End], one request at a
// time, and returns the valid readings inside the exact range. A range with
// no readings yields an empty table and a nil error.
func (p *UtahAQProvider) Archive(ctx context.Context, q observation.ArchiveQuery) (*observation.Table, error) {
	station := strings.ToUpper(strings.TrimSpace(q.Station))
	datatype := strings.ToLower(strings.TrimSpace(q.Datatype))
	if station == "" {
		return nil, errMissingStation
	}
	if datatype == "" {
		return nil, errMissingDatatype
	}

	months := observation.MonthlyWindows(q.Start, q.End)
	p.log.Debug("requesting archive",
		logger.String("station", station),
		logger.String("datatype", datatype),
		logger.Int("months", len(months)))

	fetch := func(ctx context.Context, month time.Time) (*observation.Table, error) {
		return p.fetchMonth(ctx, station, month, datatype)
	}
	return observation.CollectWindows(ctx, months, fetch, q.Start, q.End)
}

func (p *UtahAQProvider) fetchMonth(ctx context.Context, station string, month time.Time, datatype string) (*observation.Table, error) {
	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("accesskey", p.token)
		values.Set("stid", station)
		values.Set("yr", fmt.Sprintf("%04d", month.Year()))
		values.Set("mo", fmt.Sprintf("%02d", int(month.Month())))
		values.Set("datatype", datatype)

		u := fmt.Sprintf("%s?%s", p.baseURL, values.Encode())
		return http.NewRequest(http.MethodGet, u, nil)
	}

	resp, err := doRequest(ctx, p.client, p.circuit, buildRequest)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	t, err := parseArchiveCSV(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("archive %s %s: %w", station, month.Format("2006-01"), err)
	}
	if t.Len() == 0 {
		p.log.Debug("archive month empty",
			logger.String("station", station),
			logger.String("month", month.Format("2006-01")))
	}
	return t, nil
}

func emptyArchiveTable() *observation.Table {
	return observation.NewTable(false, false, PM25Column, RHColumn)
}

// parseArchiveCSV reads an archive body: one metadata line, a header line,
// then data rows. Rows with a non-zero quality flag or an unreadable
// timestamp are dropped.
func parseArchiveCSV(r io.Reader) (*observation.Table, error) {
	t := emptyArchiveTable()

	br := bufio.NewReader(r)
	if _, err := br.ReadString('\n'); err != nil {
		if err == io.EOF {
			return t, nil
		}
		return nil, err
	}

	cr := csv.NewReader(br)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err == io.EOF {
		return t, nil
	}
	if err != nil {
		return nil, err
	}

	idx := make(map[string]int, len(header))
	for i, name := range header {
		idx[strings.TrimSpace(name)] = i
	}
	for _, name := range []string{colDate, colTimeUTC, colErrorCode, colPM25, colRH} {
		if _, ok := idx[name]; !ok {
			return nil, fmt.Errorf("missing column %q", name)
		}
	}

	field := func(rec []string, name string) string {
		i := idx[name]
		if i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		code, err := strconv.ParseFloat(field(rec, colErrorCode), 64)
		if err != nil || code != 0 {
			continue
		}

		ts, err := parseArchiveTime(field(rec, colDate) + " " + field(rec, colTimeUTC))
		if err != nil {
			continue
		}

		t.AppendRow(observation.Row{
			Time: ts,
			Values: map[string]float64{
				PM25Column: parseReading(field(rec, colPM25)),
				RHColumn:   parseReading(field(rec, colRH)),
			},
		})
	}
	return t, nil
}

func parseArchiveTime(s string) (time.Time, error) {
	for _, layout := range archiveTimeLayouts {
		if ts, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid reading time %q", s)
}

func parseReading(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return v
}
