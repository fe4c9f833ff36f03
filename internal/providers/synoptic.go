package providers

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/sony/gobreaker"

	"github.com/i474232898/station-observations/internal/logger"
	"github.com/i474232898/station-observations/internal/observation"
)

const (
	// SynopticBaseURL is the SynopticData Mesonet timeseries endpoint.
	SynopticBaseURL = "https://api.synopticdata.com/v2/stations/timeseries"

	// SynopticTimeLayout is the compact YYYYMMDDHHMM form the API expects.
	SynopticTimeLayout = "200601021504"

	synopticDateField = "date_time"
)

// SynopticProvider implements observation.TimeseriesProvider for the
// SynopticData timeseries API.
type SynopticProvider struct {
	name    string
	token   string
	baseURL string
	client  *http.Client
	circuit *gobreaker.CircuitBreaker
	log     *logger.Logger
}

func NewSynopticProvider(client *http.Client, token string, opts ...Option) *SynopticProvider {
	o := applyOptions(SynopticBaseURL, opts)
	return &SynopticProvider{
		name:    string(observation.SourceSynoptic),
		token:   token,
		baseURL: o.baseURL,
		client:  client,
		circuit: newBreaker("synoptic"),
		log:     o.log.Named("synoptic"),
	}
}

func (p *SynopticProvider) Name() string {
	return p.name
}

type synopticPayload struct {
	Summary struct {
		ResponseCode    int    `json:"RESPONSE_CODE"`
		ResponseMessage string `json:"RESPONSE_MESSAGE"`
	} `json:"SUMMARY"`
	Station []synopticStation `json:"STATION"`
}

type synopticStation struct {
	STID         interface{}                `json:"STID"`
	Latitude     interface{}                `json:"LATITUDE"`
	Longitude    interface{}                `json:"LONGITUDE"`
	Observations map[string]json.RawMessage `json:"OBSERVATIONS"`
}

// Timeseries issues one request for q and flattens every returned station
// into a single table indexed by observation time.
func (p *SynopticProvider) Timeseries(ctx context.Context, q observation.TimeseriesQuery) (*observation.Table, error) {
	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("token", p.token)
		values.Set("stid", strings.Join(q.Stations, ","))
		values.Set("start", q.Start.Format(SynopticTimeLayout))
		values.Set("end", q.End.Format(SynopticTimeLayout))
		if len(q.Vars) > 0 {
			values.Set("vars", strings.Join(q.Vars, ","))
		}

		u := fmt.Sprintf("%s?%s", p.baseURL, values.Encode())
		return http.NewRequest(http.MethodGet, u, nil)
	}

	p.log.Debug("requesting timeseries",
		logger.Strings("stations", q.Stations),
		logger.Strings("vars", q.Vars))

	resp, err := doRequest(ctx, p.client, p.circuit, buildRequest)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var payload synopticPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}

	// The API answers HTTP 200 in every case and reports the outcome in the
	// body. -1 and 200 have been observed for a bad token.
	switch payload.Summary.ResponseCode {
	case -1, 200:
		return nil, fmt.Errorf("%w: %s", observation.ErrInvalidCredentials, payload.Summary.ResponseMessage)
	case 2:
		return nil, fmt.Errorf("%w: %s", observation.ErrNoData, payload.Summary.ResponseMessage)
	}

	if len(payload.Station) == 0 {
		return nil, fmt.Errorf("%w: response listed no stations", observation.ErrNoData)
	}

	parts := make([]*observation.Table, 0, len(payload.Station))
	for _, st := range payload.Station {
		t, err := synopticStationTable(st)
		if err != nil {
			return nil, err
		}
		parts = append(parts, t)
	}

	table := observation.Concat(parts...)
	p.log.Debug("timeseries received",
		logger.Int("stations", len(parts)),
		logger.Int("rows", table.Len()))
	return table, nil
}

func synopticStationTable(st synopticStation) (*observation.Table, error) {
	stid := coerceText(st.STID)
	lat, err := coerceFloat(st.Latitude)
	if err != nil {
		return nil, fmt.Errorf("station %s latitude: %w", stid, err)
	}
	lon, err := coerceFloat(st.Longitude)
	if err != nil {
		return nil, fmt.Errorf("station %s longitude: %w", stid, err)
	}

	var rawDates []string
	if raw, ok := st.Observations[synopticDateField]; ok {
		if err := json.Unmarshal(raw, &rawDates); err != nil {
			return nil, fmt.Errorf("station %s %s: %w", stid, synopticDateField, err)
		}
	}

	t := observation.NewTable(true, true)
	for _, d := range rawDates {
		ts, err := parseSynopticTime(d)
		if err != nil {
			return nil, fmt.Errorf("station %s: %w", stid, err)
		}
		t.AppendRow(observation.Row{Time: ts, Station: stid, Latitude: lat, Longitude: lon})
	}

	fields := make([]string, 0, len(st.Observations))
	for name := range st.Observations {
		if name != synopticDateField {
			fields = append(fields, name)
		}
	}
	sort.Strings(fields)

	for _, name := range fields {
		var values []interface{}
		if err := json.Unmarshal(st.Observations[name], &values); err != nil {
			return nil, fmt.Errorf("station %s field %s: %w", stid, name, err)
		}
		if len(values) != t.Len() {
			return nil, fmt.Errorf("station %s field %s: %d values for %d timestamps", stid, name, len(values), t.Len())
		}
		if err := setSynopticColumn(t, name, values); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// setSynopticColumn stores a field as numeric unless it carries any text,
// in which case every value is kept as text.
func setSynopticColumn(t *observation.Table, name string, values []interface{}) error {
	isText := false
	for _, v := range values {
		if v == nil {
			continue
		}
		if _, ok := v.(float64); !ok {
			isText = true
			break
		}
	}

	if isText {
		col := make([]string, len(values))
		for i, v := range values {
			if v != nil {
				col[i] = coerceText(v)
			}
		}
		return t.SetTextColumn(name, col)
	}

	col := make([]float64, len(values))
	for i, v := range values {
		if f, ok := v.(float64); ok {
			col[i] = f
		} else {
			col[i] = math.NaN()
		}
	}
	return t.SetColumn(name, col)
}

func parseSynopticTime(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05-0700"} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid observation time %q", s)
}

func coerceText(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}

func coerceFloat(v interface{}) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case string:
		return strconv.ParseFloat(strings.TrimSpace(x), 64)
	default:
		return 0, fmt.Errorf("cannot convert %v to float", v)
	}
}
