package providers

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/station-observations/internal/observation"
)

const hawthJanuary = `# HAWTH mobile archive 2019-01
Date,TimeUTC,esampler_error_code,esampler_pm25_ugm3,esampler_rh_pcent,esampler_temp_c
2019-01-01,23:59:50,0,4.0,27.0,-3.0
2019-01-02,00:00:00,0,3.0,28.0,-3.1
2019-01-02,00:00:10,0,3.0,28.0,-3.1
2019-01-02,00:00:15,4,999.0,28.0,-3.1
2019-01-02,00:00:20,0,3.0,28.0,-3.1
2019-01-02,00:00:30,0,2.0,28.0,-3.2
2019-01-02,00:00:40,0,2.0,,-3.2
`

// archiveServer serves CSV bodies keyed by "YYYY-MM" and records queries.
type archiveServer struct {
	*httptest.Server
	mu      sync.Mutex
	queries []url.Values
}

func newArchiveServer(t *testing.T, months map[string]string) *archiveServer {
	t.Helper()
	s := &archiveServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		s.mu.Lock()
		s.queries = append(s.queries, q)
		s.mu.Unlock()
		w.Header().Set("Content-Type", "text/csv")
		fmt.Fprint(w, months[q.Get("yr")+"-"+q.Get("mo")])
	}))
	t.Cleanup(s.Close)
	return s
}

func newTestUtahAQ(srv *httptest.Server) *UtahAQProvider {
	return NewUtahAQProvider(srv.Client(), "aq-token", WithBaseURL(srv.URL))
}

func utc(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestUtahAQArchiveScenario(t *testing.T) {
	srv := newArchiveServer(t, map[string]string{"2019-01": hawthJanuary})
	p := newTestUtahAQ(srv.Server)

	start := utc("2019-01-02T00:00:00Z")
	end := utc("2019-01-02T00:00:30Z")
	table, err := p.Archive(context.Background(), observation.ArchiveQuery{
		Station:  "hawth",
		Start:    start,
		End:      end,
		Datatype: "PM",
	})
	require.NoError(t, err)

	require.Len(t, srv.queries, 1)
	q := srv.queries[0]
	assert.Equal(t, "aq-token", q.Get("accesskey"))
	assert.Equal(t, "HAWTH", q.Get("stid"))
	assert.Equal(t, "2019", q.Get("yr"))
	assert.Equal(t, "01", q.Get("mo"))
	assert.Equal(t, "pm", q.Get("datatype"))

	assert.Equal(t, []string{PM25Column, RHColumn}, table.Columns())
	assert.False(t, table.HasStation())
	assert.False(t, table.HasLocation())
	assert.Equal(t, []time.Time{
		utc("2019-01-02T00:00:00Z"),
		utc("2019-01-02T00:00:10Z"),
		utc("2019-01-02T00:00:20Z"),
		utc("2019-01-02T00:00:30Z"),
	}, table.Times())

	pm, _ := table.Column(PM25Column)
	rh, _ := table.Column(RHColumn)
	assert.Equal(t, []float64{3, 3, 3, 2}, pm)
	assert.Equal(t, []float64{28, 28, 28, 28}, rh)

	for _, ts := range table.Times() {
		assert.False(t, ts.Before(start) || ts.After(end))
	}
}

func TestUtahAQDropsFlaggedRowsAndKeepsGaps(t *testing.T) {
	srv := newArchiveServer(t, map[string]string{"2019-01": hawthJanuary})
	p := newTestUtahAQ(srv.Server)

	table, err := p.Archive(context.Background(), observation.ArchiveQuery{
		Station:  "HAWTH",
		Start:    utc("2019-01-01T00:00:00Z"),
		End:      utc("2019-01-31T23:59:59Z"),
		Datatype: "pm",
	})
	require.NoError(t, err)

	require.Equal(t, 6, table.Len())
	pm, _ := table.Column(PM25Column)
	assert.NotContains(t, pm, 999.0)

	rh, _ := table.Column(RHColumn)
	assert.True(t, math.IsNaN(rh[5]))
}

func TestUtahAQRequestsEveryCoveredMonth(t *testing.T) {
	months := map[string]string{
		"2018-12": "meta\nDate,TimeUTC,esampler_error_code,esampler_pm25_ugm3,esampler_rh_pcent\n2018-12-31,23:00:00,0,1,50\n",
		"2019-01": hawthJanuary,
		"2019-02": "meta\nDate,TimeUTC,esampler_error_code,esampler_pm25_ugm3,esampler_rh_pcent\n2019-02-01,00:00:00,0,9,40\n2019-02-20,00:00:00,0,9,40\n",
	}
	srv := newArchiveServer(t, months)
	p := newTestUtahAQ(srv.Server)

	start := utc("2018-12-31T12:00:00Z")
	end := utc("2019-02-10T00:00:00Z")
	table, err := p.Archive(context.Background(), observation.ArchiveQuery{
		Station: "HAWTH", Start: start, End: end, Datatype: "pm",
	})
	require.NoError(t, err)

	// Two month boundaries crossed, three requests, in month order.
	require.Len(t, srv.queries, 3)
	assert.Equal(t, "12", srv.queries[0].Get("mo"))
	assert.Equal(t, "2018", srv.queries[0].Get("yr"))
	assert.Equal(t, "01", srv.queries[1].Get("mo"))
	assert.Equal(t, "02", srv.queries[2].Get("mo"))

	times := table.Times()
	require.NotEmpty(t, times)
	assert.Equal(t, utc("2018-12-31T23:00:00Z"), times[0])
	assert.Equal(t, utc("2019-02-01T00:00:00Z"), times[len(times)-1])
	for i := 1; i < len(times); i++ {
		assert.False(t, times[i].Before(times[i-1]))
	}
}

func TestUtahAQEmptyMonthsYieldEmptyTable(t *testing.T) {
	months := map[string]string{
		"2019-01": "",
		"2019-02": "No data available for this month\n",
		"2019-03": "meta\nDate,TimeUTC,esampler_error_code,esampler_pm25_ugm3,esampler_rh_pcent\n",
	}
	srv := newArchiveServer(t, months)
	p := newTestUtahAQ(srv.Server)

	table, err := p.Archive(context.Background(), observation.ArchiveQuery{
		Station:  "HAWTH",
		Start:    utc("2019-01-10T00:00:00Z"),
		End:      utc("2019-03-10T00:00:00Z"),
		Datatype: "pm",
	})
	require.NoError(t, err)
	assert.Len(t, srv.queries, 3)
	assert.Equal(t, 0, table.Len())
	assert.Equal(t, []string{PM25Column, RHColumn}, table.Columns())
}

func TestUtahAQDropsRowsWithoutTimestamp(t *testing.T) {
	body := "meta\nDate,TimeUTC,esampler_error_code,esampler_pm25_ugm3,esampler_rh_pcent\n" +
		"2019-01-02,00:00:00,0,3,28\n" +
		",,0,3,28\n" +
		"2019-01-02,garbage,0,5,28\n" +
		"2019-01-02,00:00:10,0,2,27\n"
	srv := newArchiveServer(t, map[string]string{"2019-01": body})
	p := newTestUtahAQ(srv.Server)

	table, err := p.Archive(context.Background(), observation.ArchiveQuery{
		Station:  "HAWTH",
		Start:    utc("2019-01-02T00:00:00Z"),
		End:      utc("2019-01-02T00:00:30Z"),
		Datatype: "pm",
	})
	require.NoError(t, err)
	assert.Equal(t, []time.Time{
		utc("2019-01-02T00:00:00Z"),
		utc("2019-01-02T00:00:10Z"),
	}, table.Times())
	pm, _ := table.Column(PM25Column)
	assert.Equal(t, []float64{3, 2}, pm)
}

func TestEmptyArchiveTableColumns(t *testing.T) {
	table := emptyArchiveTable()
	assert.Equal(t, 0, table.Len())
	assert.Equal(t, []string{PM25Column, RHColumn}, table.Columns())
}

func TestUtahAQIdempotent(t *testing.T) {
	srv := newArchiveServer(t, map[string]string{"2019-01": hawthJanuary})
	p := newTestUtahAQ(srv.Server)
	q := observation.ArchiveQuery{
		Station:  "HAWTH",
		Start:    utc("2019-01-02T00:00:00Z"),
		End:      utc("2019-01-02T00:00:30Z"),
		Datatype: "pm",
	}

	first, err := p.Archive(context.Background(), q)
	require.NoError(t, err)
	second, err := p.Archive(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestUtahAQRequiresDatatype(t *testing.T) {
	p := NewUtahAQProvider(http.DefaultClient, "aq-token")
	_, err := p.Archive(context.Background(), observation.ArchiveQuery{Station: "HAWTH"})
	assert.ErrorIs(t, err, errMissingDatatype)

	_, err = p.Archive(context.Background(), observation.ArchiveQuery{Datatype: "pm"})
	assert.ErrorIs(t, err, errMissingStation)
}

func TestUtahAQTransportErrorStopsBatching(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "gone", http.StatusBadGateway)
	}))
	defer srv.Close()
	p := newTestUtahAQ(srv)

	_, err := p.Archive(context.Background(), observation.ArchiveQuery{
		Station:  "HAWTH",
		Start:    utc("2019-01-10T00:00:00Z"),
		End:      utc("2019-03-10T00:00:00Z"),
		Datatype: "pm",
	})
	assert.ErrorIs(t, err, ErrUnexpectedStatus)
	assert.Equal(t, 1, calls)
}

func TestParseArchiveCSVMissingColumn(t *testing.T) {
	_, err := parseArchiveCSV(strings.NewReader("meta\nDate,TimeUTC,esampler_error_code\n2019-01-01,00:00:00,0\n"))
	assert.Error(t, err)
}
