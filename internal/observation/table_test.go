package observation

import (
	"math"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ts(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func stationTable(t *testing.T, stid string, times []string, temps []float64) *Table {
	t.Helper()
	tb := NewTable(true, true)
	for _, s := range times {
		tb.AppendRow(Row{Time: ts(s), Station: stid, Latitude: 40.5, Longitude: -111.9})
	}
	require.NoError(t, tb.SetColumn("air_temp_set_1", temps))
	return tb
}

func TestAppendRowBackfillsNewColumns(t *testing.T) {
	tb := NewTable(false, false)
	tb.AppendRow(Row{Time: ts("2019-01-01T00:00:00Z"), Values: map[string]float64{"a": 1}})
	tb.AppendRow(Row{Time: ts("2019-01-01T00:01:00Z"), Values: map[string]float64{"a": 2, "b": 3}})

	require.Equal(t, 2, tb.Len())
	assert.Equal(t, []string{"a", "b"}, tb.Columns())

	b, ok := tb.Column("b")
	require.True(t, ok)
	assert.True(t, math.IsNaN(b[0]))
	assert.Equal(t, 3.0, b[1])
}

func TestSetColumnLengthMismatch(t *testing.T) {
	tb := NewTable(false, false)
	tb.AppendRow(Row{Time: ts("2019-01-01T00:00:00Z")})
	assert.Error(t, tb.SetColumn("x", []float64{1, 2}))
	assert.NoError(t, tb.SetTextColumn("dir", []string{"N"}))
	assert.Error(t, tb.SetColumn("dir", []float64{1}))
}

func TestConcatPreservesFragmentOrder(t *testing.T) {
	a := stationTable(t, "KSLC", []string{"2019-01-01T00:05:00Z", "2019-01-01T00:10:00Z"}, []float64{1, 2})
	b := stationTable(t, "KPVU", []string{"2019-01-01T00:00:00Z"}, []float64{3})

	out := Concat(a, nil, b)

	require.Equal(t, 3, out.Len())
	assert.Equal(t, []string{"KSLC", "KSLC", "KPVU"}, out.Stations())
	assert.Equal(t, ts("2019-01-01T00:00:00Z"), out.Times()[2])
	temps, _ := out.Column("air_temp_set_1")
	assert.Equal(t, []float64{1, 2, 3}, temps)
}

func TestConcatUnionsColumns(t *testing.T) {
	a := stationTable(t, "A", []string{"2019-01-01T00:00:00Z"}, []float64{1})
	b := NewTable(true, true)
	b.AppendRow(Row{Time: ts("2019-01-01T00:00:00Z"), Station: "B"})
	require.NoError(t, b.SetTextColumn("wind_cardinal_direction_set_1d", []string{"NW"}))
	require.NoError(t, b.SetColumn("air_temp_set_1", []float64{math.NaN()}))

	out := Concat(a, b)

	assert.Equal(t, []string{"air_temp_set_1", "wind_cardinal_direction_set_1d"}, out.Columns())
	dir, ok := out.TextColumn("wind_cardinal_direction_set_1d")
	require.True(t, ok)
	assert.Equal(t, []string{"", "NW"}, dir)
}

func TestConcatPromotesMixedColumnsToText(t *testing.T) {
	a := NewTable(false, false)
	a.AppendRow(Row{Time: ts("2019-01-01T00:00:00Z"), Values: map[string]float64{"x": 1.5}})
	b := NewTable(false, false)
	b.AppendRow(Row{Time: ts("2019-01-01T00:01:00Z"), Text: map[string]string{"x": "calm"}})

	out := Concat(a, b)

	col, ok := out.TextColumn("x")
	require.True(t, ok)
	assert.Equal(t, []string{"1.5", "calm"}, col)
}

func TestConcatEmptyKeepsColumns(t *testing.T) {
	a := NewTable(false, false)
	require.NoError(t, a.SetColumn("pm25_ugm3", nil))

	out := Concat(nil, a, nil)

	assert.Equal(t, 0, out.Len())
	assert.Equal(t, []string{"pm25_ugm3"}, out.Columns())
	assert.Equal(t, 0, Concat().Len())
}

func TestBetweenIsInclusive(t *testing.T) {
	tb := stationTable(t, "KSLC",
		[]string{"2019-01-01T00:00:00Z", "2019-01-01T00:05:00Z", "2019-01-01T00:10:00Z", "2019-01-01T00:15:00Z"},
		[]float64{1, 2, 3, 4})

	out := tb.Between(ts("2019-01-01T00:05:00Z"), ts("2019-01-01T00:10:00Z"))

	require.Equal(t, 2, out.Len())
	temps, _ := out.Column("air_temp_set_1")
	assert.Equal(t, []float64{2, 3}, temps)
	assert.True(t, out.HasLocation())
	assert.Equal(t, []float64{40.5, 40.5}, out.Latitudes())
}

func TestByStation(t *testing.T) {
	out := Concat(
		stationTable(t, "A", []string{"2019-01-01T00:00:00Z"}, []float64{1}),
		stationTable(t, "B", []string{"2019-01-01T00:00:00Z", "2019-01-01T00:05:00Z"}, []float64{2, 3}),
	)

	order, parts := out.ByStation()

	assert.Equal(t, []string{"A", "B"}, order)
	assert.Equal(t, 1, parts["A"].Len())
	assert.Equal(t, 2, parts["B"].Len())

	noStation := NewTable(false, false)
	order, parts = noStation.ByStation()
	assert.Nil(t, order)
	assert.Nil(t, parts)
}

func TestRowRoundTrip(t *testing.T) {
	tb := stationTable(t, "KSLC", []string{"2019-01-01T00:00:00Z"}, []float64{-5})
	r := tb.Row(0)

	assert.Equal(t, "KSLC", r.Station)
	assert.Equal(t, -111.9, r.Longitude)
	assert.Equal(t, -5.0, r.Values["air_temp_set_1"])
}

func TestMarshalJSON(t *testing.T) {
	tb := stationTable(t, "KSLC",
		[]string{"2019-01-01T00:00:00Z", "2019-01-01T00:05:00Z"},
		[]float64{-5, math.NaN()})

	raw, err := json.Marshal(tb)
	require.NoError(t, err)

	var rows []map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, "2019-01-01T00:00:00Z", rows[0]["date"])
	assert.Equal(t, "KSLC", rows[0]["stid"])
	assert.Equal(t, 40.5, rows[0]["latitude"])
	assert.Equal(t, -5.0, rows[0]["air_temp_set_1"])
	assert.Nil(t, rows[1]["air_temp_set_1"])
	assert.Contains(t, rows[1], "air_temp_set_1")
}

func TestMarshalJSONWithoutStation(t *testing.T) {
	tb := NewTable(false, false)
	tb.AppendRow(Row{Time: ts("2019-01-02T00:00:00Z"), Values: map[string]float64{"pm25_ugm3": 3}})

	raw, err := json.Marshal(tb)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"date":"2019-01-02T00:00:00Z","pm25_ugm3":3}]`, string(raw))
}

func TestNewTableDeclaresColumns(t *testing.T) {
	tb := NewTable(false, false, "pm25_ugm3", "rh_pct", "pm25_ugm3")

	assert.Equal(t, []string{"pm25_ugm3", "rh_pct"}, tb.Columns())
	tb.AppendRow(Row{Time: ts("2019-01-02T00:00:00Z"), Values: map[string]float64{"rh_pct": 28}})
	pm, ok := tb.Column("pm25_ugm3")
	require.True(t, ok)
	assert.True(t, math.IsNaN(pm[0]))
}
