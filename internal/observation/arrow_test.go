package observation

import (
	"bytes"
	"math"
	"testing"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/ipc"
	"github.com/apache/arrow/go/v17/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordSchemaAndNulls(t *testing.T) {
	tb := stationTable(t, "KSLC",
		[]string{"2019-01-01T00:00:00Z", "2019-01-01T00:05:00Z"},
		[]float64{-5, math.NaN()})
	require.NoError(t, tb.SetTextColumn("wind_cardinal_direction_set_1d", []string{"N", ""}))

	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	rec := tb.Record(mem)
	defer rec.Release()

	names := make([]string, 0, rec.NumCols())
	for _, f := range rec.Schema().Fields() {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"date", "stid", "latitude", "longitude", "air_temp_set_1", "wind_cardinal_direction_set_1d"}, names)
	assert.Equal(t, int64(2), rec.NumRows())

	dates := rec.Column(0).(*array.Timestamp)
	assert.Equal(t, arrow.Timestamp(ts("2019-01-01T00:05:00Z").UnixNano()), dates.Value(1))

	temps := rec.Column(4).(*array.Float64)
	assert.Equal(t, -5.0, temps.Value(0))
	assert.True(t, temps.IsNull(1))

	dirs := rec.Column(5).(*array.String)
	assert.Equal(t, "N", dirs.Value(0))
	assert.True(t, dirs.IsNull(1))
}

func TestWriteIPCRoundTrip(t *testing.T) {
	tb := NewTable(false, false)
	tb.AppendRow(Row{Time: ts("2019-01-02T00:00:00Z"), Values: map[string]float64{"pm25_ugm3": 3, "rh_pct": 28}})
	tb.AppendRow(Row{Time: ts("2019-01-02T00:00:10Z"), Values: map[string]float64{"pm25_ugm3": 2, "rh_pct": 28}})

	var buf bytes.Buffer
	require.NoError(t, tb.WriteIPC(&buf))

	r, err := ipc.NewReader(&buf)
	require.NoError(t, err)
	defer r.Release()

	require.True(t, r.Next())
	rec := r.Record()
	assert.Equal(t, int64(2), rec.NumRows())
	assert.Equal(t, "pm25_ugm3", rec.ColumnName(1))
	assert.Equal(t, 2.0, rec.Column(1).(*array.Float64).Value(1))
	assert.False(t, r.Next())
}
