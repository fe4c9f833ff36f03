package observation

import (
	"fmt"
	"io"
	"math"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/ipc"
	"github.com/apache/arrow/go/v17/arrow/memory"
)

var timestampUTC = &arrow.TimestampType{Unit: arrow.Nanosecond, TimeZone: "UTC"}

// Schema returns the Arrow schema matching the table's columns.
func (t *Table) Schema() *arrow.Schema {
	fields := []arrow.Field{{Name: "date", Type: timestampUTC}}
	if t.HasStation() {
		fields = append(fields, arrow.Field{Name: "stid", Type: arrow.BinaryTypes.String})
	}
	if t.HasLocation() {
		fields = append(fields,
			arrow.Field{Name: "latitude", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
			arrow.Field{Name: "longitude", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
		)
	}
	if t != nil {
		for _, name := range t.numericNames {
			fields = append(fields, arrow.Field{Name: name, Type: arrow.PrimitiveTypes.Float64, Nullable: true})
		}
		for _, name := range t.textNames {
			fields = append(fields, arrow.Field{Name: name, Type: arrow.BinaryTypes.String, Nullable: true})
		}
	}
	return arrow.NewSchema(fields, nil)
}

// Record converts the table into a single Arrow record. Missing readings
// become nulls. The caller must Release the record.
func (t *Table) Record(mem memory.Allocator) arrow.Record {
	if mem == nil {
		mem = memory.NewGoAllocator()
	}
	b := array.NewRecordBuilder(mem, t.Schema())
	defer b.Release()

	col := 0
	tsb := b.Field(col).(*array.TimestampBuilder)
	for _, ts := range t.Times() {
		tsb.Append(arrow.Timestamp(ts.UnixNano()))
	}
	col++

	if t.HasStation() {
		sb := b.Field(col).(*array.StringBuilder)
		sb.AppendValues(t.stations, nil)
		col++
	}
	if t.HasLocation() {
		appendFloats(b.Field(col).(*array.Float64Builder), t.latitude)
		appendFloats(b.Field(col+1).(*array.Float64Builder), t.longitude)
		col += 2
	}
	if t != nil {
		for _, name := range t.numericNames {
			appendFloats(b.Field(col).(*array.Float64Builder), t.numeric[name])
			col++
		}
		for _, name := range t.textNames {
			sb := b.Field(col).(*array.StringBuilder)
			for _, s := range t.text[name] {
				if s == "" {
					sb.AppendNull()
				} else {
					sb.Append(s)
				}
			}
			col++
		}
	}

	return b.NewRecord()
}

// WriteIPC writes the table to w as an Arrow IPC stream with one record batch.
func (t *Table) WriteIPC(w io.Writer) error {
	mem := memory.NewGoAllocator()
	rec := t.Record(mem)
	defer rec.Release()

	ww := ipc.NewWriter(w, ipc.WithAllocator(mem), ipc.WithSchema(rec.Schema()))
	if err := ww.Write(rec); err != nil {
		ww.Close()
		return fmt.Errorf("could not write record: %w", err)
	}
	if err := ww.Close(); err != nil {
		return fmt.Errorf("could not close writer: %w", err)
	}
	return nil
}

func appendFloats(fb *array.Float64Builder, values []float64) {
	for _, v := range values {
		if math.IsNaN(v) {
			fb.AppendNull()
		} else {
			fb.Append(v)
		}
	}
}
