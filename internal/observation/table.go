package observation

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"
)

// Table is a column-oriented time series of station observations.
//
// Rows are indexed by a UTC timestamp. The index is kept in insertion order:
// concatenating per-station fragments keeps each fragment's order and does
// not re-sort across stations. Measurement columns are open-ended, keyed by
// the provider's field name; numeric cells use NaN for missing readings and
// text cells use the empty string.
type Table struct {
	times     []time.Time
	stations  []string
	latitude  []float64
	longitude []float64

	withStation  bool
	withLocation bool

	numericNames []string
	numeric      map[string][]float64
	textNames    []string
	text         map[string][]string
}

// Row is a single observation, used for appending and reading back rows.
type Row struct {
	Time      time.Time
	Station   string
	Latitude  float64
	Longitude float64
	Values    map[string]float64
	Text      map[string]string
}

// NewTable returns an empty table. withStation adds a station id column,
// withLocation adds latitude/longitude columns, columns pre-declares empty
// numeric measurement columns.
func NewTable(withStation, withLocation bool, columns ...string) *Table {
	t := &Table{
		withStation:  withStation,
		withLocation: withLocation,
		numeric:      make(map[string][]float64, len(columns)),
		text:         make(map[string][]string),
	}
	for _, name := range columns {
		if _, ok := t.numeric[name]; ok {
			continue
		}
		t.numericNames = append(t.numericNames, name)
		t.numeric[name] = []float64{}
	}
	return t
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.times)
}

func (t *Table) HasStation() bool  { return t != nil && t.withStation }
func (t *Table) HasLocation() bool { return t != nil && t.withLocation }

// Times returns the timestamp index. The slice must not be modified.
func (t *Table) Times() []time.Time {
	if t == nil {
		return nil
	}
	return t.times
}

// Stations returns the station id column, or nil when the table has none.
func (t *Table) Stations() []string {
	if t == nil {
		return nil
	}
	return t.stations
}

func (t *Table) Latitudes() []float64 {
	if t == nil {
		return nil
	}
	return t.latitude
}

func (t *Table) Longitudes() []float64 {
	if t == nil {
		return nil
	}
	return t.longitude
}

// Columns returns the measurement column names: numeric columns first, then
// text columns, each in the order they were added.
func (t *Table) Columns() []string {
	if t == nil {
		return nil
	}
	names := make([]string, 0, len(t.numericNames)+len(t.textNames))
	names = append(names, t.numericNames...)
	return append(names, t.textNames...)
}

// Column returns a numeric measurement column.
func (t *Table) Column(name string) ([]float64, bool) {
	if t == nil {
		return nil, false
	}
	v, ok := t.numeric[name]
	return v, ok
}

// TextColumn returns a text measurement column.
func (t *Table) TextColumn(name string) ([]string, bool) {
	if t == nil {
		return nil, false
	}
	v, ok := t.text[name]
	return v, ok
}

// SetColumn adds or replaces a numeric column. values must have Len() entries.
func (t *Table) SetColumn(name string, values []float64) error {
	if len(values) != t.Len() {
		return fmt.Errorf("column %q has %d values, table has %d rows", name, len(values), t.Len())
	}
	if _, ok := t.text[name]; ok {
		return fmt.Errorf("column %q already holds text values", name)
	}
	if _, ok := t.numeric[name]; !ok {
		t.numericNames = append(t.numericNames, name)
	}
	t.numeric[name] = append([]float64(nil), values...)
	return nil
}

// SetTextColumn adds or replaces a text column. values must have Len() entries.
func (t *Table) SetTextColumn(name string, values []string) error {
	if len(values) != t.Len() {
		return fmt.Errorf("column %q has %d values, table has %d rows", name, len(values), t.Len())
	}
	if _, ok := t.numeric[name]; ok {
		return fmt.Errorf("column %q already holds numeric values", name)
	}
	if _, ok := t.text[name]; !ok {
		t.textNames = append(t.textNames, name)
	}
	t.text[name] = append([]string(nil), values...)
	return nil
}

// AppendRow appends r. Known columns missing from r get a missing value.
// Unknown names in r create new columns, back-filled with missing values.
func (t *Table) AppendRow(r Row) {
	n := t.Len()

	for _, name := range sortedKeys(r.Values) {
		if _, ok := t.numeric[name]; ok {
			continue
		}
		if _, ok := t.text[name]; ok {
			continue
		}
		t.numericNames = append(t.numericNames, name)
		t.numeric[name] = nanSlice(n)
	}
	for _, name := range sortedKeys(r.Text) {
		if _, ok := t.text[name]; ok {
			continue
		}
		if _, ok := t.numeric[name]; ok {
			continue
		}
		t.textNames = append(t.textNames, name)
		t.text[name] = make([]string, n)
	}

	t.times = append(t.times, r.Time.UTC())
	if t.withStation {
		t.stations = append(t.stations, r.Station)
	}
	if t.withLocation {
		t.latitude = append(t.latitude, r.Latitude)
		t.longitude = append(t.longitude, r.Longitude)
	}

	for _, name := range t.numericNames {
		v, ok := r.Values[name]
		if !ok {
			if s, isText := r.Text[name]; isText {
				v = parseFloatOrNaN(s)
			} else {
				v = math.NaN()
			}
		}
		t.numeric[name] = append(t.numeric[name], v)
	}
	for _, name := range t.textNames {
		s, ok := r.Text[name]
		if !ok {
			if v, isNum := r.Values[name]; isNum {
				s = formatFloat(v)
			}
		}
		t.text[name] = append(t.text[name], s)
	}
}

// Row returns row i.
func (t *Table) Row(i int) Row {
	r := Row{Time: t.times[i]}
	if t.withStation {
		r.Station = t.stations[i]
	}
	if t.withLocation {
		r.Latitude = t.latitude[i]
		r.Longitude = t.longitude[i]
	}
	if len(t.numericNames) > 0 {
		r.Values = make(map[string]float64, len(t.numericNames))
		for _, name := range t.numericNames {
			r.Values[name] = t.numeric[name][i]
		}
	}
	if len(t.textNames) > 0 {
		r.Text = make(map[string]string, len(t.textNames))
		for _, name := range t.textNames {
			r.Text[name] = t.text[name][i]
		}
	}
	return r
}

// Filter returns a new table holding the rows for which keep returns true,
// keeping their order.
func (t *Table) Filter(keep func(i int) bool) *Table {
	out := t.emptyLike()
	for i := 0; i < t.Len(); i++ {
		if !keep(i) {
			continue
		}
		out.times = append(out.times, t.times[i])
		if t.withStation {
			out.stations = append(out.stations, t.stations[i])
		}
		if t.withLocation {
			out.latitude = append(out.latitude, t.latitude[i])
			out.longitude = append(out.longitude, t.longitude[i])
		}
		for _, name := range t.numericNames {
			out.numeric[name] = append(out.numeric[name], t.numeric[name][i])
		}
		for _, name := range t.textNames {
			out.text[name] = append(out.text[name], t.text[name][i])
		}
	}
	return out
}

// Between returns the rows whose timestamp lies in [start, end].
func (t *Table) Between(start, end time.Time) *Table {
	return t.Filter(func(i int) bool {
		ts := t.times[i]
		return !ts.Before(start) && !ts.After(end)
	})
}

// ByStation splits the table into one table per station id, in order of
// first appearance.
func (t *Table) ByStation() ([]string, map[string]*Table) {
	if !t.HasStation() {
		return nil, nil
	}
	var order []string
	seen := make(map[string]bool)
	for _, s := range t.stations {
		if !seen[s] {
			seen[s] = true
			order = append(order, s)
		}
	}
	parts := make(map[string]*Table, len(order))
	for _, s := range order {
		station := s
		parts[station] = t.Filter(func(i int) bool { return t.stations[i] == station })
	}
	return order, parts
}

// Concat stacks tables in the given order. Nil tables contribute nothing.
// The result has the union of all columns; a column is text if any input
// holds it as text. Cells absent from an input are missing values.
func Concat(tables ...*Table) *Table {
	var parts []*Table
	for _, tb := range tables {
		if tb != nil {
			parts = append(parts, tb)
		}
	}

	out := NewTable(false, false)
	textCols := make(map[string]bool)
	for _, p := range parts {
		out.withStation = out.withStation || p.withStation
		out.withLocation = out.withLocation || p.withLocation
		for _, name := range p.textNames {
			textCols[name] = true
		}
	}
	for _, p := range parts {
		for _, name := range p.Columns() {
			if textCols[name] {
				if _, ok := out.text[name]; !ok {
					out.textNames = append(out.textNames, name)
					out.text[name] = nil
				}
				continue
			}
			if _, ok := out.numeric[name]; !ok {
				out.numericNames = append(out.numericNames, name)
				out.numeric[name] = nil
			}
		}
	}

	for _, p := range parts {
		n := p.Len()
		out.times = append(out.times, p.times...)
		if out.withStation {
			if p.withStation {
				out.stations = append(out.stations, p.stations...)
			} else {
				out.stations = append(out.stations, make([]string, n)...)
			}
		}
		if out.withLocation {
			if p.withLocation {
				out.latitude = append(out.latitude, p.latitude...)
				out.longitude = append(out.longitude, p.longitude...)
			} else {
				out.latitude = append(out.latitude, nanSlice(n)...)
				out.longitude = append(out.longitude, nanSlice(n)...)
			}
		}
		for _, name := range out.numericNames {
			if v, ok := p.numeric[name]; ok {
				out.numeric[name] = append(out.numeric[name], v...)
			} else {
				out.numeric[name] = append(out.numeric[name], nanSlice(n)...)
			}
		}
		for _, name := range out.textNames {
			if v, ok := p.text[name]; ok {
				out.text[name] = append(out.text[name], v...)
			} else if v, ok := p.numeric[name]; ok {
				for _, f := range v {
					out.text[name] = append(out.text[name], formatFloat(f))
				}
			} else {
				out.text[name] = append(out.text[name], make([]string, n)...)
			}
		}
	}
	return out
}

func (t *Table) emptyLike() *Table {
	out := NewTable(t.HasStation(), t.HasLocation())
	if t == nil {
		return out
	}
	out.numericNames = append(out.numericNames, t.numericNames...)
	out.textNames = append(out.textNames, t.textNames...)
	for _, name := range t.numericNames {
		out.numeric[name] = []float64{}
	}
	for _, name := range t.textNames {
		out.text[name] = []string{}
	}
	return out
}

func nanSlice(n int) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = math.NaN()
	}
	return s
}

func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func parseFloatOrNaN(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
