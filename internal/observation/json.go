package observation

import (
	"bytes"
	"math"
	"time"

	"github.com/goccy/go-json"
)

// MarshalJSON encodes the table as an array of row objects with the keys
// date, stid, latitude, longitude (when present) followed by the measurement
// columns. Missing readings encode as null.
func (t *Table) MarshalJSON() ([]byte, error) {
	if t == nil {
		return []byte("[]"), nil
	}

	var buf bytes.Buffer
	buf.WriteByte('[')
	for i := 0; i < t.Len(); i++ {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteByte('{')
		if err := writeField(&buf, "date", t.times[i].Format(time.RFC3339Nano), true); err != nil {
			return nil, err
		}
		if t.withStation {
			if err := writeField(&buf, "stid", t.stations[i], false); err != nil {
				return nil, err
			}
		}
		if t.withLocation {
			if err := writeField(&buf, "latitude", nullableFloat(t.latitude[i]), false); err != nil {
				return nil, err
			}
			if err := writeField(&buf, "longitude", nullableFloat(t.longitude[i]), false); err != nil {
				return nil, err
			}
		}
		for _, name := range t.numericNames {
			if err := writeField(&buf, name, nullableFloat(t.numeric[name][i]), false); err != nil {
				return nil, err
			}
		}
		for _, name := range t.textNames {
			var v any
			if s := t.text[name][i]; s != "" {
				v = s
			}
			if err := writeField(&buf, name, v, false); err != nil {
				return nil, err
			}
		}
		buf.WriteByte('}')
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

func writeField(buf *bytes.Buffer, key string, value any, first bool) error {
	if !first {
		buf.WriteByte(',')
	}
	k, err := json.Marshal(key)
	if err != nil {
		return err
	}
	v, err := json.Marshal(value)
	if err != nil {
		return err
	}
	buf.Write(k)
	buf.WriteByte(':')
	buf.Write(v)
	return nil
}

func nullableFloat(v float64) any {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}
