package prtg

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Sensor is one row of the PRTG sensor table.
// Pointer fields are nil when PRTG did not return them.
type Sensor struct {
	ObjID        *int64  `json:"objid"`
	Device       *string `json:"device"`
	Name         *string `json:"name"`
	Group        *string `json:"group"`
	Tags         *string `json:"tags"`
	LastValue    *string `json:"lastvalue"`
	LastValueRaw Number  `json:"lastvalue_raw"`

	// Channels is nil when channels were not (or could not be) fetched and
	// empty when the sensor has none.
	Channels []Channel `json:"-"`

	// AdditionalLabels is filled by the enrichment pipeline.
	AdditionalLabels Labels `json:"-"`
}

// Type returns the first tag of the sensor, which names its metric family.
func (s *Sensor) Type() (string, error) {
	if s.Tags == nil {
		return "", fmt.Errorf("%w: sensor %s has no tags", ErrData, s.ID())
	}
	fields := strings.Fields(*s.Tags)
	if len(fields) == 0 {
		return "", fmt.Errorf("%w: sensor %s has blank tags", ErrData, s.ID())
	}
	return fields[0], nil
}

// ID renders the object id for logs, "?" when absent.
func (s *Sensor) ID() string {
	if s.ObjID == nil {
		return "?"
	}
	return strconv.FormatInt(*s.ObjID, 10)
}

// Channel is one row of a sensor's channel table.
type Channel struct {
	ObjID        *int64  `json:"objid"`
	Name         *string `json:"name"`
	LastValue    *string `json:"lastvalue"`
	LastValueRaw Number  `json:"lastvalue_raw"`
}

// Number is an optional float decoded from PRTG's raw value columns, which
// carry either a JSON number or an empty string when there is no reading.
type Number struct {
	Value float64
	Valid bool
}

// Some returns a valid Number holding v.
func Some(v float64) Number { return Number{Value: v, Valid: true} }

// UnmarshalJSON accepts numbers, numeric strings, "" and null.
func (n *Number) UnmarshalJSON(b []byte) error {
	*n = Number{}
	s := strings.TrimSpace(string(b))
	if s == "null" {
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		s = strings.TrimSpace(str)
		if s == "" {
			return nil
		}
		// Non-numeric strings mean PRTG has no raw reading for this row.
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil
		}
		*n = Some(v)
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("decode number %s: %w", s, err)
	}
	*n = Some(v)
	return nil
}

// MarshalJSON writes null for an absent number.
func (n Number) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(n.Value)
}

// Label is one additional label attached by enrichment.
type Label struct {
	Name  string
	Value string
}

// Labels keeps additional labels in insertion order.
type Labels []Label

// Get returns the value of the named label.
func (l Labels) Get(name string) (string, bool) {
	for _, lb := range l {
		if lb.Name == name {
			return lb.Value, true
		}
	}
	return "", false
}

// Set replaces the value of an existing label or appends a new one.
func (l *Labels) Set(name, value string) {
	for i := range *l {
		if (*l)[i].Name == name {
			(*l)[i].Value = value
			return
		}
	}
	*l = append(*l, Label{Name: name, Value: value})
}

// Snapshot is one complete capture of all sensors. It must not be modified
// once published; use Clone to derive a mutable copy.
type Snapshot struct {
	Generation uint64
	FetchedAt  time.Time
	Sensors    []Sensor
}

// Clone returns a copy of the sensors whose channel and label slices can be
// modified without affecting the snapshot.
func (s *Snapshot) Clone() []Sensor {
	out := make([]Sensor, len(s.Sensors))
	for i, sensor := range s.Sensors {
		out[i] = sensor
		if sensor.Channels != nil {
			out[i].Channels = make([]Channel, len(sensor.Channels))
			copy(out[i].Channels, sensor.Channels)
		}
		if sensor.AdditionalLabels != nil {
			out[i].AdditionalLabels = make(Labels, len(sensor.AdditionalLabels))
			copy(out[i].AdditionalLabels, sensor.AdditionalLabels)
		}
	}
	return out
}

// ChannelCount returns the number of channels across all sensors.
func (s *Snapshot) ChannelCount() int {
	n := 0
	for _, sensor := range s.Sensors {
		n += len(sensor.Channels)
	}
	return n
}
