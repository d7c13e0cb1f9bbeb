package collector

import (
	"fmt"
	"log/slog"
	"sort"
	"strconv"

	"github.com/obsidianstack/prtg-exporter/exporter/internal/config"
	"github.com/obsidianstack/prtg-exporter/exporter/internal/convert"
	"github.com/obsidianstack/prtg-exporter/exporter/internal/prtg"
)

// fixedLabels is the label prefix of every sample, in order.
var fixedLabels = config.FixedLabels

// GaugeType is the only family type produced.
const GaugeType = "gauge"

// Sample is one (name, labels, value) triple. LabelNames and LabelValues
// have equal length and order.
type Sample struct {
	Name        string
	LabelNames  []string
	LabelValues []string
	Value       float64
}

// Family is a named group of samples.
type Family struct {
	Name    string
	Type    string
	Help    string
	Samples []Sample
}

// Builder converts sensors into samples. It is safe for concurrent use.
type Builder struct {
	converters *convert.Registry
}

// NewBuilder returns a Builder applying the given converters to
// sensor-level samples. A nil registry disables conversion.
func NewBuilder(converters *convert.Registry) *Builder {
	return &Builder{converters: converters}
}

// Build groups samples by sensor type. Within a type, samples follow the
// order of sensors and channels in the input.
func (b *Builder) Build(sensors []prtg.Sensor) map[string][]Sample {
	out := make(map[string][]Sample)
	for i := range sensors {
		s := &sensors[i]
		typ, err := s.Type()
		if err != nil {
			slog.Debug("collector: sensor skipped", "sensor", s.ID(), "err", err)
			continue
		}
		samples := b.sensorSamples(s, typ)
		if len(samples) > 0 {
			out[typ] = append(out[typ], samples...)
		}
	}
	return out
}

// Families groups the output of Build by metric name, sorted by name.
func (b *Builder) Families(sensors []prtg.Sensor) []Family {
	byName := make(map[string]*Family)
	var names []string
	types := b.Build(sensors)

	// Iterate types in order so samples of families fed by several types
	// (several tags sanitizing to one name) come out in a stable order.
	typeNames := make([]string, 0, len(types))
	for t := range types {
		typeNames = append(typeNames, t)
	}
	sort.Strings(typeNames)

	for _, t := range typeNames {
		for _, smp := range types[t] {
			f, ok := byName[smp.Name]
			if !ok {
				f = &Family{Name: smp.Name, Type: GaugeType, Help: smp.Name}
				byName[smp.Name] = f
				names = append(names, smp.Name)
			}
			f.Samples = append(f.Samples, smp)
		}
	}

	sort.Strings(names)
	out := make([]Family, 0, len(names))
	for _, n := range names {
		out = append(out, *byName[n])
	}
	return out
}

func (b *Builder) sensorSamples(s *prtg.Sensor, typ string) []Sample {
	base, err := baseValues(s, typ)
	if err != nil {
		slog.Debug("collector: sensor skipped", "sensor", s.ID(), "err", err)
		return nil
	}
	names := labelNames(s.AdditionalLabels)
	extra := make([]string, len(s.AdditionalLabels))
	for i, l := range s.AdditionalLabels {
		extra[i] = l.Value
	}

	if len(s.Channels) == 0 {
		name, v, ok := b.sensorValue(s, typ)
		if !ok {
			return nil
		}
		return []Sample{{
			Name:        name,
			LabelNames:  names,
			LabelValues: values(base, "", "", extra),
			Value:       v,
		}}
	}

	name, err := MetricName(typ)
	if err != nil {
		slog.Debug("collector: sensor skipped", "sensor", s.ID(), "err", err)
		return nil
	}
	out := make([]Sample, 0, len(s.Channels))
	for _, ch := range s.Channels {
		if ch.ObjID == nil || !ch.LastValueRaw.Valid {
			continue
		}
		chName := ""
		if ch.Name != nil {
			chName = *ch.Name
		}
		out = append(out, Sample{
			Name:        name,
			LabelNames:  names,
			LabelValues: values(base, strconv.FormatInt(*ch.ObjID, 10), chName, extra),
			Value:       ch.LastValueRaw.Value,
		})
	}
	return out
}

// sensorValue resolves the metric name and value of a sensor-level sample,
// applying the converter registered for typ. ok is false when the sensor has
// no usable value.
func (b *Builder) sensorValue(s *prtg.Sensor, typ string) (string, float64, bool) {
	if c, found := b.converters.For(typ); found {
		name, err := MetricName(c.ConvertName(typ))
		if err != nil {
			slog.Debug("collector: sensor skipped", "sensor", s.ID(), "err", err)
			return "", 0, false
		}
		if s.LastValue == nil {
			return "", 0, false
		}
		v, ok, err := c.ConvertValue(*s.LastValue)
		if err != nil {
			slog.Debug("collector: sensor skipped", "sensor", s.ID(),
				"err", fmt.Errorf("%w: %w", prtg.ErrData, err))
			return "", 0, false
		}
		return name, v, ok
	}

	if !s.LastValueRaw.Valid {
		return "", 0, false
	}
	name, err := MetricName(typ)
	if err != nil {
		slog.Debug("collector: sensor skipped", "sensor", s.ID(), "err", err)
		return "", 0, false
	}
	return name, s.LastValueRaw.Value, true
}

// sensorLabels holds the sensor-level values of the fixed labels.
type sensorLabels struct {
	id, device, name, group, typ string
}

func baseValues(s *prtg.Sensor, typ string) (sensorLabels, error) {
	switch {
	case s.ObjID == nil:
		return sensorLabels{}, fmt.Errorf("%w: missing objid", prtg.ErrData)
	case s.Device == nil:
		return sensorLabels{}, fmt.Errorf("%w: missing device", prtg.ErrData)
	case s.Name == nil:
		return sensorLabels{}, fmt.Errorf("%w: missing name", prtg.ErrData)
	case s.Group == nil:
		return sensorLabels{}, fmt.Errorf("%w: missing group", prtg.ErrData)
	}
	return sensorLabels{
		id:     strconv.FormatInt(*s.ObjID, 10),
		device: *s.Device,
		name:   *s.Name,
		group:  *s.Group,
		typ:    typ,
	}, nil
}

func labelNames(extra prtg.Labels) []string {
	out := make([]string, 0, len(fixedLabels)+len(extra))
	out = append(out, fixedLabels...)
	for _, l := range extra {
		out = append(out, labelName(l.Name))
	}
	return out
}

func values(b sensorLabels, channelID, channelName string, extra []string) []string {
	out := make([]string, 0, len(fixedLabels)+len(extra))
	out = append(out, b.id, b.device, b.name, channelID, channelName, b.group, b.typ)
	return append(out, extra...)
}
