package enrich

import (
	"sort"
	"strings"

	"github.com/obsidianstack/prtg-exporter/exporter/internal/config"
	"github.com/obsidianstack/prtg-exporter/exporter/internal/prtg"
)

// Enricher is one stage of the pipeline. It receives the full sensor list
// and returns it, possibly with extra labels. Stages must not drop sensors.
type Enricher interface {
	Enrich(sensors []prtg.Sensor) []prtg.Sensor
}

// Func adapts a function to the Enricher interface.
type Func func(sensors []prtg.Sensor) []prtg.Sensor

// Enrich calls f.
func (f Func) Enrich(sensors []prtg.Sensor) []prtg.Sensor { return f(sensors) }

// Pipeline runs its stages in order. The zero value is the identity.
type Pipeline struct {
	stages []Enricher
}

// NewPipeline returns a Pipeline running stages in the given order.
func NewPipeline(stages ...Enricher) *Pipeline {
	return &Pipeline{stages: stages}
}

// Enrich feeds sensors through every stage.
func (p *Pipeline) Enrich(sensors []prtg.Sensor) []prtg.Sensor {
	if p == nil {
		return sensors
	}
	for _, s := range p.stages {
		sensors = s.Enrich(sensors)
	}
	return sensors
}

// Len returns the number of stages.
func (p *Pipeline) Len() int {
	if p == nil {
		return 0
	}
	return len(p.stages)
}

// FromConfig builds the pipeline for the labels section of the config:
// static labels first, then tag-derived labels. Empty sections add no stage.
func FromConfig(cfg config.LabelsConfig) *Pipeline {
	var stages []Enricher
	if len(cfg.Static) > 0 {
		stages = append(stages, StaticLabels(cfg.Static))
	}
	if len(cfg.FromTags) > 0 {
		stages = append(stages, TagLabels(cfg.FromTags))
	}
	return NewPipeline(stages...)
}

// StaticLabels adds the same constant labels to every sensor. Labels are
// added in name order so sample label sets are stable across scrapes.
func StaticLabels(labels map[string]string) Enricher {
	names := make([]string, 0, len(labels))
	for n := range labels {
		names = append(names, n)
	}
	sort.Strings(names)

	return Func(func(sensors []prtg.Sensor) []prtg.Sensor {
		for i := range sensors {
			for _, n := range names {
				sensors[i].AdditionalLabels.Set(n, labels[n])
			}
		}
		return sensors
	})
}

// TagLabels extracts "name=value" tokens from a sensor's tags. Every sensor
// gets every configured name, with an empty value when the tag is missing,
// so all samples of a family share one label set.
func TagLabels(names []string) Enricher {
	names = append([]string(nil), names...)

	return Func(func(sensors []prtg.Sensor) []prtg.Sensor {
		for i := range sensors {
			tags := tagValues(sensors[i].Tags)
			for _, n := range names {
				sensors[i].AdditionalLabels.Set(n, tags[n])
			}
		}
		return sensors
	})
}

// tagValues parses the name=value tokens of a tag string. The first
// occurrence of a name wins.
func tagValues(tags *string) map[string]string {
	if tags == nil {
		return nil
	}
	out := make(map[string]string)
	for _, tok := range strings.Fields(*tags) {
		name, value, ok := strings.Cut(tok, "=")
		if !ok || name == "" {
			continue
		}
		if _, seen := out[name]; !seen {
			out[name] = value
		}
	}
	return out
}
