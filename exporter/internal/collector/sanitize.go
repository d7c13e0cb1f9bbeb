package collector

import (
	"fmt"
	"strings"

	"github.com/prometheus/common/model"

	"github.com/obsidianstack/prtg-exporter/exporter/internal/config"
	"github.com/obsidianstack/prtg-exporter/exporter/internal/prtg"
)

// MetricPrefix precedes the sensor type in every family name.
const MetricPrefix = "prtg_sensor_"

// Sanitize maps s onto [a-zA-Z0-9_]: any other character becomes '_' and a
// leading digit gets a '_' prefix. An empty input yields "_".
func Sanitize(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 1)
	for i, r := range s {
		if i == 0 && r >= '0' && r <= '9' {
			b.WriteByte('_')
		}
		if isNameRune(r) {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "_"
	}
	return b.String()
}

func isNameRune(r rune) bool {
	return r == '_' ||
		(r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9')
}

// MetricName returns the family name for a sensor type or converter name.
func MetricName(suffix string) (string, error) {
	name := MetricPrefix + Sanitize(suffix)
	if !model.IsValidMetricName(model.LabelValue(name)) {
		return "", fmt.Errorf("%w: invalid metric name %q", prtg.ErrData, name)
	}
	return name, nil
}

// labelName sanitizes an additional label name and moves it out of the way
// of the fixed labels.
func labelName(n string) string {
	return config.ExportedLabelName(Sanitize(n))
}
