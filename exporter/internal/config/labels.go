package config

import (
	"strings"

	"github.com/prometheus/common/model"
)

// FixedLabels are the labels every PRTG sample starts with, in order.
var FixedLabels = []string{
	"sensor_id", "device", "name", "channel_id", "channel_name", "group", "sensor_type",
}

// ExportedLabelName returns the name an additional label is exported under.
// Names that collide with a fixed label or use the reserved "__" prefix are
// prefixed with "exported_", as Prometheus does for target labels.
func ExportedLabelName(name string) string {
	for _, fixed := range FixedLabels {
		if name == fixed {
			return "exported_" + name
		}
	}
	if strings.HasPrefix(name, model.ReservedLabelPrefix) {
		return "exported_" + name
	}
	return name
}
