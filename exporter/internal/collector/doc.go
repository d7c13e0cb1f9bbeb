// Package collector turns snapshots into Prometheus samples.
//
// Builder (samples.go) groups sensors by type, the first token of their
// tags, and emits one sample per channel, or one sensor-level sample when a
// sensor has no channels. Every sample carries the fixed label set
// sensor_id, device, name, channel_id, channel_name, group, sensor_type
// followed by the sensor's additional labels. Malformed sensors and samples
// are skipped individually and logged at debug level.
//
// A sensor whose channel list came back empty is treated like one whose
// channels could not be fetched: it is exported as a sensor-level sample
// from its own raw value rather than dropped.
//
// Collector (collector.go) is an unchecked prometheus.Collector that reads
// the store, runs the enrichment pipeline on a copy and emits const gauges.
package collector
