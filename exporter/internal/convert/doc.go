// Package convert parses PRTG display values for sensor types whose raw
// value is not the number worth exporting.
//
// A Converter is registered by sensor type (the first tag of a sensor). It
// renames the metric family and derives the sample value from the sensor's
// lastvalue text, e.g. "2,5 GByte" style memory readings or "12 %" CPU load.
// Factory: New(name) returns a built-in converter; Lookup builds a Registry
// from the configured names.
package convert
