package convert

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/obsidianstack/prtg-exporter/exporter/internal/config"
)

// ErrUnit is returned when a display value carries a unit the converter
// does not know how to scale.
var ErrUnit = errors.New("unknown unit")

// Converter turns a sensor's display value into a sample value.
type Converter interface {
	// SensorType is the tag this converter is registered under.
	SensorType() string

	// ConvertName returns the family suffix used instead of the sensor type.
	ConvertName(sensorType string) string

	// ConvertValue parses a display value. ok is false when the text carries
	// no reading ("-" or blank); err is non-nil when it cannot be parsed.
	ConvertValue(display string) (v float64, ok bool, err error)
}

// New returns the built-in converter registered under name.
func New(name string) (Converter, error) {
	switch name {
	case config.ConverterCPU:
		return cpuConverter{}, nil
	case config.ConverterMemory:
		return memoryConverter{}, nil
	default:
		return nil, fmt.Errorf("convert: unsupported converter %q", name)
	}
}

// Registry maps sensor types to converters. The zero value is empty.
// A Registry is read-only after construction.
type Registry struct {
	byType map[string]Converter
}

// NewRegistry registers each converter under its SensorType. A later
// converter for the same type replaces an earlier one.
func NewRegistry(cs ...Converter) *Registry {
	r := &Registry{byType: make(map[string]Converter, len(cs))}
	for _, c := range cs {
		r.byType[c.SensorType()] = c
	}
	return r
}

// Lookup builds a Registry from converter names as found in the config.
func Lookup(names []string) (*Registry, error) {
	cs := make([]Converter, 0, len(names))
	for _, name := range names {
		c, err := New(name)
		if err != nil {
			return nil, err
		}
		cs = append(cs, c)
	}
	return NewRegistry(cs...), nil
}

// For returns the converter for sensorType, if any.
func (r *Registry) For(sensorType string) (Converter, bool) {
	if r == nil {
		return nil, false
	}
	c, ok := r.byType[sensorType]
	return c, ok
}

// Len reports the number of registered converters.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.byType)
}

// cpuConverter reads Hyper-V host CPU load, displayed as "37 %", as a ratio.
type cpuConverter struct{}

func (cpuConverter) SensorType() string        { return config.ConverterCPU }
func (cpuConverter) ConvertName(string) string { return "cpu_used" }

func (cpuConverter) ConvertValue(display string) (float64, bool, error) {
	fields, ok := tokens(display)
	if !ok {
		return 0, false, nil
	}
	v, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, false, nil
	}
	return v / 100, true, nil
}

// memoryConverter reads WMI memory usage, displayed as "512 MByte" or
// "3 GByte", in kilobytes.
type memoryConverter struct{}

func (memoryConverter) SensorType() string        { return config.ConverterMemory }
func (memoryConverter) ConvertName(string) string { return "memory_used" }

func (memoryConverter) ConvertValue(display string) (float64, bool, error) {
	fields, ok := tokens(display)
	if !ok {
		return 0, false, nil
	}
	v, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, false, nil
	}
	if len(fields) == 1 {
		return v, true, nil
	}
	switch fields[1] {
	case "MByte":
		return v * 1024, true, nil
	case "GByte":
		return v * 1024 * 1024, true, nil
	default:
		return 0, false, fmt.Errorf("convert: memory value %q: %w %q", display, ErrUnit, fields[1])
	}
}

// tokens splits a display value on whitespace. ok is false for blank values
// and PRTG's "-" placeholder.
func tokens(display string) ([]string, bool) {
	s := strings.TrimSpace(display)
	if s == "" || s == "-" {
		return nil, false
	}
	return strings.Fields(s), true
}
