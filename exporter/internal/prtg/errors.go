package prtg

import "errors"

var (
	// ErrNetwork marks failed, timed out or non-200 API requests.
	ErrNetwork = errors.New("prtg: network error")

	// ErrParse marks API responses that are not the expected JSON shape.
	ErrParse = errors.New("prtg: parse error")

	// ErrData marks a record that lacks a field required to emit a sample.
	ErrData = errors.New("prtg: data error")
)
