package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrMalformed marks a record that could not be turned into a Sample.
// Callers treat it as bad input, never as a relay fault.
var ErrMalformed = errors.New("malformed record")

// Sample is one timestamped group of values emitted by the producer.
// A Sample is immutable once built; consumers only read it.
type Sample struct {
	// Stamp is seconds since process start. Non-decreasing for one producer.
	Stamp float64 `json:"stamp"`

	// Values holds the parsed record fields in input order.
	Values []float64 `json:"values"`
}

// ParseRecord converts the raw fields of one input record into a Sample
// stamped with stamp. Surrounding whitespace is ignored. Any field that is
// not a finite number makes the whole record malformed.
func ParseRecord(fields []string, stamp float64) (Sample, error) {
	values := make([]float64, 0, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return Sample{}, fmt.Errorf("%w: field %d %q: %v", ErrMalformed, i, f, err)
		}
		values = append(values, v)
	}
	return Sample{Stamp: stamp, Values: values}, nil
}

// Encode serializes s into its wire representation.
// NaN and infinite values cannot be represented in JSON and are reported as
// ErrMalformed.
func (s Sample) Encode() ([]byte, error) {
	if s.Values == nil {
		s.Values = []float64{}
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("%w: encode: %v", ErrMalformed, err)
	}
	return b, nil
}

// Decode parses a wire payload back into a Sample.
func Decode(data []byte) (Sample, error) {
	var s Sample
	if err := json.Unmarshal(data, &s); err != nil {
		return Sample{}, fmt.Errorf("decode sample: %w", err)
	}
	if s.Values == nil {
		s.Values = []float64{}
	}
	return s, nil
}
