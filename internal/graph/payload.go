package graph

import (
	"fmt"
	"strconv"
	"time"
)

// Payload holds a leaf action's kind and its positional parameters.
// The graph never interprets Parameters; leaf handlers read them by position.
type Payload struct {
	Kind       string   `json:"kind" yaml:"kind" msgpack:"kind"`
	Parameters []string `json:"parameters" yaml:"parameters" msgpack:"parameters"`
}

// NewPayload builds a payload from a kind and parameters.
func NewPayload(kind string, params ...string) Payload {
	return Payload{Kind: kind, Parameters: append([]string{}, params...)}
}

// Clone returns a deep copy.
func (p Payload) Clone() Payload {
	return Payload{Kind: p.Kind, Parameters: append([]string{}, p.Parameters...)}
}

// Param returns parameter i, or "" when absent.
func (p Payload) Param(i int) string {
	if i < 0 || i >= len(p.Parameters) {
		return ""
	}
	return p.Parameters[i]
}

// Float parses parameter i as a float64.
func (p Payload) Float(i int) (float64, error) {
	raw := p.Param(i)
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%s parameter %d: %q is not a number", p.Kind, i, raw)
	}
	return v, nil
}

// Floats parses parameters [from, from+n) as float64s.
func (p Payload) Floats(from, n int) ([]float64, error) {
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		v, err := p.Float(from + i)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// Seconds parses parameter i as a duration in seconds. A missing parameter is zero.
func (p Payload) Seconds(i int) (time.Duration, error) {
	if p.Param(i) == "" {
		return 0, nil
	}
	v, err := p.Float(i)
	if err != nil {
		return 0, err
	}
	return time.Duration(v * float64(time.Second)), nil
}
