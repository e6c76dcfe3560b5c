package routing

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
)

var ErrMalformedRequest = errors.New("malformed request")

// maxDuration caps travel and service times so route sums cannot overflow.
const maxDuration = math.MaxInt32

// RequestError describes why a request could not be turned into a Problem.
type RequestError struct {
	Field  string
	Reason string
}

func (e *RequestError) Error() string {
	if e.Field == "" {
		return "routing: malformed request: " + e.Reason
	}
	return fmt.Sprintf("routing: malformed request: %s: %s", e.Field, e.Reason)
}

func (e *RequestError) Unwrap() error { return ErrMalformedRequest }

func malformed(field, format string, args ...any) error {
	return &RequestError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Request is the wire shape of a solve request.
type Request struct {
	TimeMatrix   json.RawMessage `json:"time_matrix"`
	TimeWindows  json.RawMessage `json:"time_windows"`
	ServiceTimes json.RawMessage `json:"service_times,omitempty"`
	StartIndex   json.RawMessage `json:"start_index,omitempty"`
	EndIndex     json.RawMessage `json:"end_index"`
}

// DecodeRequest reads one JSON request from r and validates it.
func DecodeRequest(r io.Reader) (Problem, error) {
	var req Request
	dec := json.NewDecoder(r)
	if err := dec.Decode(&req); err != nil {
		return Problem{}, malformed("", "invalid JSON: %v", err)
	}
	if dec.More() {
		return Problem{}, malformed("", "body must contain a single JSON object")
	}
	return req.Problem()
}

// Problem converts the request into a validated Problem. Numbers are
// truncated toward zero; service_times that is not a list of n numbers
// silently becomes all zeros.
func (req Request) Problem() (Problem, error) {
	var p Problem
	if isAbsent(req.TimeMatrix) {
		return p, malformed("time_matrix", "required")
	}
	if isAbsent(req.TimeWindows) {
		return p, malformed("time_windows", "required")
	}
	if isAbsent(req.EndIndex) {
		return p, malformed("end_index", "required")
	}

	var rows [][]float64
	if err := json.Unmarshal(req.TimeMatrix, &rows); err != nil {
		return p, malformed("time_matrix", "must be a list of lists of integers")
	}
	p.TimeMatrix = make([][]int64, len(rows))
	for i, row := range rows {
		p.TimeMatrix[i] = make([]int64, len(row))
		for j, v := range row {
			t, ok := truncate(v)
			if !ok {
				return p, malformed("time_matrix", "entry [%d][%d] out of range", i, j)
			}
			p.TimeMatrix[i][j] = t
		}
	}

	var windows [][]float64
	if err := json.Unmarshal(req.TimeWindows, &windows); err != nil {
		return p, malformed("time_windows", "must be a list of [earliest, latest] pairs")
	}
	p.TimeWindows = make([]Window, len(windows))
	for i, w := range windows {
		if len(w) != 2 {
			return p, malformed("time_windows", "window %d must have exactly two values", i)
		}
		lo, ok1 := truncate(w[0])
		hi, ok2 := truncate(w[1])
		if !ok1 || !ok2 {
			return p, malformed("time_windows", "window %d out of range", i)
		}
		p.TimeWindows[i] = Window{Earliest: lo, Latest: hi}
	}

	var err error
	if p.StartIndex, err = decodeIndex("start_index", req.StartIndex, 0); err != nil {
		return p, err
	}
	if p.EndIndex, err = decodeIndex("end_index", req.EndIndex, 0); err != nil {
		return p, err
	}
	p.ServiceTimes = decodeServiceTimes(req.ServiceTimes, len(p.TimeWindows))
	if err := p.Validate(); err != nil {
		return Problem{}, err
	}
	return p, nil
}

// Validate checks the shape of p: a square matrix sized like the windows,
// non-negative travel and service times, depot indices in range.
func (p Problem) Validate() error {
	n := len(p.TimeWindows)
	if n == 0 {
		return malformed("time_windows", "must not be empty")
	}
	if len(p.TimeMatrix) != n {
		return malformed("time_matrix", "has %d rows, time_windows has %d entries", len(p.TimeMatrix), n)
	}
	for i, row := range p.TimeMatrix {
		if len(row) != n {
			return malformed("time_matrix", "row %d has %d columns, want %d", i, len(row), n)
		}
		for j, t := range row {
			if t < 0 {
				return malformed("time_matrix", "entry [%d][%d] is negative", i, j)
			}
			if t > maxDuration {
				return malformed("time_matrix", "entry [%d][%d] is too large", i, j)
			}
		}
	}
	if p.StartIndex < 0 || p.StartIndex >= n {
		return malformed("start_index", "%d out of range [0,%d)", p.StartIndex, n)
	}
	if p.EndIndex < 0 || p.EndIndex >= n {
		return malformed("end_index", "%d out of range [0,%d)", p.EndIndex, n)
	}
	if len(p.ServiceTimes) == n {
		for i, s := range p.ServiceTimes {
			if s < 0 || s > maxDuration {
				return malformed("service_times", "entry %d out of range", i)
			}
		}
	}
	return nil
}

func isAbsent(raw json.RawMessage) bool {
	return len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func decodeIndex(field string, raw json.RawMessage, def int) (int, error) {
	if isAbsent(raw) {
		return def, nil
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, malformed(field, "must be an integer")
	}
	t, ok := truncate(v)
	if !ok || t > math.MaxInt32 || t < math.MinInt32 {
		return 0, malformed(field, "out of range")
	}
	return int(t), nil
}

func decodeServiceTimes(raw json.RawMessage, n int) []int64 {
	zeros := make([]int64, n)
	if isAbsent(raw) {
		return zeros
	}
	var vals []float64
	if err := json.Unmarshal(raw, &vals); err != nil || len(vals) != n {
		return zeros
	}
	out := make([]int64, n)
	for i, v := range vals {
		t, ok := truncate(v)
		if !ok {
			return zeros
		}
		out[i] = t
	}
	return out
}

func truncate(v float64) (int64, bool) {
	if math.IsNaN(v) || v >= math.MaxInt64 || v <= math.MinInt64 {
		return 0, false
	}
	return int64(v), true
}
