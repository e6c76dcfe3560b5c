package routing

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	RestrictBefore = "before"
	RestrictAfter  = "after"
)

// MinStops is the smallest stops request worth optimizing.
const MinStops = 3

// ParseClock parses "HH:mm" into seconds since midnight.
func ParseClock(s string) (int64, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, malformed("time_restriction", "%q is not HH:mm", s)
	}
	h, err1 := strconv.Atoi(hh)
	m, err2 := strconv.Atoi(mm)
	if err1 != nil || err2 != nil || h < 0 || h > 24 || m < 0 || m > 59 || (h == 24 && m != 0) {
		return 0, malformed("time_restriction", "%q is not HH:mm", s)
	}
	return int64(h*3600 + m*60), nil
}

// FormatClock renders seconds since midnight as zero-padded "HH:mm".
func FormatClock(sec int64) string {
	if sec < 0 {
		sec = 0
	}
	return fmt.Sprintf("%02d:%02d", sec/3600, (sec%3600)/60)
}

// ParseRestriction turns a clock time into a window: "before" allows
// [0, t], "after" allows [t, Horizon]. An empty kind means "before".
func ParseRestriction(clock, kind string) (Window, error) {
	t, err := ParseClock(clock)
	if err != nil {
		return Window{}, err
	}
	switch kind {
	case "", RestrictBefore:
		return Window{Earliest: 0, Latest: t}, nil
	case RestrictAfter:
		return Window{Earliest: t, Latest: Horizon}, nil
	}
	return Window{}, malformed("time_restriction_type", "%q is neither before nor after", kind)
}

// LatestDeparture is the latest time the vehicle may leave the start and
// still honour every "before" restriction along the solved route, given the
// travel time the route needs to reach each of them. A "before 24:00" stop
// counts like any other. A negative result clamps to "00:00". ok is false
// when no visited stop other than the start or end carries a "before"
// restriction.
func (sr StopsRequest) LatestDeparture(p Problem, r Result) (clock string, ok bool) {
	if r.Status != StatusSolved {
		return "", false
	}
	var best int64
	for _, node := range r.OrderedNodes {
		if node == p.StartIndex || node == p.EndIndex || node >= len(sr.Stops) {
			continue
		}
		if s := sr.Stops[node]; s.TimeRestriction == "" || s.TimeRestrictionType == RestrictAfter {
			continue
		}
		arr, found := r.Arrival(node)
		if !found {
			continue
		}
		if d := p.TimeWindows[node].Latest - (arr - r.Departure); !ok || d < best {
			best, ok = d, true
		}
	}
	if !ok {
		return "", false
	}
	return FormatClock(best), true
}

// Stop is one entry of a stops request.
type Stop struct {
	ID                  string `json:"id"`
	Label               string `json:"label,omitempty"`
	TimeRestriction     string `json:"time_restriction,omitempty"`
	TimeRestrictionType string `json:"time_restriction_type,omitempty"`
	ServiceTime         int64  `json:"service_time,omitempty"`
}

// StopsRequest describes stops with clock restrictions instead of raw windows.
type StopsRequest struct {
	Stops      []Stop    `json:"stops"`
	TimeMatrix [][]int64 `json:"time_matrix"`
	StartIndex *int      `json:"start_index,omitempty"`
	EndIndex   *int      `json:"end_index,omitempty"`
}

// StopsResponse is the answer to a StopsRequest.
type StopsResponse struct {
	OrderedStopIDs      []string         `json:"ordered_stop_ids"`
	Arrivals            map[string]int64 `json:"arrivals"`
	LatestDepartureTime *string          `json:"latest_departure_time"`
}

// Problem converts the stops into a Problem. end_index defaults to start_index.
func (sr StopsRequest) Problem() (Problem, error) {
	if len(sr.Stops) < MinStops {
		return Problem{}, malformed("stops", "need at least %d stops to optimize", MinStops)
	}
	p := Problem{
		TimeMatrix:   sr.TimeMatrix,
		TimeWindows:  make([]Window, len(sr.Stops)),
		ServiceTimes: make([]int64, len(sr.Stops)),
	}
	if sr.StartIndex != nil {
		p.StartIndex = *sr.StartIndex
	}
	p.EndIndex = p.StartIndex
	if sr.EndIndex != nil {
		p.EndIndex = *sr.EndIndex
	}
	seen := make(map[string]bool, len(sr.Stops))
	for i, s := range sr.Stops {
		if s.ID == "" {
			return Problem{}, malformed("stops", "stop %d has no id", i)
		}
		if seen[s.ID] {
			return Problem{}, malformed("stops", "duplicate stop id %q", s.ID)
		}
		seen[s.ID] = true
		p.TimeWindows[i] = Window{Earliest: 0, Latest: Horizon}
		if s.TimeRestriction != "" {
			w, err := ParseRestriction(s.TimeRestriction, s.TimeRestrictionType)
			if err != nil {
				return Problem{}, err
			}
			p.TimeWindows[i] = w
		}
		p.ServiceTimes[i] = s.ServiceTime
	}
	if err := p.Validate(); err != nil {
		return Problem{}, err
	}
	return p, nil
}

// Response maps a Result of sr.Problem() back onto stop ids.
func (sr StopsRequest) Response(p Problem, r Result) StopsResponse {
	out := StopsResponse{Arrivals: map[string]int64{}}
	for _, node := range r.OrderedNodes {
		id := sr.Stops[node].ID
		out.OrderedStopIDs = append(out.OrderedStopIDs, id)
		if t, ok := r.Arrival(node); ok {
			out.Arrivals[id] = t
		}
	}
	if clock, ok := sr.LatestDeparture(p, r); ok {
		out.LatestDepartureTime = &clock
	}
	return out
}
