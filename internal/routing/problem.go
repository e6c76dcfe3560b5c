// Package routing turns a time-windowed single-vehicle routing request into an
// engine model, solves it under a fixed search policy and decodes the route.
package routing

import (
	"encoding/json"
	"strconv"
	"time"

	"routesolver/internal/engine"
)

const (
	// Horizon bounds every arrival time: one day in seconds.
	Horizon int64 = 86400
	// MaxWait is the longest idle time the solver may insert before a visit.
	MaxWait int64 = 3600
	// TimeLimit is the wall-clock budget of a single solve.
	TimeLimit = 5 * time.Second

	timeDimension = "Time"
)

// Window is an inclusive [Earliest, Latest] arrival interval in seconds.
type Window struct {
	Earliest int64
	Latest   int64
}

// Problem is a validated routing request.
type Problem struct {
	TimeMatrix   [][]int64
	TimeWindows  []Window
	ServiceTimes []int64
	StartIndex   int
	EndIndex     int
}

// N is the number of locations.
func (p Problem) N() int { return len(p.TimeWindows) }

type Status int

const (
	StatusSolved Status = iota
	StatusNoSolution
)

func (s Status) String() string {
	if s == StatusSolved {
		return "solved"
	}
	return "no_solution"
}

// Result is the outcome of a solve. Infeasibility is a Result, not an error.
type Result struct {
	Status       Status
	OrderedNodes []int
	Arrivals     map[string]int64
	// Departure is the cumul at the start position. With a shared depot the
	// depot label in Arrivals holds the return time instead.
	Departure int64
	Cost      int64
	Stats     engine.Stats
}

func noSolution() Result { return Result{Status: StatusNoSolution} }

// Arrival returns the scheduled arrival at node.
func (r Result) Arrival(node int) (int64, bool) {
	t, ok := r.Arrivals[strconv.Itoa(node)]
	return t, ok
}

type routeJSON struct {
	OrderedNodes []int            `json:"ordered_nodes"`
	Arrivals     map[string]int64 `json:"arrivals"`
}

type errorJSON struct {
	Error string `json:"error"`
}

// MarshalJSON renders the wire shape: the route, or {"error":"no_solution"}.
func (r Result) MarshalJSON() ([]byte, error) {
	if r.Status != StatusSolved {
		return json.Marshal(errorJSON{Error: "no_solution"})
	}
	return json.Marshal(routeJSON{OrderedNodes: r.OrderedNodes, Arrivals: r.Arrivals})
}
