package model

import (
	"encoding/json"
	"time"
)

// Solve kinds
const (
	KindMatrix = "matrix"
	KindStops  = "stops"
)

// Solve statuses
const (
	StatusSolved     = "solved"
	StatusNoSolution = "no_solution"
)

// SolveRecord is a persisted solve: the request as received and the response as sent.
type SolveRecord struct {
	ID         string          `json:"id"`
	TenantID   string          `json:"tenantId"`
	Kind       string          `json:"kind"`
	Status     string          `json:"status"`
	Nodes      int             `json:"nodes"`
	Cost       int64           `json:"cost"`
	DurationMs int64           `json:"durationMs"`
	Request    json.RawMessage `json:"request,omitempty"`
	Response   json.RawMessage `json:"response"`
	Stats      json.RawMessage `json:"stats,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
}

// SolveStats aggregates solve records of a tenant.
type SolveStats struct {
	Total         int     `json:"total"`
	Solved        int     `json:"solved"`
	NoSolution    int     `json:"noSolution"`
	AvgDurationMs float64 `json:"avgDurationMs"`
	AvgNodes      float64 `json:"avgNodes"`
}

type SubscriptionRequest struct {
	TenantID string   `json:"tenantId"`
	URL      string   `json:"url"`
	Events   []string `json:"events"`
	Secret   string   `json:"secret"`
}

type Subscription struct {
	ID       string   `json:"id"`
	TenantID string   `json:"tenantId"`
	URL      string   `json:"url"`
	Events   []string `json:"events"`
	Secret   string   `json:"secret,omitempty"`
}

// Webhook event types
const (
	EventSolveCompleted  = "solve.completed"
	EventSolveNoSolution = "solve.no_solution"
)
