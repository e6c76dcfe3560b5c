package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"routesolver/internal/model"
	"routesolver/internal/routing"
	"routesolver/internal/store"
)

func queryLimit(r *http.Request) int {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		fmt.Sscanf(v, "%d", &limit)
	}
	return limit
}

// SolvesIndexHandler handles GET /v1/solves
func (s *Server) SolvesIndexHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v1/solves" {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p, ok := s.principal(w, r)
	if !ok {
		return
	}
	status := r.URL.Query().Get("status")
	cursor := r.URL.Query().Get("cursor")
	items, next, err := s.Store.ListSolves(r.Context(), p.Tenant, status, cursor, queryLimit(r))
	if err != nil {
		writeProblem(w, 500, "List solves failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, 200, map[string]any{"items": items, "nextCursor": next})
}

// SolveByIDHandler handles GET /v1/solves/{id} and GET /v1/solves/{id}/events/stream
func (s *Server) SolveByIDHandler(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	rest := strings.TrimPrefix(path, "/v1/solves/")
	if rest == path || rest == "" {
		writeProblem(w, http.StatusNotFound, "Not Found", "missing id", path)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p, ok := s.principal(w, r)
	if !ok {
		return
	}
	parts := strings.Split(rest, "/")
	id := parts[0]
	switch {
	case len(parts) == 1:
		rec, err := s.Store.GetSolve(r.Context(), p.Tenant, id)
		if errors.Is(err, store.ErrNotFound) {
			writeProblem(w, http.StatusNotFound, "Solve not found", id, path)
			return
		}
		if err != nil {
			writeProblem(w, 500, "Get solve failed", err.Error(), path)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	case len(parts) == 3 && parts[1] == "events" && parts[2] == "stream":
		s.streamSolveEvents(w, r, p.Tenant, id)
	default:
		writeProblem(w, http.StatusNotFound, "Not Found", "", path)
	}
}

// streamSolveEvents serves SSE for one solve until the client leaves or the
// solve reaches a terminal event. An already stored solve replays its
// terminal event and ends the stream.
func (s *Server) streamSolveEvents(w http.ResponseWriter, r *http.Request, tenant, id string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeProblem(w, 500, "Streaming unsupported", "", r.URL.Path)
		return
	}
	topic := solveTopic(tenant, id)
	ch := s.Broker.Subscribe(topic)
	defer s.Broker.Unsubscribe(topic, ch)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	// initial heartbeat
	writeSSE(w, SSEEvent{Type: "heartbeat", Data: map[string]any{"solveId": id, "ts": time.Now().UTC().Format(time.RFC3339)}})
	flusher.Flush()

	if rec, err := s.Store.GetSolve(r.Context(), tenant, id); err == nil {
		writeSSE(w, recordEvent(rec))
		flusher.Flush()
		return
	}

	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			writeSSE(w, SSEEvent{Type: "heartbeat", Data: map[string]any{"solveId": id, "ts": time.Now().UTC().Format(time.RFC3339)}})
			flusher.Flush()
		case evt, ok := <-ch:
			if !ok {
				return
			}
			writeSSE(w, evt)
			flusher.Flush()
			if isTerminal(evt.Type) {
				return
			}
		}
	}
}

func writeSSE(w http.ResponseWriter, evt SSEEvent) {
	b, _ := json.Marshal(evt.Data)
	fmt.Fprintf(w, "event: %s\n", evt.Type)
	fmt.Fprintf(w, "data: %s\n\n", b)
}

func isTerminal(eventType string) bool {
	return eventType == model.EventSolveCompleted || eventType == model.EventSolveNoSolution
}

// recordEvent rebuilds the terminal event of a stored solve.
func recordEvent(rec model.SolveRecord) SSEEvent {
	typ := model.EventSolveCompleted
	if rec.Status != model.StatusSolved {
		typ = model.EventSolveNoSolution
	}
	return SSEEvent{Type: typ, Data: map[string]any{
		"solveId":    rec.ID,
		"kind":       rec.Kind,
		"status":     rec.Status,
		"nodes":      rec.Nodes,
		"cost":       rec.Cost,
		"durationMs": rec.DurationMs,
	}}
}

// SolverConfigHandler returns the fixed search policy.
func (s *Server) SolverConfigHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v1/solver/config" || r.Method != http.MethodGet {
		writeProblem(w, 404, "Not Found", "", r.URL.Path)
		return
	}
	params := s.Solver.Parameters()
	writeJSON(w, 200, map[string]any{
		"firstSolutionStrategy":    params.FirstSolutionStrategy.String(),
		"localSearchMetaheuristic": params.LocalSearchMetaheuristic.String(),
		"timeLimitMs":              params.TimeLimit.Milliseconds(),
		"horizon":                  routing.Horizon,
		"maxWait":                  routing.MaxWait,
		"maxConcurrent":            cap(s.sem),
	})
}

// SubscriptionsHandler handles POST/GET /v1/subscriptions
func (s *Server) SubscriptionsHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v1/subscriptions" {
		writeProblem(w, 404, "Not Found", "", r.URL.Path)
		return
	}
	p, ok := s.admin(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodPost:
		var req model.SubscriptionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		req.TenantID = p.Tenant
		if err := validateSubscription(req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid subscription", err.Error(), r.URL.Path)
			return
		}
		sub, err := s.Store.CreateSubscription(r.Context(), req)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "Create subscription failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusCreated, sub)
	case http.MethodGet:
		cursor := r.URL.Query().Get("cursor")
		items, next, err := s.Store.ListSubscriptions(r.Context(), p.Tenant, cursor, queryLimit(r))
		if err != nil {
			writeProblem(w, 500, "List subscriptions failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, 200, map[string]any{"items": items, "nextCursor": next})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func validateSubscription(req model.SubscriptionRequest) error {
	u, err := url.Parse(req.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("url must be an absolute http(s) URL")
	}
	if len(req.Events) == 0 {
		return fmt.Errorf("events must not be empty")
	}
	for _, e := range req.Events {
		if !isTerminal(e) {
			return fmt.Errorf("unknown event %q (allowed: %s, %s)", e, model.EventSolveCompleted, model.EventSolveNoSolution)
		}
	}
	return nil
}

// Subscription delete (admin)
func (s *Server) SubscriptionByIDHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		w.WriteHeader(405)
		return
	}
	p, ok := s.admin(w, r)
	if !ok {
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/v1/subscriptions/")
	err := s.Store.DeleteSubscription(r.Context(), p.Tenant, id)
	if errors.Is(err, store.ErrNotFound) {
		writeProblem(w, 404, "Subscription not found", id, r.URL.Path)
		return
	}
	if err != nil {
		writeProblem(w, 500, "Delete subscription failed", err.Error(), r.URL.Path)
		return
	}
	w.WriteHeader(204)
}

func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, 200, map[string]string{"status": "ok"})
}

func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
	defer cancel()
	if err := s.Store.Ping(ctx); err != nil {
		writeProblem(w, 503, "Not Ready", err.Error(), r.URL.Path)
		return
	}
	type pinger interface {
		Ping(ctx context.Context) error
	}
	if b, ok := s.Broker.(pinger); ok {
		if err := b.Ping(ctx); err != nil {
			writeProblem(w, 503, "Not Ready", err.Error(), r.URL.Path)
			return
		}
	}
	writeJSON(w, 200, map[string]string{"status": "ready"})
}

// Admin: solve stats
func (s *Server) SolveStatsHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v1/admin/solves/stats" || r.Method != http.MethodGet {
		writeProblem(w, 404, "Not Found", "", r.URL.Path)
		return
	}
	p, ok := s.admin(w, r)
	if !ok {
		return
	}
	var since time.Time
	if v := r.URL.Query().Get("sinceHours"); v != "" {
		hours := 0
		fmt.Sscanf(v, "%d", &hours)
		if hours > 0 {
			since = time.Now().Add(-time.Duration(hours) * time.Hour)
		}
	}
	stats, err := s.Store.SolveStats(r.Context(), p.Tenant, since)
	if err != nil {
		writeProblem(w, 500, "Stats failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, 200, stats)
}

// Admin: webhook deliveries list and retry
func (s *Server) WebhookDeliveriesHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v1/admin/webhook-deliveries" {
		writeProblem(w, 404, "Not Found", "", r.URL.Path)
		return
	}
	p, ok := s.admin(w, r)
	if !ok {
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(405)
		return
	}
	status := r.URL.Query().Get("status")
	cursor := r.URL.Query().Get("cursor")
	items, next, err := s.Store.ListWebhookDeliveries(r.Context(), p.Tenant, status, cursor, queryLimit(r))
	if err != nil {
		writeProblem(w, 500, "List deliveries failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, 200, map[string]any{"items": items, "nextCursor": next})
}

func (s *Server) WebhookDeliveryRetryHandler(w http.ResponseWriter, r *http.Request) {
	if !strings.HasPrefix(r.URL.Path, "/v1/admin/webhook-deliveries/") || !strings.HasSuffix(r.URL.Path, "/retry") {
		writeProblem(w, 404, "Not Found", "", r.URL.Path)
		return
	}
	if r.Method != http.MethodPost {
		w.WriteHeader(405)
		return
	}
	p, ok := s.admin(w, r)
	if !ok {
		return
	}
	id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/v1/admin/webhook-deliveries/"), "/retry")
	err := s.Store.RetryWebhookDelivery(r.Context(), p.Tenant, id)
	if errors.Is(err, store.ErrNotFound) {
		writeProblem(w, 404, "Delivery not found", id, r.URL.Path)
		return
	}
	if err != nil {
		writeProblem(w, 500, "Retry delivery failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, 202, map[string]int{"accepted": 1})
}

// Admin: webhook DLQ list and requeue
func (s *Server) WebhookDLQHandler(w http.ResponseWriter, r *http.Request) {
	p, ok := s.admin(w, r)
	if !ok {
		return
	}
	if r.URL.Path == "/v1/admin/webhook-dlq" && r.Method == http.MethodGet {
		cursor := r.URL.Query().Get("cursor")
		items, next, err := s.Store.ListWebhookDLQ(r.Context(), p.Tenant, cursor, queryLimit(r))
		if err != nil {
			writeProblem(w, 500, "List DLQ failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, 200, map[string]any{"items": items, "nextCursor": next})
		return
	}
	if strings.HasPrefix(r.URL.Path, "/v1/admin/webhook-dlq/") && strings.HasSuffix(r.URL.Path, "/requeue") && r.Method == http.MethodPost {
		id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/v1/admin/webhook-dlq/"), "/requeue")
		err := s.Store.RequeueWebhookDLQ(r.Context(), p.Tenant, id)
		if errors.Is(err, store.ErrNotFound) {
			writeProblem(w, 404, "DLQ entry not found", id, r.URL.Path)
			return
		}
		if err != nil {
			writeProblem(w, 500, "Requeue failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, 202, map[string]int{"accepted": 1})
		return
	}
	writeProblem(w, 404, "Not Found", "", r.URL.Path)
}
