package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"routesolver/internal/model"
)

// Memory is a simple in-memory store used when no DATABASE_URL is set.
type Memory struct {
	mu                 sync.Mutex
	solves             map[string]model.SolveRecord    // id -> record
	solvesByTenant     map[string][]string             // tenant -> ids, oldest first
	subs               map[string][]model.Subscription // tenant -> subscriptions
	deliveries         map[string]*memDelivery         // id -> delivery state
	deliveriesByTenant map[string][]string             // tenant -> delivery ids
	dlq                []memDLQEntry
}

func NewMemory() *Memory {
	return &Memory{
		solves:             map[string]model.SolveRecord{},
		solvesByTenant:     map[string][]string{},
		subs:               map[string][]model.Subscription{},
		deliveries:         map[string]*memDelivery{},
		deliveriesByTenant: map[string][]string{},
	}
}

// memDelivery augments WebhookDelivery with scheduling/metrics
type memDelivery struct {
	WebhookDelivery
	NextAttemptAt time.Time
	LastError     string
	ResponseCode  int
	LatencyMs     int
	DeliveredAt   *time.Time
}

type memDLQEntry struct {
	ID           string
	Delivery     WebhookDelivery
	LastError    string
	ResponseCode int
	LatencyMs    int
	CreatedAt    time.Time
}

func (m *Memory) Ping(ctx context.Context) error { return nil }

func (m *Memory) SaveSolve(ctx context.Context, rec model.SolveRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if _, exists := m.solves[rec.ID]; !exists {
		m.solvesByTenant[rec.TenantID] = append(m.solvesByTenant[rec.TenantID], rec.ID)
	}
	m.solves[rec.ID] = rec
	return nil
}

func (m *Memory) GetSolve(ctx context.Context, tenantID, id string) (model.SolveRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.solves[id]
	if !ok || rec.TenantID != tenantID {
		return model.SolveRecord{}, ErrNotFound
	}
	return rec, nil
}

// ListSolves returns records newest first. The cursor is the id of the last record of the previous page.
func (m *Memory) ListSolves(ctx context.Context, tenantID, status, cursor string, limit int) ([]model.SolveRecord, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	ids := m.solvesByTenant[tenantID]
	i := len(ids) - 1
	if cursor != "" {
		for j := len(ids) - 1; j >= 0; j-- {
			if ids[j] == cursor {
				i = j - 1
				break
			}
		}
	}
	out := []model.SolveRecord{}
	for ; i >= 0 && len(out) < limit; i-- {
		rec := m.solves[ids[i]]
		if status != "" && rec.Status != status {
			continue
		}
		out = append(out, rec)
	}
	next := ""
	if len(out) == limit && i >= 0 {
		next = out[len(out)-1].ID
	}
	return out, next, nil
}

func (m *Memory) SolveStats(ctx context.Context, tenantID string, since time.Time) (model.SolveStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var st model.SolveStats
	var dur, nodes int64
	for _, id := range m.solvesByTenant[tenantID] {
		rec := m.solves[id]
		if !since.IsZero() && rec.CreatedAt.Before(since) {
			continue
		}
		st.Total++
		switch rec.Status {
		case model.StatusSolved:
			st.Solved++
		case model.StatusNoSolution:
			st.NoSolution++
		}
		dur += rec.DurationMs
		nodes += int64(rec.Nodes)
	}
	if st.Total > 0 {
		st.AvgDurationMs = float64(dur) / float64(st.Total)
		st.AvgNodes = float64(nodes) / float64(st.Total)
	}
	return st, nil
}

func (m *Memory) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := model.Subscription{ID: uuid.New().String(), TenantID: req.TenantID, URL: req.URL, Events: req.Events, Secret: req.Secret}
	m.subs[req.TenantID] = append(m.subs[req.TenantID], s)
	return s, nil
}

func (m *Memory) GetSubscriptionsForEvent(ctx context.Context, tenantID, eventType string) ([]model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Subscription
	for _, s := range m.subs[tenantID] {
		for _, e := range s.Events {
			if e == eventType {
				out = append(out, s)
				break
			}
		}
	}
	return out, nil
}

func (m *Memory) ListSubscriptions(ctx context.Context, tenantID, cursor string, limit int) ([]model.Subscription, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.subs[tenantID]
	start := 0
	if cursor != "" {
		for i := range list {
			if list[i].ID == cursor {
				start = i + 1
				break
			}
		}
	}
	if limit <= 0 {
		limit = 100
	}
	end := start + limit
	if end > len(list) {
		end = len(list)
	}
	items := append([]model.Subscription(nil), list[start:end]...)
	next := ""
	if end < len(list) {
		next = list[end-1].ID
	}
	return items, next, nil
}

func (m *Memory) DeleteSubscription(ctx context.Context, tenantID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	arr := m.subs[tenantID]
	out := make([]model.Subscription, 0, len(arr))
	for _, s := range arr {
		if s.ID != id {
			out = append(out, s)
		}
	}
	if len(out) == len(arr) {
		return ErrNotFound
	}
	m.subs[tenantID] = out
	return nil
}

// Webhook deliveries
func (m *Memory) EnqueueWebhook(ctx context.Context, tenantID, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New().String()
	d := &memDelivery{WebhookDelivery: WebhookDelivery{ID: id, TenantID: tenantID, SubscriptionID: subscriptionID, EventType: eventType, URL: url, Secret: secret, Payload: payload, Status: DeliveryPending}, NextAttemptAt: time.Now()}
	m.deliveries[id] = d
	m.deliveriesByTenant[tenantID] = append(m.deliveriesByTenant[tenantID], id)
	return id, nil
}

func (m *Memory) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	due := []*memDelivery{}
	for _, d := range m.deliveries {
		if (d.Status == DeliveryPending || d.Status == DeliveryRetry) && !d.NextAttemptAt.After(now) {
			due = append(due, d)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].NextAttemptAt.Before(due[j].NextAttemptAt) })
	out := []WebhookDelivery{}
	for _, d := range due {
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, d.WebhookDelivery)
	}
	return out, nil
}

func (m *Memory) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.deliveries[id]
	if d == nil {
		return ErrNotFound
	}
	d.Attempts++
	d.ResponseCode = responseCode
	d.LatencyMs = latencyMs
	if success {
		d.Status = DeliveryDelivered
		now := time.Now()
		d.DeliveredAt = &now
		return nil
	}
	d.Status = DeliveryRetry
	d.LastError = lastError
	if nextAttemptAt != nil {
		d.NextAttemptAt = *nextAttemptAt
	} else {
		d.NextAttemptAt = time.Now().Add(1 * time.Minute)
	}
	return nil
}

func (m *Memory) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.deliveries[id]
	if d == nil {
		return ErrNotFound
	}
	d.Attempts++
	d.Status = DeliveryFailed
	d.LastError = lastError
	d.ResponseCode = responseCode
	d.LatencyMs = latencyMs
	m.dlq = append(m.dlq, memDLQEntry{
		ID:           uuid.New().String(),
		Delivery:     d.WebhookDelivery,
		LastError:    lastError,
		ResponseCode: responseCode,
		LatencyMs:    latencyMs,
		CreatedAt:    time.Now().UTC(),
	})
	return nil
}

func (m *Memory) ListWebhookDeliveries(ctx context.Context, tenantID, status, cursor string, limit int) ([]map[string]any, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []map[string]any{}
	for _, id := range m.deliveriesByTenant[tenantID] {
		d := m.deliveries[id]
		if d == nil {
			continue
		}
		if status == "" || d.Status == status {
			item := map[string]any{"id": d.ID, "eventType": d.EventType, "status": d.Status, "attempts": d.Attempts, "url": d.URL}
			if !d.NextAttemptAt.IsZero() {
				item["nextAttemptAt"] = d.NextAttemptAt
			}
			if d.LastError != "" {
				item["lastError"] = d.LastError
			}
			out = append(out, item)
		}
	}
	return out, "", nil
}

func (m *Memory) RetryWebhookDelivery(ctx context.Context, tenantID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.deliveries[id]
	if d == nil || d.TenantID != tenantID {
		return ErrNotFound
	}
	d.Status = DeliveryPending
	d.NextAttemptAt = time.Now()
	return nil
}

func (m *Memory) ListWebhookDLQ(ctx context.Context, tenantID, cursor string, limit int) ([]map[string]any, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []map[string]any{}
	for _, e := range m.dlq {
		if e.Delivery.TenantID != tenantID {
			continue
		}
		out = append(out, map[string]any{
			"id":           e.ID,
			"deliveryId":   e.Delivery.ID,
			"eventType":    e.Delivery.EventType,
			"url":          e.Delivery.URL,
			"lastError":    e.LastError,
			"attempts":     e.Delivery.Attempts,
			"createdAt":    e.CreatedAt,
			"responseCode": e.ResponseCode,
			"latencyMs":    e.LatencyMs,
		})
	}
	return out, "", nil
}

// RequeueWebhookDLQ enqueues a fresh delivery for a dead-lettered one and drops the DLQ entry.
func (m *Memory) RequeueWebhookDLQ(ctx context.Context, tenantID, id string) error {
	m.mu.Lock()
	idx := -1
	for i, e := range m.dlq {
		if e.ID == id && e.Delivery.TenantID == tenantID {
			idx = i
			break
		}
	}
	if idx < 0 {
		m.mu.Unlock()
		return ErrNotFound
	}
	e := m.dlq[idx]
	m.dlq = append(m.dlq[:idx], m.dlq[idx+1:]...)
	m.mu.Unlock()
	d := e.Delivery
	_, err := m.EnqueueWebhook(ctx, tenantID, d.SubscriptionID, d.EventType, d.URL, d.Secret, d.Payload)
	return err
}
