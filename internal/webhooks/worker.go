package webhooks

import (
	"bytes"
	"context"
	"log"
	"net/http"
	"strconv"
	"time"

	"routesolver/internal/metrics"
	"routesolver/internal/store"
)

// Worker polls the store for due deliveries and POSTs them.
type Worker struct {
	Store       store.Store
	HTTP        *http.Client
	MaxAttempts int
	Interval    time.Duration
	BatchSize   int
}

func NewWorker(s store.Store, maxAttempts int) *Worker {
	if maxAttempts <= 0 {
		maxAttempts = 10
	}
	return &Worker{
		Store:       s,
		HTTP:        &http.Client{Timeout: 5 * time.Second},
		MaxAttempts: maxAttempts,
		Interval:    time.Second,
		BatchSize:   50,
	}
}

// Run polls until ctx is done.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.processOnce(ctx)
		}
	}
}

func (w *Worker) processOnce(parent context.Context) {
	ctx, cancel := context.WithTimeout(parent, 10*time.Second)
	defer cancel()
	items, err := w.Store.FetchDueWebhookDeliveries(ctx, w.BatchSize)
	if err != nil {
		log.Printf("webhooks: fetch due err=%v", err)
		return
	}
	for _, it := range items {
		w.deliver(ctx, it)
	}
}

func (w *Worker) deliver(ctx context.Context, it store.WebhookDelivery) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, it.URL, bytes.NewReader(it.Payload))
	if err != nil {
		// unusable URL; retrying will not help
		_ = w.Store.FailWebhookDelivery(ctx, it.ID, err.Error(), 0, 0)
		metrics.WebhookDeliveries.WithLabelValues(it.EventType, store.DeliveryFailed).Inc()
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderEventType, it.EventType)
	req.Header.Set(HeaderDelivery, it.ID)
	if it.Secret != "" {
		req.Header.Set(HeaderSignature, SignHMAC(it.Secret, it.Payload))
	}
	start := time.Now()
	resp, err := w.HTTP.Do(req)
	latency := int(time.Since(start).Milliseconds())
	code := 0
	success := false
	if err == nil {
		code = resp.StatusCode
		_ = resp.Body.Close()
		success = code >= 200 && code < 300
	}
	lastErr := ""
	switch {
	case err != nil:
		lastErr = err.Error()
	case !success:
		lastErr = "http " + strconv.Itoa(code)
	}
	status := store.DeliveryDelivered
	switch {
	case success:
		err = w.Store.MarkWebhookDelivery(ctx, it.ID, true, nil, "", code, latency)
	case it.Attempts+1 >= w.MaxAttempts:
		status = store.DeliveryFailed
		err = w.Store.FailWebhookDelivery(ctx, it.ID, lastErr, code, latency)
	default:
		status = store.DeliveryRetry
		next := time.Now().Add(nextBackoff(it.Attempts))
		err = w.Store.MarkWebhookDelivery(ctx, it.ID, false, &next, lastErr, code, latency)
	}
	if err != nil {
		log.Printf("webhooks: record delivery=%s err=%v", it.ID, err)
	}
	metrics.WebhookDeliveries.WithLabelValues(it.EventType, status).Inc()
	metrics.WebhookLatency.WithLabelValues(it.EventType, status).Observe(float64(latency))
}

func nextBackoff(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	if attempts > 10 {
		attempts = 10
	}
	base := time.Second * time.Duration(1<<attempts)
	if base > time.Hour {
		base = time.Hour
	}
	return base
}
