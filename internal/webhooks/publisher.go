package webhooks

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"

	"routesolver/internal/store"
)

// Publisher fans a solve event out to every matching subscription as a queued delivery.
type Publisher struct {
	Store store.Store
}

func NewPublisher(s store.Store) *Publisher {
	return &Publisher{Store: s}
}

// Envelope is the body POSTed to subscribers.
type Envelope struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	TenantID string `json:"tenantId"`
	TS       string `json:"ts"`
	Data     any    `json:"data"`
}

// Emit enqueues one delivery per subscription of tenantID listening to eventType.
// It returns the number of deliveries queued.
func (p *Publisher) Emit(ctx context.Context, tenantID, eventType string, data any) int {
	subs, err := p.Store.GetSubscriptionsForEvent(ctx, tenantID, eventType)
	if err != nil {
		log.Printf("webhooks: subscriptions tenant=%s event=%s err=%v", tenantID, eventType, err)
		return 0
	}
	if len(subs) == 0 {
		return 0
	}
	body, err := json.Marshal(Envelope{
		ID:       "evt_" + uuid.New().String(),
		Type:     eventType,
		TenantID: tenantID,
		TS:       time.Now().UTC().Format(time.RFC3339),
		Data:     data,
	})
	if err != nil {
		log.Printf("webhooks: marshal event=%s err=%v", eventType, err)
		return 0
	}
	n := 0
	for _, s := range subs {
		if _, err := p.Store.EnqueueWebhook(ctx, tenantID, s.ID, eventType, s.URL, s.Secret, body); err != nil {
			log.Printf("webhooks: enqueue sub=%s err=%v", s.ID, err)
			continue
		}
		n++
	}
	return n
}
