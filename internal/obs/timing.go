// Package obs carries request ids through contexts and logs operation timings.
package obs

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
)

type ctxKey string

const RequestIDKey ctxKey = "req_id"

// HeaderRequestID is read from incoming requests and echoed on responses.
const HeaderRequestID = "X-Request-Id"

// WithRequestID stores id in ctx, generating one when id is empty.
func WithRequestID(ctx context.Context, id string) (context.Context, string) {
	if id == "" {
		id = uuid.New().String()
	}
	return context.WithValue(ctx, RequestIDKey, id), id
}

func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(RequestIDKey).(string)
	return id
}

// Time logs the duration of op when the returned func is called, with the error errp points to.
//
//	defer obs.Time(ctx, "solve")(&err)
func Time(ctx context.Context, name string) func(errp *error) {
	start := time.Now()
	reqID := RequestID(ctx)

	return func(errp *error) {
		dur := time.Since(start)

		if errp != nil && *errp != nil {
			log.Printf("req_id=%s op=%s dur=%dms err=%v", reqID, name, dur.Milliseconds(), *errp)
			return
		}
		log.Printf("req_id=%s op=%s dur=%dms", reqID, name, dur.Milliseconds())
	}
}
