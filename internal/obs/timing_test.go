package obs

import (
	"bytes"
	"context"
	"errors"
	"log"
	"strings"
	"testing"
)

func TestTimeLogsRequestIDAndError(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Writer()
	log.SetOutput(&buf)
	defer log.SetOutput(prev)

	ctx, id := WithRequestID(context.Background(), "req-1")
	if id != "req-1" || RequestID(ctx) != "req-1" {
		t.Fatalf("request id not carried: %q", RequestID(ctx))
	}
	err := errors.New("boom")
	Time(ctx, "solve")(&err)
	line := buf.String()
	if !strings.Contains(line, "req_id=req-1") || !strings.Contains(line, "op=solve") || !strings.Contains(line, "err=boom") {
		t.Fatalf("unexpected log line: %q", line)
	}
}

func TestWithRequestIDGenerates(t *testing.T) {
	_, id := WithRequestID(context.Background(), "")
	if len(id) != 36 {
		t.Fatalf("expected a uuid, got %q", id)
	}
}
