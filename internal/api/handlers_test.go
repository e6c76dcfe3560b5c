package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"routesolver/internal/config"
	"routesolver/internal/model"
	"routesolver/internal/store"
)

const lineRequest = `{
  "time_matrix": [[0,5,10],[5,0,5],[10,5,0]],
  "time_windows": [[0,100],[0,100],[0,100]],
  "service_times": [0,0,0],
  "start_index": 0,
  "end_index": 2
}`

const infeasibleRequest = `{
  "time_matrix": [[0,5,10],[5,0,5],[10,5,0]],
  "time_windows": [[0,100],[0,1],[0,100]],
  "start_index": 0,
  "end_index": 2
}`

const stopsRequest = `{
  "stops": [
    {"id":"depot"},
    {"id":"bakery","time_restriction":"08:00","service_time":120},
    {"id":"office","time_restriction":"07:00","time_restriction_type":"after"}
  ],
  "time_matrix": [[0,600,900],[600,0,300],[900,300,0]],
  "end_index": 2
}`

func testConfig() config.Config {
	cfg := config.Default()
	cfg.OpenAPIPath = filepath.Join("..", "..", "openapi", "openapi.yaml")
	return cfg
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	return New(testConfig(), store.NewMemory(), NewBroker())
}

func post(t *testing.T, h http.Handler, path, body string, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func get(t *testing.T, h http.Handler, path string, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHealthReady(t *testing.T) {
	s := newTestServer(t)
	rr := httptest.NewRecorder()
	s.HealthHandler(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != 200 {
		t.Fatalf("health: got %d", rr.Code)
	}
	rr = httptest.NewRecorder()
	s.ReadyHandler(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != 200 {
		t.Fatalf("ready: got %d", rr.Code)
	}
}

func TestSolveReturnsRouteAndStoresRecord(t *testing.T) {
	s := newTestServer(t)
	h := s.Handler()
	rr := post(t, h, "/v1/solve", lineRequest, map[string]string{"X-Tenant-Id": "t_a"})
	if rr.Code != 200 {
		t.Fatalf("solve: got %d body=%s", rr.Code, rr.Body.String())
	}
	var out struct {
		OrderedNodes []int            `json:"ordered_nodes"`
		Arrivals     map[string]int64 `json:"arrivals"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.OrderedNodes) != 3 || out.OrderedNodes[0] != 0 || out.OrderedNodes[1] != 1 || out.OrderedNodes[2] != 2 {
		t.Fatalf("unexpected order %v", out.OrderedNodes)
	}
	if out.Arrivals["2"]-out.Arrivals["0"] != 10 {
		t.Fatalf("unexpected arrivals %v", out.Arrivals)
	}
	id := rr.Header().Get(HeaderSolveID)
	if id == "" {
		t.Fatalf("missing %s header", HeaderSolveID)
	}

	rr = get(t, h, "/v1/solves/"+id, map[string]string{"X-Tenant-Id": "t_a"})
	if rr.Code != 200 {
		t.Fatalf("get solve: got %d", rr.Code)
	}
	var rec model.SolveRecord
	_ = json.Unmarshal(rr.Body.Bytes(), &rec)
	if rec.Status != model.StatusSolved || rec.Kind != model.KindMatrix || rec.Nodes != 3 {
		t.Fatalf("unexpected record %+v", rec)
	}
	if !bytes.Contains(rec.Response, []byte(`"ordered_nodes"`)) {
		t.Fatalf("record response not stored: %s", rec.Response)
	}

	// other tenants cannot see it
	rr = get(t, h, "/v1/solves/"+id, map[string]string{"X-Tenant-Id": "t_b"})
	if rr.Code != 404 {
		t.Fatalf("cross-tenant get: got %d", rr.Code)
	}
	rr = get(t, h, "/v1/solves?status=solved", map[string]string{"X-Tenant-Id": "t_a"})
	if rr.Code != 200 || !strings.Contains(rr.Body.String(), id) {
		t.Fatalf("list solves: %d %s", rr.Code, rr.Body.String())
	}
}

func TestSolveNoSolution(t *testing.T) {
	s := newTestServer(t)
	rr := post(t, s.Handler(), "/v1/solve", infeasibleRequest, nil)
	if rr.Code != 200 {
		t.Fatalf("no_solution: got %d", rr.Code)
	}
	if strings.TrimSpace(rr.Body.String()) != `{"error":"no_solution"}` {
		t.Fatalf("unexpected body %s", rr.Body.String())
	}
	st, _ := s.Store.SolveStats(context.Background(), defaultTenant, time.Time{})
	if st.NoSolution != 1 {
		t.Fatalf("no_solution not recorded: %+v", st)
	}
}

func TestSolveMalformed(t *testing.T) {
	s := newTestServer(t)
	cases := map[string]string{
		"not json":       `{"time_matrix":`,
		"missing end":    `{"time_matrix":[[0]],"time_windows":[[0,1]]}`,
		"size mismatch":  `{"time_matrix":[[0,1]],"time_windows":[[0,1],[0,1]],"end_index":1}`,
		"two objects":    lineRequest + lineRequest,
		"negative index": `{"time_matrix":[[0]],"time_windows":[[0,1]],"end_index":-1}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rr := post(t, s.Handler(), "/v1/solve", body, nil)
			if rr.Code != 400 {
				t.Fatalf("got %d body=%s", rr.Code, rr.Body.String())
			}
			var eb ErrorBody
			if err := json.Unmarshal(rr.Body.Bytes(), &eb); err != nil || eb.Error != codeBadRequest || eb.Message == "" {
				t.Fatalf("unexpected body %s", rr.Body.String())
			}
		})
	}
	rr := get(t, s.Handler(), "/v1/solve", nil)
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET /v1/solve: got %d", rr.Code)
	}
}

func TestSolveStops(t *testing.T) {
	s := newTestServer(t)
	rr := post(t, s.Handler(), "/v1/solve/stops", stopsRequest, nil)
	if rr.Code != 200 {
		t.Fatalf("stops: got %d body=%s", rr.Code, rr.Body.String())
	}
	var out struct {
		OrderedStopIDs      []string         `json:"ordered_stop_ids"`
		Arrivals            map[string]int64 `json:"arrivals"`
		LatestDepartureTime *string          `json:"latest_departure_time"`
	}
	_ = json.Unmarshal(rr.Body.Bytes(), &out)
	if strings.Join(out.OrderedStopIDs, ",") != "depot,bakery,office" {
		t.Fatalf("unexpected order %v", out.OrderedStopIDs)
	}
	if out.LatestDepartureTime == nil || *out.LatestDepartureTime != "07:50" {
		t.Fatalf("unexpected latest departure %v", out.LatestDepartureTime)
	}

	rr = post(t, s.Handler(), "/v1/solve/stops", `{"stops":[{"id":"a"}],"time_matrix":[[0]]}`, nil)
	if rr.Code != 400 {
		t.Fatalf("one stop: got %d", rr.Code)
	}
}

func TestSolveIDFromClient(t *testing.T) {
	s := newTestServer(t)
	id := uuid.New().String()
	rr := post(t, s.Handler(), "/v1/solve", lineRequest, map[string]string{HeaderSolveID: id})
	if rr.Code != 200 || rr.Header().Get(HeaderSolveID) != id {
		t.Fatalf("client id not honoured: %d %q", rr.Code, rr.Header().Get(HeaderSolveID))
	}
	rr = post(t, s.Handler(), "/v1/solve", lineRequest, map[string]string{HeaderSolveID: id})
	if rr.Code != http.StatusConflict {
		t.Fatalf("reused id: got %d", rr.Code)
	}
	rr = post(t, s.Handler(), "/v1/solve", lineRequest, map[string]string{HeaderSolveID: "nope"})
	if rr.Code != 400 {
		t.Fatalf("bad id: got %d", rr.Code)
	}
}

func TestSolveEventsStreamReplaysStoredSolve(t *testing.T) {
	s := newTestServer(t)
	rr := post(t, s.Handler(), "/v1/solve", infeasibleRequest, nil)
	id := rr.Header().Get(HeaderSolveID)

	rr = get(t, s.Handler(), "/v1/solves/"+id+"/events/stream", nil)
	if rr.Code != 200 || rr.Header().Get("Content-Type") != "text/event-stream" {
		t.Fatalf("stream: got %d %q", rr.Code, rr.Header().Get("Content-Type"))
	}
	body := rr.Body.String()
	if !strings.Contains(body, "event: heartbeat") || !strings.Contains(body, "event: "+model.EventSolveNoSolution) {
		t.Fatalf("unexpected stream %q", body)
	}
}

func TestWebhookEnqueuedOnSolve(t *testing.T) {
	s := newTestServer(t)
	h := s.Handler()
	rr := post(t, h, "/v1/subscriptions", `{"url":"https://example.com/hook","events":["solve.completed"],"secret":"k"}`, nil)
	if rr.Code != http.StatusCreated {
		t.Fatalf("subscribe: got %d %s", rr.Code, rr.Body.String())
	}
	rr = post(t, h, "/v1/subscriptions", `{"url":"ftp://x","events":["solve.completed"]}`, nil)
	if rr.Code != 400 {
		t.Fatalf("bad url: got %d", rr.Code)
	}
	rr = post(t, h, "/v1/subscriptions", `{"url":"https://x","events":["route.planned"]}`, nil)
	if rr.Code != 400 {
		t.Fatalf("bad event: got %d", rr.Code)
	}

	post(t, h, "/v1/solve", lineRequest, nil)
	post(t, h, "/v1/solve", infeasibleRequest, nil)

	rr = get(t, h, "/v1/admin/webhook-deliveries", nil)
	if rr.Code != 200 {
		t.Fatalf("deliveries: got %d", rr.Code)
	}
	var list struct {
		Items []map[string]any `json:"items"`
	}
	_ = json.Unmarshal(rr.Body.Bytes(), &list)
	if len(list.Items) != 1 || list.Items[0]["eventType"] != model.EventSolveCompleted {
		t.Fatalf("unexpected deliveries %+v", list.Items)
	}
}

func TestAdminRequiresAdminRole(t *testing.T) {
	s := newTestServer(t)
	h := s.Handler()
	user := map[string]string{"X-Role": "dispatcher"}
	for _, path := range []string{"/v1/admin/solves/stats", "/v1/admin/webhook-deliveries", "/v1/admin/webhook-dlq", "/v1/subscriptions", "/debug/info"} {
		if rr := get(t, h, path, user); rr.Code != http.StatusForbidden {
			t.Fatalf("%s: got %d", path, rr.Code)
		}
	}
	rr := get(t, h, "/v1/admin/solves/stats?sinceHours=1", nil)
	if rr.Code != 200 {
		t.Fatalf("stats: got %d", rr.Code)
	}
	rr = post(t, h, "/v1/admin/webhook-dlq/"+uuid.New().String()+"/requeue", "", nil)
	if rr.Code != 404 {
		t.Fatalf("requeue unknown: got %d", rr.Code)
	}
}

func TestBearerRequiredOutsideDevMode(t *testing.T) {
	cfg := testConfig()
	cfg.Auth = config.Auth{Mode: "hmac", HMACSecret: "k"}
	s := New(cfg, store.NewMemory(), NewBroker())
	rr := post(t, s.Handler(), "/v1/solve", lineRequest, map[string]string{"X-Tenant-Id": "t_a"})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("headers only: got %d", rr.Code)
	}
}

func TestRateLimitPerTenant(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit = config.RateLimit{RPS: 0.001, Burst: 1}
	s := New(cfg, store.NewMemory(), NewBroker())
	h := s.Handler()
	if rr := get(t, h, "/v1/solves", map[string]string{"X-Tenant-Id": "t_a"}); rr.Code != 200 {
		t.Fatalf("first: got %d", rr.Code)
	}
	rr := get(t, h, "/v1/solves", map[string]string{"X-Tenant-Id": "t_a"})
	if rr.Code != http.StatusTooManyRequests || rr.Header().Get("Retry-After") == "" {
		t.Fatalf("second: got %d", rr.Code)
	}
	if rr := get(t, h, "/v1/solves", map[string]string{"X-Tenant-Id": "t_b"}); rr.Code != 200 {
		t.Fatalf("other tenant: got %d", rr.Code)
	}
	if rr := get(t, h, "/healthz", map[string]string{"X-Tenant-Id": "t_a"}); rr.Code != 200 {
		t.Fatalf("healthz is not limited: got %d", rr.Code)
	}
}

func TestSolverConfigAndOps(t *testing.T) {
	s := newTestServer(t)
	h := s.Handler()
	rr := get(t, h, "/v1/solver/config", nil)
	if rr.Code != 200 {
		t.Fatalf("config: got %d", rr.Code)
	}
	var cfg map[string]any
	_ = json.Unmarshal(rr.Body.Bytes(), &cfg)
	if cfg["firstSolutionStrategy"] != "PATH_CHEAPEST_ARC" || cfg["localSearchMetaheuristic"] != "GUIDED_LOCAL_SEARCH" || cfg["timeLimitMs"] != float64(5000) {
		t.Fatalf("unexpected policy %v", cfg)
	}
	if rr := get(t, h, "/metrics", nil); rr.Code != 200 || !strings.Contains(rr.Body.String(), "http_requests_total") {
		t.Fatalf("metrics: got %d", rr.Code)
	}
	if rr := get(t, h, "/debug/info", nil); rr.Code != 200 || !strings.Contains(rr.Body.String(), `"storage":"memory"`) {
		t.Fatalf("debug: got %d %s", rr.Code, rr.Body.String())
	}
	if _, err := os.Stat(s.cfg.OpenAPIPath); err == nil {
		if rr := get(t, h, "/openapi.json", nil); rr.Code != 200 || !strings.Contains(rr.Body.String(), `"openapi"`) {
			t.Fatalf("openapi.json: got %d", rr.Code)
		}
	}
}

func TestWebSocketReceivesSolveEvents(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/ws"
	hdr := http.Header{}
	hdr.Set("X-Tenant-Id", "t_ws")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, hdr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(10 * time.Second))

	if err := conn.WriteJSON(wsMessage{Type: "subscribe", ID: "*"}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	var ack wsMessage
	if err := conn.ReadJSON(&ack); err != nil || ack.Type != "subscribed" {
		t.Fatalf("ack: %+v %v", ack, err)
	}

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/v1/solve", strings.NewReader(lineRequest))
	req.Header.Set("X-Tenant-Id", "t_ws")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	_ = resp.Body.Close()

	seen := map[string]bool{}
	for !seen[model.EventSolveCompleted] {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read: %v (seen %v)", err, seen)
		}
		var evt SSEEvent
		_ = json.Unmarshal(msg.Payload, &evt)
		seen[evt.Type] = true
	}
	if !seen[EventSolveStarted] {
		t.Fatalf("missing %s event", EventSolveStarted)
	}
}

func TestPathLabel(t *testing.T) {
	id := uuid.New().String()
	if got := pathLabel("/v1/solves/" + id + "/events/stream"); got != "/v1/solves/{id}/events/stream" {
		t.Fatalf("got %s", got)
	}
}
