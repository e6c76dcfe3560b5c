package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"

	"routesolver/internal/auth"
	"routesolver/internal/metrics"
	"routesolver/internal/model"
	"routesolver/internal/obs"
	"routesolver/internal/routing"
	"routesolver/internal/store"
)

// HeaderSolveID carries the id of the stored solve record. A client may set
// it on the request (a UUID) to subscribe to the solve's events beforehand.
const HeaderSolveID = "X-Solve-Id"

// Solve outcomes as counted in metrics.
const (
	outcomeBadRequest = "bad_request"
	outcomeInternal   = "internal"
)

// SolveHandler handles POST /v1/solve
func (s *Server) SolveHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v1/solve" {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	pr, ok := s.principal(w, r)
	if !ok {
		return
	}
	body, ok := s.readBody(w, r, model.KindMatrix)
	if !ok {
		return
	}
	p, err := routing.DecodeRequest(bytes.NewReader(body))
	if err != nil {
		s.badRequest(w, model.KindMatrix, err)
		return
	}
	s.run(w, r, pr, model.KindMatrix, body, p, func(res routing.Result) any { return res })
}

// SolveStopsHandler handles POST /v1/solve/stops
func (s *Server) SolveStopsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	pr, ok := s.principal(w, r)
	if !ok {
		return
	}
	body, ok := s.readBody(w, r, model.KindStops)
	if !ok {
		return
	}
	var sr routing.StopsRequest
	if err := json.Unmarshal(body, &sr); err != nil {
		s.badRequest(w, model.KindStops, &routing.RequestError{Reason: "invalid JSON: " + err.Error()})
		return
	}
	p, err := sr.Problem()
	if err != nil {
		s.badRequest(w, model.KindStops, err)
		return
	}
	s.run(w, r, pr, model.KindStops, body, p, func(res routing.Result) any {
		if res.Status != routing.StatusSolved {
			return res
		}
		return sr.Response(p, res)
	})
}

func (s *Server) readBody(w http.ResponseWriter, r *http.Request, kind string) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.Solver.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			metrics.SolveRequests.WithLabelValues(kind, outcomeBadRequest).Inc()
			writeError(w, http.StatusRequestEntityTooLarge, codeBadRequest, err.Error())
			return nil, false
		}
		s.badRequest(w, kind, err)
		return nil, false
	}
	return body, true
}

func (s *Server) badRequest(w http.ResponseWriter, kind string, err error) {
	metrics.SolveRequests.WithLabelValues(kind, outcomeBadRequest).Inc()
	writeError(w, http.StatusBadRequest, codeBadRequest, err.Error())
}

// run solves p, stores the record, publishes its events and writes the
// response built by render.
func (s *Server) run(w http.ResponseWriter, r *http.Request, pr auth.Principal, kind string, body []byte, p routing.Problem, render func(routing.Result) any) {
	ctx := r.Context()
	id, ok := s.solveID(w, r, pr)
	if !ok {
		return
	}
	metrics.SolveNodes.Observe(float64(p.N()))
	s.publish(pr.Tenant, id, SSEEvent{Type: EventSolveStarted, Data: map[string]any{"solveId": id, "kind": kind, "nodes": p.N()}})

	start := time.Now()
	res, err := s.solve(ctx, p)
	dur := time.Since(start)
	if err != nil {
		if errors.Is(err, routing.ErrMalformedRequest) {
			s.badRequest(w, kind, err)
			return
		}
		metrics.SolveRequests.WithLabelValues(kind, outcomeInternal).Inc()
		metrics.SolveDuration.WithLabelValues(kind, outcomeInternal).Observe(dur.Seconds())
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			writeError(w, http.StatusServiceUnavailable, codeBusy, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, codeInternal, err.Error())
		return
	}
	status := res.Status.String()
	metrics.SolveRequests.WithLabelValues(kind, status).Inc()
	metrics.SolveDuration.WithLabelValues(kind, status).Observe(dur.Seconds())

	resp, err := json.Marshal(render(res))
	if err != nil {
		writeError(w, http.StatusInternalServerError, codeInternal, err.Error())
		return
	}
	stats, _ := json.Marshal(res.Stats)
	rec := model.SolveRecord{
		ID:         id,
		TenantID:   pr.Tenant,
		Kind:       kind,
		Status:     status,
		Nodes:      p.N(),
		Cost:       res.Cost,
		DurationMs: dur.Milliseconds(),
		Request:    compactJSON(body),
		Response:   resp,
		Stats:      stats,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.Store.SaveSolve(ctx, rec); err != nil {
		log.Printf("req_id=%s solve=%s save err=%v", obs.RequestID(ctx), id, err)
	}

	evtType := model.EventSolveCompleted
	if res.Status != routing.StatusSolved {
		evtType = model.EventSolveNoSolution
	}
	data := map[string]any{"solveId": id, "kind": kind, "status": status, "nodes": p.N(), "cost": res.Cost, "durationMs": rec.DurationMs}
	if res.Status == routing.StatusSolved {
		data["orderedNodes"] = res.OrderedNodes
	}
	s.publish(pr.Tenant, id, SSEEvent{Type: evtType, Data: data})
	s.Pub.Emit(ctx, pr.Tenant, evtType, data)

	w.Header().Set(HeaderSolveID, id)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(append(resp, '\n'))
}

// solveID takes the client's X-Solve-Id when it is a fresh UUID, else mints one.
func (s *Server) solveID(w http.ResponseWriter, r *http.Request, pr auth.Principal) (string, bool) {
	want := r.Header.Get(HeaderSolveID)
	if want == "" {
		return uuid.New().String(), true
	}
	u, err := uuid.Parse(want)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, HeaderSolveID+" must be a UUID")
		return "", false
	}
	id := u.String()
	_, err = s.Store.GetSolve(r.Context(), pr.Tenant, id)
	switch {
	case err == nil:
		writeError(w, http.StatusConflict, codeConflict, "solve "+id+" already exists")
		return "", false
	case !errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusInternalServerError, codeInternal, err.Error())
		return "", false
	}
	return id, true
}

// solve runs the solver in one of the bounded slots.
func (s *Server) solve(ctx context.Context, p routing.Problem) (res routing.Result, err error) {
	release, err := s.acquire(ctx)
	if err != nil {
		return routing.Result{}, err
	}
	defer release()
	metrics.SolvesInFlight.Inc()
	defer metrics.SolvesInFlight.Dec()
	defer obs.Time(ctx, "routing.solve")(&err)
	return s.Solver.Solve(ctx, p)
}

// publish sends evt to the solve's own topic and to the tenant wildcard.
func (s *Server) publish(tenant, id string, evt SSEEvent) {
	s.Broker.Publish(solveTopic(tenant, id), evt)
	s.Broker.Publish(solveTopic(tenant, "*"), evt)
}

func compactJSON(b []byte) json.RawMessage {
	var buf bytes.Buffer
	if err := json.Compact(&buf, b); err != nil {
		return nil
	}
	return buf.Bytes()
}
