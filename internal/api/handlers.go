package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"pdroute/internal/metrics"
	"pdroute/internal/model"
	"pdroute/internal/network"
	"pdroute/internal/opt"
	"pdroute/internal/store"
)

// ProblemsHandler handles POST/GET /v1/problems
func (s *Server) ProblemsHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var in model.ProblemIn
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		if err := validateProblem(&in); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid problem", err.Error(), r.URL.Path)
			return
		}
		// Semantic validation up front so a bad instance is rejected at
		// submission, not at solve time.
		if _, err := network.New(in.Nodes, in.Edges, in.Requests, in.Vehicles, s.Cfg.CostFactors); err != nil {
			writeProblem(w, http.StatusUnprocessableEntity, "Unroutable problem", err.Error(), r.URL.Path)
			return
		}
		p, err := s.Store.CreateProblem(r.Context(), in)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "Create problem failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusCreated, p)
	case http.MethodGet:
		cursor := r.URL.Query().Get("cursor")
		limit := 100
		if v := r.URL.Query().Get("limit"); v != "" {
			fmt.Sscanf(v, "%d", &limit)
		}
		items, next, err := s.Store.ListProblems(r.Context(), cursor, limit)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "List problems failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// ProblemByIDHandler handles /v1/problems/{id}, /v1/problems/{id}/solve, and
// /v1/problems/{id}/solves
func (s *Server) ProblemByIDHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/problems/")
	if rest == "" {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	parts := strings.Split(rest, "/")
	id := parts[0]

	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		p, err := s.Store.GetProblem(r.Context(), id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				writeProblem(w, http.StatusNotFound, "Problem not found", "", r.URL.Path)
				return
			}
			writeProblem(w, http.StatusInternalServerError, "Get problem failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, p)
		return
	}

	switch parts[1] {
	case "solve":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var req model.SolveRequest
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&req) // body is optional
		}
		if err := validateSolveRequest(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid solve request", err.Error(), r.URL.Path)
			return
		}
		prob, err := s.Store.GetProblem(r.Context(), id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				writeProblem(w, http.StatusNotFound, "Problem not found", "", r.URL.Path)
				return
			}
			writeProblem(w, http.StatusInternalServerError, "Get problem failed", err.Error(), r.URL.Path)
			return
		}
		sv, err := s.Store.CreateSolve(r.Context(), id)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "Create solve failed", err.Error(), r.URL.Path)
			return
		}
		go s.runSolve(sv, prob, req)
		writeJSON(w, http.StatusAccepted, sv)
	case "solves":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		cursor := r.URL.Query().Get("cursor")
		limit := 100
		if v := r.URL.Query().Get("limit"); v != "" {
			fmt.Sscanf(v, "%d", &limit)
		}
		items, next, err := s.Store.ListSolves(r.Context(), id, cursor, limit)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "List solves failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
	default:
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
	}
}

// SolveByIDHandler handles /v1/solves/{id}, /v1/solves/{id}/trips, and
// /v1/solves/{id}/events/stream (SSE)
func (s *Server) SolveByIDHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/solves/")
	if rest == "" {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	parts := strings.Split(rest, "/")
	id := parts[0]

	if len(parts) > 2 && parts[1] == "events" && parts[2] == "stream" {
		s.streamSolveEvents(w, r, id)
		return
	}

	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	sv, err := s.Store.GetSolve(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeProblem(w, http.StatusNotFound, "Solve not found", "", r.URL.Path)
			return
		}
		writeProblem(w, http.StatusInternalServerError, "Get solve failed", err.Error(), r.URL.Path)
		return
	}

	if len(parts) == 1 {
		writeJSON(w, http.StatusOK, sv)
		return
	}
	if parts[1] != "trips" {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	switch sv.Status {
	case model.SolveCompleted:
		writeJSON(w, http.StatusOK, map[string]any{
			"solveId":   sv.ID,
			"objective": sv.Objective,
			"trips":     sv.Trips,
			"warnings":  sv.Warnings,
		})
	case model.SolveInfeasible:
		writeProblem(w, http.StatusUnprocessableEntity, "Infeasible instance", sv.Error, r.URL.Path)
	case model.SolveTimedOut:
		writeProblem(w, http.StatusGatewayTimeout, "Solve timed out", sv.Error, r.URL.Path)
	case model.SolveFailed:
		writeProblem(w, http.StatusInternalServerError, "Solve failed", sv.Error, r.URL.Path)
	default:
		writeProblem(w, http.StatusConflict, "Solve not finished", "status: "+sv.Status, r.URL.Path)
	}
}

func (s *Server) streamSolveEvents(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if _, err := s.Store.GetSolve(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeProblem(w, http.StatusNotFound, "Solve not found", "", r.URL.Path)
			return
		}
		writeProblem(w, http.StatusInternalServerError, "Get solve failed", err.Error(), r.URL.Path)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeProblem(w, http.StatusInternalServerError, "Streaming unsupported", "", r.URL.Path)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	ch := s.Broker.Subscribe(id)
	defer s.Broker.Unsubscribe(id, ch)
	fmt.Fprintf(w, "event: heartbeat\n")
	fmt.Fprintf(w, "data: {\"solveId\":\"%s\",\"ts\":\"%s\"}\n\n", id, time.Now().Format(time.RFC3339))
	flusher.Flush()
	notify := r.Context().Done()
	for {
		select {
		case <-notify:
			return
		case evt := <-ch:
			b, _ := json.Marshal(evt.Data)
			fmt.Fprintf(w, "event: %s\n", evt.Type)
			fmt.Fprintf(w, "data: %s\n\n", string(b))
			flusher.Flush()
		case <-time.After(15 * time.Second):
			fmt.Fprintf(w, "event: heartbeat\n")
			fmt.Fprintf(w, "data: {\"solveId\":\"%s\",\"ts\":\"%s\"}\n\n", id, time.Now().Format(time.RFC3339))
			flusher.Flush()
		}
	}
}

// SubscriptionsHandler handles POST/GET /v1/subscriptions
func (s *Server) SubscriptionsHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req model.SubscriptionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		if req.URL == "" || len(req.Events) == 0 {
			writeProblem(w, http.StatusBadRequest, "Invalid subscription", "url and events are required", r.URL.Path)
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
		limit := 100
		if v := r.URL.Query().Get("limit"); v != "" {
			fmt.Sscanf(v, "%d", &limit)
		}
		items, next, err := s.Store.ListSubscriptions(r.Context(), cursor, limit)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "List subscriptions failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// SubscriptionByIDHandler handles DELETE /v1/subscriptions/{id}
func (s *Server) SubscriptionByIDHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/v1/subscriptions/")
	if err := s.Store.DeleteSubscription(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeProblem(w, http.StatusNotFound, "Subscription not found", "", r.URL.Path)
			return
		}
		writeProblem(w, http.StatusInternalServerError, "Delete subscription failed", err.Error(), r.URL.Path)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// WebhookDeliveriesHandler handles GET /v1/admin/webhook-deliveries
func (s *Server) WebhookDeliveriesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	status := r.URL.Query().Get("status")
	cursor := r.URL.Query().Get("cursor")
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		fmt.Sscanf(v, "%d", &limit)
	}
	items, next, err := s.Store.ListWebhookDeliveries(r.Context(), status, cursor, limit)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "List deliveries failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
}

// Health
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	// Check DB connectivity when using the Postgres store
	type pinger interface {
		Ping(ctx context.Context) error
	}
	if pg, ok := s.Store.(pinger); ok {
		ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
		defer cancel()
		if err := pg.Ping(ctx); err != nil {
			writeProblem(w, http.StatusServiceUnavailable, "Not Ready", err.Error(), r.URL.Path)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// runSolve executes one solve job to a terminal state: build the routing
// network, build the arc-time-load model, run the solver under the time
// budget, reconstruct trips, persist, and publish lifecycle events.
func (s *Server) runSolve(sv model.Solve, prob model.Problem, req model.SolveRequest) {
	start := time.Now()
	budget := s.Cfg.SolveBudgetMs
	if req.TimeBudgetMs > 0 {
		budget = req.TimeBudgetMs
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(budget)*time.Millisecond)
	defer cancel()

	sv.Status = model.SolveRunning
	if upd, err := s.Store.UpdateSolve(context.Background(), sv); err == nil {
		sv = upd
	}
	s.Broker.Publish(sv.ID, SSEEvent{Type: "solve.started", Data: map[string]any{"solveId": sv.ID, "problemId": sv.ProblemID}})

	factors := s.Cfg.CostFactors
	if req.CostFactors != nil {
		factors = *req.CostFactors
	}

	net, err := network.New(prob.Nodes, prob.Edges, prob.Requests, prob.Vehicles, factors)
	if err != nil {
		s.finishSolve(sv, model.SolveFailed, err, start)
		return
	}
	m, err := opt.Build(net)
	if err != nil {
		s.finishSolve(sv, model.SolveFailed, err, start)
		return
	}
	asgn, err := s.Solver.Solve(ctx, m)
	if err != nil {
		status := model.SolveFailed
		var inf opt.InfeasibleInstanceError
		var to opt.TimedOutError
		switch {
		case errors.As(err, &inf):
			status = model.SolveInfeasible
		case errors.As(err, &to):
			status = model.SolveTimedOut
		}
		s.finishSolve(sv, status, err, start)
		return
	}

	trips, extErrs := opt.Trips(net, asgn)
	for vid, e := range extErrs {
		sv.Warnings = append(sv.Warnings, fmt.Sprintf("vehicle %d: %v", vid, e))
		metrics.ExtractionFailures.WithLabelValues(extractionKind(e)).Inc()
	}
	sv.Trips = trips
	sv.Objective = asgn.Objective
	s.finishSolve(sv, model.SolveCompleted, nil, start)
}

func (s *Server) finishSolve(sv model.Solve, status string, cause error, start time.Time) {
	sv.Status = status
	if cause != nil {
		sv.Error = cause.Error()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if upd, err := s.Store.UpdateSolve(ctx, sv); err == nil {
		sv = upd
	} else {
		log.Printf("solve %s: persist %s failed: %v", sv.ID, status, err)
	}
	metrics.Solves.WithLabelValues(status).Inc()
	metrics.SolveDuration.Observe(time.Since(start).Seconds())

	evtType := "solve.failed"
	data := map[string]any{"solveId": sv.ID, "problemId": sv.ProblemID, "status": status}
	if status == model.SolveCompleted {
		evtType = "solve.completed"
		data["objective"] = sv.Objective
		data["trips"] = len(sv.Trips)
	} else if cause != nil {
		data["error"] = cause.Error()
	}
	s.Broker.Publish(sv.ID, SSEEvent{Type: evtType, Data: data})
	s.Pub.Emit(ctx, evtType, data)
	log.Printf("solve %s: %s in %v", sv.ID, status, time.Since(start).Round(time.Millisecond))
}

func extractionKind(err error) string {
	var mr opt.MalformedRouteError
	var it opt.InconsistentTripError
	switch {
	case errors.As(err, &mr):
		return "malformed_route"
	case errors.As(err, &it):
		return "inconsistent_trip"
	default:
		return "other"
	}
}
