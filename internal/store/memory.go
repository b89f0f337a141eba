package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"pdroute/internal/model"
)

// Memory is a simple in-memory store used when no DATABASE_URL is set.
type Memory struct {
	mu         sync.Mutex
	problems   map[string]model.Problem
	problemIDs []string // insertion order
	solves     map[string]model.Solve
	solveIDs   []string
	subs       []model.Subscription
	deliveries map[string]*memDelivery
	dlvIDs     []string
}

func NewMemory() *Memory {
	return &Memory{
		problems:   map[string]model.Problem{},
		solves:     map[string]model.Solve{},
		deliveries: map[string]*memDelivery{},
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

func now() string { return time.Now().UTC().Format(time.RFC3339) }

func (m *Memory) CreateProblem(ctx context.Context, in model.ProblemIn) (model.Problem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := model.Problem{
		ID:        uuid.New().String(),
		Name:      in.Name,
		Nodes:     in.Nodes,
		Edges:     in.Edges,
		Requests:  in.Requests,
		Vehicles:  in.Vehicles,
		CreatedAt: now(),
	}
	m.problems[p.ID] = p
	m.problemIDs = append(m.problemIDs, p.ID)
	return p, nil
}

func (m *Memory) GetProblem(ctx context.Context, id string) (model.Problem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.problems[id]
	if !ok {
		return model.Problem{}, ErrNotFound
	}
	return p, nil
}

func (m *Memory) ListProblems(ctx context.Context, cursor string, limit int) ([]model.Problem, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return pageProblems(m.problems, m.problemIDs, cursor, limit)
}

func pageProblems(byID map[string]model.Problem, ids []string, cursor string, limit int) ([]model.Problem, string, error) {
	start := 0
	if cursor != "" {
		for i, id := range ids {
			if id == cursor {
				start = i + 1
				break
			}
		}
	}
	if limit <= 0 {
		limit = 100
	}
	out := []model.Problem{}
	var next string
	for i := start; i < len(ids) && len(out) < limit; i++ {
		out = append(out, byID[ids[i]])
		next = ids[i]
	}
	if len(out) < limit {
		next = ""
	}
	return out, next, nil
}

func (m *Memory) CreateSolve(ctx context.Context, problemID string) (model.Solve, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.problems[problemID]; !ok {
		return model.Solve{}, ErrNotFound
	}
	s := model.Solve{
		ID:        uuid.New().String(),
		ProblemID: problemID,
		Status:    model.SolveQueued,
		CreatedAt: now(),
		UpdatedAt: now(),
	}
	m.solves[s.ID] = s
	m.solveIDs = append(m.solveIDs, s.ID)
	return s, nil
}

func (m *Memory) GetSolve(ctx context.Context, id string) (model.Solve, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.solves[id]
	if !ok {
		return model.Solve{}, ErrNotFound
	}
	return s, nil
}

func (m *Memory) ListSolves(ctx context.Context, problemID, cursor string, limit int) ([]model.Solve, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	start := 0
	if cursor != "" {
		for i, id := range m.solveIDs {
			if id == cursor {
				start = i + 1
				break
			}
		}
	}
	if limit <= 0 {
		limit = 100
	}
	out := []model.Solve{}
	var next string
	for i := start; i < len(m.solveIDs) && len(out) < limit; i++ {
		s := m.solves[m.solveIDs[i]]
		if problemID == "" || s.ProblemID == problemID {
			out = append(out, s)
		}
		next = m.solveIDs[i]
	}
	if len(out) < limit {
		next = ""
	}
	return out, next, nil
}

func (m *Memory) UpdateSolve(ctx context.Context, s model.Solve) (model.Solve, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.solves[s.ID]; !ok {
		return model.Solve{}, ErrNotFound
	}
	s.UpdatedAt = now()
	m.solves[s.ID] = s
	return s, nil
}

func (m *Memory) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := model.Subscription{ID: uuid.New().String(), URL: req.URL, Events: req.Events, Secret: req.Secret}
	m.subs = append(m.subs, s)
	return s, nil
}

func (m *Memory) GetSubscriptionsForEvent(ctx context.Context, eventType string) ([]model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Subscription
	for _, s := range m.subs {
		for _, e := range s.Events {
			if e == eventType {
				out = append(out, s)
				break
			}
		}
	}
	return out, nil
}

func (m *Memory) ListSubscriptions(ctx context.Context, cursor string, limit int) ([]model.Subscription, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	start := 0
	if cursor != "" {
		for i := range m.subs {
			if m.subs[i].ID == cursor {
				start = i + 1
				break
			}
		}
	}
	if limit <= 0 {
		limit = 100
	}
	end := start + limit
	if end > len(m.subs) {
		end = len(m.subs)
	}
	items := append([]model.Subscription(nil), m.subs[start:end]...)
	next := ""
	if end < len(m.subs) {
		next = m.subs[end-1].ID
	}
	return items, next, nil
}

func (m *Memory) DeleteSubscription(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Subscription, 0, len(m.subs))
	for _, s := range m.subs {
		if s.ID != id {
			out = append(out, s)
		}
	}
	if len(out) == len(m.subs) {
		return ErrNotFound
	}
	m.subs = out
	return nil
}

// Webhook deliveries

func (m *Memory) EnqueueWebhook(ctx context.Context, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New().String()
	d := &memDelivery{WebhookDelivery: WebhookDelivery{ID: id, SubscriptionID: subscriptionID, EventType: eventType, URL: url, Secret: secret, Payload: payload, Status: "pending"}, NextAttemptAt: time.Now()}
	m.deliveries[id] = d
	m.dlvIDs = append(m.dlvIDs, id)
	return id, nil
}

func (m *Memory) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	nowT := time.Now()
	out := []WebhookDelivery{}
	for _, id := range m.dlvIDs {
		d := m.deliveries[id]
		if d == nil {
			continue
		}
		if (d.Status == "pending" || d.Status == "retry") && !d.NextAttemptAt.After(nowT) {
			out = append(out, d.WebhookDelivery)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (m *Memory) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.deliveries[id]
	if d == nil {
		return nil
	}
	d.Attempts++
	d.ResponseCode = responseCode
	d.LatencyMs = latencyMs
	if success {
		d.Status = "delivered"
		nowT := time.Now()
		d.DeliveredAt = &nowT
	} else {
		d.Status = "retry"
		d.LastError = lastError
		if nextAttemptAt != nil {
			d.NextAttemptAt = *nextAttemptAt
		} else {
			d.NextAttemptAt = time.Now().Add(1 * time.Minute)
		}
	}
	return nil
}

func (m *Memory) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.deliveries[id]
	if d == nil {
		return nil
	}
	d.Status = "failed"
	d.LastError = lastError
	d.ResponseCode = responseCode
	d.LatencyMs = latencyMs
	return nil
}

func (m *Memory) ListWebhookDeliveries(ctx context.Context, status, cursor string, limit int) ([]map[string]any, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := append([]string(nil), m.dlvIDs...)
	sort.Strings(ids)
	out := []map[string]any{}
	for _, id := range ids {
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
