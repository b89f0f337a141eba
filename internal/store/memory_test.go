package store

import (
	"context"
	"testing"
	"time"

	"pdroute/internal/model"
)

func TestMemoryProblemLifecycle(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	p, err := m.CreateProblem(ctx, model.ProblemIn{Name: "demo", Nodes: []model.Node{{ID: 1, Kind: model.NodeDepot}}})
	if err != nil {
		t.Fatalf("CreateProblem: %v", err)
	}
	if p.ID == "" || p.CreatedAt == "" {
		t.Fatalf("missing id or timestamp: %+v", p)
	}
	got, err := m.GetProblem(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetProblem: %v", err)
	}
	if got.Name != "demo" || len(got.Nodes) != 1 {
		t.Fatalf("round-trip mismatch: %+v", got)
	}
	if _, err := m.GetProblem(ctx, "nope"); err != ErrNotFound {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestMemoryListProblemsPagination(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if _, err := m.CreateProblem(ctx, model.ProblemIn{}); err != nil {
			t.Fatalf("CreateProblem: %v", err)
		}
	}
	page1, next, err := m.ListProblems(ctx, "", 2)
	if err != nil {
		t.Fatalf("ListProblems: %v", err)
	}
	if len(page1) != 2 || next == "" {
		t.Fatalf("want 2 items and a cursor, got %d %q", len(page1), next)
	}
	page2, _, err := m.ListProblems(ctx, next, 10)
	if err != nil {
		t.Fatalf("ListProblems page 2: %v", err)
	}
	if len(page2) != 3 {
		t.Fatalf("want remaining 3, got %d", len(page2))
	}
	if page2[0].ID == page1[1].ID {
		t.Fatalf("cursor did not advance")
	}
}

func TestMemorySolveLifecycle(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	p, _ := m.CreateProblem(ctx, model.ProblemIn{})
	if _, err := m.CreateSolve(ctx, "nope"); err != ErrNotFound {
		t.Fatalf("solve for unknown problem: want ErrNotFound, got %v", err)
	}
	s, err := m.CreateSolve(ctx, p.ID)
	if err != nil {
		t.Fatalf("CreateSolve: %v", err)
	}
	if s.Status != model.SolveQueued {
		t.Fatalf("want queued, got %s", s.Status)
	}
	s.Status = model.SolveCompleted
	s.Objective = 10
	upd, err := m.UpdateSolve(ctx, s)
	if err != nil {
		t.Fatalf("UpdateSolve: %v", err)
	}
	if upd.UpdatedAt == "" {
		t.Fatalf("UpdateSolve did not stamp UpdatedAt")
	}
	got, _ := m.GetSolve(ctx, s.ID)
	if got.Status != model.SolveCompleted || got.Objective != 10 {
		t.Fatalf("update not persisted: %+v", got)
	}
	byProblem, _, err := m.ListSolves(ctx, p.ID, "", 10)
	if err != nil || len(byProblem) != 1 {
		t.Fatalf("ListSolves by problem: %v %d", err, len(byProblem))
	}
}

func TestMemorySubscriptions(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	s1, _ := m.CreateSubscription(ctx, model.SubscriptionRequest{URL: "http://a", Events: []string{"solve.completed"}, Secret: "k"})
	m.CreateSubscription(ctx, model.SubscriptionRequest{URL: "http://b", Events: []string{"solve.failed"}, Secret: "k"})

	hits, err := m.GetSubscriptionsForEvent(ctx, "solve.completed")
	if err != nil {
		t.Fatalf("GetSubscriptionsForEvent: %v", err)
	}
	if len(hits) != 1 || hits[0].ID != s1.ID {
		t.Fatalf("want only the completed subscriber, got %+v", hits)
	}
	if err := m.DeleteSubscription(ctx, s1.ID); err != nil {
		t.Fatalf("DeleteSubscription: %v", err)
	}
	if err := m.DeleteSubscription(ctx, s1.ID); err != ErrNotFound {
		t.Fatalf("double delete: want ErrNotFound, got %v", err)
	}
}

func TestMemoryWebhookQueue(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	id, err := m.EnqueueWebhook(ctx, "sub1", "solve.completed", "http://a", "k", []byte(`{}`))
	if err != nil {
		t.Fatalf("EnqueueWebhook: %v", err)
	}
	due, err := m.FetchDueWebhookDeliveries(ctx, 10)
	if err != nil || len(due) != 1 {
		t.Fatalf("FetchDue: %v %d", err, len(due))
	}

	// A failed attempt reschedules into the future and stops being due.
	next := time.Now().Add(time.Hour)
	if err := m.MarkWebhookDelivery(ctx, id, false, &next, "boom", 500, 12); err != nil {
		t.Fatalf("MarkWebhookDelivery: %v", err)
	}
	due, _ = m.FetchDueWebhookDeliveries(ctx, 10)
	if len(due) != 0 {
		t.Fatalf("rescheduled delivery still due")
	}

	items, _, err := m.ListWebhookDeliveries(ctx, "retry", "", 10)
	if err != nil || len(items) != 1 {
		t.Fatalf("ListWebhookDeliveries retry: %v %d", err, len(items))
	}
	if items[0]["attempts"] != 1 {
		t.Fatalf("want 1 attempt, got %v", items[0]["attempts"])
	}

	if err := m.FailWebhookDelivery(ctx, id, "gave up", 500, 0); err != nil {
		t.Fatalf("FailWebhookDelivery: %v", err)
	}
	items, _, _ = m.ListWebhookDeliveries(ctx, "failed", "", 10)
	if len(items) != 1 {
		t.Fatalf("want 1 failed delivery, got %d", len(items))
	}
}
