package store

import (
	"context"
	"errors"
	"time"

	"pdroute/internal/model"
)

// Store is the persistence interface used by the API server.
type Store interface {
	// Problems
	CreateProblem(ctx context.Context, in model.ProblemIn) (model.Problem, error)
	GetProblem(ctx context.Context, id string) (model.Problem, error)
	ListProblems(ctx context.Context, cursor string, limit int) ([]model.Problem, string, error)

	// Solves
	CreateSolve(ctx context.Context, problemID string) (model.Solve, error)
	GetSolve(ctx context.Context, id string) (model.Solve, error)
	ListSolves(ctx context.Context, problemID, cursor string, limit int) ([]model.Solve, string, error)
	UpdateSolve(ctx context.Context, s model.Solve) (model.Solve, error)

	// Subscriptions
	CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error)
	GetSubscriptionsForEvent(ctx context.Context, eventType string) ([]model.Subscription, error)
	ListSubscriptions(ctx context.Context, cursor string, limit int) ([]model.Subscription, string, error)
	DeleteSubscription(ctx context.Context, id string) error

	// Webhook deliveries
	EnqueueWebhook(ctx context.Context, subscriptionID, eventType, url, secret string, payload []byte) (string, error)
	FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error)
	MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error
	FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error
	ListWebhookDeliveries(ctx context.Context, status, cursor string, limit int) ([]map[string]any, string, error)
}

// WebhookDelivery is one queued webhook attempt.
type WebhookDelivery struct {
	ID             string
	SubscriptionID string
	EventType      string
	URL            string
	Secret         string
	Payload        []byte
	Status         string
	Attempts       int
}

var ErrNotFound = errors.New("not found")
