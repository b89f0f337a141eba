package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"pdroute/internal/model"
)

// Postgres persists problems, solves, subscriptions, and webhook deliveries.
// Selected when DATABASE_URL is set.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

var schema = []string{
	`CREATE TABLE IF NOT EXISTS problems (
		id UUID PRIMARY KEY,
		name TEXT,
		payload JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS solves (
		id UUID PRIMARY KEY,
		problem_id UUID NOT NULL REFERENCES problems(id),
		status TEXT NOT NULL,
		objective DOUBLE PRECISION,
		trips JSONB,
		warnings JSONB,
		error TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS solves_problem_idx ON solves (problem_id)`,
	`CREATE TABLE IF NOT EXISTS subscriptions (
		id UUID PRIMARY KEY,
		url TEXT NOT NULL,
		events JSONB NOT NULL,
		secret TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS webhook_deliveries (
		id UUID PRIMARY KEY,
		subscription_id UUID NOT NULL,
		event_type TEXT NOT NULL,
		url TEXT NOT NULL,
		secret TEXT NOT NULL,
		payload BYTEA NOT NULL,
		status TEXT NOT NULL,
		attempts INT NOT NULL DEFAULT 0,
		next_attempt_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		last_error TEXT,
		response_code INT,
		latency_ms INT,
		delivered_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS webhook_due_idx ON webhook_deliveries (status, next_attempt_at)`,
}

// Migrate applies the schema. Safe to run on every startup.
func (p *Postgres) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (p *Postgres) CreateProblem(ctx context.Context, in model.ProblemIn) (model.Problem, error) {
	id := uuid.New().String()
	payload, err := json.Marshal(in)
	if err != nil {
		return model.Problem{}, err
	}
	var created time.Time
	err = p.db.QueryRowContext(ctx,
		`INSERT INTO problems (id, name, payload) VALUES ($1,$2,$3) RETURNING created_at`,
		id, nullIfEmpty(in.Name), payload).Scan(&created)
	if err != nil {
		return model.Problem{}, err
	}
	return model.Problem{
		ID: id, Name: in.Name,
		Nodes: in.Nodes, Edges: in.Edges, Requests: in.Requests, Vehicles: in.Vehicles,
		CreatedAt: created.UTC().Format(time.RFC3339),
	}, nil
}

func (p *Postgres) GetProblem(ctx context.Context, id string) (model.Problem, error) {
	var (
		name    sql.NullString
		payload []byte
		created time.Time
	)
	err := p.db.QueryRowContext(ctx,
		`SELECT name, payload, created_at FROM problems WHERE id=$1`, id).
		Scan(&name, &payload, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Problem{}, ErrNotFound
		}
		return model.Problem{}, err
	}
	var in model.ProblemIn
	if err := json.Unmarshal(payload, &in); err != nil {
		return model.Problem{}, err
	}
	return model.Problem{
		ID: id, Name: name.String,
		Nodes: in.Nodes, Edges: in.Edges, Requests: in.Requests, Vehicles: in.Vehicles,
		CreatedAt: created.UTC().Format(time.RFC3339),
	}, nil
}

func (p *Postgres) ListProblems(ctx context.Context, cursor string, limit int) ([]model.Problem, string, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var rows *sql.Rows
	var err error
	if cursor != "" {
		rows, err = p.db.QueryContext(ctx,
			`SELECT id::text, name, payload, created_at FROM problems WHERE id::text > $1 ORDER BY id LIMIT $2`, cursor, limit)
	} else {
		rows, err = p.db.QueryContext(ctx,
			`SELECT id::text, name, payload, created_at FROM problems ORDER BY id LIMIT $1`, limit)
	}
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []model.Problem{}
	var last string
	for rows.Next() {
		var (
			id      string
			name    sql.NullString
			payload []byte
			created time.Time
		)
		if err := rows.Scan(&id, &name, &payload, &created); err != nil {
			return nil, "", err
		}
		var in model.ProblemIn
		if err := json.Unmarshal(payload, &in); err != nil {
			return nil, "", err
		}
		out = append(out, model.Problem{
			ID: id, Name: name.String,
			Nodes: in.Nodes, Edges: in.Edges, Requests: in.Requests, Vehicles: in.Vehicles,
			CreatedAt: created.UTC().Format(time.RFC3339),
		})
		last = id
	}
	var next string
	if len(out) == limit {
		next = last
	}
	return out, next, rows.Err()
}

func (p *Postgres) CreateSolve(ctx context.Context, problemID string) (model.Solve, error) {
	if _, err := p.GetProblem(ctx, problemID); err != nil {
		return model.Solve{}, err
	}
	id := uuid.New().String()
	var created time.Time
	err := p.db.QueryRowContext(ctx,
		`INSERT INTO solves (id, problem_id, status) VALUES ($1,$2,$3) RETURNING created_at`,
		id, problemID, model.SolveQueued).Scan(&created)
	if err != nil {
		return model.Solve{}, err
	}
	ts := created.UTC().Format(time.RFC3339)
	return model.Solve{ID: id, ProblemID: problemID, Status: model.SolveQueued, CreatedAt: ts, UpdatedAt: ts}, nil
}

func (p *Postgres) GetSolve(ctx context.Context, id string) (model.Solve, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT id::text, problem_id::text, status, objective, trips, warnings, error, created_at, updated_at
		 FROM solves WHERE id=$1`, id)
	s, err := scanSolve(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Solve{}, ErrNotFound
		}
		return model.Solve{}, err
	}
	return s, nil
}

func (p *Postgres) ListSolves(ctx context.Context, problemID, cursor string, limit int) ([]model.Solve, string, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	q := `SELECT id::text, problem_id::text, status, objective, trips, warnings, error, created_at, updated_at FROM solves`
	args := []any{}
	where := ""
	if problemID != "" {
		args = append(args, problemID)
		where = ` WHERE problem_id=$1`
	}
	if cursor != "" {
		args = append(args, cursor)
		if where == "" {
			where = ` WHERE id::text > $1`
		} else {
			where += ` AND id::text > $2`
		}
	}
	args = append(args, limit)
	q += where + ` ORDER BY id LIMIT $` + strconv.Itoa(len(args))
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []model.Solve{}
	var last string
	for rows.Next() {
		s, err := scanSolve(rows)
		if err != nil {
			return nil, "", err
		}
		out = append(out, s)
		last = s.ID
	}
	var next string
	if len(out) == limit {
		next = last
	}
	return out, next, rows.Err()
}

func (p *Postgres) UpdateSolve(ctx context.Context, s model.Solve) (model.Solve, error) {
	trips, err := json.Marshal(s.Trips)
	if err != nil {
		return model.Solve{}, err
	}
	warnings, err := json.Marshal(s.Warnings)
	if err != nil {
		return model.Solve{}, err
	}
	var updated time.Time
	err = p.db.QueryRowContext(ctx,
		`UPDATE solves SET status=$2, objective=$3, trips=$4, warnings=$5, error=$6, updated_at=now()
		 WHERE id=$1 RETURNING updated_at`,
		s.ID, s.Status, s.Objective, trips, warnings, nullIfEmpty(s.Error)).Scan(&updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Solve{}, ErrNotFound
		}
		return model.Solve{}, err
	}
	s.UpdatedAt = updated.UTC().Format(time.RFC3339)
	return s, nil
}

func (p *Postgres) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
	id := uuid.New().String()
	events, err := json.Marshal(req.Events)
	if err != nil {
		return model.Subscription{}, err
	}
	_, err = p.db.ExecContext(ctx,
		`INSERT INTO subscriptions (id, url, events, secret) VALUES ($1,$2,$3,$4)`,
		id, req.URL, events, req.Secret)
	if err != nil {
		return model.Subscription{}, err
	}
	return model.Subscription{ID: id, URL: req.URL, Events: req.Events, Secret: req.Secret}, nil
}

func (p *Postgres) GetSubscriptionsForEvent(ctx context.Context, eventType string) ([]model.Subscription, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT id::text, url, events, secret FROM subscriptions WHERE events ? $1`, eventType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Subscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *Postgres) ListSubscriptions(ctx context.Context, cursor string, limit int) ([]model.Subscription, string, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var rows *sql.Rows
	var err error
	if cursor != "" {
		rows, err = p.db.QueryContext(ctx,
			`SELECT id::text, url, events, secret FROM subscriptions WHERE id::text > $1 ORDER BY id LIMIT $2`, cursor, limit)
	} else {
		rows, err = p.db.QueryContext(ctx,
			`SELECT id::text, url, events, secret FROM subscriptions ORDER BY id LIMIT $1`, limit)
	}
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []model.Subscription{}
	var last string
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, "", err
		}
		out = append(out, s)
		last = s.ID
	}
	var next string
	if len(out) == limit {
		next = last
	}
	return out, next, rows.Err()
}

func (p *Postgres) DeleteSubscription(ctx context.Context, id string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) EnqueueWebhook(ctx context.Context, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
	id := uuid.New().String()
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO webhook_deliveries (id, subscription_id, event_type, url, secret, payload, status)
		 VALUES ($1,$2,$3,$4,$5,$6,'pending')`,
		id, subscriptionID, eventType, url, secret, payload)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (p *Postgres) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := p.db.QueryContext(ctx,
		`SELECT id::text, subscription_id::text, event_type, url, secret, payload, status, attempts
		 FROM webhook_deliveries
		 WHERE status IN ('pending','retry') AND next_attempt_at <= now()
		 ORDER BY next_attempt_at LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []WebhookDelivery{}
	for rows.Next() {
		var d WebhookDelivery
		if err := rows.Scan(&d.ID, &d.SubscriptionID, &d.EventType, &d.URL, &d.Secret, &d.Payload, &d.Status, &d.Attempts); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (p *Postgres) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	if success {
		_, err := p.db.ExecContext(ctx,
			`UPDATE webhook_deliveries SET status='delivered', attempts=attempts+1, response_code=$2, latency_ms=$3, delivered_at=now()
			 WHERE id=$1`, id, responseCode, latencyMs)
		return err
	}
	next := time.Now().Add(1 * time.Minute)
	if nextAttemptAt != nil {
		next = *nextAttemptAt
	}
	_, err := p.db.ExecContext(ctx,
		`UPDATE webhook_deliveries SET status='retry', attempts=attempts+1, last_error=$2, response_code=$3, latency_ms=$4, next_attempt_at=$5
		 WHERE id=$1`, id, lastError, responseCode, latencyMs, next)
	return err
}

func (p *Postgres) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	_, err := p.db.ExecContext(ctx,
		`UPDATE webhook_deliveries SET status='failed', last_error=$2, response_code=$3, latency_ms=$4 WHERE id=$1`,
		id, lastError, responseCode, latencyMs)
	return err
}

func (p *Postgres) ListWebhookDeliveries(ctx context.Context, status, cursor string, limit int) ([]map[string]any, string, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	q := `SELECT id::text, event_type, status, attempts, url, next_attempt_at, last_error FROM webhook_deliveries`
	args := []any{}
	where := ""
	if status != "" {
		args = append(args, status)
		where = ` WHERE status=$1`
	}
	if cursor != "" {
		args = append(args, cursor)
		if where == "" {
			where = ` WHERE id::text > $1`
		} else {
			where += ` AND id::text > $2`
		}
	}
	args = append(args, limit)
	q += where + ` ORDER BY id LIMIT $` + strconv.Itoa(len(args))
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []map[string]any{}
	var last string
	for rows.Next() {
		var (
			id, eventType, st, url string
			attempts               int
			nextAt                 sql.NullTime
			lastErr                sql.NullString
		)
		if err := rows.Scan(&id, &eventType, &st, &attempts, &url, &nextAt, &lastErr); err != nil {
			return nil, "", err
		}
		item := map[string]any{"id": id, "eventType": eventType, "status": st, "attempts": attempts, "url": url}
		if nextAt.Valid {
			item["nextAttemptAt"] = nextAt.Time
		}
		if lastErr.Valid && lastErr.String != "" {
			item["lastError"] = lastErr.String
		}
		out = append(out, item)
		last = id
	}
	var next string
	if len(out) == limit {
		next = last
	}
	return out, next, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSolve(row rowScanner) (model.Solve, error) {
	var (
		s         model.Solve
		objective sql.NullFloat64
		trips     []byte
		warnings  []byte
		errMsg    sql.NullString
		created   time.Time
		updated   time.Time
	)
	if err := row.Scan(&s.ID, &s.ProblemID, &s.Status, &objective, &trips, &warnings, &errMsg, &created, &updated); err != nil {
		return model.Solve{}, err
	}
	s.Objective = objective.Float64
	if len(trips) > 0 {
		if err := json.Unmarshal(trips, &s.Trips); err != nil {
			return model.Solve{}, err
		}
	}
	if len(warnings) > 0 {
		if err := json.Unmarshal(warnings, &s.Warnings); err != nil {
			return model.Solve{}, err
		}
	}
	s.Error = errMsg.String
	s.CreatedAt = created.UTC().Format(time.RFC3339)
	s.UpdatedAt = updated.UTC().Format(time.RFC3339)
	return s, nil
}

func scanSubscription(rows *sql.Rows) (model.Subscription, error) {
	var s model.Subscription
	var events []byte
	if err := rows.Scan(&s.ID, &s.URL, &events, &s.Secret); err != nil {
		return model.Subscription{}, err
	}
	if err := json.Unmarshal(events, &s.Events); err != nil {
		return model.Subscription{}, err
	}
	return s, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
