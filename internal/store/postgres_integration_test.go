package store

import (
	"context"
	"os"
	"testing"

	"pdroute/internal/model"
)

func TestPostgresConnectivityAndMigrate(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set")
	}
	p, err := NewPostgres(dsn)
	if err != nil {
		t.Fatalf("NewPostgres: %v", err)
	}
	if err := p.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if err := p.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	prob, err := p.CreateProblem(context.Background(), model.ProblemIn{Name: "it"})
	if err != nil {
		t.Fatalf("CreateProblem: %v", err)
	}
	if _, _, err := p.ListSolves(context.Background(), prob.ID, "", 1); err != nil {
		t.Fatalf("ListSolves: %v", err)
	}
}
