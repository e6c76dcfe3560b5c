//go:build postgres_integration

package store

import (
	"os"
	"testing"
	"time"

	"routesolver/internal/model"
)

func TestPostgresConnectivityAndMigrate(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set; skipping integration test")
	}
	p, err := NewPostgres(dsn)
	if err != nil {
		t.Fatalf("NewPostgres: %v", err)
	}
	defer p.Close()
	if err := p.Ping(t.Context()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if err := p.MigrateDir("../../db/migrations"); err != nil {
		t.Fatalf("MigrateDir: %v", err)
	}
	rec := model.SolveRecord{TenantID: "t_it", Kind: model.KindMatrix, Status: model.StatusSolved, Nodes: 3, Cost: 12, CreatedAt: time.Now().UTC()}
	if err := p.SaveSolve(t.Context(), rec); err != nil {
		t.Fatalf("SaveSolve: %v", err)
	}
	items, _, err := p.ListSolves(t.Context(), "t_it", "", "", 1)
	if err != nil {
		t.Fatalf("ListSolves: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("want 1 solve, got %d", len(items))
	}
	if _, err := p.SolveStats(t.Context(), "t_it", time.Time{}); err != nil {
		t.Fatalf("SolveStats: %v", err)
	}
}
