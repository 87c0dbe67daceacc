//go:build integration

package postgres

import (
	"context"
	"testing"
	"time"

	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/chronolab/chronovm/pkg/governance/store"
	"github.com/chronolab/chronovm/pkg/governance/store/memory"
	"github.com/chronolab/chronovm/pkg/governance/template"
)

// TestStoreConformance exercises both the memory and a real Postgres instance through
// the identical sequence of Store calls, verifying the two implementations
// agree on externally observable behaviour. Run with `go test -tags=integration`
// against a Docker daemon.
func TestStoreConformance(t *testing.T) {
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("chronovm"),
		tcpostgres.WithUsername("chronovm"),
		tcpostgres.WithPassword("chronovm"),
		tcpostgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	if err := wait.ForListeningPort("5432/tcp").WaitUntilReady(ctx, container); err != nil {
		t.Fatalf("postgres never became ready: %v", err)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to build connection string: %v", err)
	}

	pg, err := Open(Config{DSN: dsn})
	if err != nil {
		t.Fatalf("failed to open postgres store: %v", err)
	}
	t.Cleanup(func() { _ = pg.Close() })

	runConformanceSuite(t, pg)
	runConformanceSuite(t, memory.New())
}

func runConformanceSuite(t *testing.T, s store.Store) {
	t.Helper()
	ctx := context.Background()
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	v1 := template.CreateTemplate("conformance-proj", "user-1", ts)
	if err := s.PutLayout(ctx, v1); err != nil {
		t.Fatalf("PutLayout: %v", err)
	}
	got, err := s.GetCurrentLayout(ctx, "conformance-proj")
	if err != nil {
		t.Fatalf("GetCurrentLayout: %v", err)
	}
	if got.LayoutVersion != 1 {
		t.Fatalf("expected version 1, got %d", got.LayoutVersion)
	}
	if err := s.PutLayout(ctx, v1); err == nil {
		t.Fatal("expected duplicate version to be rejected")
	}
}
