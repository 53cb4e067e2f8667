package orchestrator_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"finpay/internal/dbpool"
	"finpay/internal/orchestrator"
	"finpay/internal/statemachine"
)

// newTestPool starts a real Postgres container and applies the
// orchestrator's migration, the same real-database integration shape as the
// teacher's test/integration/testenv Postgres container helper.
func newTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("finpay_test"),
		postgres.WithUsername("finpay"),
		postgres.WithPassword("finpay"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := dbpool.Open(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	migration, err := os.ReadFile(filepath.Join("..", "..", "migrations", "orchestrator", "001_init.sql"))
	require.NoError(t, err)
	_, err = pool.Exec(ctx, string(migration))
	require.NoError(t, err)

	return pool
}

// TestTransition_ConcurrentCallersExactlyOneSucceeds exercises spec.md §8's
// literal concurrent-transition property: two goroutines racing the same
// APPROVED->AUTHORIZED transition on the same payment must see exactly one
// success and one ErrConcurrencyConflict.
func TestTransition_ConcurrentCallersExactlyOneSucceeds(t *testing.T) {
	if testing.Short() {
		t.Skip("requires a Docker-backed Postgres container")
	}

	pool := newTestPool(t)
	repo := orchestrator.NewRepository(pool)
	ctx := context.Background()

	svc := orchestrator.NewService(repo)
	payment, err := svc.CreatePayment(ctx, "cust-race", 5000, "USD", "idem-race-1", "trace-1")
	require.NoError(t, err)

	// Move it to APPROVED first so both racers attempt the same
	// APPROVED->AUTHORIZED edge.
	err = repo.WithTx(ctx, func(tx pgx.Tx) error {
		return repo.Transition(ctx, tx, payment.PaymentID, statemachine.Created, 0, statemachine.Approved, "risk_approved", nil, nil)
	})
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- repo.WithTx(ctx, func(tx pgx.Tx) error {
				return repo.Transition(ctx, tx, payment.PaymentID, statemachine.Approved, 1, statemachine.Authorized, "provider_authorized", nil, nil)
			})
		}()
	}
	wg.Wait()
	close(results)

	var successes, conflicts int
	for err := range results {
		if err == nil {
			successes++
			continue
		}
		var conflict *orchestrator.ErrConcurrencyConflict
		if errors.As(err, &conflict) {
			conflicts++
		}
	}

	assert.Equal(t, 1, successes, "exactly one concurrent transition should succeed")
	assert.Equal(t, 1, conflicts, "the loser should observe ErrConcurrencyConflict")

	final, err := repo.GetByID(ctx, payment.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, statemachine.Authorized, final.Status)
	assert.Equal(t, int64(2), final.StateVersion)
}
