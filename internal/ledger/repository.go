package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"finpay/internal/eventbus"
	"finpay/internal/inbox"
	"finpay/internal/logging"
	"finpay/internal/outbox"
)

const (
	tableOutbox   = "ledger_outbox_events"
	tableInbox    = "ledger_inbox_events"
	tableAccounts = "ledger_accounts"
	tableEntries  = "ledger_entries"
)

// Repository is the ledger's pgx-backed data-access layer.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository wraps an open pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// EnsureAccounts bootstraps the fixed account set if missing, retrying on
// transient connection errors the way the teacher retries pool setup at
// startup.
func (r *Repository) EnsureAccounts(ctx context.Context) error {
	accounts := []struct {
		id      string
		accType AccountType
	}{
		{AccountIDCustomerCash, AccountCustomerCash},
		{AccountIDMerchantReceivable, AccountMerchantReceivable},
		{AccountIDPlatformFee, AccountPlatformFee},
		{AccountIDClearing, AccountClearing},
	}

	var lastErr error
	for attempt := 1; attempt <= 3; attempt++ {
		lastErr = nil
		for _, a := range accounts {
			query := `
				INSERT INTO ` + tableAccounts + ` (account_id, account_type, balance_cents)
				VALUES ($1, $2, 0)
				ON CONFLICT (account_id) DO NOTHING
			`
			if _, err := r.pool.Exec(ctx, query, a.id, string(a.accType)); err != nil {
				lastErr = err
				break
			}
		}
		if lastErr == nil {
			return nil
		}
		logging.Warn("retrying ledger account bootstrap", map[string]interface{}{"attempt": attempt, "error": lastErr.Error()})
		time.Sleep(time.Duration(attempt) * 500 * time.Millisecond)
	}
	return fmt.Errorf("bootstrap ledger accounts: %w", lastErr)
}

// WithTx scopes fn to one transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// InboxMarkIfNew dedups (event_id, "ledger") inside tx.
func (r *Repository) InboxMarkIfNew(ctx context.Context, tx pgx.Tx, eventID, topic string) (bool, error) {
	return inbox.MarkIfNew(ctx, tx, tableInbox, eventID, "ledger", topic)
}

// PostEntry locks both accounts in id order (preventing deadlocks, the same
// discipline the teacher's AtomicTransfer uses), inserts one DEBIT and one
// CREDIT row, and adjusts both balances, inside tx.
func (r *Repository) PostEntry(ctx context.Context, tx pgx.Tx, transactionID, debitAccountID, creditAccountID string, amountCents int64) error {
	firstID, secondID := debitAccountID, creditAccountID
	if debitAccountID > creditAccountID {
		firstID, secondID = creditAccountID, debitAccountID
	}
	lockQuery := `SELECT account_id FROM ` + tableAccounts + ` WHERE account_id = $1 FOR UPDATE`
	if _, err := tx.Exec(ctx, lockQuery, firstID); err != nil {
		return fmt.Errorf("lock account %s: %w", firstID, err)
	}
	if _, err := tx.Exec(ctx, lockQuery, secondID); err != nil {
		return fmt.Errorf("lock account %s: %w", secondID, err)
	}

	now := time.Now().UTC()
	insertEntry := `
		INSERT INTO ` + tableEntries + ` (entry_id, transaction_id, account_id, direction, amount_cents, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if _, err := tx.Exec(ctx, insertEntry, uuid.NewString(), transactionID, debitAccountID, string(Debit), amountCents, now); err != nil {
		return fmt.Errorf("insert debit entry: %w", err)
	}
	if _, err := tx.Exec(ctx, insertEntry, uuid.NewString(), transactionID, creditAccountID, string(Credit), amountCents, now); err != nil {
		return fmt.Errorf("insert credit entry: %w", err)
	}

	updateBalance := `UPDATE ` + tableAccounts + ` SET balance_cents = balance_cents - $1 WHERE account_id = $2`
	if _, err := tx.Exec(ctx, updateBalance, amountCents, debitAccountID); err != nil {
		return fmt.Errorf("debit account balance: %w", err)
	}
	updateBalance = `UPDATE ` + tableAccounts + ` SET balance_cents = balance_cents + $1 WHERE account_id = $2`
	if _, err := tx.Exec(ctx, updateBalance, amountCents, creditAccountID); err != nil {
		return fmt.Errorf("credit account balance: %w", err)
	}

	return r.verifyBalanced(ctx, tx, transactionID)
}

// verifyBalanced re-reads every entry for transactionID and raises
// ErrLedgerImbalance if debits and credits disagree — the invariant check
// spec.md §4.7 step 4 requires before the transaction commits.
func (r *Repository) verifyBalanced(ctx context.Context, tx pgx.Tx, transactionID string) error {
	query := `
		SELECT
			COALESCE(SUM(CASE WHEN direction = 'DEBIT' THEN amount_cents ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN direction = 'CREDIT' THEN amount_cents ELSE 0 END), 0)
		FROM ` + tableEntries + ` WHERE transaction_id = $1
	`
	var debits, credits int64
	if err := tx.QueryRow(ctx, query, transactionID).Scan(&debits, &credits); err != nil {
		return fmt.Errorf("sum ledger entries: %w", err)
	}
	if debits != credits {
		return &ErrLedgerImbalance{TransactionID: transactionID, Debits: debits, Credits: credits}
	}
	return nil
}

// InsertOutboxEvent writes a new PENDING outbox row inside tx.
func (r *Repository) InsertOutboxEvent(ctx context.Context, tx pgx.Tx, aggregateID, topic string, env eventbus.Envelope) error {
	return outbox.Insert(ctx, tx, tableOutbox, env.EventID, "Ledger", aggregateID, env.EventType, topic, env)
}

// ReconcileOne returns the debit/credit sums for one transaction_id.
func (r *Repository) ReconcileOne(ctx context.Context, transactionID string) (debits, credits int64, err error) {
	query := `
		SELECT
			COALESCE(SUM(CASE WHEN direction = 'DEBIT' THEN amount_cents ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN direction = 'CREDIT' THEN amount_cents ELSE 0 END), 0)
		FROM ` + tableEntries + ` WHERE transaction_id = $1
	`
	err = r.pool.QueryRow(ctx, query, transactionID).Scan(&debits, &credits)
	return debits, credits, err
}

// ReconcileSummary is one row of the global reconciliation listing.
type ReconcileSummary struct {
	TransactionID string
	Debits        int64
	Credits       int64
}

// ReconcileAll returns up to limit transactions, flagging which are
// imbalanced (expected to always be empty under correct operation).
func (r *Repository) ReconcileAll(ctx context.Context, limit int) (all []ReconcileSummary, imbalanced []ReconcileSummary, err error) {
	query := `
		SELECT
			transaction_id,
			COALESCE(SUM(CASE WHEN direction = 'DEBIT' THEN amount_cents ELSE 0 END), 0) AS debits,
			COALESCE(SUM(CASE WHEN direction = 'CREDIT' THEN amount_cents ELSE 0 END), 0) AS credits
		FROM ` + tableEntries + `
		GROUP BY transaction_id
		ORDER BY transaction_id
		LIMIT $1
	`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, nil, fmt.Errorf("reconcile all: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var s ReconcileSummary
		if err := rows.Scan(&s.TransactionID, &s.Debits, &s.Credits); err != nil {
			return nil, nil, fmt.Errorf("scan reconciliation row: %w", err)
		}
		all = append(all, s)
		if s.Debits != s.Credits {
			imbalanced = append(imbalanced, s)
		}
	}
	return all, imbalanced, rows.Err()
}
