package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/congo-pay/custody/internal/ledger"
)

const uniqueViolation = "23505"

// Postgres persists wallets, transactions and delegations in PostgreSQL.
// Update runs in one database transaction and locks every row it reads.
type Postgres struct {
	db *pgxpool.Pool
}

// NewPostgres builds a store backed by the given pool.
func NewPostgres(db *pgxpool.Pool) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) Update(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := p.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if err := fn(&pgTx{tx: tx, lock: true}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (p *Postgres) View(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := p.db.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly, IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	return fn(&pgTx{tx: tx})
}

type pgTx struct {
	tx   pgx.Tx
	lock bool
}

// Ledger runs Postgres postings on this transaction's connection. Other
// ledgers are returned as is.
func (t *pgTx) Ledger(l ledger.Ledger) ledger.Ledger {
	if pl, ok := l.(*ledger.PostgresLedger); ok {
		return pl.WithTx(t.tx)
	}
	return l
}

func (t *pgTx) forUpdate(query string) string {
	if t.lock {
		return query + " FOR UPDATE"
	}
	return query
}

func (t *pgTx) Wallet(ctx context.Context, id string) (Wallet, error) {
	var w Wallet
	err := t.tx.QueryRow(ctx, t.forUpdate(`SELECT id, threshold, balance, nonce, created_at
        FROM msig_wallets WHERE id = $1`), id).Scan(&w.ID, &w.Threshold, &w.Balance, &w.Nonce, &w.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Wallet{}, ErrNotFound
		}
		return Wallet{}, err
	}

	rows, err := t.tx.Query(ctx, `SELECT address, added_at, active FROM msig_wallet_owners
        WHERE wallet_id = $1 ORDER BY position`, id)
	if err != nil {
		return Wallet{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var o Owner
		if err := rows.Scan(&o.Address, &o.AddedAt, &o.Active); err != nil {
			return Wallet{}, err
		}
		w.Owners = append(w.Owners, o)
	}
	return w, rows.Err()
}

func (t *pgTx) InsertWallet(ctx context.Context, w Wallet) error {
	if !t.lock {
		return ErrReadOnly
	}
	_, err := t.tx.Exec(ctx, `INSERT INTO msig_wallets (id, threshold, balance, nonce, created_at)
        VALUES ($1, $2, $3, $4, $5)`, w.ID, w.Threshold, w.Balance, w.Nonce, w.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrExists
		}
		return err
	}
	return t.saveOwners(ctx, w)
}

func (t *pgTx) UpdateWallet(ctx context.Context, w Wallet) error {
	if !t.lock {
		return ErrReadOnly
	}
	cmd, err := t.tx.Exec(ctx, `UPDATE msig_wallets SET threshold = $2, balance = $3, nonce = $4
        WHERE id = $1`, w.ID, w.Threshold, w.Balance, w.Nonce)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return t.saveOwners(ctx, w)
}

func (t *pgTx) saveOwners(ctx context.Context, w Wallet) error {
	for i, o := range w.Owners {
		if _, err := t.tx.Exec(ctx, `INSERT INTO msig_wallet_owners (wallet_id, address, added_at, active, position)
            VALUES ($1, $2, $3, $4, $5)
            ON CONFLICT (wallet_id, address) DO UPDATE
            SET added_at = EXCLUDED.added_at, active = EXCLUDED.active, position = EXCLUDED.position`,
			w.ID, o.Address, o.AddedAt, o.Active, i); err != nil {
			return fmt.Errorf("save owner %s: %w", o.Address, err)
		}
	}
	return nil
}

const transactionColumns = `wallet_id, id, kind, proposer, recipient, amount, memo, target,
        new_threshold, approvals, executed, executed_at, created_at, expires_at`

func scanTransaction(row pgx.Row) (Transaction, error) {
	var tr Transaction
	err := row.Scan(&tr.WalletID, &tr.ID, &tr.Kind, &tr.Proposer, &tr.Recipient, &tr.Amount, &tr.Memo, &tr.Target,
		&tr.NewThreshold, &tr.Approvals, &tr.Executed, &tr.ExecutedAt, &tr.CreatedAt, &tr.ExpiresAt)
	return tr, err
}

func (t *pgTx) Transaction(ctx context.Context, walletID string, id uint64) (Transaction, error) {
	row := t.tx.QueryRow(ctx, t.forUpdate(`SELECT `+transactionColumns+`
        FROM msig_transactions WHERE wallet_id = $1 AND id = $2`), walletID, id)
	tr, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transaction{}, ErrNotFound
		}
		return Transaction{}, err
	}
	return tr, nil
}

func (t *pgTx) PutTransaction(ctx context.Context, tr Transaction) error {
	if !t.lock {
		return ErrReadOnly
	}
	approvals := tr.Approvals
	if approvals == nil {
		approvals = []string{}
	}
	_, err := t.tx.Exec(ctx, `INSERT INTO msig_transactions (`+transactionColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
        ON CONFLICT (wallet_id, id) DO UPDATE
        SET approvals = EXCLUDED.approvals, executed = EXCLUDED.executed, executed_at = EXCLUDED.executed_at`,
		tr.WalletID, tr.ID, string(tr.Kind), tr.Proposer, tr.Recipient, tr.Amount, tr.Memo, tr.Target,
		tr.NewThreshold, approvals, tr.Executed, tr.ExecutedAt, tr.CreatedAt, tr.ExpiresAt)
	return err
}

func (t *pgTx) Transactions(ctx context.Context, walletID string) ([]Transaction, error) {
	rows, err := t.tx.Query(ctx, `SELECT `+transactionColumns+`
        FROM msig_transactions WHERE wallet_id = $1 ORDER BY id`, walletID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		tr, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tr)
	}
	return out, rows.Err()
}

const delegationColumns = `owner, delegate, amount, daily_limit, spent_today, spent_total,
        last_day, start_block, end_block, active, client_tx_id`

func scanDelegation(row pgx.Row) (Delegation, error) {
	var d Delegation
	err := row.Scan(&d.Owner, &d.Delegate, &d.Amount, &d.DailyLimit, &d.SpentToday, &d.SpentTotal,
		&d.LastDay, &d.StartBlock, &d.EndBlock, &d.Active, &d.ClientTxID)
	return d, err
}

func (t *pgTx) Delegation(ctx context.Context, key DelegationKey) (Delegation, error) {
	row := t.tx.QueryRow(ctx, t.forUpdate(`SELECT `+delegationColumns+`
        FROM delegations WHERE owner = $1 AND delegate = $2`), key.Owner, key.Delegate)
	d, err := scanDelegation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Delegation{}, ErrNotFound
		}
		return Delegation{}, err
	}
	return d, nil
}

func (t *pgTx) PutDelegation(ctx context.Context, d Delegation) error {
	if !t.lock {
		return ErrReadOnly
	}
	_, err := t.tx.Exec(ctx, `INSERT INTO delegations (`+delegationColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
        ON CONFLICT (owner, delegate) DO UPDATE
        SET amount = EXCLUDED.amount, daily_limit = EXCLUDED.daily_limit,
            spent_today = EXCLUDED.spent_today, spent_total = EXCLUDED.spent_total,
            last_day = EXCLUDED.last_day, start_block = EXCLUDED.start_block,
            end_block = EXCLUDED.end_block, active = EXCLUDED.active,
            client_tx_id = EXCLUDED.client_tx_id`,
		d.Owner, d.Delegate, d.Amount, d.DailyLimit, d.SpentToday, d.SpentTotal,
		d.LastDay, d.StartBlock, d.EndBlock, d.Active, d.ClientTxID)
	return err
}

func (t *pgTx) Delegations(ctx context.Context, filter DelegationFilter) ([]Delegation, error) {
	rows, err := t.tx.Query(ctx, `SELECT `+delegationColumns+`
        FROM delegations
        WHERE ($1 = '' OR owner = $1) AND ($2 = '' OR delegate = $2)
        ORDER BY owner, delegate`, filter.Owner, filter.Delegate)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Delegation
	for rows.Next() {
		d, err := scanDelegation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
