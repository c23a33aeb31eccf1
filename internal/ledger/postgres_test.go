package ledger_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/congo-pay/custody/internal/infra/pgtest"
	"github.com/congo-pay/custody/internal/ledger"
)

func TestPostgresLedgerPostings(t *testing.T) {
	pool := pgtest.Open(t)
	led := ledger.NewPostgresLedger(pool)
	ctx := context.Background()

	owner := pgtest.Address("owner")
	pgtest.Fund(t, led, owner, 100)
	account := ledger.PrincipalAccount(owner)

	ref := uuid.NewString()
	res, err := led.Debit(ctx, account, "test_debit", ref, 40)
	if err != nil {
		t.Fatalf("debit: %v", err)
	}
	if res.AccountBalance != 60 {
		t.Fatalf("expected 60 after debit, got %d", res.AccountBalance)
	}
	if _, err := led.Debit(ctx, account, "test_debit", ref, 40); !errors.Is(err, ledger.ErrDuplicateTransaction) {
		t.Fatalf("expected ErrDuplicateTransaction, got %v", err)
	}
	if _, err := led.Debit(ctx, account, "test_debit", uuid.NewString(), 61); !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}

	recipient := pgtest.Address("recipient")
	if _, err := led.Credit(ctx, ledger.PrincipalAccount(recipient), "test_credit", uuid.NewString(), 25); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if bal, _ := led.Balance(ctx, ledger.PrincipalAccount(recipient)); bal != 25 {
		t.Fatalf("expected recipient 25, got %d", bal)
	}
	if bal, _ := led.Balance(ctx, account); bal != 60 {
		t.Fatalf("expected owner 60, got %d", bal)
	}
}

func TestPostgresLedgerWithTxRollsBack(t *testing.T) {
	pool := pgtest.Open(t)
	led := ledger.NewPostgresLedger(pool)
	ctx := context.Background()

	owner := pgtest.Address("owner")
	pgtest.Fund(t, led, owner, 100)
	account := ledger.PrincipalAccount(owner)

	tx, err := pool.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if _, err := led.WithTx(tx).Debit(ctx, account, "test_debit", uuid.NewString(), 70); err != nil {
		t.Fatalf("debit in tx: %v", err)
	}
	if _, err := led.WithTx(tx).Debit(ctx, account, "test_debit", uuid.NewString(), 70); !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("expected second debit to see the first, got %v", err)
	}
	if err := tx.Rollback(ctx); err != nil {
		t.Fatalf("rollback: %v", err)
	}

	if bal, _ := led.Balance(ctx, account); bal != 100 {
		t.Fatalf("rolled back debit changed the balance to %d", bal)
	}
}
