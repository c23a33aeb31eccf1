package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
)

func TestInMemoryLedger_TransferMaintainsBalance(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()

	if err := l.EnsureAccount(ctx, PrincipalAccount("alice")); err != nil {
		t.Fatalf("ensure account alice: %v", err)
	}
	if err := l.EnsureAccount(ctx, PrincipalAccount("bob")); err != nil {
		t.Fatalf("ensure account bob: %v", err)
	}

	SeedBalance(l, PrincipalAccount("alice"), 10_000)

	res, err := l.Transfer(ctx, PrincipalAccount("alice"), PrincipalAccount("bob"), "p2p", "client-1", 1_500)
	if err != nil {
		t.Fatalf("transfer failed: %v", err)
	}

	if res.FromBalance != 8_500 {
		t.Fatalf("expected from balance 8500, got %d", res.FromBalance)
	}
	if res.ToBalance != 1_500 {
		t.Fatalf("expected to balance 1500, got %d", res.ToBalance)
	}
}

func TestInMemoryLedger_DuplicateTransaction(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()
	l.EnsureAccount(ctx, "a")
	l.EnsureAccount(ctx, "b")
	SeedBalance(l, "a", 5_000)

	if _, err := l.Transfer(ctx, "a", "b", "p2p", "dup", 500); err != nil {
		t.Fatalf("initial transfer failed: %v", err)
	}
	if _, err := l.Transfer(ctx, "a", "b", "p2p", "dup", 500); err != ErrDuplicateTransaction {
		t.Fatalf("expected duplicate error, got %v", err)
	}
}

func TestInMemoryLedger_DebitMovesToCustody(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()
	l.EnsureAccount(ctx, "owner")
	SeedBalance(l, "owner", 5_000)

	res, err := l.Debit(ctx, "owner", "delegation", "d-1", 1_500)
	if err != nil {
		t.Fatalf("debit failed: %v", err)
	}
	if res.AccountBalance != 3_500 {
		t.Fatalf("expected balance 3500, got %d", res.AccountBalance)
	}
	custody, _ := l.Balance(ctx, CustodyAccountCode)
	if custody != 1_500 {
		t.Fatalf("expected custody 1500, got %d", custody)
	}

	if _, err := l.Debit(ctx, "owner", "delegation", "d-1", 1_500); err != ErrDuplicateTransaction {
		t.Fatalf("expected duplicate debit error, got %v", err)
	}
	if _, err := l.Debit(ctx, "owner", "delegation", "d-2", 10_000); err != ErrInsufficientFunds {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	if _, err := l.Debit(ctx, "ghost", "delegation", "d-3", 1); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected account not found, got %v", err)
	}
}

func TestInMemoryLedger_CreditCreatesAccount(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()

	res, err := l.Credit(ctx, "recipient", "msig", "w:0", 300)
	if err != nil {
		t.Fatalf("credit failed: %v", err)
	}
	if res.AccountBalance != 300 {
		t.Fatalf("expected balance 300, got %d", res.AccountBalance)
	}
	if _, err := l.Credit(ctx, "recipient", "msig", "w:0", 300); err != ErrDuplicateTransaction {
		t.Fatalf("expected duplicate credit error, got %v", err)
	}
	bal, _ := l.Balance(ctx, "recipient")
	if bal != 300 {
		t.Fatalf("replayed credit changed balance to %d", bal)
	}
}

func TestInMemoryLedger_ConcurrentTransfers(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()
	l.EnsureAccount(ctx, "a")
	l.EnsureAccount(ctx, "b")
	SeedBalance(l, "a", 100_000)
	ledgerImpl := l.(*inMemoryLedger)

	const workers = 10
	const amount = int64(500)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			txID := fmt.Sprintf("tx-%d", i)
			if _, err := l.Transfer(ctx, "a", "b", "p2p", txID, amount); err != nil {
				t.Errorf("transfer %d failed: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	total := ledgerImpl.balances["a"] + ledgerImpl.balances["b"]
	if total != 100_000 {
		t.Fatalf("ledger not balanced after concurrency, total=%d", total)
	}
}

func TestInMemoryLedger_SettlementMayOverdraw(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()
	l.EnsureAccount(ctx, CardSettlementAccountCode)
	l.EnsureAccount(ctx, PrincipalAccount("alice"))

	res, err := l.Transfer(ctx, CardSettlementAccountCode, PrincipalAccount("alice"), "card_in", "c-1", 700)
	if err != nil {
		t.Fatalf("settlement transfer failed: %v", err)
	}
	if res.FromBalance != -700 || res.ToBalance != 700 {
		t.Fatalf("unexpected balances %+v", res)
	}

	if _, err := l.Transfer(ctx, PrincipalAccount("alice"), CardSettlementAccountCode, "card_out", "c-2", 701); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("principal accounts must not overdraw, got %v", err)
	}
}
