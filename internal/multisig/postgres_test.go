package multisig

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/congo-pay/custody/internal/clock"
	"github.com/congo-pay/custody/internal/infra/pgtest"
	"github.com/congo-pay/custody/internal/ledger"
	"github.com/congo-pay/custody/internal/store"
)

func TestPostgresConcurrentExecute(t *testing.T) {
	pool := pgtest.Open(t)
	led := ledger.NewPostgresLedger(pool)
	svc := NewService(store.NewPostgres(pool), led, clock.NewManual(1_000), Options{ExpiryTicks: 100})
	ctx := context.Background()

	owners := make([]string, 10)
	for i := range owners {
		owners[i] = pgtest.Address("owner")
	}
	payer, recipient := pgtest.Address("payer"), pgtest.Address("recipient")
	pgtest.Fund(t, led, payer, 1_000)

	walletID, err := svc.Initialize(ctx, InitializeInput{Owners: owners, Threshold: 1})
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if _, err := svc.Deposit(ctx, DepositInput{WalletID: walletID, From: payer, Amount: 1_000}); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	txID, err := svc.Propose(ctx, ProposeInput{WalletID: walletID, Proposer: owners[0], Recipient: recipient, Amount: 400})
	if err != nil {
		t.Fatalf("propose: %v", err)
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		success  int
		replayed int
	)
	for _, o := range owners {
		wg.Add(1)
		go func(owner string) {
			defer wg.Done()
			_, err := svc.Execute(ctx, walletID, owner, txID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				success++
			case errors.Is(err, ErrTxAlreadyExecuted):
				replayed++
			default:
				t.Errorf("unexpected error for %s: %v", owner, err)
			}
		}(o)
	}
	wg.Wait()

	if success != 1 || replayed != len(owners)-1 {
		t.Fatalf("expected 1 success and %d replays, got %d/%d", len(owners)-1, success, replayed)
	}
	if bal, _ := led.Balance(ctx, ledger.PrincipalAccount(recipient)); bal != 400 {
		t.Fatalf("recipient credited %d, want 400", bal)
	}
	info, err := svc.WalletInfo(ctx, walletID)
	if err != nil {
		t.Fatalf("wallet info: %v", err)
	}
	if info.Balance != 600 {
		t.Fatalf("expected pooled balance 600, got %d", info.Balance)
	}
}
