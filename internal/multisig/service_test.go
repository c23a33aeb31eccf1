package multisig

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/congo-pay/custody/internal/clock"
	"github.com/congo-pay/custody/internal/failure"
	"github.com/congo-pay/custody/internal/ledger"
	"github.com/congo-pay/custody/internal/notification"
	"github.com/congo-pay/custody/internal/store"
)

type fixture struct {
	svc      *Service
	ledger   ledger.Ledger
	ticks    *clock.Manual
	notifier *notification.Recorder
}

func newFixture(t *testing.T, led ledger.Ledger) fixture {
	t.Helper()
	if led == nil {
		led = ledger.NewInMemory()
	}
	ticks := clock.NewManual(1_000)
	notifier := &notification.Recorder{}
	svc := NewService(store.NewMemory(), led, ticks, Options{ExpiryTicks: 100, Notifier: notifier})
	return fixture{svc: svc, ledger: led, ticks: ticks, notifier: notifier}
}

func (f fixture) wallet(t *testing.T, owners []string, threshold int, balance int64) string {
	t.Helper()
	ctx := context.Background()
	id, err := f.svc.Initialize(ctx, InitializeInput{Owners: owners, Threshold: threshold})
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if balance > 0 {
		if _, err := f.svc.Deposit(ctx, DepositInput{WalletID: id, Amount: balance}); err != nil {
			t.Fatalf("deposit: %v", err)
		}
	}
	return id
}

func TestHappyPath(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	walletID := f.wallet(t, []string{"A", "B", "C"}, 2, 1000)

	txID, err := f.svc.Propose(ctx, ProposeInput{WalletID: walletID, Proposer: "A", Recipient: "D", Amount: 300})
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	if txID != 0 {
		t.Fatalf("expected tx id 0, got %d", txID)
	}
	if err := f.svc.Approve(ctx, walletID, "B", txID); err != nil {
		t.Fatalf("approve: %v", err)
	}

	tr, err := f.svc.Execute(ctx, walletID, "A", txID)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !tr.Executed {
		t.Fatalf("expected executed transaction")
	}

	info, err := f.svc.WalletInfo(ctx, walletID)
	if err != nil {
		t.Fatalf("wallet info: %v", err)
	}
	if info.Balance != 700 {
		t.Fatalf("expected balance 700, got %d", info.Balance)
	}
	if bal, _ := f.ledger.Balance(ctx, ledger.PrincipalAccount("D")); bal != 300 {
		t.Fatalf("expected recipient balance 300, got %d", bal)
	}
	if f.notifier.Last().Kind != notification.KindMultisigTransfer {
		t.Fatalf("expected transfer notification")
	}

	if err := f.svc.Approve(ctx, walletID, "C", txID); !errors.Is(err, ErrTxAlreadyExecuted) {
		t.Fatalf("expected ErrTxAlreadyExecuted, got %v", err)
	}
}

func TestExecuteAtMostOnce(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	walletID := f.wallet(t, []string{"A", "B"}, 1, 500)

	txID, _ := f.svc.Propose(ctx, ProposeInput{WalletID: walletID, Proposer: "A", Recipient: "R", Amount: 200})
	if _, err := f.svc.Execute(ctx, walletID, "A", txID); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if _, err := f.svc.Execute(ctx, walletID, "B", txID); !errors.Is(err, ErrTxAlreadyExecuted) {
		t.Fatalf("expected ErrTxAlreadyExecuted, got %v", err)
	}

	info, _ := f.svc.WalletInfo(ctx, walletID)
	if info.Balance != 300 {
		t.Fatalf("balance decremented twice: %d", info.Balance)
	}
}

func TestConcurrentExecuteSingleWinner(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	owners := []string{"A", "B", "C", "D", "E"}
	walletID := f.wallet(t, owners, 1, 1_000)
	txID, _ := f.svc.Propose(ctx, ProposeInput{WalletID: walletID, Proposer: "A", Recipient: "R", Amount: 400})

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
			_, err := f.svc.Execute(ctx, walletID, owner, txID)
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
	if bal, _ := f.ledger.Balance(ctx, ledger.PrincipalAccount("R")); bal != 400 {
		t.Fatalf("recipient credited %d, want 400", bal)
	}
}

func TestThresholdMonotonicity(t *testing.T) {
	ctx := context.Background()
	for n := 1; n <= DefaultMaxOwners; n++ {
		for threshold := 1; threshold <= n; threshold++ {
			f := newFixture(t, nil)
			owners := make([]string, n)
			for i := range owners {
				owners[i] = fmt.Sprintf("owner-%d", i)
			}
			walletID := f.wallet(t, owners, threshold, 10)
			txID, err := f.svc.Propose(ctx, ProposeInput{WalletID: walletID, Proposer: owners[0], Recipient: "R", Amount: 1})
			if err != nil {
				t.Fatalf("n=%d t=%d propose: %v", n, threshold, err)
			}

			for approvals := 1; approvals <= n; approvals++ {
				if approvals > 1 {
					if err := f.svc.Approve(ctx, walletID, owners[approvals-1], txID); err != nil {
						t.Fatalf("n=%d t=%d approve: %v", n, threshold, err)
					}
				}
				ok, err := f.svc.CanExecute(ctx, walletID, txID)
				if err != nil {
					t.Fatalf("can execute: %v", err)
				}
				if ok != (approvals >= threshold) {
					t.Fatalf("n=%d t=%d approvals=%d: CanExecute=%v", n, threshold, approvals, ok)
				}
				if approvals < threshold {
					if _, err := f.svc.Execute(ctx, walletID, owners[0], txID); !errors.Is(err, ErrInsufficientApprovals) {
						t.Fatalf("n=%d t=%d approvals=%d: expected ErrInsufficientApprovals, got %v", n, threshold, approvals, err)
					}
					continue
				}
				if _, err := f.svc.Execute(ctx, walletID, owners[0], txID); err != nil {
					t.Fatalf("n=%d t=%d approvals=%d: execute: %v", n, threshold, approvals, err)
				}
				break
			}
		}
	}
}

func TestExpiryIsTerminal(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	walletID := f.wallet(t, []string{"A", "B", "C"}, 2, 1000)

	txID, _ := f.svc.Propose(ctx, ProposeInput{WalletID: walletID, Proposer: "A", Recipient: "R", Amount: 10})
	f.ticks.Advance(100)

	if err := f.svc.Approve(ctx, walletID, "B", txID); !errors.Is(err, ErrTxExpired) {
		t.Fatalf("expected ErrTxExpired on approve, got %v", err)
	}
	if _, err := f.svc.Execute(ctx, walletID, "A", txID); !errors.Is(err, ErrTxExpired) {
		t.Fatalf("expected ErrTxExpired on execute, got %v", err)
	}
	if failure.ClassOf(ErrTxExpired) != failure.Temporal {
		t.Fatalf("expired must be temporal")
	}

	view, _ := f.svc.Transaction(ctx, walletID, txID)
	if view.Status != StatusExpired {
		t.Fatalf("expected expired status, got %s", view.Status)
	}
}

func TestExpiryAfterThresholdReached(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	walletID := f.wallet(t, []string{"A", "B"}, 2, 1000)

	txID, _ := f.svc.Propose(ctx, ProposeInput{WalletID: walletID, Proposer: "A", Recipient: "R", Amount: 10})
	if err := f.svc.Approve(ctx, walletID, "B", txID); err != nil {
		t.Fatalf("approve: %v", err)
	}
	f.ticks.Advance(150)
	if _, err := f.svc.Execute(ctx, walletID, "A", txID); !errors.Is(err, ErrTxExpired) {
		t.Fatalf("expected ErrTxExpired, got %v", err)
	}
}

func TestApproveErrors(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	walletID := f.wallet(t, []string{"A", "B", "C"}, 3, 1000)
	txID, _ := f.svc.Propose(ctx, ProposeInput{WalletID: walletID, Proposer: "A", Recipient: "R", Amount: 10})

	if err := f.svc.Approve(ctx, walletID, "Z", txID); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
	if err := f.svc.Approve(ctx, walletID, "B", 42); !errors.Is(err, ErrTxNotFound) {
		t.Fatalf("expected ErrTxNotFound, got %v", err)
	}
	if err := f.svc.Approve(ctx, walletID, "A", txID); !errors.Is(err, ErrAlreadyApproved) {
		t.Fatalf("expected ErrAlreadyApproved for proposer, got %v", err)
	}
	if err := f.svc.Approve(ctx, walletID, "B", txID); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := f.svc.Approve(ctx, walletID, "B", txID); !errors.Is(err, ErrAlreadyApproved) {
		t.Fatalf("expected ErrAlreadyApproved, got %v", err)
	}

	view, _ := f.svc.Transaction(ctx, walletID, txID)
	if view.ApprovalCount != 2 {
		t.Fatalf("expected 2 approvals, got %d", view.ApprovalCount)
	}
}

func TestInitializeValidation(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	cases := []struct {
		name  string
		input InitializeInput
		want  error
	}{
		{"empty owners", InitializeInput{Threshold: 1}, ErrInvalidOwnerSet},
		{"duplicate owner", InitializeInput{Owners: []string{"A", "A"}, Threshold: 1}, ErrInvalidOwnerSet},
		{"too many owners", InitializeInput{Owners: []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j", "k"}, Threshold: 1}, ErrInvalidOwnerSet},
		{"zero threshold", InitializeInput{Owners: []string{"A"}, Threshold: 0}, ErrInvalidThreshold},
		{"threshold above owners", InitializeInput{Owners: []string{"A", "B"}, Threshold: 3}, ErrInvalidThreshold},
		{"malformed owner", InitializeInput{Owners: []string{"A", "has space"}, Threshold: 1}, ErrInvalidOwnerSet},
	}
	for _, tc := range cases {
		if _, err := f.svc.Initialize(ctx, tc.input); !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}

	if _, err := f.svc.Initialize(ctx, InitializeInput{WalletID: "w", Owners: []string{"A"}, Threshold: 1}); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if _, err := f.svc.Initialize(ctx, InitializeInput{WalletID: "w", Owners: []string{"B"}, Threshold: 1}); !errors.Is(err, ErrAlreadyInitialized) {
		t.Fatalf("expected ErrAlreadyInitialized, got %v", err)
	}
}

func TestProposeValidation(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	walletID := f.wallet(t, []string{"A", "B"}, 2, 100)

	if _, err := f.svc.Propose(ctx, ProposeInput{WalletID: walletID, Proposer: "X", Recipient: "R", Amount: 1}); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
	if _, err := f.svc.Propose(ctx, ProposeInput{WalletID: walletID, Proposer: "A", Recipient: "R", Amount: 0}); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if _, err := f.svc.Propose(ctx, ProposeInput{WalletID: walletID, Proposer: "A", Recipient: "R", Amount: 101}); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected early ErrInsufficientBalance, got %v", err)
	}
	if _, err := f.svc.Propose(ctx, ProposeInput{WalletID: walletID, Proposer: "A", Recipient: "R", Amount: 1, Memo: make([]byte, 35)}); !errors.Is(err, ErrMemoTooLong) {
		t.Fatalf("expected ErrMemoTooLong, got %v", err)
	}
	if _, err := f.svc.Propose(ctx, ProposeInput{WalletID: "missing", Proposer: "A", Recipient: "R", Amount: 1}); !errors.Is(err, ErrWalletNotFound) {
		t.Fatalf("expected ErrWalletNotFound, got %v", err)
	}

	governance := []struct {
		name  string
		input ProposeInput
		want  error
	}{
		{"memo on add owner", ProposeInput{Kind: store.KindAddOwner, Target: "E", Memo: make([]byte, 1000)}, ErrMemoTooLong},
		{"memo on threshold change", ProposeInput{Kind: store.KindChangeThreshold, NewThreshold: 1, Memo: make([]byte, 35)}, ErrMemoTooLong},
		{"negative amount on add owner", ProposeInput{Kind: store.KindAddOwner, Target: "E", Amount: -5}, ErrInvalidAmount},
		{"amount on remove owner", ProposeInput{Kind: store.KindRemoveOwner, Target: "B", Amount: 10}, ErrInvalidAmount},
		{"recipient on threshold change", ProposeInput{Kind: store.KindChangeThreshold, NewThreshold: 1, Recipient: "R"}, ErrInvalidAddress},
	}
	for _, tc := range governance {
		tc.input.WalletID = walletID
		tc.input.Proposer = "A"
		if _, err := f.svc.Propose(ctx, tc.input); !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}
	if _, err := f.svc.Propose(ctx, ProposeInput{WalletID: walletID, Proposer: "A", Kind: store.KindAddOwner, Target: "E", Memo: []byte("onboard")}); err != nil {
		t.Fatalf("governance proposal with short memo: %v", err)
	}
}

func TestBalanceCheckedAtExecution(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	walletID := f.wallet(t, []string{"A"}, 1, 100)

	first, _ := f.svc.Propose(ctx, ProposeInput{WalletID: walletID, Proposer: "A", Recipient: "R", Amount: 80})
	second, _ := f.svc.Propose(ctx, ProposeInput{WalletID: walletID, Proposer: "A", Recipient: "R", Amount: 80})

	if _, err := f.svc.Execute(ctx, walletID, "A", first); err != nil {
		t.Fatalf("execute first: %v", err)
	}
	if _, err := f.svc.Execute(ctx, walletID, "A", second); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}

	if _, err := f.svc.Deposit(ctx, DepositInput{WalletID: walletID, Amount: 60}); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := f.svc.Execute(ctx, walletID, "A", second); err != nil {
		t.Fatalf("execute after top-up: %v", err)
	}
}

func TestLedgerFailureRollsBack(t *testing.T) {
	failing := &ledger.FailingLedger{Ledger: ledger.NewInMemory()}
	f := newFixture(t, failing)
	ctx := context.Background()
	walletID := f.wallet(t, []string{"A"}, 1, 500)
	txID, _ := f.svc.Propose(ctx, ProposeInput{WalletID: walletID, Proposer: "A", Recipient: "R", Amount: 200})

	failing.Fail = true
	_, err := f.svc.Execute(ctx, walletID, "A", txID)
	if failure.ClassOf(err) != failure.External {
		t.Fatalf("expected external failure, got %v", err)
	}

	view, _ := f.svc.Transaction(ctx, walletID, txID)
	if view.Executed {
		t.Fatalf("transaction marked executed without a ledger transfer")
	}
	info, _ := f.svc.WalletInfo(ctx, walletID)
	if info.Balance != 500 {
		t.Fatalf("balance changed without a ledger transfer: %d", info.Balance)
	}

	failing.Fail = false
	if _, err := f.svc.Execute(ctx, walletID, "A", txID); err != nil {
		t.Fatalf("retry execute: %v", err)
	}
}

func TestDepositFromLedgerAccount(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	walletID := f.wallet(t, []string{"A"}, 1, 0)

	f.ledger.EnsureAccount(ctx, ledger.PrincipalAccount("payer"))
	ledger.SeedBalance(f.ledger, ledger.PrincipalAccount("payer"), 250)

	bal, err := f.svc.Deposit(ctx, DepositInput{WalletID: walletID, From: "payer", Amount: 200, ClientTxID: "dep-1"})
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if bal != 200 {
		t.Fatalf("expected pool 200, got %d", bal)
	}
	if _, err := f.svc.Deposit(ctx, DepositInput{WalletID: walletID, From: "payer", Amount: 200, ClientTxID: "dep-1"}); !errors.Is(err, ErrDuplicateDeposit) {
		t.Fatalf("expected ErrDuplicateDeposit, got %v", err)
	}
	if _, err := f.svc.Deposit(ctx, DepositInput{WalletID: walletID, From: "payer", Amount: 100, ClientTxID: "dep-2"}); failure.ClassOf(err) != failure.External {
		t.Fatalf("expected external failure for overdrawn payer, got %v", err)
	}

	info, _ := f.svc.WalletInfo(ctx, walletID)
	if info.Balance != 200 {
		t.Fatalf("expected pool 200 after failed deposits, got %d", info.Balance)
	}
}

func TestGovernanceAddRemoveOwner(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	walletID := f.wallet(t, []string{"A", "B"}, 1, 0)

	addID, err := f.svc.Propose(ctx, ProposeInput{WalletID: walletID, Proposer: "A", Kind: store.KindAddOwner, Target: "C"})
	if err != nil {
		t.Fatalf("propose add: %v", err)
	}
	if _, err := f.svc.Execute(ctx, walletID, "B", addID); err != nil {
		t.Fatalf("execute add: %v", err)
	}

	thrID, _ := f.svc.Propose(ctx, ProposeInput{WalletID: walletID, Proposer: "C", Kind: store.KindChangeThreshold, NewThreshold: 3})
	if _, err := f.svc.Execute(ctx, walletID, "C", thrID); err != nil {
		t.Fatalf("execute threshold: %v", err)
	}

	info, _ := f.svc.WalletInfo(ctx, walletID)
	if info.Threshold != 3 || len(info.ActiveOwners) != 3 {
		t.Fatalf("unexpected wallet %+v", info)
	}

	if _, err := f.svc.Propose(ctx, ProposeInput{WalletID: walletID, Proposer: "A", Kind: store.KindRemoveOwner, Target: "B"}); !errors.Is(err, ErrInvalidThreshold) {
		t.Fatalf("expected removal below threshold rejected, got %v", err)
	}
	if _, err := f.svc.Propose(ctx, ProposeInput{WalletID: walletID, Proposer: "A", Kind: store.KindAddOwner, Target: "C"}); !errors.Is(err, ErrOwnerExists) {
		t.Fatalf("expected ErrOwnerExists, got %v", err)
	}
}

func TestGovernanceRevalidatedAtExecution(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	walletID := f.wallet(t, []string{"A", "B", "C"}, 1, 0)

	removeB, _ := f.svc.Propose(ctx, ProposeInput{WalletID: walletID, Proposer: "A", Kind: store.KindRemoveOwner, Target: "B"})
	raise, _ := f.svc.Propose(ctx, ProposeInput{WalletID: walletID, Proposer: "A", Kind: store.KindChangeThreshold, NewThreshold: 3})

	if _, err := f.svc.Execute(ctx, walletID, "A", raise); err != nil {
		t.Fatalf("raise threshold: %v", err)
	}
	// Removing B would now leave 2 owners for threshold 3.
	if err := f.svc.Approve(ctx, walletID, "B", removeB); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := f.svc.Approve(ctx, walletID, "C", removeB); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, err := f.svc.Execute(ctx, walletID, "A", removeB); !errors.Is(err, ErrInvalidThreshold) {
		t.Fatalf("expected ErrInvalidThreshold at execute, got %v", err)
	}

	info, _ := f.svc.WalletInfo(ctx, walletID)
	if len(info.ActiveOwners) != 3 {
		t.Fatalf("owner removed despite invariant: %v", info.ActiveOwners)
	}
}

func TestRemovedOwnerApprovalNoLongerCounts(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	walletID := f.wallet(t, []string{"A", "B", "C"}, 1, 100)

	pay, _ := f.svc.Propose(ctx, ProposeInput{WalletID: walletID, Proposer: "C", Recipient: "R", Amount: 10})
	removeC, _ := f.svc.Propose(ctx, ProposeInput{WalletID: walletID, Proposer: "A", Kind: store.KindRemoveOwner, Target: "C"})
	if _, err := f.svc.Execute(ctx, walletID, "A", removeC); err != nil {
		t.Fatalf("remove C: %v", err)
	}

	if _, err := f.svc.Execute(ctx, walletID, "A", pay); !errors.Is(err, ErrInsufficientApprovals) {
		t.Fatalf("expected ErrInsufficientApprovals, got %v", err)
	}
	if _, err := f.svc.Execute(ctx, walletID, "C", pay); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected removed owner rejected, got %v", err)
	}
}

func TestTransactionsFilter(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	walletID := f.wallet(t, []string{"A", "B"}, 2, 100)

	f.svc.Propose(ctx, ProposeInput{WalletID: walletID, Proposer: "A", Recipient: "R", Amount: 1})
	f.ticks.Advance(200)
	f.svc.Propose(ctx, ProposeInput{WalletID: walletID, Proposer: "A", Recipient: "R", Amount: 2})

	pending, err := f.svc.Transactions(ctx, walletID, StatusPending)
	if err != nil {
		t.Fatalf("transactions: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != 1 {
		t.Fatalf("expected only tx 1 pending, got %+v", pending)
	}
	all, _ := f.svc.Transactions(ctx, walletID, "")
	if len(all) != 2 {
		t.Fatalf("expected 2 transactions, got %d", len(all))
	}
}
