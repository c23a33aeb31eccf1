package funding

import (
	"context"
	"errors"
	"testing"

	"github.com/congo-pay/custody/internal/ledger"
)

const testCard = "4111111111111111"

func newTestService(t *testing.T, acquirer Acquirer) (*Service, ledger.Ledger) {
	t.Helper()
	led := ledger.NewInMemory()
	svc, err := NewService(context.Background(), led, acquirer, nil)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc, led
}

func TestServiceTopUp(t *testing.T) {
	ctx := context.Background()
	svc, led := newTestService(t, StaticAcquirer{})

	res, err := svc.TopUp(ctx, TopUpInput{
		Address:    "alice",
		Amount:     10_000,
		CardNumber: testCard,
		Expiry:     "12/29",
		CVV:        "123",
		ClientTxID: "dup",
	})
	if err != nil {
		t.Fatalf("top up: %v", err)
	}
	if res.Status != DecisionApproved || res.Balance != 10_000 {
		t.Fatalf("unexpected result %+v", res)
	}

	again, err := svc.TopUp(ctx, TopUpInput{Address: "alice", Amount: 10_000, CardNumber: testCard, ClientTxID: "dup"})
	if !errors.Is(err, ledger.ErrDuplicateTransaction) {
		t.Fatalf("expected duplicate error, got %v", err)
	}
	if again.TransactionID != res.TransactionID {
		t.Fatalf("replay returned a different transaction %s != %s", again.TransactionID, res.TransactionID)
	}

	balance, _ := led.Balance(ctx, ledger.PrincipalAccount("alice"))
	if balance != 10_000 {
		t.Fatalf("expected balance 10000 after replay, got %d", balance)
	}
	settlement, _ := led.Balance(ctx, ledger.CardSettlementAccountCode)
	if settlement != -10_000 {
		t.Fatalf("expected settlement -10000, got %d", settlement)
	}
}

func TestServicePayout(t *testing.T) {
	ctx := context.Background()
	svc, led := newTestService(t, StaticAcquirer{})
	ledger.SeedBalance(led, ledger.PrincipalAccount("bob"), 5_000)

	res, err := svc.Payout(ctx, PayoutInput{Address: "bob", Amount: 2_000, CardNumber: testCard})
	if err != nil {
		t.Fatalf("payout: %v", err)
	}
	if res.Balance != 3_000 {
		t.Fatalf("expected balance 3000, got %d", res.Balance)
	}

	if _, err := svc.Payout(ctx, PayoutInput{Address: "bob", Amount: 10_000, CardNumber: testCard, ClientTxID: "excess"}); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	if _, err := svc.Payout(ctx, PayoutInput{Address: "nobody", Amount: 1, CardNumber: testCard}); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds for unknown account, got %v", err)
	}
}

func TestServiceValidation(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, StaticAcquirer{})

	cases := []struct {
		name  string
		input TopUpInput
		want  error
	}{
		{"bad address", TopUpInput{Address: "has space", Amount: 1, CardNumber: testCard}, ErrInvalidAddress},
		{"luhn", TopUpInput{Address: "alice", Amount: 1, CardNumber: "4111111111111112"}, ErrInvalidCard},
		{"expiry", TopUpInput{Address: "alice", Amount: 1, CardNumber: testCard, Expiry: "13/29"}, ErrInvalidCard},
		{"cvv", TopUpInput{Address: "alice", Amount: 1, CardNumber: testCard, CVV: "12a"}, ErrInvalidCard},
		{"amount", TopUpInput{Address: "alice", Amount: 0, CardNumber: testCard}, ErrInvalidAmount},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.TopUp(ctx, tc.input); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestServiceDeclined(t *testing.T) {
	ctx := context.Background()
	svc, led := newTestService(t, StaticAcquirer{Limit: 500})

	if _, err := svc.TopUp(ctx, TopUpInput{Address: "alice", Amount: 501, CardNumber: testCard}); !errors.Is(err, ErrDeclined) {
		t.Fatalf("expected decline, got %v", err)
	}
	balance, err := svc.Balance(ctx, "alice")
	if err != nil || balance != 0 {
		t.Fatalf("declined top up moved funds: balance %d err %v", balance, err)
	}

	ledger.SeedBalance(led, ledger.PrincipalAccount("alice"), 1_000)
	if _, err := svc.Payout(ctx, PayoutInput{Address: "alice", Amount: 800, CardNumber: testCard}); !errors.Is(err, ErrDeclined) {
		t.Fatalf("expected payout decline, got %v", err)
	}
}
