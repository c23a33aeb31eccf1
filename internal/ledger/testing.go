package ledger

import (
	"context"
	"errors"
)

// SeedBalance is a test helper that seeds the balance for an account when using the in-memory ledger.
func SeedBalance(l Ledger, code string, amount int64) {
	if mem, ok := l.(*inMemoryLedger); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		mem.balances[code] = amount
	}
}

// ErrInjected is returned by a FailingLedger.
var ErrInjected = errors.New("ledger unavailable")

// FailingLedger wraps a ledger and rejects debits and credits while Fail is
// set. Tests use it to exercise rollback on external failure.
type FailingLedger struct {
	Ledger
	Fail bool
}

func (f *FailingLedger) Debit(ctx context.Context, code, kind, clientTxID string, amount int64) (PostingResult, error) {
	if f.Fail {
		return PostingResult{}, ErrInjected
	}
	return f.Ledger.Debit(ctx, code, kind, clientTxID, amount)
}

func (f *FailingLedger) Credit(ctx context.Context, code, kind, clientTxID string, amount int64) (PostingResult, error) {
	if f.Fail {
		return PostingResult{}, ErrInjected
	}
	return f.Ledger.Credit(ctx, code, kind, clientTxID, amount)
}
