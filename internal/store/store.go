package store

import (
	"context"
	"errors"

	"github.com/congo-pay/custody/internal/ledger"
)

var (
	// ErrNotFound is returned when a keyed record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrExists is returned when inserting a record whose key is taken.
	ErrExists = errors.New("record already exists")
	// ErrReadOnly is returned when writing through a View transaction.
	ErrReadOnly = errors.New("read-only transaction")
)

// Tx is one unit of work against the ledger store. Writes made through a Tx
// become visible to other callers only if the enclosing Update succeeds.
type Tx interface {
	Wallet(ctx context.Context, id string) (Wallet, error)
	InsertWallet(ctx context.Context, w Wallet) error
	UpdateWallet(ctx context.Context, w Wallet) error

	Transaction(ctx context.Context, walletID string, id uint64) (Transaction, error)
	PutTransaction(ctx context.Context, t Transaction) error
	Transactions(ctx context.Context, walletID string) ([]Transaction, error)

	Delegation(ctx context.Context, key DelegationKey) (Delegation, error)
	PutDelegation(ctx context.Context, d Delegation) error
	Delegations(ctx context.Context, filter DelegationFilter) ([]Delegation, error)

	// Ledger returns l bound to this unit of work, so postings commit or roll
	// back together with the records written through the Tx.
	Ledger(l ledger.Ledger) ledger.Ledger
}

// Store serializes mutations. Update runs fn in a writable unit of work and
// commits only when fn returns nil; View runs fn against a consistent
// read-only snapshot.
type Store interface {
	Update(ctx context.Context, fn func(tx Tx) error) error
	View(ctx context.Context, fn func(tx Tx) error) error
}
