package ledger

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrInsufficientFunds occurs when the source account lacks available balance
	// to cover a requested posting.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrDuplicateTransaction indicates the provided client transaction identifier
	// already exists and therefore the operation should be treated as idempotent.
	ErrDuplicateTransaction = errors.New("duplicate transaction")

	// ErrAccountNotFound is returned when debiting or transferring from an unknown account.
	ErrAccountNotFound = errors.New("account not found")

	// ErrInvalidAmount rejects zero or negative postings.
	ErrInvalidAmount = errors.New("amount must be positive")
)

const (
	// CustodyAccountCode holds funds the authorization engines keep on behalf of
	// wallets and delegations. It may go negative when deposits settle outside
	// the ledger.
	CustodyAccountCode = "custody:pool"

	// CardSettlementAccountCode mirrors funds held at the card acquirer. Card
	// top-ups draw from it and payouts return to it, so it runs negative
	// between settlements.
	CardSettlementAccountCode = settlementPrefix + "card"

	principalPrefix  = "principal:"
	settlementPrefix = "settlement:"
)

// PrincipalAccount returns the ledger account code for an external address.
func PrincipalAccount(address string) string {
	return principalPrefix + address
}

func overdraftAllowed(code string) bool {
	return strings.HasPrefix(code, settlementPrefix)
}

// TransactionResult captures the outcome of a ledger posting between two accounts.
type TransactionResult struct {
	TransactionID string
	FromBalance   int64
	ToBalance     int64
}

// PostingResult captures the outcome of a custody debit or credit.
type PostingResult struct {
	TransactionID  string
	AccountBalance int64
}

// Ledger is the external collaborator that actually moves funds. Debit moves
// funds from an account into custody, Credit releases custody funds to an
// account. Every posting is keyed by (kind, clientTxID); replays return
// ErrDuplicateTransaction with the original result.
type Ledger interface {
	EnsureAccount(ctx context.Context, code string) error
	Balance(ctx context.Context, code string) (int64, error)
	Transfer(ctx context.Context, fromCode, toCode, kind, clientTxID string, amount int64) (TransactionResult, error)
	Debit(ctx context.Context, code, kind, clientTxID string, amount int64) (PostingResult, error)
	Credit(ctx context.Context, code, kind, clientTxID string, amount int64) (PostingResult, error)
}
