package delegation

import (
	"fmt"
	"strings"

	"github.com/congo-pay/custody/internal/store"
)

// ReplacePolicy decides what CreateAndDeposit does when the pair already has
// a record that is no longer live.
type ReplacePolicy int

const (
	// RequireWithdrawFirst overwrites only records with nothing left to withdraw.
	RequireWithdrawFirst ReplacePolicy = iota
	// OverwriteAndForfeit replaces the old record, carrying its undrawn amount
	// into the new grant. Only the difference moves through the ledger.
	OverwriteAndForfeit
	// Reject refuses to create over any existing record.
	Reject
)

func (p ReplacePolicy) String() string {
	switch p {
	case OverwriteAndForfeit:
		return "overwrite_and_forfeit"
	case Reject:
		return "reject"
	default:
		return "require_withdraw_first"
	}
}

// ParseReplacePolicy maps a config value onto a policy. Empty selects the default.
func ParseReplacePolicy(s string) (ReplacePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "require_withdraw_first":
		return RequireWithdrawFirst, nil
	case "overwrite_and_forfeit":
		return OverwriteAndForfeit, nil
	case "reject":
		return Reject, nil
	default:
		return RequireWithdrawFirst, fmt.Errorf("unknown delegation replace policy %q", s)
	}
}

// State is the derived lifecycle state of a delegation.
type State string

const (
	StateActive  State = "active"
	StateRevoked State = "revoked"
	StateExpired State = "expired"
	StateClosed  State = "closed"
)

// CreateInput captures a new grant and its initial deposit.
type CreateInput struct {
	Owner        string
	Delegate     string
	Amount       int64
	DailyLimit   int64
	DurationDays uint64
	ClientTxID   string
}

// SpendInput captures a delegated spend. Delegate is the caller.
type SpendInput struct {
	Delegate  string
	Owner     string
	Amount    int64
	Recipient string
}

// View is a delegation as seen at Tick, with the day bucket rolled over
// virtually when the stored one is stale.
type View struct {
	store.Delegation
	State             State
	DailyRemaining    int64
	BlocksUntilExpiry uint64
	IsActive          bool
	Tick              uint64
}
