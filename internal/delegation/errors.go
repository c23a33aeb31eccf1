package delegation

import "github.com/congo-pay/custody/internal/failure"

var (
	ErrInvalidAmount     = failure.New(failure.Precondition, "amount must be positive")
	ErrInvalidDailyLimit = failure.New(failure.Precondition, "daily limit must be positive and not exceed the amount")
	ErrInvalidDuration   = failure.New(failure.Precondition, "duration must be a positive number of days")
	ErrInvalidAddress    = failure.New(failure.Precondition, "invalid address")
	ErrSelfDelegation    = failure.New(failure.Precondition, "owner cannot delegate to itself")
	ErrDelegationExists  = failure.New(failure.Precondition, "delegation already exists for this pair")
	ErrWithdrawRequired  = failure.New(failure.Precondition, "withdraw the remaining funds before creating a new delegation")
	ErrNothingToWithdraw = failure.New(failure.Precondition, "nothing to withdraw")
	ErrDuplicateDeposit  = failure.New(failure.Precondition, "deposit already recorded")

	ErrNotFound = failure.New(failure.Authorization, "delegation not found")

	ErrInactive = failure.New(failure.Temporal, "delegation is revoked or expired")

	ErrDailyLimitExceeded = failure.New(failure.Capacity, "daily limit exceeded")
	ErrInsufficientFunds  = failure.New(failure.Capacity, "insufficient delegated funds")
	ErrStillActive        = failure.New(failure.Capacity, "delegation is still active")
)
