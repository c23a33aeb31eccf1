package multisig

import "github.com/congo-pay/custody/internal/failure"

var (
	ErrAlreadyInitialized = failure.New(failure.Precondition, "wallet already initialized")
	ErrInvalidOwnerSet    = failure.New(failure.Precondition, "invalid owner set")
	ErrInvalidThreshold   = failure.New(failure.Precondition, "invalid threshold")
	ErrInvalidAmount      = failure.New(failure.Precondition, "amount must be positive")
	ErrInvalidAddress     = failure.New(failure.Precondition, "invalid address")
	ErrInvalidKind        = failure.New(failure.Precondition, "unknown transaction kind")
	ErrMemoTooLong        = failure.New(failure.Precondition, "memo exceeds 34 bytes")
	ErrOwnerExists        = failure.New(failure.Precondition, "address is already an owner")
	ErrUnknownOwner       = failure.New(failure.Precondition, "address is not an owner")
	ErrDuplicateDeposit   = failure.New(failure.Precondition, "deposit already recorded")

	ErrWalletNotFound  = failure.New(failure.Authorization, "wallet not found")
	ErrNotOwner        = failure.New(failure.Authorization, "caller is not an active owner")
	ErrTxNotFound      = failure.New(failure.Authorization, "transaction not found")
	ErrAlreadyApproved = failure.New(failure.Authorization, "owner already approved")

	ErrTxExpired         = failure.New(failure.Temporal, "transaction expired")
	ErrTxAlreadyExecuted = failure.New(failure.Temporal, "transaction already executed")

	ErrInsufficientApprovals = failure.New(failure.Capacity, "insufficient approvals")
	ErrInsufficientBalance   = failure.New(failure.Capacity, "insufficient wallet balance")
)
