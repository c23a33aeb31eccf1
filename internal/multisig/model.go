package multisig

import "github.com/congo-pay/custody/internal/store"

// Status is the derived lifecycle state of a transaction.
type Status string

const (
	StatusPending  Status = "pending"
	StatusExecuted Status = "executed"
	StatusExpired  Status = "expired"
)

// InitializeInput captures data required to create a wallet. An empty
// WalletID asks the service to generate one.
type InitializeInput struct {
	WalletID  string
	Owners    []string
	Threshold int
}

// DepositInput captures a top-up of the pooled balance. When From is empty
// the funds were settled outside the ledger and only the pool is credited.
type DepositInput struct {
	WalletID   string
	From       string
	Amount     int64
	ClientTxID string
}

// ProposeInput captures a new proposal. Kind defaults to a transfer.
type ProposeInput struct {
	WalletID     string
	Proposer     string
	Kind         store.TxKind
	Recipient    string
	Amount       int64
	Memo         []byte
	Target       string
	NewThreshold int
}

// WalletInfo is the read-only projection of a wallet.
type WalletInfo struct {
	ID           string
	Owners       []store.Owner
	ActiveOwners []string
	Threshold    int
	Balance      int64
	Nonce        uint64
	CreatedAt    uint64
	Tick         uint64
}

// TransactionView is a transaction together with its derived state at Tick.
type TransactionView struct {
	store.Transaction
	Status        Status
	ApprovalCount int
	Executable    bool
	Tick          uint64
}
