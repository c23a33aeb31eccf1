package store

// Owner is a principal in a wallet's owner set. Removed owners stay in the
// set with Active false so their history is kept and they can be re-added.
type Owner struct {
	Address string
	AddedAt uint64
	Active  bool
}

// Wallet is the multisig wallet record. Balance is the pooled balance held
// in custody for the wallet.
type Wallet struct {
	ID        string
	Owners    []Owner
	Threshold int
	Balance   int64
	Nonce     uint64
	CreatedAt uint64
}

// ActiveOwners returns the addresses of active owners in set order.
func (w Wallet) ActiveOwners() []string {
	out := make([]string, 0, len(w.Owners))
	for _, o := range w.Owners {
		if o.Active {
			out = append(out, o.Address)
		}
	}
	return out
}

// IsActiveOwner reports whether address is an active owner.
func (w Wallet) IsActiveOwner(address string) bool {
	for _, o := range w.Owners {
		if o.Address == address {
			return o.Active
		}
	}
	return false
}

func (w Wallet) clone() Wallet {
	w.Owners = append([]Owner(nil), w.Owners...)
	return w
}

// TxKind selects what an executed multisig transaction does.
type TxKind string

const (
	KindTransfer        TxKind = "transfer"
	KindAddOwner        TxKind = "add_owner"
	KindRemoveOwner     TxKind = "remove_owner"
	KindChangeThreshold TxKind = "change_threshold"
)

// Valid reports whether k is a known kind.
func (k TxKind) Valid() bool {
	switch k {
	case KindTransfer, KindAddOwner, KindRemoveOwner, KindChangeThreshold:
		return true
	}
	return false
}

// Transaction is a multisig proposal. Recipient, Amount and Memo apply to
// transfers; Target to owner changes; NewThreshold to threshold changes.
type Transaction struct {
	WalletID     string
	ID           uint64
	Kind         TxKind
	Proposer     string
	Recipient    string
	Amount       int64
	Memo         []byte
	Target       string
	NewThreshold int
	Approvals    []string
	Executed     bool
	ExecutedAt   uint64
	CreatedAt    uint64
	ExpiresAt    uint64
}

func (t Transaction) clone() Transaction {
	t.Memo = append([]byte(nil), t.Memo...)
	t.Approvals = append([]string(nil), t.Approvals...)
	return t
}

// DelegationKey identifies a delegation. There is at most one record per pair.
type DelegationKey struct {
	Owner    string
	Delegate string
}

// Delegation grants Delegate daily-capped spending over funds Owner deposited.
type Delegation struct {
	Owner      string
	Delegate   string
	Amount     int64
	DailyLimit int64
	SpentToday int64
	SpentTotal int64
	LastDay    uint64
	StartBlock uint64
	EndBlock   uint64
	Active     bool
	// ClientTxID identifies the create request that opened the grant.
	ClientTxID string
}

// Key returns the record key.
func (d Delegation) Key() DelegationKey {
	return DelegationKey{Owner: d.Owner, Delegate: d.Delegate}
}

// DelegationFilter narrows a delegation listing. Empty fields match anything.
type DelegationFilter struct {
	Owner    string
	Delegate string
}

func (f DelegationFilter) match(d Delegation) bool {
	return (f.Owner == "" || f.Owner == d.Owner) && (f.Delegate == "" || f.Delegate == d.Delegate)
}
