package store

import (
	"context"
	"sort"
	"sync"

	"github.com/congo-pay/custody/internal/ledger"
)

type txKey struct {
	walletID string
	id       uint64
}

// Memory is an in-process store. A single writer lock is held for the whole
// of each Update, so every unit of work is serialized.
type Memory struct {
	mu           sync.RWMutex
	wallets      map[string]Wallet
	transactions map[txKey]Transaction
	delegations  map[DelegationKey]Delegation
}

// NewMemory constructs an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		wallets:      make(map[string]Wallet),
		transactions: make(map[txKey]Transaction),
		delegations:  make(map[DelegationKey]Delegation),
	}
}

func (m *Memory) Update(_ context.Context, fn func(tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := newMemoryTx(m, true)
	if err := fn(tx); err != nil {
		return err
	}

	for id, w := range tx.wallets {
		m.wallets[id] = w
	}
	for k, t := range tx.transactions {
		m.transactions[k] = t
	}
	for k, d := range tx.delegations {
		m.delegations[k] = d
	}
	return nil
}

func (m *Memory) View(_ context.Context, fn func(tx Tx) error) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return fn(newMemoryTx(m, false))
}

// memoryTx stages writes on top of the committed maps.
type memoryTx struct {
	m            *Memory
	writable     bool
	wallets      map[string]Wallet
	transactions map[txKey]Transaction
	delegations  map[DelegationKey]Delegation
}

func newMemoryTx(m *Memory, writable bool) *memoryTx {
	return &memoryTx{
		m:            m,
		writable:     writable,
		wallets:      make(map[string]Wallet),
		transactions: make(map[txKey]Transaction),
		delegations:  make(map[DelegationKey]Delegation),
	}
}

func (t *memoryTx) wallet(id string) (Wallet, bool) {
	if w, ok := t.wallets[id]; ok {
		return w, true
	}
	w, ok := t.m.wallets[id]
	return w, ok
}

func (t *memoryTx) Wallet(_ context.Context, id string) (Wallet, error) {
	w, ok := t.wallet(id)
	if !ok {
		return Wallet{}, ErrNotFound
	}
	return w.clone(), nil
}

func (t *memoryTx) InsertWallet(_ context.Context, w Wallet) error {
	if !t.writable {
		return ErrReadOnly
	}
	if _, ok := t.wallet(w.ID); ok {
		return ErrExists
	}
	t.wallets[w.ID] = w.clone()
	return nil
}

func (t *memoryTx) UpdateWallet(_ context.Context, w Wallet) error {
	if !t.writable {
		return ErrReadOnly
	}
	if _, ok := t.wallet(w.ID); !ok {
		return ErrNotFound
	}
	t.wallets[w.ID] = w.clone()
	return nil
}

func (t *memoryTx) transaction(k txKey) (Transaction, bool) {
	if tr, ok := t.transactions[k]; ok {
		return tr, true
	}
	tr, ok := t.m.transactions[k]
	return tr, ok
}

func (t *memoryTx) Transaction(_ context.Context, walletID string, id uint64) (Transaction, error) {
	tr, ok := t.transaction(txKey{walletID, id})
	if !ok {
		return Transaction{}, ErrNotFound
	}
	return tr.clone(), nil
}

func (t *memoryTx) PutTransaction(_ context.Context, tr Transaction) error {
	if !t.writable {
		return ErrReadOnly
	}
	t.transactions[txKey{tr.WalletID, tr.ID}] = tr.clone()
	return nil
}

func (t *memoryTx) Transactions(_ context.Context, walletID string) ([]Transaction, error) {
	seen := make(map[uint64]Transaction)
	for k, tr := range t.m.transactions {
		if k.walletID == walletID {
			seen[k.id] = tr
		}
	}
	for k, tr := range t.transactions {
		if k.walletID == walletID {
			seen[k.id] = tr
		}
	}
	out := make([]Transaction, 0, len(seen))
	for _, tr := range seen {
		out = append(out, tr.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *memoryTx) Delegation(_ context.Context, key DelegationKey) (Delegation, error) {
	if d, ok := t.delegations[key]; ok {
		return d, nil
	}
	d, ok := t.m.delegations[key]
	if !ok {
		return Delegation{}, ErrNotFound
	}
	return d, nil
}

func (t *memoryTx) PutDelegation(_ context.Context, d Delegation) error {
	if !t.writable {
		return ErrReadOnly
	}
	t.delegations[d.Key()] = d
	return nil
}

// Ledger returns l unchanged. Callers post last, and a memory commit cannot
// fail once fn has returned.
func (t *memoryTx) Ledger(l ledger.Ledger) ledger.Ledger { return l }

func (t *memoryTx) Delegations(_ context.Context, filter DelegationFilter) ([]Delegation, error) {
	seen := make(map[DelegationKey]Delegation)
	for k, d := range t.m.delegations {
		if filter.match(d) {
			seen[k] = d
		}
	}
	for k, d := range t.delegations {
		if filter.match(d) {
			seen[k] = d
		}
	}
	out := make([]Delegation, 0, len(seen))
	for _, d := range seen {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Owner != out[j].Owner {
			return out[i].Owner < out[j].Owner
		}
		return out[i].Delegate < out[j].Delegate
	})
	return out, nil
}
