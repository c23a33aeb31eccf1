package multisig

import (
	"context"

	"github.com/congo-pay/custody/internal/store"
)

// WalletInfo returns the wallet's owners, threshold, balance and nonce.
func (s *Service) WalletInfo(ctx context.Context, walletID string) (WalletInfo, error) {
	now := s.ticks.Now()
	var info WalletInfo
	err := s.store.View(ctx, func(tx store.Tx) error {
		w, err := s.wallet(ctx, tx, walletID)
		if err != nil {
			return err
		}
		info = WalletInfo{
			ID:           w.ID,
			Owners:       w.Owners,
			ActiveOwners: w.ActiveOwners(),
			Threshold:    w.Threshold,
			Balance:      w.Balance,
			Nonce:        w.Nonce,
			CreatedAt:    w.CreatedAt,
			Tick:         now,
		}
		return nil
	})
	return info, err
}

// Transaction returns one transaction with its derived status.
func (s *Service) Transaction(ctx context.Context, walletID string, txID uint64) (TransactionView, error) {
	now := s.ticks.Now()
	var view TransactionView
	err := s.store.View(ctx, func(tx store.Tx) error {
		w, err := s.wallet(ctx, tx, walletID)
		if err != nil {
			return err
		}
		tr, err := s.transaction(ctx, tx, walletID, txID)
		if err != nil {
			return err
		}
		view = s.view(w, tr, now)
		return nil
	})
	return view, err
}

// Transactions lists a wallet's transactions in id order. A non-empty status
// keeps only transactions in that state.
func (s *Service) Transactions(ctx context.Context, walletID string, status Status) ([]TransactionView, error) {
	now := s.ticks.Now()
	var out []TransactionView
	err := s.store.View(ctx, func(tx store.Tx) error {
		w, err := s.wallet(ctx, tx, walletID)
		if err != nil {
			return err
		}
		list, err := tx.Transactions(ctx, walletID)
		if err != nil {
			return err
		}
		for _, tr := range list {
			v := s.view(w, tr, now)
			if status != "" && v.Status != status {
				continue
			}
			out = append(out, v)
		}
		return nil
	})
	return out, err
}

// CanExecute reports whether Execute would succeed now for an active owner.
func (s *Service) CanExecute(ctx context.Context, walletID string, txID uint64) (bool, error) {
	v, err := s.Transaction(ctx, walletID, txID)
	if err != nil {
		return false, err
	}
	return v.Executable, nil
}

func (s *Service) view(w store.Wallet, tr store.Transaction, now uint64) TransactionView {
	v := TransactionView{
		Transaction:   tr,
		Status:        StatusPending,
		ApprovalCount: countApprovals(w, tr),
		Tick:          now,
	}
	switch {
	case tr.Executed:
		v.Status = StatusExecuted
	case now >= tr.ExpiresAt:
		v.Status = StatusExpired
	}
	v.Executable = s.evaluate(w, tr, now) == nil
	return v
}
