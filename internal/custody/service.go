package custody

import (
	"context"
	"errors"
	"log/slog"

	"github.com/congo-pay/custody/internal/clock"
	"github.com/congo-pay/custody/internal/delegation"
	"github.com/congo-pay/custody/internal/ledger"
	"github.com/congo-pay/custody/internal/logging"
	"github.com/congo-pay/custody/internal/multisig"
	"github.com/congo-pay/custody/internal/notification"
	"github.com/congo-pay/custody/internal/store"
)

// Options configures both engines.
type Options struct {
	MaxOwners   int
	ExpiryTicks uint64
	TicksPerDay uint64
	Policy      delegation.ReplacePolicy
	Notifier    notification.Notifier
	Logger      *slog.Logger
}

// Service exposes the multisig and delegation engines over one store, one
// ledger and one tick source.
type Service struct {
	Multisig   *multisig.Service
	Delegation *delegation.Service

	ledger ledger.Ledger
	ticks  clock.Source
}

// New wires both engines.
func New(st store.Store, led ledger.Ledger, ticks clock.Source, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Service{
		Multisig: multisig.NewService(st, led, ticks, multisig.Options{
			MaxOwners:   opts.MaxOwners,
			ExpiryTicks: opts.ExpiryTicks,
			Notifier:    opts.Notifier,
			Logger:      logger.With(slog.String("engine", "multisig")),
		}),
		Delegation: delegation.NewService(st, led, ticks, delegation.Options{
			TicksPerDay: opts.TicksPerDay,
			Policy:      opts.Policy,
			Notifier:    opts.Notifier,
			Logger:      logger.With(slog.String("engine", "delegation")),
		}),
		ledger: led,
		ticks:  ticks,
	}
}

// Tick returns the current tick of the shared source.
func (s *Service) Tick() uint64 { return s.ticks.Now() }

// Overview is everything a principal needs to act on one wallet.
type Overview struct {
	Wallet          multisig.WalletInfo
	AwaitingMe      []multisig.TransactionView
	Executable      []multisig.TransactionView
	Granted         []delegation.View
	Received        []delegation.View
	ExternalBalance int64
}

// Overview combines the wallet, the pending transactions principal can still
// approve or execute, the principal's delegations in both directions and the
// principal's external ledger balance. Only active owners may read it.
func (s *Service) Overview(ctx context.Context, walletID, principal string) (Overview, error) {
	info, err := s.Multisig.WalletInfo(ctx, walletID)
	if err != nil {
		return Overview{}, err
	}
	member := false
	for _, o := range info.ActiveOwners {
		if o == principal {
			member = true
			break
		}
	}
	if !member {
		return Overview{}, multisig.ErrNotOwner
	}

	pending, err := s.Multisig.Transactions(ctx, walletID, multisig.StatusPending)
	if err != nil {
		return Overview{}, err
	}
	out := Overview{Wallet: info}
	for _, v := range pending {
		if v.Executable {
			out.Executable = append(out.Executable, v)
		}
		if !approvedBy(v, principal) {
			out.AwaitingMe = append(out.AwaitingMe, v)
		}
	}

	if out.Granted, err = s.Delegation.ListByOwner(ctx, principal); err != nil {
		return Overview{}, err
	}
	if out.Received, err = s.Delegation.ListByDelegate(ctx, principal); err != nil {
		return Overview{}, err
	}

	out.ExternalBalance, err = s.ledger.Balance(ctx, ledger.PrincipalAccount(principal))
	if err != nil && !errors.Is(err, ledger.ErrAccountNotFound) {
		return Overview{}, err
	}
	return out, nil
}

func approvedBy(v multisig.TransactionView, principal string) bool {
	for _, a := range v.Approvals {
		if a == principal {
			return true
		}
	}
	return false
}
