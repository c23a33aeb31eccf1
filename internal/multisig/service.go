package multisig

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"

	"github.com/asaskevich/govalidator"
	"github.com/google/uuid"
	"github.com/zyedidia/generic/mapset"

	"github.com/congo-pay/custody/internal/address"
	"github.com/congo-pay/custody/internal/clock"
	"github.com/congo-pay/custody/internal/failure"
	"github.com/congo-pay/custody/internal/ledger"
	"github.com/congo-pay/custody/internal/logging"
	"github.com/congo-pay/custody/internal/memo"
	"github.com/congo-pay/custody/internal/notification"
	"github.com/congo-pay/custody/internal/store"
)

const (
	// DefaultMaxOwners caps the active owner set.
	DefaultMaxOwners = 10
	// DefaultExpiryTicks is the proposal lifetime: seven days of ten-minute ticks.
	DefaultExpiryTicks = 1008

	depositKind  = "msig_deposit"
	transferKind = "msig_transfer"
)

// Options tunes a Service. Zero values fall back to the defaults.
type Options struct {
	MaxOwners   int
	ExpiryTicks uint64
	Notifier    notification.Notifier
	Logger      *slog.Logger
}

// Service is the M-of-N approval engine. All state lives in the store; the
// service itself is safe for concurrent use.
type Service struct {
	store       store.Store
	ledger      ledger.Ledger
	ticks       clock.Source
	notifier    notification.Notifier
	logger      *slog.Logger
	maxOwners   int
	expiryTicks uint64
}

// NewService builds a multisig engine over the given store, ledger and tick source.
func NewService(st store.Store, led ledger.Ledger, ticks clock.Source, opts Options) *Service {
	s := &Service{
		store:       st,
		ledger:      led,
		ticks:       ticks,
		notifier:    opts.Notifier,
		logger:      opts.Logger,
		maxOwners:   opts.MaxOwners,
		expiryTicks: opts.ExpiryTicks,
	}
	if s.maxOwners <= 0 || s.maxOwners > DefaultMaxOwners {
		s.maxOwners = DefaultMaxOwners
	}
	if s.expiryTicks == 0 {
		s.expiryTicks = DefaultExpiryTicks
	}
	if s.logger == nil {
		s.logger = logging.Discard()
	}
	return s
}

// Initialize creates a wallet with balance 0 and nonce 0.
func (s *Service) Initialize(ctx context.Context, input InitializeInput) (string, error) {
	if err := s.validateOwnerSet(input.Owners); err != nil {
		return "", err
	}
	if input.Threshold < 1 || input.Threshold > len(input.Owners) {
		return "", ErrInvalidThreshold
	}

	walletID := input.WalletID
	if walletID == "" {
		walletID = uuid.NewString()
	}

	now := s.ticks.Now()
	owners := make([]store.Owner, 0, len(input.Owners))
	for _, addr := range input.Owners {
		owners = append(owners, store.Owner{Address: addr, AddedAt: now, Active: true})
	}

	err := s.store.Update(ctx, func(tx store.Tx) error {
		err := tx.InsertWallet(ctx, store.Wallet{
			ID:        walletID,
			Owners:    owners,
			Threshold: input.Threshold,
			CreatedAt: now,
		})
		if errors.Is(err, store.ErrExists) {
			return ErrAlreadyInitialized
		}
		return err
	})
	if err != nil {
		return "", err
	}

	s.logger.Info("multisig.initialize",
		slog.String("wallet_id", walletID),
		slog.Int("owners", len(owners)),
		slog.Int("threshold", input.Threshold),
	)
	return walletID, nil
}

func (s *Service) validateOwnerSet(owners []string) error {
	if len(owners) == 0 || len(owners) > s.maxOwners {
		return fmt.Errorf("%w: %d owners, want 1..%d", ErrInvalidOwnerSet, len(owners), s.maxOwners)
	}
	seen := mapset.New[string]()
	for _, o := range owners {
		if !address.Valid(o) {
			return fmt.Errorf("%w: malformed address %q", ErrInvalidOwnerSet, o)
		}
		if seen.Has(o) {
			return fmt.Errorf("%w: duplicate owner %s", ErrInvalidOwnerSet, o)
		}
		seen.Put(o)
	}
	return nil
}

// Deposit adds funds to the pooled balance. Anyone may deposit.
func (s *Service) Deposit(ctx context.Context, input DepositInput) (int64, error) {
	if input.Amount <= 0 {
		return 0, ErrInvalidAmount
	}
	if input.From != "" && !address.Valid(input.From) {
		return 0, ErrInvalidAddress
	}
	if input.ClientTxID == "" {
		input.ClientTxID = uuid.NewString()
	}

	var balance int64
	err := s.store.Update(ctx, func(tx store.Tx) error {
		w, err := s.wallet(ctx, tx, input.WalletID)
		if err != nil {
			return err
		}
		if w.Balance > math.MaxInt64-input.Amount {
			return fmt.Errorf("%w: balance overflow", ErrInvalidAmount)
		}
		w.Balance += input.Amount
		if err := tx.UpdateWallet(ctx, w); err != nil {
			return err
		}
		balance = w.Balance

		if input.From == "" {
			return nil
		}
		_, err = tx.Ledger(s.ledger).Debit(ctx, ledger.PrincipalAccount(input.From), depositKind, w.ID+":"+input.ClientTxID, input.Amount)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, ledger.ErrDuplicateTransaction):
			return ErrDuplicateDeposit
		default:
			return failure.Wrap(failure.External, err, "debit depositor")
		}
	})
	if err != nil {
		return 0, err
	}

	s.logger.Info("multisig.deposit",
		slog.String("wallet_id", input.WalletID),
		slog.String("from", input.From),
		slog.Int64("amount", input.Amount),
		slog.Int64("balance", balance),
	)
	return balance, nil
}

// Propose records a new pending transaction and returns its id. The
// proposer's own approval is recorded with the proposal.
func (s *Service) Propose(ctx context.Context, input ProposeInput) (uint64, error) {
	if input.Kind == "" {
		input.Kind = store.KindTransfer
	}
	if err := validateProposalShape(input); err != nil {
		return 0, err
	}

	now := s.ticks.Now()
	var id uint64
	err := s.store.Update(ctx, func(tx store.Tx) error {
		w, err := s.wallet(ctx, tx, input.WalletID)
		if err != nil {
			return err
		}
		if !w.IsActiveOwner(input.Proposer) {
			return ErrNotOwner
		}

		switch input.Kind {
		case store.KindTransfer:
			if input.Amount > w.Balance {
				return ErrInsufficientBalance
			}
		default:
			if err := s.checkGovernance(w, input.Kind, input.Target, input.NewThreshold); err != nil {
				return err
			}
		}

		id = w.Nonce
		w.Nonce++
		if err := tx.UpdateWallet(ctx, w); err != nil {
			return err
		}
		return tx.PutTransaction(ctx, store.Transaction{
			WalletID:     w.ID,
			ID:           id,
			Kind:         input.Kind,
			Proposer:     input.Proposer,
			Recipient:    input.Recipient,
			Amount:       input.Amount,
			Memo:         input.Memo,
			Target:       input.Target,
			NewThreshold: input.NewThreshold,
			Approvals:    []string{input.Proposer},
			CreatedAt:    now,
			ExpiresAt:    now + s.expiryTicks,
		})
	})
	if err != nil {
		return 0, err
	}

	s.logger.Info("multisig.propose",
		slog.String("wallet_id", input.WalletID),
		slog.Uint64("tx_id", id),
		slog.String("kind", string(input.Kind)),
		slog.String("proposer", input.Proposer),
	)
	return id, nil
}

func validateProposalShape(input ProposeInput) error {
	if len(input.Memo) > memo.MaxSize {
		return ErrMemoTooLong
	}
	switch input.Kind {
	case store.KindTransfer:
		if input.Amount <= 0 {
			return ErrInvalidAmount
		}
		if !address.Valid(input.Recipient) {
			return ErrInvalidAddress
		}
		return nil
	case store.KindAddOwner, store.KindRemoveOwner:
		if !address.Valid(input.Target) {
			return ErrInvalidAddress
		}
	case store.KindChangeThreshold:
		if input.NewThreshold < 1 {
			return ErrInvalidThreshold
		}
	default:
		return ErrInvalidKind
	}
	if input.Amount != 0 {
		return fmt.Errorf("%w: %s proposals move no funds", ErrInvalidAmount, input.Kind)
	}
	if input.Recipient != "" {
		return fmt.Errorf("%w: %s proposals have no recipient", ErrInvalidAddress, input.Kind)
	}
	return nil
}

// checkGovernance verifies that applying an owner-set or threshold change to
// w would keep 1 <= threshold <= active owners <= max owners.
func (s *Service) checkGovernance(w store.Wallet, kind store.TxKind, target string, newThreshold int) error {
	active := len(w.ActiveOwners())
	switch kind {
	case store.KindAddOwner:
		if w.IsActiveOwner(target) {
			return ErrOwnerExists
		}
		if active+1 > s.maxOwners {
			return fmt.Errorf("%w: owner set is full", ErrInvalidOwnerSet)
		}
	case store.KindRemoveOwner:
		if !w.IsActiveOwner(target) {
			return ErrUnknownOwner
		}
		if active-1 < w.Threshold {
			return fmt.Errorf("%w: removal leaves %d owners for threshold %d", ErrInvalidThreshold, active-1, w.Threshold)
		}
	case store.KindChangeThreshold:
		if newThreshold < 1 || newThreshold > active {
			return fmt.Errorf("%w: %d of %d owners", ErrInvalidThreshold, newThreshold, active)
		}
	default:
		return ErrInvalidKind
	}
	return nil
}

// Approve adds owner's approval to a pending transaction.
func (s *Service) Approve(ctx context.Context, walletID, owner string, txID uint64) error {
	now := s.ticks.Now()
	var count int
	err := s.store.Update(ctx, func(tx store.Tx) error {
		w, err := s.wallet(ctx, tx, walletID)
		if err != nil {
			return err
		}
		if !w.IsActiveOwner(owner) {
			return ErrNotOwner
		}
		tr, err := s.transaction(ctx, tx, walletID, txID)
		if err != nil {
			return err
		}
		if tr.Executed {
			return ErrTxAlreadyExecuted
		}
		if now >= tr.ExpiresAt {
			return ErrTxExpired
		}
		if govalidator.IsIn(owner, tr.Approvals...) {
			return ErrAlreadyApproved
		}
		tr.Approvals = append(tr.Approvals, owner)
		count = countApprovals(w, tr)
		return tx.PutTransaction(ctx, tr)
	})
	if err != nil {
		return err
	}

	s.logger.Info("multisig.approve",
		slog.String("wallet_id", walletID),
		slog.Uint64("tx_id", txID),
		slog.String("owner", owner),
		slog.Int("approvals", count),
	)
	return nil
}

// Execute applies an approved transaction. A transfer debits the pooled
// balance and credits the recipient through the ledger; a governance
// transaction mutates the owner set or threshold. A transaction executes at
// most once.
func (s *Service) Execute(ctx context.Context, walletID, caller string, txID uint64) (store.Transaction, error) {
	now := s.ticks.Now()
	var executed store.Transaction
	err := s.store.Update(ctx, func(tx store.Tx) error {
		w, err := s.wallet(ctx, tx, walletID)
		if err != nil {
			return err
		}
		if !w.IsActiveOwner(caller) {
			return ErrNotOwner
		}
		tr, err := s.transaction(ctx, tx, walletID, txID)
		if err != nil {
			return err
		}
		if err := s.evaluate(w, tr, now); err != nil {
			return err
		}

		if tr.Kind == store.KindTransfer {
			w.Balance -= tr.Amount
		} else {
			applyGovernance(&w, tr, now)
		}
		tr.Executed = true
		tr.ExecutedAt = now
		if err := tx.UpdateWallet(ctx, w); err != nil {
			return err
		}
		if err := tx.PutTransaction(ctx, tr); err != nil {
			return err
		}
		executed = tr

		if tr.Kind != store.KindTransfer {
			return nil
		}
		ref := w.ID + ":" + strconv.FormatUint(tr.ID, 10)
		_, err = tx.Ledger(s.ledger).Credit(ctx, ledger.PrincipalAccount(tr.Recipient), transferKind, ref, tr.Amount)
		if err != nil && !errors.Is(err, ledger.ErrDuplicateTransaction) {
			return failure.Wrap(failure.External, err, "credit recipient")
		}
		return nil
	})
	if err != nil {
		return store.Transaction{}, err
	}

	s.logger.Info("multisig.execute",
		slog.String("wallet_id", walletID),
		slog.Uint64("tx_id", txID),
		slog.String("kind", string(executed.Kind)),
		slog.String("caller", caller),
	)

	if executed.Kind == store.KindTransfer && s.notifier != nil {
		_ = s.notifier.Send(ctx, notification.Message{
			Kind:        notification.KindMultisigTransfer,
			Destination: executed.Recipient,
			Body:        fmt.Sprintf("You received %d from wallet %s", executed.Amount, walletID),
		})
	}
	return executed, nil
}

// evaluate returns the first reason tr cannot execute against w at now, or nil.
func (s *Service) evaluate(w store.Wallet, tr store.Transaction, now uint64) error {
	if tr.Executed {
		return ErrTxAlreadyExecuted
	}
	if now >= tr.ExpiresAt {
		return ErrTxExpired
	}
	if countApprovals(w, tr) < w.Threshold {
		return ErrInsufficientApprovals
	}
	if tr.Kind == store.KindTransfer {
		if w.Balance < tr.Amount {
			return ErrInsufficientBalance
		}
		return nil
	}
	return s.checkGovernance(w, tr.Kind, tr.Target, tr.NewThreshold)
}

// countApprovals counts approvals from owners that are still active.
func countApprovals(w store.Wallet, tr store.Transaction) int {
	active := mapset.New[string]()
	for _, o := range w.ActiveOwners() {
		active.Put(o)
	}
	n := 0
	for _, a := range tr.Approvals {
		if active.Has(a) {
			n++
		}
	}
	return n
}

func applyGovernance(w *store.Wallet, tr store.Transaction, now uint64) {
	switch tr.Kind {
	case store.KindAddOwner:
		for i := range w.Owners {
			if w.Owners[i].Address == tr.Target {
				w.Owners[i].Active = true
				w.Owners[i].AddedAt = now
				return
			}
		}
		w.Owners = append(w.Owners, store.Owner{Address: tr.Target, AddedAt: now, Active: true})
	case store.KindRemoveOwner:
		for i := range w.Owners {
			if w.Owners[i].Address == tr.Target {
				w.Owners[i].Active = false
			}
		}
	case store.KindChangeThreshold:
		w.Threshold = tr.NewThreshold
	}
}

func (s *Service) wallet(ctx context.Context, tx store.Tx, id string) (store.Wallet, error) {
	w, err := tx.Wallet(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return store.Wallet{}, ErrWalletNotFound
	}
	return w, err
}

func (s *Service) transaction(ctx context.Context, tx store.Tx, walletID string, id uint64) (store.Transaction, error) {
	tr, err := tx.Transaction(ctx, walletID, id)
	if errors.Is(err, store.ErrNotFound) {
		return store.Transaction{}, ErrTxNotFound
	}
	return tr, err
}
