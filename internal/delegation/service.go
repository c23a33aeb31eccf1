package delegation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/google/uuid"

	"github.com/congo-pay/custody/internal/address"
	"github.com/congo-pay/custody/internal/clock"
	"github.com/congo-pay/custody/internal/failure"
	"github.com/congo-pay/custody/internal/ledger"
	"github.com/congo-pay/custody/internal/logging"
	"github.com/congo-pay/custody/internal/notification"
	"github.com/congo-pay/custody/internal/store"
)

// DefaultTicksPerDay assumes ten-minute ticks.
const DefaultTicksPerDay = 144

const (
	depositKind  = "delegation_deposit"
	spendKind    = "delegated_spend"
	withdrawKind = "delegation_withdraw"
)

// Options tunes a Service. Zero values fall back to the defaults.
type Options struct {
	TicksPerDay uint64
	Policy      ReplacePolicy
	Notifier    notification.Notifier
	Logger      *slog.Logger
}

// Service is the delegated spend-authorization engine.
type Service struct {
	store       store.Store
	ledger      ledger.Ledger
	ticks       clock.Source
	ticksPerDay uint64
	policy      ReplacePolicy
	notifier    notification.Notifier
	logger      *slog.Logger
}

// NewService builds a delegation engine over the given store, ledger and tick source.
func NewService(st store.Store, led ledger.Ledger, ticks clock.Source, opts Options) *Service {
	s := &Service{
		store:       st,
		ledger:      led,
		ticks:       ticks,
		ticksPerDay: opts.TicksPerDay,
		policy:      opts.Policy,
		notifier:    opts.Notifier,
		logger:      opts.Logger,
	}
	if s.ticksPerDay == 0 {
		s.ticksPerDay = DefaultTicksPerDay
	}
	if s.logger == nil {
		s.logger = logging.Discard()
	}
	return s
}

// TicksPerDay returns the day-bucket width.
func (s *Service) TicksPerDay() uint64 { return s.ticksPerDay }

// Policy returns the configured replace policy.
func (s *Service) Policy() ReplacePolicy { return s.policy }

func (s *Service) dayIndex(now uint64) uint64 { return now / s.ticksPerDay }

func live(d store.Delegation, now uint64) bool {
	return d.Active && now < d.EndBlock
}

func (s *Service) durationTicks(now, days uint64) (uint64, error) {
	if days == 0 {
		return 0, ErrInvalidDuration
	}
	if days > (math.MaxUint64-now)/s.ticksPerDay {
		return 0, fmt.Errorf("%w: %d days overflows the tick range", ErrInvalidDuration, days)
	}
	return days * s.ticksPerDay, nil
}

// CreateAndDeposit debits Amount from the owner's account and opens a grant
// for the delegate lasting DurationDays.
func (s *Service) CreateAndDeposit(ctx context.Context, input CreateInput) (store.Delegation, error) {
	if !address.Valid(input.Owner) || !address.Valid(input.Delegate) {
		return store.Delegation{}, ErrInvalidAddress
	}
	if input.Owner == input.Delegate {
		return store.Delegation{}, ErrSelfDelegation
	}
	if input.Amount <= 0 {
		return store.Delegation{}, ErrInvalidAmount
	}
	if input.DailyLimit <= 0 || input.DailyLimit > input.Amount {
		return store.Delegation{}, ErrInvalidDailyLimit
	}
	now := s.ticks.Now()
	span, err := s.durationTicks(now, input.DurationDays)
	if err != nil {
		return store.Delegation{}, err
	}
	if input.ClientTxID == "" {
		input.ClientTxID = uuid.NewString()
	}

	key := store.DelegationKey{Owner: input.Owner, Delegate: input.Delegate}
	var (
		created store.Delegation
		carried int64
	)
	err = s.store.Update(ctx, func(tx store.Tx) error {
		existing, err := tx.Delegation(ctx, key)
		switch {
		case errors.Is(err, store.ErrNotFound):
		case err != nil:
			return err
		case existing.ClientTxID == input.ClientTxID:
			return ErrDuplicateDeposit
		default:
			carried, err = s.replace(existing, now)
			if err != nil {
				return err
			}
		}

		created = store.Delegation{
			Owner:      input.Owner,
			Delegate:   input.Delegate,
			Amount:     input.Amount,
			DailyLimit: input.DailyLimit,
			LastDay:    s.dayIndex(now),
			StartBlock: now,
			EndBlock:   now + span,
			Active:     true,
			ClientTxID: input.ClientTxID,
		}
		if err := tx.PutDelegation(ctx, created); err != nil {
			return err
		}
		return s.settleDeposit(ctx, tx.Ledger(s.ledger), input, input.Amount-carried)
	})
	if err != nil {
		return store.Delegation{}, err
	}

	s.logger.Info("delegation.create",
		slog.String("owner", input.Owner),
		slog.String("delegate", input.Delegate),
		slog.Int64("amount", input.Amount),
		slog.Int64("daily_limit", input.DailyLimit),
		slog.Uint64("end_block", created.EndBlock),
		slog.Int64("carried", carried),
	)
	return created, nil
}

// replace applies the replace policy to an existing record and returns the
// undrawn amount that the new grant absorbs.
func (s *Service) replace(existing store.Delegation, now uint64) (int64, error) {
	if live(existing, now) && existing.Amount > 0 {
		return 0, ErrDelegationExists
	}
	switch s.policy {
	case Reject:
		return 0, ErrDelegationExists
	case RequireWithdrawFirst:
		if existing.Amount > 0 {
			return 0, ErrWithdrawRequired
		}
		return 0, nil
	case OverwriteAndForfeit:
		return existing.Amount, nil
	default:
		return 0, fmt.Errorf("unknown replace policy %d", s.policy)
	}
}

// settleDeposit moves net between the owner and custody in one ledger call.
// A positive net is debited from the owner; a negative net is a refund of
// the part of a replaced grant the new one does not absorb.
func (s *Service) settleDeposit(ctx context.Context, led ledger.Ledger, input CreateInput, net int64) error {
	ref := input.Owner + ":" + input.Delegate + ":" + input.ClientTxID
	account := ledger.PrincipalAccount(input.Owner)
	var err error
	switch {
	case net > 0:
		_, err = led.Debit(ctx, account, depositKind, ref, net)
	case net < 0:
		_, err = led.Credit(ctx, account, withdrawKind, ref, -net)
	default:
		return nil
	}
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ledger.ErrDuplicateTransaction):
		return ErrDuplicateDeposit
	default:
		return failure.Wrap(failure.External, err, "settle owner deposit")
	}
}

// AddFunds tops up a live grant from the owner's account.
func (s *Service) AddFunds(ctx context.Context, owner, delegate string, amount int64) (store.Delegation, error) {
	if amount <= 0 {
		return store.Delegation{}, ErrInvalidAmount
	}
	now := s.ticks.Now()
	var updated store.Delegation
	err := s.store.Update(ctx, func(tx store.Tx) error {
		d, err := s.delegation(ctx, tx, owner, delegate)
		if err != nil {
			return err
		}
		if !live(d, now) || d.Amount == 0 {
			return ErrInactive
		}
		if d.Amount > math.MaxInt64-amount {
			return fmt.Errorf("%w: amount overflow", ErrInvalidAmount)
		}
		d.Amount += amount
		if err := tx.PutDelegation(ctx, d); err != nil {
			return err
		}
		updated = d

		if _, err := tx.Ledger(s.ledger).Debit(ctx, ledger.PrincipalAccount(owner), depositKind, uuid.NewString(), amount); err != nil {
			return failure.Wrap(failure.External, err, "debit owner")
		}
		return nil
	})
	if err != nil {
		return store.Delegation{}, err
	}

	s.logger.Info("delegation.add_funds",
		slog.String("owner", owner),
		slog.String("delegate", delegate),
		slog.Int64("amount", amount),
		slog.Int64("balance", updated.Amount),
	)
	return updated, nil
}

// Spend lets the delegate pay Recipient out of the owner's grant, subject to
// the daily cap. The day bucket rolls over on the first spend of a new day.
func (s *Service) Spend(ctx context.Context, input SpendInput) (store.Delegation, error) {
	if input.Amount <= 0 {
		return store.Delegation{}, ErrInvalidAmount
	}
	if !address.Valid(input.Recipient) {
		return store.Delegation{}, ErrInvalidAddress
	}
	now := s.ticks.Now()
	var updated store.Delegation
	err := s.store.Update(ctx, func(tx store.Tx) error {
		d, err := s.delegation(ctx, tx, input.Owner, input.Delegate)
		if err != nil {
			return err
		}
		if !live(d, now) {
			return ErrInactive
		}
		if today := s.dayIndex(now); today != d.LastDay {
			d.SpentToday = 0
			d.LastDay = today
		}
		if input.Amount > d.DailyLimit-d.SpentToday {
			return ErrDailyLimitExceeded
		}
		if input.Amount > d.Amount {
			return ErrInsufficientFunds
		}

		d.SpentToday += input.Amount
		d.SpentTotal += input.Amount
		d.Amount -= input.Amount
		if err := tx.PutDelegation(ctx, d); err != nil {
			return err
		}
		updated = d

		if _, err := tx.Ledger(s.ledger).Credit(ctx, ledger.PrincipalAccount(input.Recipient), spendKind, uuid.NewString(), input.Amount); err != nil {
			return failure.Wrap(failure.External, err, "credit recipient")
		}
		return nil
	})
	if err != nil {
		return store.Delegation{}, err
	}

	s.logger.Info("delegation.spend",
		slog.String("owner", input.Owner),
		slog.String("delegate", input.Delegate),
		slog.String("recipient", input.Recipient),
		slog.Int64("amount", input.Amount),
		slog.Int64("spent_today", updated.SpentToday),
		slog.Int64("remaining", updated.Amount),
	)
	if s.notifier != nil {
		_ = s.notifier.Send(ctx, notification.Message{
			Kind:        notification.KindDelegatedSpend,
			Destination: input.Recipient,
			Body:        fmt.Sprintf("You received %d from %s on behalf of %s", input.Amount, input.Delegate, input.Owner),
		})
	}
	return updated, nil
}

// Revoke ends the grant immediately. Funds stay in the record until withdrawn.
func (s *Service) Revoke(ctx context.Context, owner, delegate string) (store.Delegation, error) {
	var updated store.Delegation
	err := s.store.Update(ctx, func(tx store.Tx) error {
		d, err := s.delegation(ctx, tx, owner, delegate)
		if err != nil {
			return err
		}
		if !d.Active {
			return ErrInactive
		}
		d.Active = false
		updated = d
		return tx.PutDelegation(ctx, d)
	})
	if err != nil {
		return store.Delegation{}, err
	}

	s.logger.Info("delegation.revoke",
		slog.String("owner", owner),
		slog.String("delegate", delegate),
		slog.Int64("remaining", updated.Amount),
	)
	if s.notifier != nil {
		_ = s.notifier.Send(ctx, notification.Message{
			Kind:        notification.KindDelegationRevoked,
			Destination: delegate,
			Body:        fmt.Sprintf("%s revoked your spending rights", owner),
		})
	}
	return updated, nil
}

// WithdrawRemaining returns what is left of a revoked or expired grant to the
// owner and returns the amount withdrawn.
func (s *Service) WithdrawRemaining(ctx context.Context, owner, delegate string) (int64, error) {
	now := s.ticks.Now()
	var withdrawn int64
	err := s.store.Update(ctx, func(tx store.Tx) error {
		d, err := s.delegation(ctx, tx, owner, delegate)
		if err != nil {
			return err
		}
		if live(d, now) {
			return ErrStillActive
		}
		if d.Amount == 0 {
			return ErrNothingToWithdraw
		}
		withdrawn = d.Amount
		d.Amount = 0
		if err := tx.PutDelegation(ctx, d); err != nil {
			return err
		}

		if _, err := tx.Ledger(s.ledger).Credit(ctx, ledger.PrincipalAccount(owner), withdrawKind, uuid.NewString(), withdrawn); err != nil {
			return failure.Wrap(failure.External, err, "credit owner")
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.logger.Info("delegation.withdraw",
		slog.String("owner", owner),
		slog.String("delegate", delegate),
		slog.Int64("amount", withdrawn),
	)
	return withdrawn, nil
}

// Extend pushes the end of a live grant out by additionalDays.
func (s *Service) Extend(ctx context.Context, owner, delegate string, additionalDays uint64) (store.Delegation, error) {
	now := s.ticks.Now()
	var updated store.Delegation
	err := s.store.Update(ctx, func(tx store.Tx) error {
		d, err := s.delegation(ctx, tx, owner, delegate)
		if err != nil {
			return err
		}
		if !live(d, now) {
			return ErrInactive
		}
		span, err := s.durationTicks(d.EndBlock, additionalDays)
		if err != nil {
			return err
		}
		d.EndBlock += span
		updated = d
		return tx.PutDelegation(ctx, d)
	})
	if err != nil {
		return store.Delegation{}, err
	}

	s.logger.Info("delegation.extend",
		slog.String("owner", owner),
		slog.String("delegate", delegate),
		slog.Uint64("end_block", updated.EndBlock),
	)
	return updated, nil
}

func (s *Service) delegation(ctx context.Context, tx store.Tx, owner, delegate string) (store.Delegation, error) {
	d, err := tx.Delegation(ctx, store.DelegationKey{Owner: owner, Delegate: delegate})
	if errors.Is(err, store.ErrNotFound) {
		return store.Delegation{}, ErrNotFound
	}
	return d, err
}
