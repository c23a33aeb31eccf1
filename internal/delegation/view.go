package delegation

import (
	"context"
	"errors"

	"github.com/congo-pay/custody/internal/store"
)

// Status returns the delegation between owner and delegate as of now.
func (s *Service) Status(ctx context.Context, owner, delegate string) (View, error) {
	now := s.ticks.Now()
	var v View
	err := s.store.View(ctx, func(tx store.Tx) error {
		d, err := s.delegation(ctx, tx, owner, delegate)
		if err != nil {
			return err
		}
		v = s.view(d, now)
		return nil
	})
	return v, err
}

// AvailableAmount returns the undrawn balance of the grant.
func (s *Service) AvailableAmount(ctx context.Context, owner, delegate string) (int64, error) {
	v, err := s.Status(ctx, owner, delegate)
	if err != nil {
		return 0, err
	}
	return v.Amount, nil
}

// IsValid reports whether the delegate can currently spend from the grant.
// A missing delegation is simply not valid.
func (s *Service) IsValid(ctx context.Context, owner, delegate string) (bool, error) {
	v, err := s.Status(ctx, owner, delegate)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return v.IsActive, nil
}

// ListByOwner returns every grant the owner has made.
func (s *Service) ListByOwner(ctx context.Context, owner string) ([]View, error) {
	return s.list(ctx, store.DelegationFilter{Owner: owner})
}

// ListByDelegate returns every grant made to the delegate.
func (s *Service) ListByDelegate(ctx context.Context, delegate string) ([]View, error) {
	return s.list(ctx, store.DelegationFilter{Delegate: delegate})
}

func (s *Service) list(ctx context.Context, filter store.DelegationFilter) ([]View, error) {
	now := s.ticks.Now()
	var out []View
	err := s.store.View(ctx, func(tx store.Tx) error {
		list, err := tx.Delegations(ctx, filter)
		if err != nil {
			return err
		}
		out = make([]View, 0, len(list))
		for _, d := range list {
			out = append(out, s.view(d, now))
		}
		return nil
	})
	return out, err
}

func (s *Service) view(d store.Delegation, now uint64) View {
	if today := s.dayIndex(now); today != d.LastDay {
		d.SpentToday = 0
		d.LastDay = today
	}
	v := View{
		Delegation:     d,
		DailyRemaining: d.DailyLimit - d.SpentToday,
		IsActive:       live(d, now) && d.Amount > 0,
		Tick:           now,
	}
	if now < d.EndBlock {
		v.BlocksUntilExpiry = d.EndBlock - now
	}
	switch {
	case d.Amount == 0 && !live(d, now):
		v.State = StateClosed
	case !d.Active:
		v.State = StateRevoked
	case now >= d.EndBlock:
		v.State = StateExpired
	default:
		v.State = StateActive
	}
	return v
}
