package identity

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/congo-pay/custody/internal/address"
	"github.com/congo-pay/custody/internal/ledger"
)

// AccountOpener provisions the external ledger account of a new principal.
type AccountOpener interface {
	EnsureAccount(ctx context.Context, code string) error
}

// Service manages principal lifecycle.
type Service struct {
	repo     Repository
	accounts AccountOpener
	now      func() time.Time
}

// NewService creates a new identity service. accounts may be nil.
func NewService(repo Repository, accounts AccountOpener) *Service {
	return &Service{repo: repo, accounts: accounts, now: time.Now}
}

// Register creates a principal, stores a hashed PIN and opens its ledger account.
func (s *Service) Register(ctx context.Context, creds Credentials) (Principal, error) {
	if !address.Valid(creds.Address) {
		return Principal{}, ErrInvalidAddress
	}
	if len(creds.PIN) < 4 {
		return Principal{}, ErrWeakPIN
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(creds.PIN), bcrypt.DefaultCost)
	if err != nil {
		return Principal{}, err
	}

	p := Principal{
		ID:        uuid.New().String(),
		Address:   creds.Address,
		PINHash:   hash,
		DeviceID:  creds.DeviceID,
		CreatedAt: s.now().UTC(),
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return Principal{}, err
	}

	if s.accounts != nil {
		if err := s.accounts.EnsureAccount(ctx, ledger.PrincipalAccount(p.Address)); err != nil {
			return Principal{}, fmt.Errorf("open ledger account: %w", err)
		}
	}
	return p, nil
}

// Authenticate verifies credentials and device binding.
func (s *Service) Authenticate(ctx context.Context, creds Credentials) (Principal, error) {
	p, err := s.repo.FindByAddress(ctx, creds.Address)
	if err != nil {
		return Principal{}, err
	}

	if err := bcrypt.CompareHashAndPassword(p.PINHash, []byte(creds.PIN)); err != nil {
		return Principal{}, ErrInvalidPIN
	}

	if p.DeviceID == "" {
		if creds.DeviceID == "" {
			return Principal{}, ErrDeviceRequired
		}
		if err := s.repo.UpdateDevice(ctx, p.ID, creds.DeviceID); err != nil {
			return Principal{}, err
		}
		p.DeviceID = creds.DeviceID
	} else if creds.DeviceID != "" && p.DeviceID != creds.DeviceID {
		return Principal{}, ErrDeviceMismatch
	}

	p.LastLogin = s.now().UTC()
	if err := s.repo.TouchLogin(ctx, p.ID, p.LastLogin); err != nil {
		return Principal{}, err
	}
	return p, nil
}

// Get returns a principal by id.
func (s *Service) Get(ctx context.Context, id string) (Principal, error) {
	return s.repo.FindByID(ctx, id)
}
