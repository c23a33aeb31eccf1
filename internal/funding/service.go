package funding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/asaskevich/govalidator"
	"github.com/google/uuid"

	"github.com/congo-pay/custody/internal/address"
	"github.com/congo-pay/custody/internal/failure"
	"github.com/congo-pay/custody/internal/ledger"
	"github.com/congo-pay/custody/internal/logging"
)

const (
	KindCardIn  = "card_in"
	KindCardOut = "card_out"

	expiryPattern = `^(0[1-9]|1[0-2])/[0-9]{2}$`
	cvvPattern    = `^[0-9]{3,4}$`
)

var (
	ErrInvalidAddress    = failure.New(failure.Precondition, "invalid address")
	ErrInvalidCard       = failure.New(failure.Precondition, "invalid card")
	ErrInvalidAmount     = failure.New(failure.Precondition, "amount must be positive")
	ErrInsufficientFunds = failure.New(failure.Capacity, "insufficient funds")
	ErrDeclined          = failure.New(failure.External, "card authorization declined")
)

// Service moves money between cards and a principal's external ledger
// account, the balance owners deposit into wallets and delegations from.
type Service struct {
	ledger   ledger.Ledger
	acquirer Acquirer
	logger   *slog.Logger
	now      func() time.Time
}

// NewService ensures the card settlement account exists.
func NewService(ctx context.Context, led ledger.Ledger, acquirer Acquirer, logger *slog.Logger) (*Service, error) {
	if led == nil {
		return nil, fmt.Errorf("ledger is required")
	}
	if acquirer == nil {
		acquirer = StaticAcquirer{}
	}
	if logger == nil {
		logger = logging.Discard()
	}
	if err := led.EnsureAccount(ctx, ledger.CardSettlementAccountCode); err != nil {
		return nil, err
	}
	return &Service{ledger: led, acquirer: acquirer, logger: logger, now: time.Now}, nil
}

// TopUpInput pulls Amount from a card into Address's account.
type TopUpInput struct {
	Address    string
	Amount     int64
	ClientTxID string
	CardNumber string
	Expiry     string
	CVV        string
}

// PayoutInput pushes Amount from Address's account to a card.
type PayoutInput struct {
	Address    string
	Amount     int64
	ClientTxID string
	CardNumber string
}

// Result is the outcome of a card movement.
type Result struct {
	TransactionID     string
	ClientTxID        string
	Status            string
	Balance           int64
	AcquirerReference string
	CompletedAt       time.Time
}

// TopUp authorizes a card pull and credits the principal. Replaying a
// ClientTxID returns the original result with ledger.ErrDuplicateTransaction.
func (s *Service) TopUp(ctx context.Context, input TopUpInput) (Result, error) {
	if err := validate(input.Address, input.CardNumber, input.Amount); err != nil {
		return Result{}, err
	}
	if input.Expiry != "" && !govalidator.Matches(input.Expiry, expiryPattern) {
		return Result{}, ErrInvalidCard
	}
	if input.CVV != "" && !govalidator.Matches(input.CVV, cvvPattern) {
		return Result{}, ErrInvalidCard
	}
	if input.ClientTxID == "" {
		input.ClientTxID = uuid.NewString()
	}

	account := ledger.PrincipalAccount(input.Address)
	if err := s.ledger.EnsureAccount(ctx, account); err != nil {
		return Result{}, failure.Wrap(failure.External, err, "ensure account")
	}

	decision, err := s.acquirer.AuthorizeTopUp(ctx, TopUpAuthorization{
		CardNumber: input.CardNumber,
		Expiry:     input.Expiry,
		CVV:        input.CVV,
		Amount:     input.Amount,
	})
	if err != nil {
		return Result{}, failure.Wrap(failure.External, err, "acquirer")
	}
	if !decision.Approved() {
		s.logger.Info("funding.top_up_declined", slog.String("address", input.Address), slog.Int64("amount", input.Amount), slog.String("reference", decision.Reference))
		return Result{}, ErrDeclined
	}

	tx, err := s.ledger.Transfer(ctx, ledger.CardSettlementAccountCode, account, KindCardIn, input.ClientTxID, input.Amount)
	result := s.result(input.ClientTxID, tx.TransactionID, tx.ToBalance, decision)
	if err != nil {
		if errors.Is(err, ledger.ErrDuplicateTransaction) {
			return result, err
		}
		return Result{}, failure.Wrap(failure.External, err, "card top-up")
	}

	s.logger.Info("funding.top_up", slog.String("address", input.Address), slog.Int64("amount", input.Amount), slog.String("tx_id", tx.TransactionID))
	return result, nil
}

// Payout authorizes a card push and debits the principal.
func (s *Service) Payout(ctx context.Context, input PayoutInput) (Result, error) {
	if err := validate(input.Address, input.CardNumber, input.Amount); err != nil {
		return Result{}, err
	}
	if input.ClientTxID == "" {
		input.ClientTxID = uuid.NewString()
	}

	account := ledger.PrincipalAccount(input.Address)
	balance, err := s.Balance(ctx, input.Address)
	if err != nil {
		return Result{}, err
	}
	if balance < input.Amount {
		return Result{}, ErrInsufficientFunds
	}

	decision, err := s.acquirer.AuthorizePayout(ctx, PayoutAuthorization{CardNumber: input.CardNumber, Amount: input.Amount})
	if err != nil {
		return Result{}, failure.Wrap(failure.External, err, "acquirer")
	}
	if !decision.Approved() {
		s.logger.Info("funding.payout_declined", slog.String("address", input.Address), slog.Int64("amount", input.Amount), slog.String("reference", decision.Reference))
		return Result{}, ErrDeclined
	}

	tx, err := s.ledger.Transfer(ctx, account, ledger.CardSettlementAccountCode, KindCardOut, input.ClientTxID, input.Amount)
	result := s.result(input.ClientTxID, tx.TransactionID, tx.FromBalance, decision)
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrDuplicateTransaction):
			return result, err
		case errors.Is(err, ledger.ErrInsufficientFunds), errors.Is(err, ledger.ErrAccountNotFound):
			return Result{}, ErrInsufficientFunds
		default:
			return Result{}, failure.Wrap(failure.External, err, "card payout")
		}
	}

	s.logger.Info("funding.payout", slog.String("address", input.Address), slog.Int64("amount", input.Amount), slog.String("tx_id", tx.TransactionID))
	return result, nil
}

// Balance returns the principal's external balance. Unknown accounts hold zero.
func (s *Service) Balance(ctx context.Context, addr string) (int64, error) {
	if !address.Valid(addr) {
		return 0, ErrInvalidAddress
	}
	balance, err := s.ledger.Balance(ctx, ledger.PrincipalAccount(addr))
	if err != nil {
		if errors.Is(err, ledger.ErrAccountNotFound) {
			return 0, nil
		}
		return 0, failure.Wrap(failure.External, err, "balance")
	}
	return balance, nil
}

func (s *Service) result(clientTxID, txID string, balance int64, decision Decision) Result {
	return Result{
		TransactionID:     txID,
		ClientTxID:        clientTxID,
		Status:            decision.Status,
		Balance:           balance,
		AcquirerReference: decision.Reference,
		CompletedAt:       s.now().UTC(),
	}
}

func validate(addr, card string, amount int64) error {
	if !address.Valid(addr) {
		return ErrInvalidAddress
	}
	if !govalidator.IsCreditCard(card) {
		return ErrInvalidCard
	}
	if amount <= 0 {
		return ErrInvalidAmount
	}
	return nil
}
