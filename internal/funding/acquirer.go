package funding

import (
	"context"

	"github.com/google/uuid"
)

// Acquirer is the connector to the external card processor.
type Acquirer interface {
	AuthorizeTopUp(ctx context.Context, req TopUpAuthorization) (Decision, error)
	AuthorizePayout(ctx context.Context, req PayoutAuthorization) (Decision, error)
}

const (
	DecisionApproved = "approved"
	DecisionDeclined = "declined"
)

// Decision is the acquirer's answer to an authorization request.
type Decision struct {
	Reference string
	Status    string
}

// Approved reports whether funds may move.
func (d Decision) Approved() bool { return d.Status == DecisionApproved }

// TopUpAuthorization pulls funds from a card.
type TopUpAuthorization struct {
	CardNumber string
	Expiry     string
	CVV        string
	Amount     int64
}

// PayoutAuthorization pushes funds to a card.
type PayoutAuthorization struct {
	CardNumber string
	Amount     int64
}

// StaticAcquirer simulates an acquirer. It approves everything unless Limit
// is set, in which case larger amounts are declined.
type StaticAcquirer struct {
	Limit int64
}

func (a StaticAcquirer) decide(amount int64) Decision {
	status := DecisionApproved
	if a.Limit > 0 && amount > a.Limit {
		status = DecisionDeclined
	}
	return Decision{Reference: uuid.NewString(), Status: status}
}

// AuthorizeTopUp answers a card pull.
func (a StaticAcquirer) AuthorizeTopUp(_ context.Context, req TopUpAuthorization) (Decision, error) {
	return a.decide(req.Amount), nil
}

// AuthorizePayout answers a card push.
func (a StaticAcquirer) AuthorizePayout(_ context.Context, req PayoutAuthorization) (Decision, error) {
	return a.decide(req.Amount), nil
}
