package identity

import (
	"errors"
	"time"
)

var (
	ErrInvalidAddress  = errors.New("address is malformed")
	ErrWeakPIN         = errors.New("PIN must be at least 4 digits")
	ErrPrincipalExists = errors.New("address already registered")
	ErrNotFound        = errors.New("principal not found")
	ErrInvalidPIN      = errors.New("invalid PIN")
	ErrDeviceRequired  = errors.New("device binding required")
	ErrDeviceMismatch  = errors.New("device mismatch")
)

// Principal is a registered participant. Its Address is the identity the
// engines see as owner, delegate or recipient.
type Principal struct {
	ID           string
	Address      string
	PINHash      []byte
	DeviceID     string
	TokenVersion int
	CreatedAt    time.Time
	LastLogin    time.Time
}

// Credentials request structure.
type Credentials struct {
	Address  string
	PIN      string
	DeviceID string
}
