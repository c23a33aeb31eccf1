// Package memo encodes the optional memo attached to a multisig transfer.
//
// The engine treats memos as opaque bytes capped at MaxSize. Hosts that need
// structure (plain notes, expense splits) use this versioned encoding: one
// version byte followed by a deterministic CBOR array tagged by Kind.
package memo

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// MaxSize is the largest memo the multisig engine accepts.
const MaxSize = 34

// Version1 is the only encoding version emitted today.
const Version1 byte = 1

// Kind tags the union member carried by a memo.
type Kind uint8

const (
	KindText  Kind = 1
	KindSplit Kind = 2
)

var (
	// ErrTooLong is returned when the encoded memo exceeds MaxSize.
	ErrTooLong = errors.New("memo exceeds 34 bytes")
	// ErrUnknownVersion is returned for a version byte this package cannot read.
	ErrUnknownVersion = errors.New("unknown memo version")
	// ErrInvalid is returned for a memo whose fields do not match its kind.
	ErrInvalid = errors.New("invalid memo")
)

// Split describes one share of an expense split among wallet owners.
type Split struct {
	ExpenseID uint32
	Index     uint8
	Parts     uint8
}

// Memo is the decoded form. Exactly one of Text or Split is meaningful,
// selected by Kind.
type Memo struct {
	Kind  Kind
	Text  string
	Split Split
}

type wireMemo struct {
	_         struct{} `cbor:",toarray"`
	Kind      Kind
	Text      string
	ExpenseID uint32
	Index     uint8
	Parts     uint8
}

var encMode cbor.EncMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("memo: CBOR encoder initialization failed: " + err.Error())
	}
}

// Text builds a plain note memo.
func Text(s string) Memo { return Memo{Kind: KindText, Text: s} }

// SplitOf builds an expense split memo for share index of parts.
func SplitOf(expenseID uint32, index, parts uint8) Memo {
	return Memo{Kind: KindSplit, Split: Split{ExpenseID: expenseID, Index: index, Parts: parts}}
}

func (m Memo) validate() error {
	switch m.Kind {
	case KindText:
		if m.Split != (Split{}) {
			return fmt.Errorf("%w: text memo carries split fields", ErrInvalid)
		}
	case KindSplit:
		if m.Text != "" {
			return fmt.Errorf("%w: split memo carries text", ErrInvalid)
		}
		if m.Split.Parts == 0 || m.Split.Index >= m.Split.Parts {
			return fmt.Errorf("%w: split index %d of %d", ErrInvalid, m.Split.Index, m.Split.Parts)
		}
	default:
		return fmt.Errorf("%w: kind %d", ErrInvalid, m.Kind)
	}
	return nil
}

// Encode serializes m, failing with ErrTooLong when it does not fit.
func Encode(m Memo) ([]byte, error) {
	if err := m.validate(); err != nil {
		return nil, err
	}
	body, err := encMode.Marshal(wireMemo{
		Kind:      m.Kind,
		Text:      m.Text,
		ExpenseID: m.Split.ExpenseID,
		Index:     m.Split.Index,
		Parts:     m.Split.Parts,
	})
	if err != nil {
		return nil, fmt.Errorf("encode memo: %w", err)
	}
	out := append([]byte{Version1}, body...)
	if len(out) > MaxSize {
		return nil, ErrTooLong
	}
	return out, nil
}

// Decode parses a memo produced by Encode.
func Decode(b []byte) (Memo, error) {
	if len(b) == 0 {
		return Memo{}, fmt.Errorf("%w: empty", ErrInvalid)
	}
	if len(b) > MaxSize {
		return Memo{}, ErrTooLong
	}
	if b[0] != Version1 {
		return Memo{}, fmt.Errorf("%w: %d", ErrUnknownVersion, b[0])
	}
	var w wireMemo
	if err := cbor.Unmarshal(b[1:], &w); err != nil {
		return Memo{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	m := Memo{Kind: w.Kind, Text: w.Text, Split: Split{ExpenseID: w.ExpenseID, Index: w.Index, Parts: w.Parts}}
	if err := m.validate(); err != nil {
		return Memo{}, err
	}
	return m, nil
}
