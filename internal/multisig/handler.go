package multisig

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cast"

	"github.com/congo-pay/custody/internal/failure"
	"github.com/congo-pay/custody/internal/memo"
	"github.com/congo-pay/custody/internal/store"
)

// Handler exposes multisig wallet endpoints. The authenticated principal
// address (set by the JWT middleware under "address") is the acting owner.
type Handler struct {
	service *Service
}

// NewHandler constructs a multisig handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type initializeRequest struct {
	WalletID  string   `json:"wallet_id"`
	Owners    []string `json:"owners"`
	Threshold int      `json:"threshold"`
}

type depositRequest struct {
	Amount     int64  `json:"amount"`
	ClientTxID string `json:"client_tx_id"`
}

type splitRequest struct {
	ExpenseID uint32 `json:"expense_id"`
	Index     uint8  `json:"index"`
	Parts     uint8  `json:"parts"`
}

type proposeRequest struct {
	Kind         string        `json:"kind"`
	Recipient    string        `json:"recipient"`
	Amount       int64         `json:"amount"`
	Memo         []byte        `json:"memo"`
	Note         string        `json:"note"`
	Split        *splitRequest `json:"split"`
	Target       string        `json:"target"`
	NewThreshold int           `json:"new_threshold"`
}

type splitResponse struct {
	ExpenseID uint32 `json:"expense_id"`
	Index     uint8  `json:"index"`
	Parts     uint8  `json:"parts"`
}

type ownerResponse struct {
	Address string `json:"address"`
	AddedAt uint64 `json:"added_at"`
	Active  bool   `json:"active"`
}

type walletResponse struct {
	ID        string          `json:"id"`
	Owners    []ownerResponse `json:"owners"`
	Threshold int             `json:"threshold"`
	Balance   int64           `json:"balance"`
	Nonce     uint64          `json:"nonce"`
	CreatedAt uint64          `json:"created_at"`
	Tick      uint64          `json:"tick"`
}

type transactionResponse struct {
	ID           uint64         `json:"id"`
	Kind         string         `json:"kind"`
	Proposer     string         `json:"proposer"`
	Recipient    string         `json:"recipient,omitempty"`
	Amount       int64          `json:"amount,omitempty"`
	Memo         []byte         `json:"memo,omitempty"`
	Note         string         `json:"note,omitempty"`
	Split        *splitResponse `json:"split,omitempty"`
	Target       string         `json:"target,omitempty"`
	NewThreshold int            `json:"new_threshold,omitempty"`
	Approvals    []string       `json:"approvals"`
	Status       Status         `json:"status"`
	Executable   bool           `json:"executable"`
	CreatedAt    uint64         `json:"created_at"`
	ExpiresAt    uint64         `json:"expires_at"`
	ExecutedAt   uint64         `json:"executed_at,omitempty"`
}

// Initialize creates a wallet. The caller must be one of the owners.
func (h *Handler) Initialize(c *fiber.Ctx) error {
	var req initializeRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	caller := callerAddress(c)
	member := false
	for _, o := range req.Owners {
		if o == caller {
			member = true
			break
		}
	}
	if !member {
		return httpError(ErrNotOwner)
	}

	id, err := h.service.Initialize(c.UserContext(), InitializeInput{
		WalletID:  req.WalletID,
		Owners:    req.Owners,
		Threshold: req.Threshold,
	})
	if err != nil {
		return httpError(err)
	}
	info, err := h.service.WalletInfo(c.UserContext(), id)
	if err != nil {
		return httpError(err)
	}
	return c.Status(http.StatusCreated).JSON(toWalletResponse(info))
}

// Deposit moves funds from the caller's account into the wallet pool.
func (h *Handler) Deposit(c *fiber.Ctx) error {
	var req depositRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	walletID := c.Params("walletId")
	balance, err := h.service.Deposit(c.UserContext(), DepositInput{
		WalletID:   walletID,
		From:       callerAddress(c),
		Amount:     req.Amount,
		ClientTxID: req.ClientTxID,
	})
	if err != nil {
		return httpError(err)
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"wallet_id": walletID,
		"balance":   balance,
	})
}

// Propose records a transfer or governance proposal.
func (h *Handler) Propose(c *fiber.Ctx) error {
	var req proposeRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	raw, err := requestMemo(req)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	walletID := c.Params("walletId")
	txID, err := h.service.Propose(c.UserContext(), ProposeInput{
		WalletID:     walletID,
		Proposer:     callerAddress(c),
		Kind:         store.TxKind(req.Kind),
		Recipient:    req.Recipient,
		Amount:       req.Amount,
		Memo:         raw,
		Target:       req.Target,
		NewThreshold: req.NewThreshold,
	})
	if err != nil {
		return httpError(err)
	}
	view, err := h.service.Transaction(c.UserContext(), walletID, txID)
	if err != nil {
		return httpError(err)
	}
	return c.Status(http.StatusCreated).JSON(toTransactionResponse(view))
}

// Approve adds the caller's approval.
func (h *Handler) Approve(c *fiber.Ctx) error {
	walletID := c.Params("walletId")
	txID, err := cast.ToUint64E(c.Params("txId"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid transaction id")
	}
	if err := h.service.Approve(c.UserContext(), walletID, callerAddress(c), txID); err != nil {
		return httpError(err)
	}
	view, err := h.service.Transaction(c.UserContext(), walletID, txID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(toTransactionResponse(view))
}

// Execute applies an approved transaction.
func (h *Handler) Execute(c *fiber.Ctx) error {
	walletID := c.Params("walletId")
	txID, err := cast.ToUint64E(c.Params("txId"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid transaction id")
	}
	if _, err := h.service.Execute(c.UserContext(), walletID, callerAddress(c), txID); err != nil {
		return httpError(err)
	}
	view, err := h.service.Transaction(c.UserContext(), walletID, txID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(toTransactionResponse(view))
}

// Wallet returns the wallet projection.
func (h *Handler) Wallet(c *fiber.Ctx) error {
	info, err := h.service.WalletInfo(c.UserContext(), c.Params("walletId"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(toWalletResponse(info))
}

// Transactions lists transactions, optionally filtered by ?status=.
func (h *Handler) Transactions(c *fiber.Ctx) error {
	status := Status(c.Query("status"))
	switch status {
	case "", StatusPending, StatusExecuted, StatusExpired:
	default:
		return fiber.NewError(http.StatusBadRequest, "unknown status filter")
	}
	views, err := h.service.Transactions(c.UserContext(), c.Params("walletId"), status)
	if err != nil {
		return httpError(err)
	}
	out := make([]transactionResponse, 0, len(views))
	for _, v := range views {
		out = append(out, toTransactionResponse(v))
	}
	return c.JSON(fiber.Map{"transactions": out})
}

// Transaction returns a single transaction.
func (h *Handler) Transaction(c *fiber.Ctx) error {
	txID, err := cast.ToUint64E(c.Params("txId"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid transaction id")
	}
	view, err := h.service.Transaction(c.UserContext(), c.Params("walletId"), txID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(toTransactionResponse(view))
}

func callerAddress(c *fiber.Ctx) string {
	addr, _ := c.Locals("address").(string)
	return addr
}

func httpError(err error) error {
	return fiber.NewError(failure.HTTPStatus(err), err.Error())
}

func toWalletResponse(info WalletInfo) walletResponse {
	owners := make([]ownerResponse, 0, len(info.Owners))
	for _, o := range info.Owners {
		owners = append(owners, ownerResponse{Address: o.Address, AddedAt: o.AddedAt, Active: o.Active})
	}
	return walletResponse{
		ID:        info.ID,
		Owners:    owners,
		Threshold: info.Threshold,
		Balance:   info.Balance,
		Nonce:     info.Nonce,
		CreatedAt: info.CreatedAt,
		Tick:      info.Tick,
	}
}

// requestMemo returns the raw memo, or encodes a note or split. Only one of
// the three may be set.
func requestMemo(req proposeRequest) ([]byte, error) {
	set := 0
	for _, present := range []bool{len(req.Memo) > 0, req.Note != "", req.Split != nil} {
		if present {
			set++
		}
	}
	switch {
	case set > 1:
		return nil, errors.New("memo, note and split are mutually exclusive")
	case req.Note != "":
		return memo.Encode(memo.Text(req.Note))
	case req.Split != nil:
		return memo.Encode(memo.SplitOf(req.Split.ExpenseID, req.Split.Index, req.Split.Parts))
	default:
		return req.Memo, nil
	}
}

func toTransactionResponse(v TransactionView) transactionResponse {
	resp := transactionResponse{
		ID:           v.ID,
		Kind:         string(v.Kind),
		Proposer:     v.Proposer,
		Recipient:    v.Recipient,
		Amount:       v.Amount,
		Memo:         v.Memo,
		Target:       v.Target,
		NewThreshold: v.NewThreshold,
		Approvals:    v.Approvals,
		Status:       v.Status,
		Executable:   v.Executable,
		CreatedAt:    v.CreatedAt,
		ExpiresAt:    v.ExpiresAt,
		ExecutedAt:   v.ExecutedAt,
	}
	if len(v.Memo) == 0 {
		return resp
	}
	// Memos not produced by the memo codec stay raw.
	if m, err := memo.Decode(v.Memo); err == nil {
		switch m.Kind {
		case memo.KindText:
			resp.Note = m.Text
		case memo.KindSplit:
			resp.Split = &splitResponse{ExpenseID: m.Split.ExpenseID, Index: m.Split.Index, Parts: m.Split.Parts}
		}
	}
	return resp
}
