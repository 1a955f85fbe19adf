package handler

import (
	"fmt"
	"net/http"

	"github.com/defi_custody/model"
	"github.com/defi_custody/service"
	"github.com/gin-gonic/gin"
)

// PoolHandler exposes lending-pool operations. Policy decision made at
// this layer: money-moving endpoints require a verified wallet, on top
// of the pipeline's own ownership check.
type PoolHandler struct {
	submit  *service.SubmitService
	wallets *service.WalletService
	pool    service.ChainPool
}

func NewPoolHandler(submit *service.SubmitService, wallets *service.WalletService, pool service.ChainPool) *PoolHandler {
	return &PoolHandler{submit: submit, wallets: wallets, pool: pool}
}

// GET /api/v1/pool/markets
func (h *PoolHandler) Markets(c *gin.Context) {
	snap, err := h.pool.FetchMarketSnapshot(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

type depositRequest struct {
	Address string `json:"address" binding:"required"`
	Amount  string `json:"amount" binding:"required"`
	// Accepted for wire compatibility; ownership gating rides the
	// verified flag, not this field.
	Signature string `json:"signature" binding:"required"`
}

// POST /api/v1/pool/deposit
func (h *PoolHandler) Deposit(c *gin.Context) {
	var req depositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	h.doSubmit(c, model.TxKindDeposit, req.Address, req.Amount)
}

type withdrawRequest struct {
	Address string `json:"address" binding:"required"`
	Amount  string `json:"amount" binding:"required"`
}

// POST /api/v1/pool/withdraw
func (h *PoolHandler) Withdraw(c *gin.Context) {
	var req withdrawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	h.doSubmit(c, model.TxKindWithdraw, req.Address, req.Amount)
}

func (h *PoolHandler) doSubmit(c *gin.Context, kind, address, amount string) {
	addr, ok := normalizeAddress(address)
	if !ok {
		badRequest(c, "invalid wallet address")
		return
	}
	if !validAmount(amount) {
		badRequest(c, "amount must be a positive base-unit decimal string")
		return
	}
	userID := c.GetString("userID")

	w, err := h.wallets.Get(c.Request.Context(), userID, addr)
	if err != nil {
		writeError(c, err)
		return
	}
	if !w.Verified {
		writeError(c, fmt.Errorf("%w: wallet not verified", service.ErrUnauthorized))
		return
	}

	hash, err := h.submit.Submit(c.Request.Context(), userID, kind, addr, amount)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":         "Transaction submitted successfully",
		"transactionHash": hash,
	})
}
