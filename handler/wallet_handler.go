package handler

import (
	"net/http"

	"github.com/defi_custody/service"
	"github.com/gin-gonic/gin"
)

type WalletHandler struct {
	svc *service.WalletService
}

func NewWalletHandler(svc *service.WalletService) *WalletHandler {
	return &WalletHandler{svc: svc}
}

// GET /api/v1/wallets
func (h *WalletHandler) List(c *gin.Context) {
	page, size := pagination(c)
	list, total, err := h.svc.List(c.Request.Context(), c.GetString("userID"), page, size)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"total": total, "wallets": list})
}

type createWalletRequest struct {
	Address string `json:"address" binding:"required"`
	Alias   string `json:"alias"`
}

// POST /api/v1/wallets
func (h *WalletHandler) Create(c *gin.Context) {
	var req createWalletRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	addr, ok := normalizeAddress(req.Address)
	if !ok {
		badRequest(c, "invalid wallet address")
		return
	}
	w, err := h.svc.Create(c.Request.Context(), c.GetString("userID"), addr, req.Alias)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, w)
}

// GET /api/v1/wallets/:address
func (h *WalletHandler) Get(c *gin.Context) {
	addr, ok := normalizeAddress(c.Param("address"))
	if !ok {
		badRequest(c, "invalid wallet address")
		return
	}
	w, err := h.svc.Get(c.Request.Context(), c.GetString("userID"), addr)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, w)
}

type updateWalletRequest struct {
	Alias string `json:"alias"`
}

// PATCH /api/v1/wallets/:address
func (h *WalletHandler) Update(c *gin.Context) {
	addr, ok := normalizeAddress(c.Param("address"))
	if !ok {
		badRequest(c, "invalid wallet address")
		return
	}
	var req updateWalletRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	w, err := h.svc.UpdateAlias(c.Request.Context(), c.GetString("userID"), addr, req.Alias)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, w)
}

// DELETE /api/v1/wallets/:address
func (h *WalletHandler) Delete(c *gin.Context) {
	addr, ok := normalizeAddress(c.Param("address"))
	if !ok {
		badRequest(c, "invalid wallet address")
		return
	}
	if err := h.svc.Delete(c.Request.Context(), c.GetString("userID"), addr); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "wallet deleted"})
}

// GET /api/v1/wallets/nonce/:address
func (h *WalletHandler) GetNonce(c *gin.Context) {
	addr, ok := normalizeAddress(c.Param("address"))
	if !ok {
		badRequest(c, "invalid wallet address")
		return
	}
	address, nonce, err := h.svc.GenerateNonce(c.Request.Context(), c.GetString("userID"), addr)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"address": address, "nonce": nonce})
}

type verifyWalletRequest struct {
	Address   string `json:"address" binding:"required"`
	Nonce     string `json:"nonce" binding:"required"`
	Signature string `json:"signature" binding:"required"`
}

// POST /api/v1/wallets/verify
func (h *WalletHandler) Verify(c *gin.Context) {
	var req verifyWalletRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	addr, ok := normalizeAddress(req.Address)
	if !ok {
		badRequest(c, "invalid wallet address")
		return
	}
	w, err := h.svc.Verify(c.Request.Context(), addr, req.Nonce, req.Signature)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, w)
}
