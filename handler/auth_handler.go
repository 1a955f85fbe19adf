package handler

import (
	"net/http"

	"github.com/defi_custody/service"
	"github.com/gin-gonic/gin"
)

type AuthHandler struct {
	svc *service.AuthService
}

func NewAuthHandler(svc *service.AuthService) *AuthHandler {
	return &AuthHandler{svc: svc}
}

type walletInput struct {
	Address string `json:"address" binding:"required"`
	Alias   string `json:"alias"`
}

type registerRequest struct {
	Username string        `json:"username" binding:"required,max=20"`
	Password string        `json:"password" binding:"required,min=8,max=25"`
	Wallets  []walletInput `json:"wallets" binding:"required,min=1"`
}

// POST /api/v1/auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	wallets := make([]service.WalletInput, 0, len(req.Wallets))
	for _, w := range req.Wallets {
		addr, ok := normalizeAddress(w.Address)
		if !ok {
			badRequest(c, "invalid wallet address")
			return
		}
		wallets = append(wallets, service.WalletInput{Address: addr, Alias: w.Alias})
	}

	user, token, err := h.svc.Register(c.Request.Context(), req.Username, req.Password, wallets)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user, "token": token})
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// POST /api/v1/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	user, token, err := h.svc.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user, "token": token})
}

// GET /api/v1/auth/auto-login
func (h *AuthHandler) AutoLogin(c *gin.Context) {
	user, err := h.svc.AutoSignIn(c.Request.Context(), c.GetString("userID"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}
