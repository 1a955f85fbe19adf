package handler

import (
	"net/http"

	"github.com/defi_custody/service"
	"github.com/gin-gonic/gin"
)

type TransactionHandler struct {
	svc *service.SubmitService
}

func NewTransactionHandler(svc *service.SubmitService) *TransactionHandler {
	return &TransactionHandler{svc: svc}
}

// GET /api/v1/transactions
func (h *TransactionHandler) List(c *gin.Context) {
	page, size := pagination(c)
	list, total, err := h.svc.ListTransactions(c.Request.Context(), c.GetString("userID"), page, size)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"total": total, "transactions": list})
}

// GET /api/v1/transactions/:id
func (h *TransactionHandler) Get(c *gin.Context) {
	t, err := h.svc.GetTransaction(c.Request.Context(), c.GetString("userID"), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}
