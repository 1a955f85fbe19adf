package handler

import (
	"errors"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/defi_custody/service"
	"github.com/gin-gonic/gin"
)

var (
	addressRx = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
	amountRx  = regexp.MustCompile(`^[0-9]+$`)
)

// normalizeAddress enforces the 0x + 40 hex shape and lowercases before
// anything reaches the core.
func normalizeAddress(addr string) (string, bool) {
	if !addressRx.MatchString(addr) {
		return "", false
	}
	return strings.ToLower(addr), true
}

// validAmount accepts positive base-unit decimal strings only. Amounts
// are never parsed into floats anywhere in the system.
func validAmount(amount string) bool {
	return amountRx.MatchString(amount) && strings.Trim(amount, "0") != ""
}

func pagination(c *gin.Context) (page, size int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ = strconv.Atoi(c.DefaultQuery("limit", "10"))
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 100 {
		size = 10
	}
	return page, size
}

// writeError maps the service error taxonomy onto HTTP statuses. All of
// these are recoverable request-level failures; none crash the process.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrUnauthorized), errors.Is(err, service.ErrMalformedSignature):
		status = http.StatusUnauthorized
	case errors.Is(err, service.ErrAlreadyExists), errors.Is(err, service.ErrLastWallet):
		status = http.StatusBadRequest
	case errors.Is(err, service.ErrUpstreamChain):
		status = http.StatusBadGateway
	case errors.Is(err, service.ErrIndeterminate):
		status = http.StatusGatewayTimeout
	case errors.Is(err, service.ErrPostSubmitPersist):
		status = http.StatusInternalServerError
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}
