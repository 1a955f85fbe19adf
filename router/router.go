package router

import (
	"net/http"
	"strings"

	"github.com/defi_custody/handler"
	"github.com/defi_custody/service"
	"github.com/gin-gonic/gin"
)

// SetupRouter wires all routes. Everything except register/login sits
// behind bearer-token authentication.
func SetupRouter(auth *handler.AuthHandler, wallet *handler.WalletHandler,
	pool *handler.PoolHandler, tx *handler.TransactionHandler, authSvc *service.AuthService) *gin.Engine {
	r := gin.Default()

	api := r.Group("/api/v1")
	api.POST("/auth/register", auth.Register)
	api.POST("/auth/login", auth.Login)

	authed := api.Group("", AuthMiddleware(authSvc))
	{
		authed.GET("/auth/auto-login", auth.AutoLogin)

		w := authed.Group("/wallets")
		{
			w.GET("", wallet.List)
			w.POST("", wallet.Create)
			w.POST("/verify", wallet.Verify)
			w.GET("/nonce/:address", wallet.GetNonce)
			w.GET("/:address", wallet.Get)
			w.PATCH("/:address", wallet.Update)
			w.DELETE("/:address", wallet.Delete)
		}

		p := authed.Group("/pool")
		{
			p.GET("/markets", pool.Markets)
			p.POST("/deposit", pool.Deposit)
			p.POST("/withdraw", pool.Withdraw)
		}

		t := authed.Group("/transactions")
		{
			t.GET("", tx.List)
			t.GET("/:id", tx.Get)
		}
	}

	return r
}

// AuthMiddleware validates the bearer token and stores its subject as
// the caller's user ID.
func AuthMiddleware(authSvc *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		userID, err := authSvc.ParseToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set("userID", userID)
		c.Next()
	}
}
