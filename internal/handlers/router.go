package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/greentrace/ledger/internal/middleware"
	"github.com/greentrace/ledger/internal/services"
)

// RouterConfig carries the dependencies of the API router.
type RouterConfig struct {
	AccountService  *services.AccountService
	LedgerService   *services.LedgerService
	JWTSecret       string
	TokenExpiration time.Duration
}

// NewRouter assembles the full API route table. The same router serves the
// binary and the end-to-end tests.
func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	// CORS middleware
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Account-ID, X-API-Key")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	})

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	// Prometheus metrics
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authHandler := NewAuthHandler(cfg.AccountService, cfg.JWTSecret, cfg.TokenExpiration)
	ledgerHandler := NewLedgerHandler(cfg.LedgerService)
	queryHandler := NewQueryHandler(cfg.LedgerService, cfg.AccountService)

	// Mutations accept either a JWT or an account id plus API key; queries
	// are public. Authority checks live in the ledger rules, not the router.
	authRequired := middleware.Authenticated(cfg.JWTSecret, cfg.AccountService.APIKeyHash)

	api := router.Group("/api/v1")
	{
		auth := api.Group("/auth")
		{
			auth.POST("/register", authHandler.Register)
			auth.POST("/login", authHandler.Login)
			auth.GET("/profile", authRequired, authHandler.Profile)
			auth.POST("/deposit", authRequired, authHandler.Deposit)
		}

		participants := api.Group("/participants")
		{
			participants.POST("/manufacturer", authRequired, ledgerHandler.RegisterManufacturer)
			participants.POST("/logistics", authRequired, ledgerHandler.RegisterLogisticsProvider)
			participants.GET("/:kind/:id", queryHandler.GetParticipant)
			participants.GET("/:kind/:id/verified", queryHandler.GetParticipantVerified)
		}

		products := api.Group("/products")
		{
			products.POST("", authRequired, ledgerHandler.RegisterProduct)
			products.POST("/:id/logistics", authRequired, ledgerHandler.SubmitLogistics)
			products.GET("/:id", queryHandler.GetProduct)
			products.GET("/:id/token", queryHandler.GetToken)
		}

		// Label scans resolve outside /products to keep the :id wildcard free.
		api.GET("/qr/:key", queryHandler.GetProductByQR)

		api.POST("/budget", authRequired, ledgerHandler.SetBudget)
		api.GET("/budgets/:id", queryHandler.GetBudget)
		api.GET("/budgets/:id/check", queryHandler.CheckBudget)

		api.POST("/purchases", authRequired, ledgerHandler.RecordPurchase)
		api.POST("/offsets", authRequired, ledgerHandler.PurchaseOffsets)

		api.POST("/disclosure", authRequired, ledgerHandler.UpdateDisclosure)
		api.GET("/disclosures/:id", queryHandler.GetDisclosure)

		api.GET("/submissions", queryHandler.GetSubmission)

		credits := api.Group("/credits")
		{
			credits.GET("/price", queryHandler.GetCreditPrice)
			credits.GET("/total", queryHandler.GetTotalCredits)
			credits.GET("/balance/:id", queryHandler.GetCreditBalance)
		}

		api.GET("/payments/:id", queryHandler.GetPaymentBalance)

		admin := api.Group("/admin")
		admin.Use(authRequired)
		{
			admin.POST("/verify", ledgerHandler.VerifyParticipant)
			admin.POST("/decisions", ledgerHandler.DecideSubmission)
			admin.POST("/pause", ledgerHandler.Pause)
			admin.POST("/unpause", ledgerHandler.Unpause)
		}

		api.GET("/status", queryHandler.GetStatus)
		api.GET("/ratelimit/:id", queryHandler.GetLastOperationBlock)
	}

	return router
}
