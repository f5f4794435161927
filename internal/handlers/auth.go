package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/greentrace/ledger/internal/middleware"
	"github.com/greentrace/ledger/internal/models"
	"github.com/greentrace/ledger/internal/services"
)

// AuthHandler handles account requests
type AuthHandler struct {
	accountService *services.AccountService
	jwtConfig      middleware.JWTConfig
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(accountService *services.AccountService, jwtSecret string, expiration time.Duration) *AuthHandler {
	if expiration == 0 {
		expiration = 24 * time.Hour
	}
	return &AuthHandler{
		accountService: accountService,
		jwtConfig: middleware.JWTConfig{
			Secret:     jwtSecret,
			Expiration: expiration,
		},
	}
}

// AuthResponse represents an authentication response. APIKey is only set on
// registration; it cannot be recovered later.
type AuthResponse struct {
	AccountID string `json:"account_id"`
	Email     string `json:"email"`
	Token     string `json:"token"`
	APIKey    string `json:"api_key,omitempty"`
}

// Register handles account registration
func (h *AuthHandler) Register(c *gin.Context) {
	var req services.RegisterAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	account, apiKey, err := h.accountService.Register(c.Request.Context(), req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	token, err := middleware.GenerateToken(account.ID.String(), account.Email, h.jwtConfig)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate token"})
		return
	}

	c.JSON(http.StatusCreated, AuthResponse{
		AccountID: account.ID.String(),
		Email:     account.Email,
		Token:     token,
		APIKey:    apiKey,
	})
}

// Login handles account login
func (h *AuthHandler) Login(c *gin.Context) {
	var req services.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	account, err := h.accountService.Login(c.Request.Context(), req)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	token, err := middleware.GenerateToken(account.ID.String(), account.Email, h.jwtConfig)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate token"})
		return
	}

	c.JSON(http.StatusOK, AuthResponse{
		AccountID: account.ID.String(),
		Email:     account.Email,
		Token:     token,
	})
}

// Profile handles getting the account profile with its payment balance
func (h *AuthHandler) Profile(c *gin.Context) {
	identity := middleware.GetIdentity(c)
	accountID, err := uuid.Parse(identity)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid account id"})
		return
	}

	account, err := h.accountService.Account(c.Request.Context(), accountID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	balance, err := h.accountService.PaymentBalance(c.Request.Context(), account.LedgerIdentity())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"account":         account,
		"payment_balance": balance,
	})
}

// Deposit handles funding the caller's payment balance
func (h *AuthHandler) Deposit(c *gin.Context) {
	var req services.DepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	identity := models.Identity(middleware.GetIdentity(c))
	balance, err := h.accountService.Deposit(c.Request.Context(), identity, req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"payment_balance": balance})
}
