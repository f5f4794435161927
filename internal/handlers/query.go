package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/greentrace/ledger/internal/ledger"
	"github.com/greentrace/ledger/internal/models"
	"github.com/greentrace/ledger/internal/services"
)

// QueryHandler handles read-only ledger requests
type QueryHandler struct {
	ledgerService  *services.LedgerService
	accountService *services.AccountService
}

// NewQueryHandler creates a new query handler
func NewQueryHandler(ledgerService *services.LedgerService, accountService *services.AccountService) *QueryHandler {
	return &QueryHandler{ledgerService: ledgerService, accountService: accountService}
}

// GetProduct returns a product by id
func (h *QueryHandler) GetProduct(c *gin.Context) {
	id, ok := productIDParam(c)
	if !ok {
		return
	}

	product, err := h.ledgerService.Product(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	if product == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "product not found"})
		return
	}
	c.JSON(http.StatusOK, product)
}

// GetProductByQR resolves a hex label key to its product
func (h *QueryHandler) GetProductByQR(c *gin.Context) {
	product, err := h.ledgerService.ProductByQR(c.Request.Context(), c.Param("key"))
	if err != nil {
		respondError(c, err)
		return
	}
	if product == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no product bound to qr key"})
		return
	}
	c.JSON(http.StatusOK, product)
}

// GetToken returns the provenance token of a product
func (h *QueryHandler) GetToken(c *gin.Context) {
	id, ok := productIDParam(c)
	if !ok {
		return
	}

	token, err := h.ledgerService.TokenOwner(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	if token == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "provenance token not found"})
		return
	}
	c.JSON(http.StatusOK, token)
}

func participantKindParam(c *gin.Context) (models.ParticipantKind, bool) {
	kind, err := ledger.ParseParticipantKind(c.Param("kind"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return "", false
	}
	return kind, true
}

// GetParticipant returns a participant registration record
func (h *QueryHandler) GetParticipant(c *gin.Context) {
	kind, ok := participantKindParam(c)
	if !ok {
		return
	}

	p, err := h.ledgerService.Participant(c.Request.Context(), kind, models.Identity(c.Param("id")))
	if err != nil {
		respondError(c, err)
		return
	}
	if p == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "participant not found"})
		return
	}
	c.JSON(http.StatusOK, p)
}

// GetParticipantVerified reports whether an identity is a verified
// participant of a kind. Unregistered identities read as unverified.
func (h *QueryHandler) GetParticipantVerified(c *gin.Context) {
	kind, ok := participantKindParam(c)
	if !ok {
		return
	}

	verified, err := h.ledgerService.IsVerified(c.Request.Context(), kind, models.Identity(c.Param("id")))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"identity": c.Param("id"),
		"kind":     kind,
		"verified": verified,
	})
}

// GetSubmission returns a carbon submission looked up by submitter,
// product_id and kind query parameters
func (h *QueryHandler) GetSubmission(c *gin.Context) {
	submitter := c.Query("submitter")
	if submitter == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing submitter"})
		return
	}
	productID, err := strconv.ParseUint(c.Query("product_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid product id"})
		return
	}
	kind, err := ledger.ParseSubmissionKind(c.Query("kind"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sub, err := h.ledgerService.Submission(c.Request.Context(), models.Identity(submitter), productID, kind)
	if err != nil {
		respondError(c, err)
		return
	}
	if sub == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "submission not found"})
		return
	}
	c.JSON(http.StatusOK, sub)
}

// GetBudget returns a consumer budget
func (h *QueryHandler) GetBudget(c *gin.Context) {
	budget, err := h.ledgerService.Budget(c.Request.Context(), models.Identity(c.Param("id")))
	if err != nil {
		respondError(c, err)
		return
	}
	if budget == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "budget not found"})
		return
	}
	c.JSON(http.StatusOK, budget)
}

// CheckBudget reports whether an identity's usage fits its allowance
func (h *QueryHandler) CheckBudget(c *gin.Context) {
	within, err := h.ledgerService.CheckBudget(c.Request.Context(), models.Identity(c.Param("id")))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"identity":      c.Param("id"),
		"within_budget": within,
	})
}

// GetDisclosure returns a retailer disclosure
func (h *QueryHandler) GetDisclosure(c *gin.Context) {
	d, err := h.ledgerService.Disclosure(c.Request.Context(), models.Identity(c.Param("id")))
	if err != nil {
		respondError(c, err)
		return
	}
	if d == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "disclosure not found"})
		return
	}
	c.JSON(http.StatusOK, d)
}

// GetCreditPrice returns the payment cost of one carbon credit
func (h *QueryHandler) GetCreditPrice(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"credit_price": h.ledgerService.Ledger().CreditPrice()})
}

// GetTotalCredits returns the global number of carbon credits ever issued
func (h *QueryHandler) GetTotalCredits(c *gin.Context) {
	status, err := h.ledgerService.Status(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"total_carbon_credits": status.TotalCarbonCredits})
}

// GetCreditBalance returns an identity's carbon credit balance
func (h *QueryHandler) GetCreditBalance(c *gin.Context) {
	balance, err := h.ledgerService.CreditBalance(c.Request.Context(), models.Identity(c.Param("id")))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"identity": c.Param("id"),
		"balance":  balance,
	})
}

// GetPaymentBalance returns an identity's base-asset payment balance
func (h *QueryHandler) GetPaymentBalance(c *gin.Context) {
	balance, err := h.accountService.PaymentBalance(c.Request.Context(), models.Identity(c.Param("id")))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"identity": c.Param("id"),
		"balance":  balance,
	})
}

// GetLastOperationBlock returns the tick of an identity's last admitted
// operation
func (h *QueryHandler) GetLastOperationBlock(c *gin.Context) {
	block, err := h.ledgerService.LastOperationBlock(c.Request.Context(), models.Identity(c.Param("id")))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"identity":             c.Param("id"),
		"last_operation_block": block,
	})
}

// GetStatus returns global ledger status
func (h *QueryHandler) GetStatus(c *gin.Context) {
	status, err := h.ledgerService.Status(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}
