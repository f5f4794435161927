package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/greentrace/ledger/internal/ledger"
	"github.com/greentrace/ledger/internal/middleware"
	"github.com/greentrace/ledger/internal/models"
	"github.com/greentrace/ledger/internal/services"
)

// LedgerHandler handles ledger mutation requests
type LedgerHandler struct {
	ledgerService *services.LedgerService
}

// NewLedgerHandler creates a new ledger handler
func NewLedgerHandler(ledgerService *services.LedgerService) *LedgerHandler {
	return &LedgerHandler{ledgerService: ledgerService}
}

// statusForError maps ledger failure conditions onto HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, ledger.ErrNotAuthorized):
		return http.StatusForbidden
	case errors.Is(err, ledger.ErrNotFound),
		errors.Is(err, ledger.ErrProductNotRegistered):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, ledger.ErrCarbonDataNotVerified):
		return http.StatusPreconditionFailed
	case errors.Is(err, ledger.ErrPaused):
		return http.StatusServiceUnavailable
	case errors.Is(err, ledger.ErrRateLimitExceeded):
		return http.StatusTooManyRequests
	case errors.Is(err, ledger.ErrInsufficientBalance):
		return http.StatusPaymentRequired
	case errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, ledger.ErrInvalidInput),
		errors.Is(err, ledger.ErrInvalidParticipant),
		errors.Is(err, ledger.ErrOverflow),
		errors.Is(err, ledger.ErrUnderflow):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	c.JSON(statusForError(err), gin.H{"error": err.Error()})
}

func callerIdentity(c *gin.Context) models.Identity {
	return models.Identity(middleware.GetIdentity(c))
}

func productIDParam(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid product id"})
		return 0, false
	}
	return id, true
}

// RegisterManufacturer handles manufacturer registration
func (h *LedgerHandler) RegisterManufacturer(c *gin.Context) {
	h.registerParticipant(c, models.KindManufacturer)
}

// RegisterLogisticsProvider handles logistics provider registration
func (h *LedgerHandler) RegisterLogisticsProvider(c *gin.Context) {
	h.registerParticipant(c, models.KindLogisticsProvider)
}

func (h *LedgerHandler) registerParticipant(c *gin.Context, kind models.ParticipantKind) {
	var req services.RegisterParticipantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	caller := callerIdentity(c)
	if err := h.ledgerService.RegisterParticipant(c.Request.Context(), caller, kind, req); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"identity": caller,
		"kind":     kind,
		"verified": false,
	})
}

// RegisterProduct handles product registration
func (h *LedgerHandler) RegisterProduct(c *gin.Context) {
	var req services.RegisterProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id, err := h.ledgerService.RegisterProduct(c.Request.Context(), callerIdentity(c), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"product_id": id})
}

// SubmitLogistics handles a logistics carbon submission for a product
func (h *LedgerHandler) SubmitLogistics(c *gin.Context) {
	productID, ok := productIDParam(c)
	if !ok {
		return
	}

	var req services.SubmitLogisticsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.ledgerService.SubmitLogistics(c.Request.Context(), callerIdentity(c), productID, req); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"product_id": productID,
		"amount":     req.Amount,
		"verified":   false,
	})
}

// SetBudget handles a consumer budget update
func (h *LedgerHandler) SetBudget(c *gin.Context) {
	var req services.SetBudgetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.ledgerService.SetBudget(c.Request.Context(), callerIdentity(c), req); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"monthly_budget": req.MonthlyBudget,
		"current_usage":  0,
	})
}

// RecordPurchase handles recording a product purchase against the caller's
// budget
func (h *LedgerHandler) RecordPurchase(c *gin.Context) {
	var req services.RecordPurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	charged, err := h.ledgerService.RecordPurchase(c.Request.Context(), callerIdentity(c), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"product_id":     req.ProductID,
		"charged_carbon": charged,
	})
}

// PurchaseOffsets handles a carbon credit purchase
func (h *LedgerHandler) PurchaseOffsets(c *gin.Context) {
	var req services.PurchaseOffsetsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	receipt, err := h.ledgerService.PurchaseOffsets(c.Request.Context(), callerIdentity(c), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, receipt)
}

// UpdateDisclosure handles a retailer disclosure update
func (h *LedgerHandler) UpdateDisclosure(c *gin.Context) {
	var req services.DisclosureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.ledgerService.UpdateDisclosure(c.Request.Context(), callerIdentity(c), req); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"total_products": req.TotalProducts,
		"average_carbon": req.AverageCarbon,
	})
}

// VerifyParticipant handles an authority participant verification
func (h *LedgerHandler) VerifyParticipant(c *gin.Context) {
	var req services.VerifyParticipantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.ledgerService.VerifyParticipant(c.Request.Context(), callerIdentity(c), req); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"identity": req.Identity,
		"kind":     req.Kind,
		"verified": true,
	})
}

// DecideSubmission handles an authority decision on a carbon submission
func (h *LedgerHandler) DecideSubmission(c *gin.Context) {
	var req services.DecideSubmissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.ledgerService.DecideSubmission(c.Request.Context(), callerIdentity(c), req); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"submitter":  req.Submitter,
		"product_id": req.ProductID,
		"kind":       req.Kind,
		"approved":   req.Approved,
	})
}

// Pause handles the authority emergency stop
func (h *LedgerHandler) Pause(c *gin.Context) {
	if err := h.ledgerService.Pause(c.Request.Context(), callerIdentity(c)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"paused": true})
}

// Unpause handles lifting the authority emergency stop
func (h *LedgerHandler) Unpause(c *gin.Context) {
	if err := h.ledgerService.Unpause(c.Request.Context(), callerIdentity(c)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"paused": false})
}
