package services

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/greentrace/ledger/internal/clock"
	"github.com/greentrace/ledger/internal/ledger"
	"github.com/greentrace/ledger/internal/metrics"
	"github.com/greentrace/ledger/internal/models"
	"github.com/greentrace/ledger/internal/safemath"
)

// Announcer publishes committed ledger events to interested peers.
type Announcer interface {
	Announce(event models.LedgerEvent)
}

// NoopAnnouncer drops all events. Used when p2p is disabled and in tests.
type NoopAnnouncer struct{}

// Announce implements Announcer.
func (NoopAnnouncer) Announce(models.LedgerEvent) {}

// LedgerService runs ledger operations for authenticated callers. It owns
// the transaction boundary and the clock: every operation executes inside a
// single store transaction stamped with the current tick, so a failure rolls
// back all of its writes including rate limiter bookkeeping.
type LedgerService struct {
	store     ledger.Store
	ledger    *ledger.Ledger
	clock     clock.Clock
	announcer Announcer
}

// NewLedgerService creates a new ledger service.
func NewLedgerService(store ledger.Store, l *ledger.Ledger, c clock.Clock, announcer Announcer) *LedgerService {
	if announcer == nil {
		announcer = NoopAnnouncer{}
	}
	return &LedgerService{store: store, ledger: l, clock: c, announcer: announcer}
}

// Ledger exposes the underlying rule set, mainly for parameter queries.
func (s *LedgerService) Ledger() *ledger.Ledger {
	return s.ledger
}

// RegisterParticipantRequest represents a participant registration request
type RegisterParticipantRequest struct {
	Name          string `json:"name"`
	Certification string `json:"certification"`
}

// RegisterProductRequest represents a product registration request
type RegisterProductRequest struct {
	Name                string `json:"name"`
	ManufacturingCarbon uint64 `json:"manufacturing_carbon"`
	QRKey               string `json:"qr_key"`
	Evidence            string `json:"evidence"`
}

// SubmitLogisticsRequest represents a logistics carbon submission
type SubmitLogisticsRequest struct {
	Amount   uint64 `json:"amount"`
	Evidence string `json:"evidence"`
}

// SetBudgetRequest represents a consumer budget update
type SetBudgetRequest struct {
	MonthlyBudget uint64 `json:"monthly_budget"`
}

// RecordPurchaseRequest represents a purchase record request
type RecordPurchaseRequest struct {
	ProductID uint64 `json:"product_id"`
}

// PurchaseOffsetsRequest represents a carbon credit purchase
type PurchaseOffsetsRequest struct {
	Amount uint64 `json:"amount"`
}

// DisclosureRequest represents a retailer disclosure update
type DisclosureRequest struct {
	TotalProducts uint64 `json:"total_products"`
	AverageCarbon uint64 `json:"average_carbon"`
}

// VerifyParticipantRequest represents an authority verification decision
type VerifyParticipantRequest struct {
	Identity string `json:"identity" binding:"required"`
	Kind     string `json:"kind" binding:"required"`
}

// DecideSubmissionRequest represents an authority submission decision
type DecideSubmissionRequest struct {
	Submitter string `json:"submitter" binding:"required"`
	ProductID uint64 `json:"product_id"`
	Kind      string `json:"kind" binding:"required"`
	Approved  bool   `json:"approved"`
}

// OffsetReceipt is the result of a successful offset purchase.
type OffsetReceipt struct {
	Amount uint64 `json:"amount"`
	Cost   uint64 `json:"cost"`
}

// LedgerStatus summarizes global ledger state.
type LedgerStatus struct {
	Paused             bool   `json:"paused"`
	Height             uint64 `json:"height"`
	CreditPrice        uint64 `json:"credit_price"`
	TotalCarbonCredits uint64 `json:"total_carbon_credits"`
}

// observe records the operation outcome in metrics and logs failures.
func (s *LedgerService) observe(op string, err error) {
	status := "ok"
	switch {
	case err == nil:
	case errors.Is(err, ledger.ErrRateLimitExceeded):
		status = "rate_limited"
		metrics.RateLimitedTotal.Inc()
	default:
		status = "error"
	}
	metrics.OperationsTotal.WithLabelValues(op, status).Inc()
	if err != nil {
		log.WithField("operation", op).Debugf("ledger operation failed: %v", err)
	}
}

func (s *LedgerService) announce(event models.LedgerEvent) {
	metrics.EventsAnnouncedTotal.WithLabelValues(event.Type).Inc()
	s.announcer.Announce(event)
}

// RegisterParticipant registers the caller in the given role.
func (s *LedgerService) RegisterParticipant(ctx context.Context, caller models.Identity, kind models.ParticipantKind, req RegisterParticipantRequest) error {
	now := s.clock.Now()
	err := s.store.WithinTx(ctx, func(tx ledger.Tx) error {
		return s.ledger.RegisterParticipant(tx, caller, now, kind, req.Name, req.Certification)
	})
	s.observe("register_participant", err)
	return err
}

// VerifyParticipant marks a participant verified. Authority only.
func (s *LedgerService) VerifyParticipant(ctx context.Context, caller models.Identity, req VerifyParticipantRequest) error {
	kind, err := ledger.ParseParticipantKind(req.Kind)
	if err != nil {
		s.observe("verify_participant", err)
		return err
	}
	err = s.store.WithinTx(ctx, func(tx ledger.Tx) error {
		return s.ledger.VerifyParticipant(tx, caller, kind, models.Identity(req.Identity))
	})
	s.observe("verify_participant", err)
	return err
}

// RegisterProduct registers a product and returns its id.
func (s *LedgerService) RegisterProduct(ctx context.Context, caller models.Identity, req RegisterProductRequest) (uint64, error) {
	qr, err := models.ParseQRKey(req.QRKey)
	if err != nil {
		err = fmt.Errorf("%w: %v", ledger.ErrInvalidInput, err)
		s.observe("register_product", err)
		return 0, err
	}

	now := s.clock.Now()
	var id uint64
	err = s.store.WithinTx(ctx, func(tx ledger.Tx) error {
		var err error
		id, err = s.ledger.RegisterProduct(tx, caller, now, req.Name, req.ManufacturingCarbon, qr, req.Evidence)
		return err
	})
	s.observe("register_product", err)
	if err != nil {
		return 0, err
	}

	metrics.ProductsRegisteredTotal.Inc()
	log.WithFields(log.Fields{"product_id": id, "manufacturer": caller}).Info("product registered")
	return id, nil
}

// SubmitLogistics files a logistics carbon claim for a product.
func (s *LedgerService) SubmitLogistics(ctx context.Context, caller models.Identity, productID uint64, req SubmitLogisticsRequest) error {
	now := s.clock.Now()
	err := s.store.WithinTx(ctx, func(tx ledger.Tx) error {
		return s.ledger.SubmitLogistics(tx, caller, now, productID, req.Amount, req.Evidence)
	})
	s.observe("submit_logistics", err)
	return err
}

// DecideSubmission records the authority verdict on a carbon submission and
// announces the resulting product change to peers.
func (s *LedgerService) DecideSubmission(ctx context.Context, caller models.Identity, req DecideSubmissionRequest) error {
	kind, err := ledger.ParseSubmissionKind(req.Kind)
	if err != nil {
		s.observe("decide_submission", err)
		return err
	}

	now := s.clock.Now()
	var total uint64
	err = s.store.WithinTx(ctx, func(tx ledger.Tx) error {
		if err := s.ledger.DecideSubmission(tx, caller, models.Identity(req.Submitter), req.ProductID, kind, req.Approved); err != nil {
			return err
		}
		if req.Approved && kind == models.SubmissionLogistics {
			product, err := tx.Products().Get(req.ProductID)
			if err != nil {
				return err
			}
			if product != nil {
				total = product.TotalCarbon
			}
		}
		return nil
	})
	s.observe("decide_submission", err)
	if err != nil || !req.Approved {
		return err
	}

	switch kind {
	case models.SubmissionManufacturing:
		s.announce(models.LedgerEvent{
			Type:      models.EventProductVerified,
			ProductID: req.ProductID,
			Height:    now,
		})
	case models.SubmissionLogistics:
		s.announce(models.LedgerEvent{
			Type:      models.EventCarbonTotalUpdated,
			ProductID: req.ProductID,
			Amount:    total,
			Height:    now,
		})
	}
	return nil
}

// SetBudget overwrites the caller's monthly carbon budget.
func (s *LedgerService) SetBudget(ctx context.Context, caller models.Identity, req SetBudgetRequest) error {
	now := s.clock.Now()
	err := s.store.WithinTx(ctx, func(tx ledger.Tx) error {
		return s.ledger.SetBudget(tx, caller, now, req.MonthlyBudget)
	})
	s.observe("set_budget", err)
	return err
}

// RecordPurchase charges a product's carbon against the caller's budget and
// returns the charged amount.
func (s *LedgerService) RecordPurchase(ctx context.Context, caller models.Identity, req RecordPurchaseRequest) (uint64, error) {
	now := s.clock.Now()
	var charged uint64
	err := s.store.WithinTx(ctx, func(tx ledger.Tx) error {
		var err error
		charged, err = s.ledger.RecordPurchase(tx, caller, now, req.ProductID)
		return err
	})
	s.observe("record_purchase", err)
	if err != nil {
		return 0, err
	}
	return charged, nil
}

// PurchaseOffsets mints carbon credits against the caller's payment balance.
func (s *LedgerService) PurchaseOffsets(ctx context.Context, caller models.Identity, req PurchaseOffsetsRequest) (*OffsetReceipt, error) {
	now := s.clock.Now()
	var minted uint64
	err := s.store.WithinTx(ctx, func(tx ledger.Tx) error {
		var err error
		minted, err = s.ledger.PurchaseOffsets(tx, caller, now, req.Amount)
		return err
	})
	s.observe("purchase_offsets", err)
	if err != nil {
		return nil, err
	}

	cost, err := safemath.Mul(minted, s.ledger.CreditPrice())
	if err != nil {
		return nil, err
	}

	metrics.CreditsIssuedTotal.Add(float64(minted))
	s.announce(models.LedgerEvent{
		Type:    models.EventCreditsIssued,
		Account: caller,
		Amount:  minted,
		Height:  now,
	})
	return &OffsetReceipt{Amount: minted, Cost: cost}, nil
}

// UpdateDisclosure overwrites the caller's retailer disclosure.
func (s *LedgerService) UpdateDisclosure(ctx context.Context, caller models.Identity, req DisclosureRequest) error {
	now := s.clock.Now()
	err := s.store.WithinTx(ctx, func(tx ledger.Tx) error {
		return s.ledger.UpdateRetailerDisclosure(tx, caller, now, req.TotalProducts, req.AverageCarbon)
	})
	s.observe("update_disclosure", err)
	return err
}

// Pause stops participant-initiated mutations. Authority only.
func (s *LedgerService) Pause(ctx context.Context, caller models.Identity) error {
	err := s.store.WithinTx(ctx, func(tx ledger.Tx) error {
		return s.ledger.Pause(tx, caller)
	})
	s.observe("pause", err)
	if err == nil {
		log.WithField("authority", caller).Warn("ledger paused")
	}
	return err
}

// Unpause re-enables participant-initiated mutations. Authority only.
func (s *LedgerService) Unpause(ctx context.Context, caller models.Identity) error {
	err := s.store.WithinTx(ctx, func(tx ledger.Tx) error {
		return s.ledger.Unpause(tx, caller)
	})
	s.observe("unpause", err)
	if err == nil {
		log.WithField("authority", caller).Warn("ledger unpaused")
	}
	return err
}

// Product returns a product by id, or nil when absent.
func (s *LedgerService) Product(ctx context.Context, id uint64) (*models.Product, error) {
	var product *models.Product
	err := s.store.WithinTx(ctx, func(tx ledger.Tx) error {
		var err error
		product, err = s.ledger.Product(tx, id)
		return err
	})
	return product, err
}

// ProductByQR resolves a hex label key to its product, or nil when unbound.
func (s *LedgerService) ProductByQR(ctx context.Context, key string) (*models.Product, error) {
	qr, err := models.ParseQRKey(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ledger.ErrInvalidInput, err)
	}
	var product *models.Product
	err = s.store.WithinTx(ctx, func(tx ledger.Tx) error {
		var err error
		product, err = s.ledger.ProductByQR(tx, qr)
		return err
	})
	return product, err
}

// TokenOwner returns the provenance token of a product, or nil when absent.
func (s *LedgerService) TokenOwner(ctx context.Context, productID uint64) (*models.ProvenanceToken, error) {
	var token *models.ProvenanceToken
	err := s.store.WithinTx(ctx, func(tx ledger.Tx) error {
		var err error
		token, err = s.ledger.TokenOwner(tx, productID)
		return err
	})
	return token, err
}

// Participant returns a participant record, or nil when absent.
func (s *LedgerService) Participant(ctx context.Context, kind models.ParticipantKind, id models.Identity) (*models.Participant, error) {
	var p *models.Participant
	err := s.store.WithinTx(ctx, func(tx ledger.Tx) error {
		var err error
		p, err = s.ledger.Participant(tx, kind, id)
		return err
	})
	return p, err
}

// IsVerified reports whether an identity is a verified participant of a kind.
func (s *LedgerService) IsVerified(ctx context.Context, kind models.ParticipantKind, id models.Identity) (bool, error) {
	var verified bool
	err := s.store.WithinTx(ctx, func(tx ledger.Tx) error {
		var err error
		verified, err = s.ledger.IsVerified(tx, kind, id)
		return err
	})
	return verified, err
}

// Submission returns a carbon submission, or nil when absent.
func (s *LedgerService) Submission(ctx context.Context, submitter models.Identity, productID uint64, kind models.SubmissionKind) (*models.CarbonSubmission, error) {
	var sub *models.CarbonSubmission
	err := s.store.WithinTx(ctx, func(tx ledger.Tx) error {
		var err error
		sub, err = s.ledger.Submission(tx, submitter, productID, kind)
		return err
	})
	return sub, err
}

// Budget returns a consumer budget, or nil when absent.
func (s *LedgerService) Budget(ctx context.Context, id models.Identity) (*models.ConsumerBudget, error) {
	var budget *models.ConsumerBudget
	err := s.store.WithinTx(ctx, func(tx ledger.Tx) error {
		var err error
		budget, err = s.ledger.ConsumerBudget(tx, id)
		return err
	})
	return budget, err
}

// CheckBudget reports whether an identity's usage fits its allowance.
func (s *LedgerService) CheckBudget(ctx context.Context, id models.Identity) (bool, error) {
	var within bool
	err := s.store.WithinTx(ctx, func(tx ledger.Tx) error {
		var err error
		within, err = s.ledger.CheckCarbonBudget(tx, id)
		return err
	})
	return within, err
}

// Disclosure returns a retailer disclosure, or nil when absent.
func (s *LedgerService) Disclosure(ctx context.Context, id models.Identity) (*models.RetailerDisclosure, error) {
	var d *models.RetailerDisclosure
	err := s.store.WithinTx(ctx, func(tx ledger.Tx) error {
		var err error
		d, err = s.ledger.RetailerDisclosure(tx, id)
		return err
	})
	return d, err
}

// CreditBalance returns an identity's carbon credit balance.
func (s *LedgerService) CreditBalance(ctx context.Context, id models.Identity) (uint64, error) {
	var balance uint64
	err := s.store.WithinTx(ctx, func(tx ledger.Tx) error {
		var err error
		balance, err = s.ledger.CreditBalance(tx, id)
		return err
	})
	return balance, err
}

// LastOperationBlock returns the tick of an identity's last admitted
// operation.
func (s *LedgerService) LastOperationBlock(ctx context.Context, id models.Identity) (uint64, error) {
	var block uint64
	err := s.store.WithinTx(ctx, func(tx ledger.Tx) error {
		var err error
		block, err = s.ledger.LastOperationBlock(tx, id)
		return err
	})
	return block, err
}

// Status summarizes global ledger state.
func (s *LedgerService) Status(ctx context.Context) (*LedgerStatus, error) {
	status := &LedgerStatus{
		Height:      s.clock.Now(),
		CreditPrice: s.ledger.CreditPrice(),
	}
	err := s.store.WithinTx(ctx, func(tx ledger.Tx) error {
		paused, err := s.ledger.Paused(tx)
		if err != nil {
			return err
		}
		status.Paused = paused
		status.TotalCarbonCredits, err = s.ledger.TotalCarbonCredits(tx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return status, nil
}
