// Package ledger implements the provenance and carbon accounting rules for
// supply-chain participants: registration and verification of manufacturers
// and logistics providers, product registration with unique physical labels,
// authority-reviewed carbon submissions, consumer budgets with rollover, and
// carbon credit issuance against a payment balance.
//
// The package is deliberately host-agnostic. Every operation takes the open
// transaction, the authenticated caller and the current logical tick as
// explicit arguments; persistence, identity and time live with the caller.
package ledger

import (
	"fmt"

	"github.com/greentrace/ledger/internal/models"
	"github.com/greentrace/ledger/internal/safemath"
)

// Protocol constants. Deployments can tune them through Params, tests mostly
// rely on these defaults.
const (
	// DefaultCreditPrice is the payment cost of one carbon credit in base units.
	DefaultCreditPrice = 1_000_000

	// DefaultMonthlyBudget is assigned to consumers who purchase before
	// setting a budget of their own.
	DefaultMonthlyBudget = 10_000

	// DefaultRateLimitWindow is the number of ticks after which a caller's
	// operation allowance renews unconditionally.
	DefaultRateLimitWindow = 10

	// DefaultMaxOpsPerTick is the number of operations a caller may perform
	// within a single tick before the window applies.
	DefaultMaxOpsPerTick = 5

	// DefaultBudgetResetWindow is the number of ticks after which consumer
	// usage rolls over, approximating one month of ten-second ticks in a
	// twelve-hour accounting day.
	DefaultBudgetResetWindow = 4_320
)

// Params fixes the deployment constants of a ledger instance.
type Params struct {
	// Authority is the single identity allowed to verify participants,
	// decide carbon submissions and operate the pause switch. It also
	// receives all credit payments.
	Authority models.Identity

	CreditPrice       uint64
	DefaultBudget     uint64
	RateLimitWindow   uint64
	MaxOpsPerTick     uint64
	BudgetResetWindow uint64
}

// DefaultParams returns the protocol defaults with the given authority.
func DefaultParams(authority models.Identity) Params {
	return Params{
		Authority:         authority,
		CreditPrice:       DefaultCreditPrice,
		DefaultBudget:     DefaultMonthlyBudget,
		RateLimitWindow:   DefaultRateLimitWindow,
		MaxOpsPerTick:     DefaultMaxOpsPerTick,
		BudgetResetWindow: DefaultBudgetResetWindow,
	}
}

// Ledger evaluates operations against state exposed through a Tx. It holds
// no state of its own and is safe for concurrent use as long as the host
// serializes transactions.
type Ledger struct {
	params Params
}

// New creates a ledger with the given parameters.
func New(params Params) *Ledger {
	return &Ledger{params: params}
}

// Params returns the deployment parameters.
func (l *Ledger) Params() Params {
	return l.params
}

// CreditPrice returns the payment cost of one carbon credit in base units.
func (l *Ledger) CreditPrice() uint64 {
	return l.params.CreditPrice
}

// ParseParticipantKind validates a participant kind tag.
func ParseParticipantKind(s string) (models.ParticipantKind, error) {
	switch models.ParticipantKind(s) {
	case models.KindManufacturer:
		return models.KindManufacturer, nil
	case models.KindLogisticsProvider:
		return models.KindLogisticsProvider, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidParticipant, s)
	}
}

// ParseSubmissionKind validates a submission kind tag.
func ParseSubmissionKind(s string) (models.SubmissionKind, error) {
	switch models.SubmissionKind(s) {
	case models.SubmissionManufacturing:
		return models.SubmissionManufacturing, nil
	case models.SubmissionLogistics:
		return models.SubmissionLogistics, nil
	default:
		return "", fmt.Errorf("%w: unknown submission kind %q", ErrInvalidInput, s)
	}
}

// ensureActive fails with ErrPaused while the emergency switch is on.
func (l *Ledger) ensureActive(tx Tx) error {
	paused, err := tx.State().Paused()
	if err != nil {
		return err
	}
	if paused {
		return ErrPaused
	}
	return nil
}

// Pause stops all participant-initiated mutations. Authority only.
func (l *Ledger) Pause(tx Tx, caller models.Identity) error {
	if caller != l.params.Authority {
		return ErrNotAuthorized
	}
	return tx.State().SetPaused(true)
}

// Unpause re-enables participant-initiated mutations. Authority only.
func (l *Ledger) Unpause(tx Tx, caller models.Identity) error {
	if caller != l.params.Authority {
		return ErrNotAuthorized
	}
	return tx.State().SetPaused(false)
}

// Paused reports whether the emergency switch is on.
func (l *Ledger) Paused(tx Tx) (bool, error) {
	return tx.State().Paused()
}

// RegisterParticipant records the caller as an unverified participant of the
// given kind. An identity may register once per kind; holding both roles is
// allowed.
func (l *Ledger) RegisterParticipant(tx Tx, caller models.Identity, now uint64, kind models.ParticipantKind, name, certification string) error {
	if err := l.ensureActive(tx); err != nil {
		return err
	}
	if err := l.admit(tx, caller, now); err != nil {
		return err
	}
	if _, err := ParseParticipantKind(string(kind)); err != nil {
		return err
	}
	if name == "" {
		return fmt.Errorf("%w: participant name must not be empty", ErrInvalidInput)
	}

	existing, err := tx.Participants().Get(kind, caller)
	if err != nil {
		return err
	}
	if existing != nil {
		return fmt.Errorf("%w: %s already registered as %s", ErrAlreadyExists, caller, kind)
	}

	return tx.Participants().Put(&models.Participant{
		Identity:      caller,
		Kind:          kind,
		Name:          name,
		Certification: certification,
		Verified:      false,
		RegisteredAt:  now,
	})
}

// VerifyParticipant marks a registered participant as verified. Authority
// only; verification is not pause-gated so review can continue during an
// emergency stop.
func (l *Ledger) VerifyParticipant(tx Tx, caller models.Identity, kind models.ParticipantKind, id models.Identity) error {
	if caller != l.params.Authority {
		return ErrNotAuthorized
	}
	if _, err := ParseParticipantKind(string(kind)); err != nil {
		return err
	}

	p, err := tx.Participants().Get(kind, id)
	if err != nil {
		return err
	}
	if p == nil {
		return fmt.Errorf("%w: no %s registered for %s", ErrNotFound, kind, id)
	}
	p.Verified = true
	return tx.Participants().Put(p)
}

// Participant returns the registration record, or nil when absent.
func (l *Ledger) Participant(tx Tx, kind models.ParticipantKind, id models.Identity) (*models.Participant, error) {
	return tx.Participants().Get(kind, id)
}

// IsVerified reports whether the identity is a verified participant of the
// given kind. Unregistered identities read as unverified.
func (l *Ledger) IsVerified(tx Tx, kind models.ParticipantKind, id models.Identity) (bool, error) {
	p, err := tx.Participants().Get(kind, id)
	if err != nil {
		return false, err
	}
	return p != nil && p.Verified, nil
}

// RegisterProduct registers a new product for a verified manufacturer. It
// assigns the next product id, stores the product with its manufacturing
// carbon as the running total, files an unverified manufacturing submission
// for authority review and mints the provenance token to the caller. The qr
// key must be unused.
func (l *Ledger) RegisterProduct(tx Tx, caller models.Identity, now uint64, name string, manufacturingCarbon uint64, qr models.QRKey, evidence string) (uint64, error) {
	if err := l.ensureActive(tx); err != nil {
		return 0, err
	}
	if err := l.admit(tx, caller, now); err != nil {
		return 0, err
	}
	if name == "" {
		return 0, fmt.Errorf("%w: product name must not be empty", ErrInvalidInput)
	}
	if manufacturingCarbon == 0 {
		return 0, fmt.Errorf("%w: manufacturing carbon must be positive", ErrInvalidAmount)
	}

	manufacturer, err := tx.Participants().Get(models.KindManufacturer, caller)
	if err != nil {
		return 0, err
	}
	if manufacturer == nil || !manufacturer.Verified {
		return 0, fmt.Errorf("%w: caller is not a verified manufacturer", ErrNotAuthorized)
	}

	taken, err := tx.Products().GetByQR(qr)
	if err != nil {
		return 0, err
	}
	if taken != nil {
		return 0, fmt.Errorf("%w: qr key already bound to product %d", ErrAlreadyExists, taken.ID)
	}

	last, err := tx.Products().LastID()
	if err != nil {
		return 0, err
	}
	id, err := safemath.Add(last, 1)
	if err != nil {
		return 0, err
	}
	if err := tx.Products().SetLastID(id); err != nil {
		return 0, err
	}

	if err := tx.Products().Put(&models.Product{
		ID:                  id,
		Manufacturer:        caller,
		Name:                name,
		ManufacturingCarbon: manufacturingCarbon,
		LogisticsCarbon:     0,
		TotalCarbon:         manufacturingCarbon,
		QR:                  qr,
		Verified:            false,
		CreatedAt:           now,
	}); err != nil {
		return 0, err
	}

	if err := tx.Submissions().Put(&models.CarbonSubmission{
		Submitter:   caller,
		ProductID:   id,
		Kind:        models.SubmissionManufacturing,
		Amount:      manufacturingCarbon,
		Evidence:    evidence,
		SubmittedAt: now,
		Verified:    false,
	}); err != nil {
		return 0, err
	}

	if err := tx.Tokens().Put(&models.ProvenanceToken{
		ProductID: id,
		Owner:     caller,
		MintedAt:  now,
	}); err != nil {
		return 0, err
	}

	return id, nil
}

// SubmitLogistics files a logistics carbon claim against a registered
// product. Caller must be a verified logistics provider. The claim does not
// touch product totals until the authority approves it.
func (l *Ledger) SubmitLogistics(tx Tx, caller models.Identity, now uint64, productID uint64, amount uint64, evidence string) error {
	if err := l.ensureActive(tx); err != nil {
		return err
	}
	if err := l.admit(tx, caller, now); err != nil {
		return err
	}
	if amount == 0 {
		return fmt.Errorf("%w: logistics carbon must be positive", ErrInvalidAmount)
	}

	provider, err := tx.Participants().Get(models.KindLogisticsProvider, caller)
	if err != nil {
		return err
	}
	if provider == nil || !provider.Verified {
		return fmt.Errorf("%w: caller is not a verified logistics provider", ErrNotAuthorized)
	}

	product, err := tx.Products().Get(productID)
	if err != nil {
		return err
	}
	if product == nil {
		return fmt.Errorf("%w: product %d", ErrProductNotRegistered, productID)
	}

	return tx.Submissions().Put(&models.CarbonSubmission{
		Submitter:   caller,
		ProductID:   productID,
		Kind:        models.SubmissionLogistics,
		Amount:      amount,
		Evidence:    evidence,
		SubmittedAt: now,
		Verified:    false,
	})
}

// DecideSubmission records the authority's verdict on a carbon submission.
// Approval of a manufacturing submission marks the product's carbon data
// verified; approval of a logistics submission folds the claimed amount into
// the product total. Rejection only flags the submission and leaves product
// state untouched. Like participant verification, decisions stay available
// while the ledger is paused.
func (l *Ledger) DecideSubmission(tx Tx, caller models.Identity, submitter models.Identity, productID uint64, kind models.SubmissionKind, approved bool) error {
	if caller != l.params.Authority {
		return ErrNotAuthorized
	}
	if _, err := ParseSubmissionKind(string(kind)); err != nil {
		return err
	}

	sub, err := tx.Submissions().Get(submitter, productID, kind)
	if err != nil {
		return err
	}
	if sub == nil {
		return fmt.Errorf("%w: no %s submission by %s for product %d", ErrNotFound, kind, submitter, productID)
	}

	sub.Verified = approved
	if err := tx.Submissions().Put(sub); err != nil {
		return err
	}
	if !approved {
		return nil
	}

	product, err := tx.Products().Get(productID)
	if err != nil {
		return err
	}
	if product == nil {
		return fmt.Errorf("%w: product %d", ErrProductNotRegistered, productID)
	}

	switch kind {
	case models.SubmissionManufacturing:
		product.Verified = true
	case models.SubmissionLogistics:
		total, err := safemath.Add(product.ManufacturingCarbon, sub.Amount)
		if err != nil {
			return err
		}
		product.LogisticsCarbon = sub.Amount
		product.TotalCarbon = total
	}

	return tx.Products().Put(product)
}

// Submission returns a carbon submission, or nil when absent.
func (l *Ledger) Submission(tx Tx, submitter models.Identity, productID uint64, kind models.SubmissionKind) (*models.CarbonSubmission, error) {
	return tx.Submissions().Get(submitter, productID, kind)
}

// Product returns a product by id, or nil when absent.
func (l *Ledger) Product(tx Tx, id uint64) (*models.Product, error) {
	return tx.Products().Get(id)
}

// ProductByQR resolves a physical label key to its product, or nil when the
// key is unbound.
func (l *Ledger) ProductByQR(tx Tx, qr models.QRKey) (*models.Product, error) {
	return tx.Products().GetByQR(qr)
}

// TokenOwner returns the provenance token of a product, or nil when absent.
func (l *Ledger) TokenOwner(tx Tx, productID uint64) (*models.ProvenanceToken, error) {
	return tx.Tokens().Get(productID)
}

// SetBudget overwrites the caller's monthly carbon budget, resetting usage
// to zero and the reset marker to now. Lifetime offset purchases carry over.
func (l *Ledger) SetBudget(tx Tx, caller models.Identity, now uint64, monthlyBudget uint64) error {
	if err := l.ensureActive(tx); err != nil {
		return err
	}
	if err := l.admit(tx, caller, now); err != nil {
		return err
	}
	if monthlyBudget == 0 {
		return fmt.Errorf("%w: monthly budget must be positive", ErrInvalidAmount)
	}

	var offsets uint64
	if existing, err := tx.Budgets().Get(caller); err != nil {
		return err
	} else if existing != nil {
		offsets = existing.TotalOffsetsPurchased
	}

	return tx.Budgets().Put(&models.ConsumerBudget{
		Identity:              caller,
		MonthlyBudget:         monthlyBudget,
		CurrentUsage:          0,
		LastReset:             now,
		TotalOffsetsPurchased: offsets,
	})
}

// RecordPurchase charges a verified product's carbon total against the
// caller's budget and returns the charged amount. A caller without a budget
// gets the default allowance; usage rolls over once the reset window has
// elapsed since the last reset. Usage may exceed the allowance, purchases
// are never blocked by it.
func (l *Ledger) RecordPurchase(tx Tx, caller models.Identity, now uint64, productID uint64) (uint64, error) {
	if err := l.ensureActive(tx); err != nil {
		return 0, err
	}
	if err := l.admit(tx, caller, now); err != nil {
		return 0, err
	}

	product, err := tx.Products().Get(productID)
	if err != nil {
		return 0, err
	}
	if product == nil {
		return 0, fmt.Errorf("%w: product %d", ErrProductNotRegistered, productID)
	}
	if !product.Verified {
		return 0, fmt.Errorf("%w: product %d", ErrCarbonDataNotVerified, productID)
	}

	budget, err := tx.Budgets().Get(caller)
	if err != nil {
		return 0, err
	}
	switch {
	case budget == nil:
		budget = &models.ConsumerBudget{
			Identity:      caller,
			MonthlyBudget: l.params.DefaultBudget,
			CurrentUsage:  product.TotalCarbon,
			LastReset:     now,
		}
	case now-budget.LastReset >= l.params.BudgetResetWindow:
		budget.CurrentUsage = product.TotalCarbon
		budget.LastReset = now
	default:
		usage, err := safemath.Add(budget.CurrentUsage, product.TotalCarbon)
		if err != nil {
			return 0, err
		}
		budget.CurrentUsage = usage
	}

	if err := tx.Budgets().Put(budget); err != nil {
		return 0, err
	}
	return product.TotalCarbon, nil
}

// ConsumerBudget returns a consumer's budget row, or nil when absent.
func (l *Ledger) ConsumerBudget(tx Tx, id models.Identity) (*models.ConsumerBudget, error) {
	return tx.Budgets().Get(id)
}

// CheckCarbonBudget reports whether the identity's current usage fits its
// monthly allowance. Identities without a budget row read as not within
// budget.
func (l *Ledger) CheckCarbonBudget(tx Tx, id models.Identity) (bool, error) {
	budget, err := tx.Budgets().Get(id)
	if err != nil {
		return false, err
	}
	if budget == nil {
		return false, nil
	}
	return budget.CurrentUsage <= budget.MonthlyBudget, nil
}

// PurchaseOffsets mints carbon credits to the caller against a payment of
// amount times the credit price, and returns the amount minted. Credits are
// minted and the issued total bumped before the payment transfer runs, so a
// failed payment aborts the whole transaction including the mint.
func (l *Ledger) PurchaseOffsets(tx Tx, caller models.Identity, now uint64, amount uint64) (uint64, error) {
	if err := l.ensureActive(tx); err != nil {
		return 0, err
	}
	if err := l.admit(tx, caller, now); err != nil {
		return 0, err
	}
	if amount == 0 {
		return 0, fmt.Errorf("%w: offset amount must be positive", ErrInvalidAmount)
	}

	cost, err := safemath.Mul(amount, l.params.CreditPrice)
	if err != nil {
		return 0, err
	}

	credits := tx.Credits()
	balance, err := credits.Balance(caller)
	if err != nil {
		return 0, err
	}
	newBalance, err := safemath.Add(balance, amount)
	if err != nil {
		return 0, err
	}
	if err := credits.SetBalance(caller, newBalance); err != nil {
		return 0, err
	}

	total, err := credits.TotalIssued()
	if err != nil {
		return 0, err
	}
	newTotal, err := safemath.Add(total, amount)
	if err != nil {
		return 0, err
	}
	if err := credits.SetTotalIssued(newTotal); err != nil {
		return 0, err
	}

	if err := tx.Payments().Transfer(caller, l.params.Authority, cost); err != nil {
		return 0, err
	}

	budget, err := tx.Budgets().Get(caller)
	if err != nil {
		return 0, err
	}
	if budget == nil {
		budget = &models.ConsumerBudget{
			Identity:      caller,
			MonthlyBudget: l.params.DefaultBudget,
			CurrentUsage:  0,
			LastReset:     now,
		}
	}
	purchased, err := safemath.Add(budget.TotalOffsetsPurchased, amount)
	if err != nil {
		return 0, err
	}
	budget.TotalOffsetsPurchased = purchased
	if err := tx.Budgets().Put(budget); err != nil {
		return 0, err
	}

	return amount, nil
}

// CreditBalance returns the carbon credit balance of an identity.
func (l *Ledger) CreditBalance(tx Tx, id models.Identity) (uint64, error) {
	return tx.Credits().Balance(id)
}

// TotalCarbonCredits returns the global number of credits ever issued.
func (l *Ledger) TotalCarbonCredits(tx Tx) (uint64, error) {
	return tx.Credits().TotalIssued()
}

// UpdateRetailerDisclosure overwrites the caller's self-reported carbon
// summary. Both figures must be positive.
func (l *Ledger) UpdateRetailerDisclosure(tx Tx, caller models.Identity, now uint64, totalProducts, averageCarbon uint64) error {
	if err := l.ensureActive(tx); err != nil {
		return err
	}
	if err := l.admit(tx, caller, now); err != nil {
		return err
	}
	if totalProducts == 0 || averageCarbon == 0 {
		return fmt.Errorf("%w: disclosure figures must be positive", ErrInvalidAmount)
	}

	return tx.Disclosures().Put(&models.RetailerDisclosure{
		Identity:      caller,
		TotalProducts: totalProducts,
		AverageCarbon: averageCarbon,
		UpdatedAt:     now,
	})
}

// RetailerDisclosure returns a retailer's disclosure, or nil when absent.
func (l *Ledger) RetailerDisclosure(tx Tx, id models.Identity) (*models.RetailerDisclosure, error) {
	return tx.Disclosures().Get(id)
}

// LastOperationBlock returns the tick of the identity's last admitted
// operation, zero when it never performed one.
func (l *Ledger) LastOperationBlock(tx Tx, id models.Identity) (uint64, error) {
	return tx.RateLimits().LastOperationBlock(id)
}
