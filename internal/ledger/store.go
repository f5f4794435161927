package ledger

import (
	"context"

	"github.com/greentrace/ledger/internal/models"
)

// Store opens all-or-nothing transactions over ledger state. Every ledger
// operation runs inside exactly one transaction: if the operation returns an
// error, none of its writes survive.
type Store interface {
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx exposes the per-entity repositories of one open transaction. Reads of
// absent records return (nil, nil) or a zero value rather than an error;
// errors signal storage failure only.
type Tx interface {
	Participants() ParticipantStore
	Products() ProductStore
	Tokens() TokenStore
	Submissions() SubmissionStore
	Budgets() BudgetStore
	Credits() CreditStore
	Payments() PaymentStore
	Disclosures() DisclosureStore
	RateLimits() RateLimitStore
	State() StateStore
}

// ParticipantStore persists participant records keyed by (kind, identity).
// The same identity may hold both roles independently.
type ParticipantStore interface {
	Get(kind models.ParticipantKind, id models.Identity) (*models.Participant, error)
	Put(p *models.Participant) error
}

// ProductStore persists products and the unique qr index over them.
type ProductStore interface {
	Get(id uint64) (*models.Product, error)
	GetByQR(qr models.QRKey) (*models.Product, error)
	Put(p *models.Product) error
	LastID() (uint64, error)
	SetLastID(id uint64) error
}

// TokenStore persists provenance tokens keyed by product id.
type TokenStore interface {
	Get(productID uint64) (*models.ProvenanceToken, error)
	Put(t *models.ProvenanceToken) error
}

// SubmissionStore persists carbon submissions keyed by
// (submitter, product, kind).
type SubmissionStore interface {
	Get(submitter models.Identity, productID uint64, kind models.SubmissionKind) (*models.CarbonSubmission, error)
	Put(s *models.CarbonSubmission) error
}

// BudgetStore persists consumer budgets keyed by identity.
type BudgetStore interface {
	Get(id models.Identity) (*models.ConsumerBudget, error)
	Put(b *models.ConsumerBudget) error
}

// CreditStore persists carbon credit balances and the global issued total.
type CreditStore interface {
	TotalIssued() (uint64, error)
	SetTotalIssued(total uint64) error
	Balance(id models.Identity) (uint64, error)
	SetBalance(id models.Identity, balance uint64) error
}

// PaymentStore is the value-transfer subsystem the ledger charges against.
// Transfer moves the full amount or fails with ErrInsufficientBalance,
// leaving both balances untouched.
type PaymentStore interface {
	Balance(id models.Identity) (uint64, error)
	SetBalance(id models.Identity, balance uint64) error
	Transfer(from, to models.Identity, amount uint64) error
}

// DisclosureStore persists retailer disclosures keyed by identity.
type DisclosureStore interface {
	Get(id models.Identity) (*models.RetailerDisclosure, error)
	Put(d *models.RetailerDisclosure) error
}

// RateLimitStore persists per-identity admission state: the tick of the last
// admitted operation and an operation counter per tick. Absent entries read
// as zero.
type RateLimitStore interface {
	LastOperationBlock(id models.Identity) (uint64, error)
	SetLastOperationBlock(id models.Identity, block uint64) error
	OpCount(id models.Identity, block uint64) (uint64, error)
	SetOpCount(id models.Identity, block uint64, count uint64) error
}

// StateStore persists global ledger flags.
type StateStore interface {
	Paused() (bool, error)
	SetPaused(paused bool) error
}
