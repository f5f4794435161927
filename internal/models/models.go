package models

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Identity is the opaque string identity of a ledger caller. The API host
// derives it from the authenticated account id; tests and the CLI may use
// any stable string.
type Identity string

// ParticipantKind distinguishes the two supply-chain roles the ledger tracks.
type ParticipantKind string

const (
	KindManufacturer      ParticipantKind = "manufacturer"
	KindLogisticsProvider ParticipantKind = "logistics_provider"
)

// SubmissionKind distinguishes the two carbon data channels of a product.
type SubmissionKind string

const (
	SubmissionManufacturing SubmissionKind = "manufacturing"
	SubmissionLogistics     SubmissionKind = "logistics"
)

// QRKeySize is the byte length of a physical product label key.
const QRKeySize = 32

// QRKey is the opaque 32-byte key printed on a physical product label.
// It is hex-encoded on the wire and unique across all registered products.
type QRKey [QRKeySize]byte

// ParseQRKey decodes a hex-encoded label key.
func ParseQRKey(s string) (QRKey, error) {
	var key QRKey
	raw, err := hex.DecodeString(s)
	if err != nil {
		return key, fmt.Errorf("failed to decode qr key: %w", err)
	}
	if len(raw) != QRKeySize {
		return key, fmt.Errorf("qr key must be %d bytes, got %d", QRKeySize, len(raw))
	}
	copy(key[:], raw)
	return key, nil
}

// String returns the hex encoding of the key.
func (k QRKey) String() string {
	return hex.EncodeToString(k[:])
}

// Bytes returns the raw key bytes.
func (k QRKey) Bytes() []byte {
	return k[:]
}

// MarshalJSON encodes the key as a hex string.
func (k QRKey) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// UnmarshalJSON decodes the key from a hex string.
func (k *QRKey) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseQRKey(s)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Participant is a manufacturer or logistics provider registered on the
// ledger. A participant starts unverified and may only write carbon data
// after the authority verifies it.
type Participant struct {
	Identity      Identity        `json:"identity" db:"identity"`
	Kind          ParticipantKind `json:"kind" db:"kind"`
	Name          string          `json:"name" db:"name"`
	Certification string          `json:"certification" db:"certification"`
	Verified      bool            `json:"verified" db:"verified"`
	RegisteredAt  uint64          `json:"registered_at" db:"registered_at"`
}

// Product is a registered physical product and its accumulated carbon totals.
// TotalCarbon always equals ManufacturingCarbon + LogisticsCarbon.
type Product struct {
	ID                  uint64   `json:"id" db:"id"`
	Manufacturer        Identity `json:"manufacturer" db:"manufacturer"`
	Name                string   `json:"name" db:"name"`
	ManufacturingCarbon uint64   `json:"manufacturing_carbon" db:"manufacturing_carbon"`
	LogisticsCarbon     uint64   `json:"logistics_carbon" db:"logistics_carbon"`
	TotalCarbon         uint64   `json:"total_carbon" db:"total_carbon"`
	QR                  QRKey    `json:"qr_key" db:"qr_key"`
	Verified            bool     `json:"verified" db:"verified"`
	CreatedAt           uint64   `json:"created_at" db:"created_at"`
}

// ProvenanceToken is the ownership marker minted alongside a product
// registration. Exactly one exists per product id.
type ProvenanceToken struct {
	ProductID uint64   `json:"product_id" db:"product_id"`
	Owner     Identity `json:"owner" db:"owner"`
	MintedAt  uint64   `json:"minted_at" db:"minted_at"`
}

// CarbonSubmission is one participant's claimed carbon amount for a product,
// keyed by (submitter, product, kind) and awaiting an authority decision.
type CarbonSubmission struct {
	Submitter   Identity       `json:"submitter" db:"submitter"`
	ProductID   uint64         `json:"product_id" db:"product_id"`
	Kind        SubmissionKind `json:"kind" db:"kind"`
	Amount      uint64         `json:"amount" db:"amount"`
	Evidence    string         `json:"evidence" db:"evidence"`
	SubmittedAt uint64         `json:"submitted_at" db:"submitted_at"`
	Verified    bool           `json:"verified" db:"verified"`
}

// ConsumerBudget tracks one consumer's monthly carbon allowance and usage.
type ConsumerBudget struct {
	Identity              Identity `json:"identity" db:"identity"`
	MonthlyBudget         uint64   `json:"monthly_budget" db:"monthly_budget"`
	CurrentUsage          uint64   `json:"current_usage" db:"current_usage"`
	LastReset             uint64   `json:"last_reset" db:"last_reset"`
	TotalOffsetsPurchased uint64   `json:"total_offsets_purchased" db:"total_offsets_purchased"`
}

// RetailerDisclosure is a retailer's self-reported carbon summary.
type RetailerDisclosure struct {
	Identity      Identity `json:"identity" db:"identity"`
	TotalProducts uint64   `json:"total_products" db:"total_products"`
	AverageCarbon uint64   `json:"average_carbon" db:"average_carbon"`
	UpdatedAt     uint64   `json:"updated_at" db:"updated_at"`
}

// Account is an authenticated API account. Its id string doubles as the
// ledger identity for every operation the account performs.
type Account struct {
	ID           uuid.UUID `json:"id" db:"id"`
	Email        string    `json:"email" db:"email"`
	PasswordHash string    `json:"-" db:"password_hash"`
	APIKeyHash   string    `json:"-" db:"api_key_hash"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// LedgerIdentity returns the ledger identity of the account.
func (a *Account) LedgerIdentity() Identity {
	return Identity(a.ID.String())
}

// Event types announced to peers after a transaction commits.
const (
	EventProductVerified    = "product_verified"
	EventCarbonTotalUpdated = "carbon_total_updated"
	EventCreditsIssued      = "credits_issued"
)

// LedgerEvent is a committed state change broadcast to subscribed peers.
type LedgerEvent struct {
	Type      string   `json:"type"`
	ProductID uint64   `json:"product_id,omitempty"`
	Account   Identity `json:"account,omitempty"`
	Amount    uint64   `json:"amount,omitempty"`
	Height    uint64   `json:"height"`
}
