package ledger

import "github.com/greentrace/ledger/internal/models"

// CarbonVerifier is the integration point for external verification services
// that audit carbon claims before the authority decides them. The core never
// calls it; hosts may run implementations out of band and feed their verdicts
// into DecideSubmission.
type CarbonVerifier interface {
	// VerifyCarbonData audits one submission and reports whether its
	// claimed amount is plausible for the product.
	VerifyCarbonData(product *models.Product, submission *models.CarbonSubmission) (bool, error)
}
