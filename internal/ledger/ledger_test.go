package ledger_test

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greentrace/ledger/internal/ledger"
	"github.com/greentrace/ledger/internal/models"
	"github.com/greentrace/ledger/internal/storage"
)

const authority = models.Identity("authority")

func newLedger() (*ledger.Ledger, *storage.MemoryStore) {
	return ledger.New(ledger.DefaultParams(authority)), storage.NewMemoryStore()
}

func inTx(t *testing.T, store *storage.MemoryStore, fn func(tx ledger.Tx) error) error {
	t.Helper()
	return store.WithinTx(context.Background(), fn)
}

func qrKey(b byte) models.QRKey {
	var key models.QRKey
	key[0] = b
	return key
}

// seedVerified registers and verifies a participant at tick 1.
func seedVerified(t *testing.T, l *ledger.Ledger, store *storage.MemoryStore, kind models.ParticipantKind, id models.Identity) {
	t.Helper()
	err := inTx(t, store, func(tx ledger.Tx) error {
		if err := l.RegisterParticipant(tx, id, 1, kind, "Seed Co", "cert-1"); err != nil {
			return err
		}
		return l.VerifyParticipant(tx, authority, kind, id)
	})
	require.NoError(t, err)
}

// seedVerifiedProduct registers a product at tick 1 and approves its
// manufacturing submission, returning the product id.
func seedVerifiedProduct(t *testing.T, l *ledger.Ledger, store *storage.MemoryStore, manufacturer models.Identity, carbon uint64, qr models.QRKey) uint64 {
	t.Helper()
	var id uint64
	err := inTx(t, store, func(tx ledger.Tx) error {
		var err error
		id, err = l.RegisterProduct(tx, manufacturer, 1, "Seed Product", carbon, qr, "audit-ref")
		if err != nil {
			return err
		}
		return l.DecideSubmission(tx, authority, manufacturer, id, models.SubmissionManufacturing, true)
	})
	require.NoError(t, err)
	return id
}

func TestRegisterParticipant(t *testing.T) {
	l, store := newLedger()
	maker := models.Identity("maker-1")

	err := inTx(t, store, func(tx ledger.Tx) error {
		return l.RegisterParticipant(tx, maker, 7, models.KindManufacturer, "Acme Works", "ISO-14064")
	})
	require.NoError(t, err)

	err = inTx(t, store, func(tx ledger.Tx) error {
		p, err := l.Participant(tx, models.KindManufacturer, maker)
		require.NoError(t, err)
		require.NotNil(t, p)
		assert.Equal(t, maker, p.Identity)
		assert.Equal(t, models.KindManufacturer, p.Kind)
		assert.Equal(t, "Acme Works", p.Name)
		assert.Equal(t, "ISO-14064", p.Certification)
		assert.False(t, p.Verified)
		assert.Equal(t, uint64(7), p.RegisteredAt)

		verified, err := l.IsVerified(tx, models.KindManufacturer, maker)
		require.NoError(t, err)
		assert.False(t, verified)
		return nil
	})
	require.NoError(t, err)
}

func TestRegisterParticipantDuplicateKind(t *testing.T) {
	l, store := newLedger()
	maker := models.Identity("maker-1")

	err := inTx(t, store, func(tx ledger.Tx) error {
		return l.RegisterParticipant(tx, maker, 1, models.KindManufacturer, "Acme Works", "")
	})
	require.NoError(t, err)

	err = inTx(t, store, func(tx ledger.Tx) error {
		return l.RegisterParticipant(tx, maker, 2, models.KindManufacturer, "Acme Works", "")
	})
	require.ErrorIs(t, err, ledger.ErrAlreadyExists)
}

func TestRegisterParticipantBothRoles(t *testing.T) {
	l, store := newLedger()
	dual := models.Identity("dual-1")

	err := inTx(t, store, func(tx ledger.Tx) error {
		if err := l.RegisterParticipant(tx, dual, 1, models.KindManufacturer, "Dual Co", ""); err != nil {
			return err
		}
		return l.RegisterParticipant(tx, dual, 1, models.KindLogisticsProvider, "Dual Co", "")
	})
	require.NoError(t, err)

	err = inTx(t, store, func(tx ledger.Tx) error {
		m, err := l.Participant(tx, models.KindManufacturer, dual)
		require.NoError(t, err)
		p, err := l.Participant(tx, models.KindLogisticsProvider, dual)
		require.NoError(t, err)
		assert.NotNil(t, m)
		assert.NotNil(t, p)
		return nil
	})
	require.NoError(t, err)
}

func TestRegisterParticipantValidation(t *testing.T) {
	l, store := newLedger()

	err := inTx(t, store, func(tx ledger.Tx) error {
		return l.RegisterParticipant(tx, "x", 1, models.ParticipantKind("retailer"), "Shop", "")
	})
	require.ErrorIs(t, err, ledger.ErrInvalidParticipant)

	err = inTx(t, store, func(tx ledger.Tx) error {
		return l.RegisterParticipant(tx, "x", 1, models.KindManufacturer, "", "")
	})
	require.ErrorIs(t, err, ledger.ErrInvalidInput)
}

func TestVerifyParticipant(t *testing.T) {
	l, store := newLedger()
	maker := models.Identity("maker-1")

	err := inTx(t, store, func(tx ledger.Tx) error {
		return l.RegisterParticipant(tx, maker, 1, models.KindManufacturer, "Acme Works", "")
	})
	require.NoError(t, err)

	err = inTx(t, store, func(tx ledger.Tx) error {
		return l.VerifyParticipant(tx, maker, models.KindManufacturer, maker)
	})
	require.ErrorIs(t, err, ledger.ErrNotAuthorized)

	err = inTx(t, store, func(tx ledger.Tx) error {
		return l.VerifyParticipant(tx, authority, models.KindManufacturer, "nobody")
	})
	require.ErrorIs(t, err, ledger.ErrNotFound)

	err = inTx(t, store, func(tx ledger.Tx) error {
		return l.VerifyParticipant(tx, authority, models.KindManufacturer, maker)
	})
	require.NoError(t, err)

	err = inTx(t, store, func(tx ledger.Tx) error {
		verified, err := l.IsVerified(tx, models.KindManufacturer, maker)
		require.NoError(t, err)
		assert.True(t, verified)
		return nil
	})
	require.NoError(t, err)
}

func TestRegisterProduct(t *testing.T) {
	l, store := newLedger()
	maker := models.Identity("maker-1")
	seedVerified(t, l, store, models.KindManufacturer, maker)

	qr := qrKey(1)
	var id uint64
	err := inTx(t, store, func(tx ledger.Tx) error {
		var err error
		id, err = l.RegisterProduct(tx, maker, 3, "Solar Panel", 1_500, qr, "audit-ref")
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), id)

	err = inTx(t, store, func(tx ledger.Tx) error {
		product, err := l.Product(tx, id)
		require.NoError(t, err)
		require.NotNil(t, product)
		assert.Equal(t, maker, product.Manufacturer)
		assert.Equal(t, "Solar Panel", product.Name)
		assert.Equal(t, uint64(1_500), product.ManufacturingCarbon)
		assert.Equal(t, uint64(0), product.LogisticsCarbon)
		assert.Equal(t, uint64(1_500), product.TotalCarbon)
		assert.Equal(t, qr, product.QR)
		assert.False(t, product.Verified)
		assert.Equal(t, uint64(3), product.CreatedAt)

		byQR, err := l.ProductByQR(tx, qr)
		require.NoError(t, err)
		require.NotNil(t, byQR)
		assert.Equal(t, id, byQR.ID)

		sub, err := l.Submission(tx, maker, id, models.SubmissionManufacturing)
		require.NoError(t, err)
		require.NotNil(t, sub)
		assert.Equal(t, uint64(1_500), sub.Amount)
		assert.Equal(t, "audit-ref", sub.Evidence)
		assert.False(t, sub.Verified)

		token, err := l.TokenOwner(tx, id)
		require.NoError(t, err)
		require.NotNil(t, token)
		assert.Equal(t, maker, token.Owner)
		assert.Equal(t, uint64(3), token.MintedAt)
		return nil
	})
	require.NoError(t, err)

	// Ids are sequential.
	err = inTx(t, store, func(tx ledger.Tx) error {
		next, err := l.RegisterProduct(tx, maker, 3, "Wind Turbine", 2_000, qrKey(2), "")
		require.NoError(t, err)
		assert.Equal(t, uint64(2), next)
		return nil
	})
	require.NoError(t, err)
}

func TestRegisterProductRequiresVerifiedManufacturer(t *testing.T) {
	l, store := newLedger()

	err := inTx(t, store, func(tx ledger.Tx) error {
		_, err := l.RegisterProduct(tx, "stranger", 1, "Widget", 100, qrKey(1), "")
		return err
	})
	require.ErrorIs(t, err, ledger.ErrNotAuthorized)

	pending := models.Identity("pending-maker")
	err = inTx(t, store, func(tx ledger.Tx) error {
		return l.RegisterParticipant(tx, pending, 1, models.KindManufacturer, "Pending Co", "")
	})
	require.NoError(t, err)

	err = inTx(t, store, func(tx ledger.Tx) error {
		_, err := l.RegisterProduct(tx, pending, 1, "Widget", 100, qrKey(1), "")
		return err
	})
	require.ErrorIs(t, err, ledger.ErrNotAuthorized)
}

func TestRegisterProductValidation(t *testing.T) {
	l, store := newLedger()
	maker := models.Identity("maker-1")
	seedVerified(t, l, store, models.KindManufacturer, maker)

	err := inTx(t, store, func(tx ledger.Tx) error {
		_, err := l.RegisterProduct(tx, maker, 2, "", 100, qrKey(1), "")
		return err
	})
	require.ErrorIs(t, err, ledger.ErrInvalidInput)

	err = inTx(t, store, func(tx ledger.Tx) error {
		_, err := l.RegisterProduct(tx, maker, 2, "Widget", 0, qrKey(1), "")
		return err
	})
	require.ErrorIs(t, err, ledger.ErrInvalidAmount)
}

func TestRegisterProductDuplicateQRKey(t *testing.T) {
	l, store := newLedger()
	maker := models.Identity("maker-1")
	seedVerified(t, l, store, models.KindManufacturer, maker)

	qr := qrKey(9)
	err := inTx(t, store, func(tx ledger.Tx) error {
		_, err := l.RegisterProduct(tx, maker, 2, "Widget", 100, qr, "")
		return err
	})
	require.NoError(t, err)

	err = inTx(t, store, func(tx ledger.Tx) error {
		_, err := l.RegisterProduct(tx, maker, 2, "Gadget", 200, qr, "")
		return err
	})
	require.ErrorIs(t, err, ledger.ErrAlreadyExists)
}

func TestRegisterProductIDOverflow(t *testing.T) {
	l, store := newLedger()
	maker := models.Identity("maker-1")
	seedVerified(t, l, store, models.KindManufacturer, maker)

	err := inTx(t, store, func(tx ledger.Tx) error {
		return tx.Products().SetLastID(math.MaxUint64)
	})
	require.NoError(t, err)

	err = inTx(t, store, func(tx ledger.Tx) error {
		_, err := l.RegisterProduct(tx, maker, 2, "Widget", 100, qrKey(1), "")
		return err
	})
	require.ErrorIs(t, err, ledger.ErrOverflow)
}

func TestSubmitLogistics(t *testing.T) {
	l, store := newLedger()
	maker := models.Identity("maker-1")
	carrier := models.Identity("carrier-1")
	seedVerified(t, l, store, models.KindManufacturer, maker)
	seedVerified(t, l, store, models.KindLogisticsProvider, carrier)
	id := seedVerifiedProduct(t, l, store, maker, 1_000, qrKey(1))

	err := inTx(t, store, func(tx ledger.Tx) error {
		return l.SubmitLogistics(tx, carrier, 2, id, 300, "gps-trace")
	})
	require.NoError(t, err)

	err = inTx(t, store, func(tx ledger.Tx) error {
		sub, err := l.Submission(tx, carrier, id, models.SubmissionLogistics)
		require.NoError(t, err)
		require.NotNil(t, sub)
		assert.Equal(t, uint64(300), sub.Amount)
		assert.Equal(t, "gps-trace", sub.Evidence)
		assert.False(t, sub.Verified)

		// The claim does not touch product totals until approved.
		product, err := l.Product(tx, id)
		require.NoError(t, err)
		assert.Equal(t, uint64(0), product.LogisticsCarbon)
		assert.Equal(t, uint64(1_000), product.TotalCarbon)
		return nil
	})
	require.NoError(t, err)
}

func TestSubmitLogisticsRequiresVerifiedProvider(t *testing.T) {
	l, store := newLedger()
	maker := models.Identity("maker-1")
	seedVerified(t, l, store, models.KindManufacturer, maker)
	id := seedVerifiedProduct(t, l, store, maker, 1_000, qrKey(1))

	err := inTx(t, store, func(tx ledger.Tx) error {
		return l.SubmitLogistics(tx, "stranger", 2, id, 300, "")
	})
	require.ErrorIs(t, err, ledger.ErrNotAuthorized)

	// A verified manufacturer does not qualify as a logistics provider.
	err = inTx(t, store, func(tx ledger.Tx) error {
		return l.SubmitLogistics(tx, maker, 2, id, 300, "")
	})
	require.ErrorIs(t, err, ledger.ErrNotAuthorized)
}

func TestSubmitLogisticsValidation(t *testing.T) {
	l, store := newLedger()
	carrier := models.Identity("carrier-1")
	seedVerified(t, l, store, models.KindLogisticsProvider, carrier)

	err := inTx(t, store, func(tx ledger.Tx) error {
		return l.SubmitLogistics(tx, carrier, 2, 1, 0, "")
	})
	require.ErrorIs(t, err, ledger.ErrInvalidAmount)

	err = inTx(t, store, func(tx ledger.Tx) error {
		return l.SubmitLogistics(tx, carrier, 2, 42, 300, "")
	})
	require.ErrorIs(t, err, ledger.ErrProductNotRegistered)
}

func TestDecideSubmissionManufacturing(t *testing.T) {
	l, store := newLedger()
	maker := models.Identity("maker-1")
	seedVerified(t, l, store, models.KindManufacturer, maker)

	var id uint64
	err := inTx(t, store, func(tx ledger.Tx) error {
		var err error
		id, err = l.RegisterProduct(tx, maker, 2, "Widget", 500, qrKey(1), "")
		return err
	})
	require.NoError(t, err)

	err = inTx(t, store, func(tx ledger.Tx) error {
		return l.DecideSubmission(tx, authority, maker, id, models.SubmissionManufacturing, true)
	})
	require.NoError(t, err)

	err = inTx(t, store, func(tx ledger.Tx) error {
		product, err := l.Product(tx, id)
		require.NoError(t, err)
		assert.True(t, product.Verified)

		sub, err := l.Submission(tx, maker, id, models.SubmissionManufacturing)
		require.NoError(t, err)
		assert.True(t, sub.Verified)
		return nil
	})
	require.NoError(t, err)
}

func TestDecideSubmissionLogistics(t *testing.T) {
	l, store := newLedger()
	maker := models.Identity("maker-1")
	carrier := models.Identity("carrier-1")
	seedVerified(t, l, store, models.KindManufacturer, maker)
	seedVerified(t, l, store, models.KindLogisticsProvider, carrier)
	id := seedVerifiedProduct(t, l, store, maker, 1_000, qrKey(1))

	err := inTx(t, store, func(tx ledger.Tx) error {
		return l.SubmitLogistics(tx, carrier, 2, id, 300, "")
	})
	require.NoError(t, err)

	err = inTx(t, store, func(tx ledger.Tx) error {
		return l.DecideSubmission(tx, authority, carrier, id, models.SubmissionLogistics, true)
	})
	require.NoError(t, err)

	err = inTx(t, store, func(tx ledger.Tx) error {
		product, err := l.Product(tx, id)
		require.NoError(t, err)
		assert.Equal(t, uint64(300), product.LogisticsCarbon)
		assert.Equal(t, uint64(1_300), product.TotalCarbon)
		return nil
	})
	require.NoError(t, err)
}

func TestDecideSubmissionRejection(t *testing.T) {
	l, store := newLedger()
	maker := models.Identity("maker-1")
	seedVerified(t, l, store, models.KindManufacturer, maker)

	var id uint64
	err := inTx(t, store, func(tx ledger.Tx) error {
		var err error
		id, err = l.RegisterProduct(tx, maker, 2, "Widget", 500, qrKey(1), "")
		return err
	})
	require.NoError(t, err)

	err = inTx(t, store, func(tx ledger.Tx) error {
		return l.DecideSubmission(tx, authority, maker, id, models.SubmissionManufacturing, false)
	})
	require.NoError(t, err)

	err = inTx(t, store, func(tx ledger.Tx) error {
		product, err := l.Product(tx, id)
		require.NoError(t, err)
		assert.False(t, product.Verified)

		sub, err := l.Submission(tx, maker, id, models.SubmissionManufacturing)
		require.NoError(t, err)
		assert.False(t, sub.Verified)
		return nil
	})
	require.NoError(t, err)
}

func TestDecideSubmissionGuards(t *testing.T) {
	l, store := newLedger()
	maker := models.Identity("maker-1")
	seedVerified(t, l, store, models.KindManufacturer, maker)
	id := seedVerifiedProduct(t, l, store, maker, 1_000, qrKey(1))

	err := inTx(t, store, func(tx ledger.Tx) error {
		return l.DecideSubmission(tx, maker, maker, id, models.SubmissionManufacturing, true)
	})
	require.ErrorIs(t, err, ledger.ErrNotAuthorized)

	err = inTx(t, store, func(tx ledger.Tx) error {
		return l.DecideSubmission(tx, authority, "nobody", id, models.SubmissionLogistics, true)
	})
	require.ErrorIs(t, err, ledger.ErrNotFound)

	err = inTx(t, store, func(tx ledger.Tx) error {
		return l.DecideSubmission(tx, authority, maker, id, models.SubmissionKind("retail"), true)
	})
	require.ErrorIs(t, err, ledger.ErrInvalidInput)
}

func TestDecideSubmissionLogisticsOverflow(t *testing.T) {
	l, store := newLedger()
	maker := models.Identity("maker-1")
	carrier := models.Identity("carrier-1")
	seedVerified(t, l, store, models.KindManufacturer, maker)
	seedVerified(t, l, store, models.KindLogisticsProvider, carrier)
	id := seedVerifiedProduct(t, l, store, maker, math.MaxUint64, qrKey(1))

	err := inTx(t, store, func(tx ledger.Tx) error {
		return l.SubmitLogistics(tx, carrier, 2, id, 1, "")
	})
	require.NoError(t, err)

	err = inTx(t, store, func(tx ledger.Tx) error {
		return l.DecideSubmission(tx, authority, carrier, id, models.SubmissionLogistics, true)
	})
	require.ErrorIs(t, err, ledger.ErrOverflow)

	// The failed decision rolled back entirely, including the verdict flag.
	err = inTx(t, store, func(tx ledger.Tx) error {
		sub, err := l.Submission(tx, carrier, id, models.SubmissionLogistics)
		require.NoError(t, err)
		assert.False(t, sub.Verified)

		product, err := l.Product(tx, id)
		require.NoError(t, err)
		assert.Equal(t, uint64(0), product.LogisticsCarbon)
		assert.Equal(t, uint64(math.MaxUint64), product.TotalCarbon)
		return nil
	})
	require.NoError(t, err)
}

func TestSetBudget(t *testing.T) {
	l, store := newLedger()
	consumer := models.Identity("consumer-1")

	err := inTx(t, store, func(tx ledger.Tx) error {
		return l.SetBudget(tx, consumer, 5, 2_000)
	})
	require.NoError(t, err)

	err = inTx(t, store, func(tx ledger.Tx) error {
		budget, err := l.ConsumerBudget(tx, consumer)
		require.NoError(t, err)
		require.NotNil(t, budget)
		assert.Equal(t, uint64(2_000), budget.MonthlyBudget)
		assert.Equal(t, uint64(0), budget.CurrentUsage)
		assert.Equal(t, uint64(5), budget.LastReset)

		within, err := l.CheckCarbonBudget(tx, consumer)
		require.NoError(t, err)
		assert.True(t, within)
		return nil
	})
	require.NoError(t, err)

	err = inTx(t, store, func(tx ledger.Tx) error {
		return l.SetBudget(tx, consumer, 5, 0)
	})
	require.ErrorIs(t, err, ledger.ErrInvalidAmount)
}

func TestSetBudgetPreservesOffsetHistory(t *testing.T) {
	l, store := newLedger()
	consumer := models.Identity("consumer-1")

	err := inTx(t, store, func(tx ledger.Tx) error {
		return tx.Budgets().Put(&models.ConsumerBudget{
			Identity:              consumer,
			MonthlyBudget:         1_000,
			CurrentUsage:          900,
			LastReset:             1,
			TotalOffsetsPurchased: 42,
		})
	})
	require.NoError(t, err)

	err = inTx(t, store, func(tx ledger.Tx) error {
		return l.SetBudget(tx, consumer, 10, 3_000)
	})
	require.NoError(t, err)

	err = inTx(t, store, func(tx ledger.Tx) error {
		budget, err := l.ConsumerBudget(tx, consumer)
		require.NoError(t, err)
		assert.Equal(t, uint64(3_000), budget.MonthlyBudget)
		assert.Equal(t, uint64(0), budget.CurrentUsage)
		assert.Equal(t, uint64(10), budget.LastReset)
		assert.Equal(t, uint64(42), budget.TotalOffsetsPurchased)
		return nil
	})
	require.NoError(t, err)
}

func TestRecordPurchaseCreatesDefaultBudget(t *testing.T) {
	l, store := newLedger()
	maker := models.Identity("maker-1")
	consumer := models.Identity("consumer-1")
	seedVerified(t, l, store, models.KindManufacturer, maker)
	id := seedVerifiedProduct(t, l, store, maker, 1_500, qrKey(1))

	var charged uint64
	err := inTx(t, store, func(tx ledger.Tx) error {
		var err error
		charged, err = l.RecordPurchase(tx, consumer, 8, id)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(1_500), charged)

	err = inTx(t, store, func(tx ledger.Tx) error {
		budget, err := l.ConsumerBudget(tx, consumer)
		require.NoError(t, err)
		require.NotNil(t, budget)
		assert.Equal(t, uint64(ledger.DefaultMonthlyBudget), budget.MonthlyBudget)
		assert.Equal(t, uint64(1_500), budget.CurrentUsage)
		assert.Equal(t, uint64(8), budget.LastReset)
		return nil
	})
	require.NoError(t, err)
}

func TestRecordPurchaseAccumulatesWithinWindow(t *testing.T) {
	l, store := newLedger()
	maker := models.Identity("maker-1")
	consumer := models.Identity("consumer-1")
	seedVerified(t, l, store, models.KindManufacturer, maker)
	id := seedVerifiedProduct(t, l, store, maker, 1_500, qrKey(1))

	err := inTx(t, store, func(tx ledger.Tx) error {
		if _, err := l.RecordPurchase(tx, consumer, 2, id); err != nil {
			return err
		}
		_, err := l.RecordPurchase(tx, consumer, 3, id)
		return err
	})
	require.NoError(t, err)

	err = inTx(t, store, func(tx ledger.Tx) error {
		budget, err := l.ConsumerBudget(tx, consumer)
		require.NoError(t, err)
		assert.Equal(t, uint64(3_000), budget.CurrentUsage)
		assert.Equal(t, uint64(2), budget.LastReset)
		return nil
	})
	require.NoError(t, err)
}

func TestRecordPurchaseRollsOverAfterWindow(t *testing.T) {
	l, store := newLedger()
	maker := models.Identity("maker-1")
	consumer := models.Identity("consumer-1")
	seedVerified(t, l, store, models.KindManufacturer, maker)
	id := seedVerifiedProduct(t, l, store, maker, 1_500, qrKey(1))

	err := inTx(t, store, func(tx ledger.Tx) error {
		_, err := l.RecordPurchase(tx, consumer, 2, id)
		return err
	})
	require.NoError(t, err)

	reset := uint64(2 + ledger.DefaultBudgetResetWindow)
	err = inTx(t, store, func(tx ledger.Tx) error {
		_, err := l.RecordPurchase(tx, consumer, reset, id)
		return err
	})
	require.NoError(t, err)

	err = inTx(t, store, func(tx ledger.Tx) error {
		budget, err := l.ConsumerBudget(tx, consumer)
		require.NoError(t, err)
		assert.Equal(t, uint64(1_500), budget.CurrentUsage)
		assert.Equal(t, reset, budget.LastReset)
		return nil
	})
	require.NoError(t, err)
}

func TestRecordPurchaseGuards(t *testing.T) {
	l, store := newLedger()
	maker := models.Identity("maker-1")
	consumer := models.Identity("consumer-1")
	seedVerified(t, l, store, models.KindManufacturer, maker)

	err := inTx(t, store, func(tx ledger.Tx) error {
		_, err := l.RecordPurchase(tx, consumer, 2, 42)
		return err
	})
	require.ErrorIs(t, err, ledger.ErrProductNotRegistered)

	var id uint64
	err = inTx(t, store, func(tx ledger.Tx) error {
		var err error
		id, err = l.RegisterProduct(tx, maker, 2, "Widget", 500, qrKey(1), "")
		return err
	})
	require.NoError(t, err)

	err = inTx(t, store, func(tx ledger.Tx) error {
		_, err := l.RecordPurchase(tx, consumer, 2, id)
		return err
	})
	require.ErrorIs(t, err, ledger.ErrCarbonDataNotVerified)
}

func TestCheckCarbonBudget(t *testing.T) {
	l, store := newLedger()
	maker := models.Identity("maker-1")
	consumer := models.Identity("consumer-1")
	seedVerified(t, l, store, models.KindManufacturer, maker)
	id := seedVerifiedProduct(t, l, store, maker, 9_000, qrKey(1))

	err := inTx(t, store, func(tx ledger.Tx) error {
		within, err := l.CheckCarbonBudget(tx, consumer)
		require.NoError(t, err)
		assert.False(t, within, "identities without a budget row are not within budget")
		return nil
	})
	require.NoError(t, err)

	err = inTx(t, store, func(tx ledger.Tx) error {
		_, err := l.RecordPurchase(tx, consumer, 2, id)
		return err
	})
	require.NoError(t, err)

	err = inTx(t, store, func(tx ledger.Tx) error {
		within, err := l.CheckCarbonBudget(tx, consumer)
		require.NoError(t, err)
		assert.True(t, within)
		return nil
	})
	require.NoError(t, err)

	// Purchases are never blocked by the allowance, the check just flips.
	err = inTx(t, store, func(tx ledger.Tx) error {
		_, err := l.RecordPurchase(tx, consumer, 3, id)
		return err
	})
	require.NoError(t, err)

	err = inTx(t, store, func(tx ledger.Tx) error {
		within, err := l.CheckCarbonBudget(tx, consumer)
		require.NoError(t, err)
		assert.False(t, within)
		return nil
	})
	require.NoError(t, err)
}

func TestPurchaseOffsets(t *testing.T) {
	l, store := newLedger()
	consumer := models.Identity("consumer-1")

	err := inTx(t, store, func(tx ledger.Tx) error {
		return tx.Payments().SetBalance(consumer, 10*ledger.DefaultCreditPrice)
	})
	require.NoError(t, err)

	var minted uint64
	err = inTx(t, store, func(tx ledger.Tx) error {
		var err error
		minted, err = l.PurchaseOffsets(tx, consumer, 4, 3)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(3), minted)

	err = inTx(t, store, func(tx ledger.Tx) error {
		balance, err := l.CreditBalance(tx, consumer)
		require.NoError(t, err)
		assert.Equal(t, uint64(3), balance)

		total, err := l.TotalCarbonCredits(tx)
		require.NoError(t, err)
		assert.Equal(t, uint64(3), total)

		payment, err := tx.Payments().Balance(consumer)
		require.NoError(t, err)
		assert.Equal(t, uint64(7*ledger.DefaultCreditPrice), payment)

		authorityBalance, err := tx.Payments().Balance(authority)
		require.NoError(t, err)
		assert.Equal(t, uint64(3*ledger.DefaultCreditPrice), authorityBalance)

		budget, err := l.ConsumerBudget(tx, consumer)
		require.NoError(t, err)
		require.NotNil(t, budget)
		assert.Equal(t, uint64(3), budget.TotalOffsetsPurchased)
		assert.Equal(t, uint64(ledger.DefaultMonthlyBudget), budget.MonthlyBudget)
		return nil
	})
	require.NoError(t, err)
}

func TestPurchaseOffsetsInsufficientBalance(t *testing.T) {
	l, store := newLedger()
	consumer := models.Identity("consumer-1")

	err := inTx(t, store, func(tx ledger.Tx) error {
		return tx.Payments().SetBalance(consumer, ledger.DefaultCreditPrice-1)
	})
	require.NoError(t, err)

	err = inTx(t, store, func(tx ledger.Tx) error {
		_, err := l.PurchaseOffsets(tx, consumer, 4, 1)
		return err
	})
	require.ErrorIs(t, err, ledger.ErrInsufficientBalance)

	// The mint happened before the transfer inside the same transaction, so
	// the failed payment must have rolled it back too.
	err = inTx(t, store, func(tx ledger.Tx) error {
		balance, err := l.CreditBalance(tx, consumer)
		require.NoError(t, err)
		assert.Equal(t, uint64(0), balance)

		total, err := l.TotalCarbonCredits(tx)
		require.NoError(t, err)
		assert.Equal(t, uint64(0), total)

		payment, err := tx.Payments().Balance(consumer)
		require.NoError(t, err)
		assert.Equal(t, uint64(ledger.DefaultCreditPrice-1), payment)
		return nil
	})
	require.NoError(t, err)
}

func TestPurchaseOffsetsValidation(t *testing.T) {
	l, store := newLedger()
	consumer := models.Identity("consumer-1")

	err := inTx(t, store, func(tx ledger.Tx) error {
		_, err := l.PurchaseOffsets(tx, consumer, 4, 0)
		return err
	})
	require.ErrorIs(t, err, ledger.ErrInvalidAmount)

	err = inTx(t, store, func(tx ledger.Tx) error {
		_, err := l.PurchaseOffsets(tx, consumer, 4, math.MaxUint64/2)
		return err
	})
	require.ErrorIs(t, err, ledger.ErrOverflow)
}

func TestUpdateRetailerDisclosure(t *testing.T) {
	l, store := newLedger()
	retailer := models.Identity("retailer-1")

	err := inTx(t, store, func(tx ledger.Tx) error {
		return l.UpdateRetailerDisclosure(tx, retailer, 6, 120, 850)
	})
	require.NoError(t, err)

	err = inTx(t, store, func(tx ledger.Tx) error {
		d, err := l.RetailerDisclosure(tx, retailer)
		require.NoError(t, err)
		require.NotNil(t, d)
		assert.Equal(t, uint64(120), d.TotalProducts)
		assert.Equal(t, uint64(850), d.AverageCarbon)
		assert.Equal(t, uint64(6), d.UpdatedAt)
		return nil
	})
	require.NoError(t, err)

	err = inTx(t, store, func(tx ledger.Tx) error {
		return l.UpdateRetailerDisclosure(tx, retailer, 6, 0, 850)
	})
	require.ErrorIs(t, err, ledger.ErrInvalidAmount)

	err = inTx(t, store, func(tx ledger.Tx) error {
		return l.UpdateRetailerDisclosure(tx, retailer, 6, 120, 0)
	})
	require.ErrorIs(t, err, ledger.ErrInvalidAmount)
}

func TestPauseGates(t *testing.T) {
	l, store := newLedger()
	maker := models.Identity("maker-1")
	carrier := models.Identity("carrier-1")
	consumer := models.Identity("consumer-1")
	seedVerified(t, l, store, models.KindManufacturer, maker)
	id := seedVerifiedProduct(t, l, store, maker, 1_000, qrKey(1))

	err := inTx(t, store, func(tx ledger.Tx) error {
		return l.Pause(tx, maker)
	})
	require.ErrorIs(t, err, ledger.ErrNotAuthorized)

	err = inTx(t, store, func(tx ledger.Tx) error {
		return l.Pause(tx, authority)
	})
	require.NoError(t, err)

	// Participant-initiated mutations are rejected while paused.
	mutations := []func(tx ledger.Tx) error{
		func(tx ledger.Tx) error {
			return l.RegisterParticipant(tx, carrier, 2, models.KindLogisticsProvider, "Carrier Co", "")
		},
		func(tx ledger.Tx) error {
			_, err := l.RegisterProduct(tx, maker, 2, "Widget", 100, qrKey(2), "")
			return err
		},
		func(tx ledger.Tx) error {
			return l.SubmitLogistics(tx, carrier, 2, id, 300, "")
		},
		func(tx ledger.Tx) error {
			return l.SetBudget(tx, consumer, 2, 1_000)
		},
		func(tx ledger.Tx) error {
			_, err := l.RecordPurchase(tx, consumer, 2, id)
			return err
		},
		func(tx ledger.Tx) error {
			_, err := l.PurchaseOffsets(tx, consumer, 2, 1)
			return err
		},
		func(tx ledger.Tx) error {
			return l.UpdateRetailerDisclosure(tx, consumer, 2, 10, 100)
		},
	}
	for _, mutate := range mutations {
		err := inTx(t, store, mutate)
		require.ErrorIs(t, err, ledger.ErrPaused)
	}

	// Reads and authority review stay available during the stop.
	err = inTx(t, store, func(tx ledger.Tx) error {
		paused, err := l.Paused(tx)
		require.NoError(t, err)
		assert.True(t, paused)

		product, err := l.Product(tx, id)
		require.NoError(t, err)
		assert.NotNil(t, product)

		return l.DecideSubmission(tx, authority, maker, id, models.SubmissionManufacturing, true)
	})
	require.NoError(t, err)

	err = inTx(t, store, func(tx ledger.Tx) error {
		return l.Unpause(tx, authority)
	})
	require.NoError(t, err)

	err = inTx(t, store, func(tx ledger.Tx) error {
		return l.SetBudget(tx, consumer, 3, 1_000)
	})
	require.NoError(t, err)
}
