package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/greentrace/ledger/internal/ledger"
	"github.com/greentrace/ledger/internal/models"
	"github.com/greentrace/ledger/internal/safemath"
)

// pgTx implements ledger.Tx over one open pgx transaction.
type pgTx struct {
	ctx context.Context
	tx  pgx.Tx
}

func (t *pgTx) Participants() ledger.ParticipantStore { return &pgParticipants{t} }
func (t *pgTx) Products() ledger.ProductStore         { return &pgProducts{t} }
func (t *pgTx) Tokens() ledger.TokenStore             { return &pgTokens{t} }
func (t *pgTx) Submissions() ledger.SubmissionStore   { return &pgSubmissions{t} }
func (t *pgTx) Budgets() ledger.BudgetStore           { return &pgBudgets{t} }
func (t *pgTx) Credits() ledger.CreditStore           { return &pgCredits{t} }
func (t *pgTx) Payments() ledger.PaymentStore         { return &pgPayments{t} }
func (t *pgTx) Disclosures() ledger.DisclosureStore   { return &pgDisclosures{t} }
func (t *pgTx) RateLimits() ledger.RateLimitStore     { return &pgRateLimits{t} }
func (t *pgTx) State() ledger.StateStore              { return &pgState{t} }

type pgParticipants struct{ t *pgTx }

func (r *pgParticipants) Get(kind models.ParticipantKind, id models.Identity) (*models.Participant, error) {
	var p models.Participant
	err := r.t.tx.QueryRow(r.t.ctx, `
		SELECT identity, kind, name, certification, verified, registered_at
		FROM participants WHERE kind = $1 AND identity = $2`, kind, id).Scan(
		&p.Identity, &p.Kind, &p.Name, &p.Certification, &p.Verified, &p.RegisteredAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get participant: %w", err)
	}
	return &p, nil
}

func (r *pgParticipants) Put(p *models.Participant) error {
	_, err := r.t.tx.Exec(r.t.ctx, `
		INSERT INTO participants (identity, kind, name, certification, verified, registered_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (identity, kind) DO UPDATE SET
			name = EXCLUDED.name,
			certification = EXCLUDED.certification,
			verified = EXCLUDED.verified,
			registered_at = EXCLUDED.registered_at`,
		p.Identity, p.Kind, p.Name, p.Certification, p.Verified, p.RegisteredAt)
	if err != nil {
		return fmt.Errorf("failed to put participant: %w", err)
	}
	return nil
}

type pgProducts struct{ t *pgTx }

func (r *pgProducts) scanProduct(row pgx.Row) (*models.Product, error) {
	var p models.Product
	var qr []byte
	err := row.Scan(&p.ID, &p.Manufacturer, &p.Name, &p.ManufacturingCarbon,
		&p.LogisticsCarbon, &p.TotalCarbon, &qr, &p.Verified, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	copy(p.QR[:], qr)
	return &p, nil
}

func (r *pgProducts) Get(id uint64) (*models.Product, error) {
	return r.scanProduct(r.t.tx.QueryRow(r.t.ctx, `
		SELECT id, manufacturer, name, manufacturing_carbon, logistics_carbon,
			total_carbon, qr_key, verified, created_at
		FROM products WHERE id = $1`, id))
}

func (r *pgProducts) GetByQR(qr models.QRKey) (*models.Product, error) {
	return r.scanProduct(r.t.tx.QueryRow(r.t.ctx, `
		SELECT id, manufacturer, name, manufacturing_carbon, logistics_carbon,
			total_carbon, qr_key, verified, created_at
		FROM products WHERE qr_key = $1`, qr.Bytes()))
}

func (r *pgProducts) Put(p *models.Product) error {
	_, err := r.t.tx.Exec(r.t.ctx, `
		INSERT INTO products (id, manufacturer, name, manufacturing_carbon,
			logistics_carbon, total_carbon, qr_key, verified, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			logistics_carbon = EXCLUDED.logistics_carbon,
			total_carbon = EXCLUDED.total_carbon,
			verified = EXCLUDED.verified`,
		p.ID, p.Manufacturer, p.Name, p.ManufacturingCarbon,
		p.LogisticsCarbon, p.TotalCarbon, p.QR.Bytes(), p.Verified, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to put product: %w", err)
	}
	return nil
}

func (r *pgProducts) LastID() (uint64, error) {
	var id uint64
	err := r.t.tx.QueryRow(r.t.ctx,
		`SELECT last_product_id FROM ledger_state WHERE id = 1`).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to get last product id: %w", err)
	}
	return id, nil
}

func (r *pgProducts) SetLastID(id uint64) error {
	_, err := r.t.tx.Exec(r.t.ctx,
		`UPDATE ledger_state SET last_product_id = $1 WHERE id = 1`, id)
	if err != nil {
		return fmt.Errorf("failed to set last product id: %w", err)
	}
	return nil
}

type pgTokens struct{ t *pgTx }

func (r *pgTokens) Get(productID uint64) (*models.ProvenanceToken, error) {
	var token models.ProvenanceToken
	err := r.t.tx.QueryRow(r.t.ctx, `
		SELECT product_id, owner, minted_at
		FROM provenance_tokens WHERE product_id = $1`, productID).Scan(
		&token.ProductID, &token.Owner, &token.MintedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get provenance token: %w", err)
	}
	return &token, nil
}

func (r *pgTokens) Put(token *models.ProvenanceToken) error {
	_, err := r.t.tx.Exec(r.t.ctx, `
		INSERT INTO provenance_tokens (product_id, owner, minted_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (product_id) DO UPDATE SET owner = EXCLUDED.owner`,
		token.ProductID, token.Owner, token.MintedAt)
	if err != nil {
		return fmt.Errorf("failed to put provenance token: %w", err)
	}
	return nil
}

type pgSubmissions struct{ t *pgTx }

func (r *pgSubmissions) Get(submitter models.Identity, productID uint64, kind models.SubmissionKind) (*models.CarbonSubmission, error) {
	var s models.CarbonSubmission
	err := r.t.tx.QueryRow(r.t.ctx, `
		SELECT submitter, product_id, kind, amount, evidence, submitted_at, verified
		FROM carbon_submissions
		WHERE submitter = $1 AND product_id = $2 AND kind = $3`,
		submitter, productID, kind).Scan(
		&s.Submitter, &s.ProductID, &s.Kind, &s.Amount, &s.Evidence, &s.SubmittedAt, &s.Verified)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get carbon submission: %w", err)
	}
	return &s, nil
}

func (r *pgSubmissions) Put(s *models.CarbonSubmission) error {
	_, err := r.t.tx.Exec(r.t.ctx, `
		INSERT INTO carbon_submissions (submitter, product_id, kind, amount, evidence, submitted_at, verified)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (submitter, product_id, kind) DO UPDATE SET
			amount = EXCLUDED.amount,
			evidence = EXCLUDED.evidence,
			submitted_at = EXCLUDED.submitted_at,
			verified = EXCLUDED.verified`,
		s.Submitter, s.ProductID, s.Kind, s.Amount, s.Evidence, s.SubmittedAt, s.Verified)
	if err != nil {
		return fmt.Errorf("failed to put carbon submission: %w", err)
	}
	return nil
}

type pgBudgets struct{ t *pgTx }

func (r *pgBudgets) Get(id models.Identity) (*models.ConsumerBudget, error) {
	var b models.ConsumerBudget
	err := r.t.tx.QueryRow(r.t.ctx, `
		SELECT identity, monthly_budget, current_usage, last_reset, total_offsets_purchased
		FROM consumer_budgets WHERE identity = $1`, id).Scan(
		&b.Identity, &b.MonthlyBudget, &b.CurrentUsage, &b.LastReset, &b.TotalOffsetsPurchased)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get consumer budget: %w", err)
	}
	return &b, nil
}

func (r *pgBudgets) Put(b *models.ConsumerBudget) error {
	_, err := r.t.tx.Exec(r.t.ctx, `
		INSERT INTO consumer_budgets (identity, monthly_budget, current_usage, last_reset, total_offsets_purchased)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (identity) DO UPDATE SET
			monthly_budget = EXCLUDED.monthly_budget,
			current_usage = EXCLUDED.current_usage,
			last_reset = EXCLUDED.last_reset,
			total_offsets_purchased = EXCLUDED.total_offsets_purchased`,
		b.Identity, b.MonthlyBudget, b.CurrentUsage, b.LastReset, b.TotalOffsetsPurchased)
	if err != nil {
		return fmt.Errorf("failed to put consumer budget: %w", err)
	}
	return nil
}

type pgCredits struct{ t *pgTx }

func (r *pgCredits) TotalIssued() (uint64, error) {
	var total uint64
	err := r.t.tx.QueryRow(r.t.ctx,
		`SELECT total_carbon_credits FROM ledger_state WHERE id = 1`).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to get total carbon credits: %w", err)
	}
	return total, nil
}

func (r *pgCredits) SetTotalIssued(total uint64) error {
	_, err := r.t.tx.Exec(r.t.ctx,
		`UPDATE ledger_state SET total_carbon_credits = $1 WHERE id = 1`, total)
	if err != nil {
		return fmt.Errorf("failed to set total carbon credits: %w", err)
	}
	return nil
}

func (r *pgCredits) Balance(id models.Identity) (uint64, error) {
	return balanceOf(r.t, "credit_balances", id)
}

func (r *pgCredits) SetBalance(id models.Identity, balance uint64) error {
	return setBalanceOf(r.t, "credit_balances", id, balance)
}

type pgPayments struct{ t *pgTx }

func (r *pgPayments) Balance(id models.Identity) (uint64, error) {
	return balanceOf(r.t, "payment_balances", id)
}

func (r *pgPayments) SetBalance(id models.Identity, balance uint64) error {
	return setBalanceOf(r.t, "payment_balances", id, balance)
}

func (r *pgPayments) Transfer(from, to models.Identity, amount uint64) error {
	fromBalance, err := r.Balance(from)
	if err != nil {
		return err
	}
	if fromBalance < amount {
		return fmt.Errorf("%w: %s has %d, needs %d", ledger.ErrInsufficientBalance, from, fromBalance, amount)
	}
	toBalance, err := r.Balance(to)
	if err != nil {
		return err
	}
	newToBalance, err := safemath.Add(toBalance, amount)
	if err != nil {
		return err
	}
	if err := r.SetBalance(from, fromBalance-amount); err != nil {
		return err
	}
	return r.SetBalance(to, newToBalance)
}

// balanceOf reads an identity's balance from one of the two balance tables.
// Absent rows read as zero.
func balanceOf(t *pgTx, table string, id models.Identity) (uint64, error) {
	var balance uint64
	err := t.tx.QueryRow(t.ctx,
		`SELECT balance FROM `+table+` WHERE identity = $1`, id).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get balance from %s: %w", table, err)
	}
	return balance, nil
}

func setBalanceOf(t *pgTx, table string, id models.Identity, balance uint64) error {
	_, err := t.tx.Exec(t.ctx, `
		INSERT INTO `+table+` (identity, balance) VALUES ($1, $2)
		ON CONFLICT (identity) DO UPDATE SET balance = EXCLUDED.balance`, id, balance)
	if err != nil {
		return fmt.Errorf("failed to set balance in %s: %w", table, err)
	}
	return nil
}

type pgDisclosures struct{ t *pgTx }

func (r *pgDisclosures) Get(id models.Identity) (*models.RetailerDisclosure, error) {
	var d models.RetailerDisclosure
	err := r.t.tx.QueryRow(r.t.ctx, `
		SELECT identity, total_products, average_carbon, updated_at
		FROM retailer_disclosures WHERE identity = $1`, id).Scan(
		&d.Identity, &d.TotalProducts, &d.AverageCarbon, &d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get retailer disclosure: %w", err)
	}
	return &d, nil
}

func (r *pgDisclosures) Put(d *models.RetailerDisclosure) error {
	_, err := r.t.tx.Exec(r.t.ctx, `
		INSERT INTO retailer_disclosures (identity, total_products, average_carbon, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (identity) DO UPDATE SET
			total_products = EXCLUDED.total_products,
			average_carbon = EXCLUDED.average_carbon,
			updated_at = EXCLUDED.updated_at`,
		d.Identity, d.TotalProducts, d.AverageCarbon, d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to put retailer disclosure: %w", err)
	}
	return nil
}

type pgRateLimits struct{ t *pgTx }

func (r *pgRateLimits) LastOperationBlock(id models.Identity) (uint64, error) {
	var block uint64
	err := r.t.tx.QueryRow(r.t.ctx,
		`SELECT last_operation_block FROM rate_limits WHERE identity = $1`, id).Scan(&block)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get last operation block: %w", err)
	}
	return block, nil
}

func (r *pgRateLimits) SetLastOperationBlock(id models.Identity, block uint64) error {
	_, err := r.t.tx.Exec(r.t.ctx, `
		INSERT INTO rate_limits (identity, last_operation_block) VALUES ($1, $2)
		ON CONFLICT (identity) DO UPDATE SET last_operation_block = EXCLUDED.last_operation_block`,
		id, block)
	if err != nil {
		return fmt.Errorf("failed to set last operation block: %w", err)
	}
	return nil
}

func (r *pgRateLimits) OpCount(id models.Identity, block uint64) (uint64, error) {
	var count uint64
	err := r.t.tx.QueryRow(r.t.ctx,
		`SELECT op_count FROM rate_limit_counters WHERE identity = $1 AND block = $2`,
		id, block).Scan(&count)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get op count: %w", err)
	}
	return count, nil
}

func (r *pgRateLimits) SetOpCount(id models.Identity, block uint64, count uint64) error {
	_, err := r.t.tx.Exec(r.t.ctx, `
		INSERT INTO rate_limit_counters (identity, block, op_count) VALUES ($1, $2, $3)
		ON CONFLICT (identity, block) DO UPDATE SET op_count = EXCLUDED.op_count`,
		id, block, count)
	if err != nil {
		return fmt.Errorf("failed to set op count: %w", err)
	}
	return nil
}

type pgState struct{ t *pgTx }

func (r *pgState) Paused() (bool, error) {
	var paused bool
	err := r.t.tx.QueryRow(r.t.ctx,
		`SELECT paused FROM ledger_state WHERE id = 1`).Scan(&paused)
	if err != nil {
		return false, fmt.Errorf("failed to get pause flag: %w", err)
	}
	return paused, nil
}

func (r *pgState) SetPaused(paused bool) error {
	_, err := r.t.tx.Exec(r.t.ctx,
		`UPDATE ledger_state SET paused = $1 WHERE id = 1`, paused)
	if err != nil {
		return fmt.Errorf("failed to set pause flag: %w", err)
	}
	return nil
}
