package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/greentrace/ledger/internal/ledger"
	"github.com/greentrace/ledger/internal/models"
	"github.com/greentrace/ledger/internal/safemath"
)

// MemoryStore is an in-memory implementation of ledger.Store with real
// transaction semantics: a transaction works on a snapshot of the state and
// the snapshot replaces the live state only on commit. A mutex serializes
// transactions, which keeps the all-or-nothing guarantee trivial. It backs
// tests and single-process deployments.
type MemoryStore struct {
	mu    sync.Mutex
	state memoryState
}

type participantKey struct {
	kind models.ParticipantKind
	id   models.Identity
}

type submissionKey struct {
	submitter models.Identity
	productID uint64
	kind      models.SubmissionKind
}

type opCountKey struct {
	id    models.Identity
	block uint64
}

type memoryState struct {
	participants    map[participantKey]models.Participant
	products        map[uint64]models.Product
	qrIndex         map[models.QRKey]uint64
	lastProductID   uint64
	tokens          map[uint64]models.ProvenanceToken
	submissions     map[submissionKey]models.CarbonSubmission
	budgets         map[models.Identity]models.ConsumerBudget
	creditBalances  map[models.Identity]uint64
	totalIssued     uint64
	paymentBalances map[models.Identity]uint64
	disclosures     map[models.Identity]models.RetailerDisclosure
	lastOpBlocks    map[models.Identity]uint64
	opCounts        map[opCountKey]uint64
	paused          bool
	accounts        map[uuid.UUID]models.Account
}

func newMemoryState() memoryState {
	return memoryState{
		participants:    make(map[participantKey]models.Participant),
		products:        make(map[uint64]models.Product),
		qrIndex:         make(map[models.QRKey]uint64),
		tokens:          make(map[uint64]models.ProvenanceToken),
		submissions:     make(map[submissionKey]models.CarbonSubmission),
		budgets:         make(map[models.Identity]models.ConsumerBudget),
		creditBalances:  make(map[models.Identity]uint64),
		paymentBalances: make(map[models.Identity]uint64),
		disclosures:     make(map[models.Identity]models.RetailerDisclosure),
		lastOpBlocks:    make(map[models.Identity]uint64),
		opCounts:        make(map[opCountKey]uint64),
		accounts:        make(map[uuid.UUID]models.Account),
	}
}

func (s memoryState) clone() memoryState {
	out := s
	out.participants = copyMap(s.participants)
	out.products = copyMap(s.products)
	out.qrIndex = copyMap(s.qrIndex)
	out.tokens = copyMap(s.tokens)
	out.submissions = copyMap(s.submissions)
	out.budgets = copyMap(s.budgets)
	out.creditBalances = copyMap(s.creditBalances)
	out.paymentBalances = copyMap(s.paymentBalances)
	out.disclosures = copyMap(s.disclosures)
	out.lastOpBlocks = copyMap(s.lastOpBlocks)
	out.opCounts = copyMap(s.opCounts)
	out.accounts = copyMap(s.accounts)
	return out
}

func copyMap[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: newMemoryState()}
}

// WithinTx runs fn against a snapshot and publishes the snapshot on success.
func (s *MemoryStore) WithinTx(ctx context.Context, fn func(tx ledger.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.state.clone()
	if err := fn(&memoryTx{state: &work}); err != nil {
		return err
	}
	s.state = work
	return nil
}

// CreateAccount stores a new account, rejecting duplicate emails.
func (s *MemoryStore) CreateAccount(ctx context.Context, account *models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.state.accounts {
		if existing.Email == account.Email {
			return fmt.Errorf("account with email %s already exists", account.Email)
		}
	}
	s.state.accounts[account.ID] = *account
	return nil
}

// AccountByEmail returns the account with the given email, or nil.
func (s *MemoryStore) AccountByEmail(ctx context.Context, email string) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, account := range s.state.accounts {
		if account.Email == email {
			out := account
			return &out, nil
		}
	}
	return nil, nil
}

// AccountByID returns the account with the given id, or nil.
func (s *MemoryStore) AccountByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.state.accounts[id]
	if !ok {
		return nil, nil
	}
	out := account
	return &out, nil
}

// memoryTx implements ledger.Tx over a private state snapshot.
type memoryTx struct {
	state *memoryState
}

func (t *memoryTx) Participants() ledger.ParticipantStore { return &memParticipants{t.state} }
func (t *memoryTx) Products() ledger.ProductStore         { return &memProducts{t.state} }
func (t *memoryTx) Tokens() ledger.TokenStore             { return &memTokens{t.state} }
func (t *memoryTx) Submissions() ledger.SubmissionStore   { return &memSubmissions{t.state} }
func (t *memoryTx) Budgets() ledger.BudgetStore           { return &memBudgets{t.state} }
func (t *memoryTx) Credits() ledger.CreditStore           { return &memCredits{t.state} }
func (t *memoryTx) Payments() ledger.PaymentStore         { return &memPayments{t.state} }
func (t *memoryTx) Disclosures() ledger.DisclosureStore   { return &memDisclosures{t.state} }
func (t *memoryTx) RateLimits() ledger.RateLimitStore     { return &memRateLimits{t.state} }
func (t *memoryTx) State() ledger.StateStore              { return &memState{t.state} }

type memParticipants struct{ state *memoryState }

func (r *memParticipants) Get(kind models.ParticipantKind, id models.Identity) (*models.Participant, error) {
	p, ok := r.state.participants[participantKey{kind, id}]
	if !ok {
		return nil, nil
	}
	out := p
	return &out, nil
}

func (r *memParticipants) Put(p *models.Participant) error {
	r.state.participants[participantKey{p.Kind, p.Identity}] = *p
	return nil
}

type memProducts struct{ state *memoryState }

func (r *memProducts) Get(id uint64) (*models.Product, error) {
	p, ok := r.state.products[id]
	if !ok {
		return nil, nil
	}
	out := p
	return &out, nil
}

func (r *memProducts) GetByQR(qr models.QRKey) (*models.Product, error) {
	id, ok := r.state.qrIndex[qr]
	if !ok {
		return nil, nil
	}
	return r.Get(id)
}

func (r *memProducts) Put(p *models.Product) error {
	r.state.products[p.ID] = *p
	r.state.qrIndex[p.QR] = p.ID
	return nil
}

func (r *memProducts) LastID() (uint64, error) {
	return r.state.lastProductID, nil
}

func (r *memProducts) SetLastID(id uint64) error {
	r.state.lastProductID = id
	return nil
}

type memTokens struct{ state *memoryState }

func (r *memTokens) Get(productID uint64) (*models.ProvenanceToken, error) {
	t, ok := r.state.tokens[productID]
	if !ok {
		return nil, nil
	}
	out := t
	return &out, nil
}

func (r *memTokens) Put(t *models.ProvenanceToken) error {
	r.state.tokens[t.ProductID] = *t
	return nil
}

type memSubmissions struct{ state *memoryState }

func (r *memSubmissions) Get(submitter models.Identity, productID uint64, kind models.SubmissionKind) (*models.CarbonSubmission, error) {
	s, ok := r.state.submissions[submissionKey{submitter, productID, kind}]
	if !ok {
		return nil, nil
	}
	out := s
	return &out, nil
}

func (r *memSubmissions) Put(s *models.CarbonSubmission) error {
	r.state.submissions[submissionKey{s.Submitter, s.ProductID, s.Kind}] = *s
	return nil
}

type memBudgets struct{ state *memoryState }

func (r *memBudgets) Get(id models.Identity) (*models.ConsumerBudget, error) {
	b, ok := r.state.budgets[id]
	if !ok {
		return nil, nil
	}
	out := b
	return &out, nil
}

func (r *memBudgets) Put(b *models.ConsumerBudget) error {
	r.state.budgets[b.Identity] = *b
	return nil
}

type memCredits struct{ state *memoryState }

func (r *memCredits) TotalIssued() (uint64, error) {
	return r.state.totalIssued, nil
}

func (r *memCredits) SetTotalIssued(total uint64) error {
	r.state.totalIssued = total
	return nil
}

func (r *memCredits) Balance(id models.Identity) (uint64, error) {
	return r.state.creditBalances[id], nil
}

func (r *memCredits) SetBalance(id models.Identity, balance uint64) error {
	r.state.creditBalances[id] = balance
	return nil
}

type memPayments struct{ state *memoryState }

func (r *memPayments) Balance(id models.Identity) (uint64, error) {
	return r.state.paymentBalances[id], nil
}

func (r *memPayments) SetBalance(id models.Identity, balance uint64) error {
	r.state.paymentBalances[id] = balance
	return nil
}

func (r *memPayments) Transfer(from, to models.Identity, amount uint64) error {
	fromBalance := r.state.paymentBalances[from]
	if fromBalance < amount {
		return fmt.Errorf("%w: %s has %d, needs %d", ledger.ErrInsufficientBalance, from, fromBalance, amount)
	}
	toBalance, err := safemath.Add(r.state.paymentBalances[to], amount)
	if err != nil {
		return err
	}
	r.state.paymentBalances[from] = fromBalance - amount
	r.state.paymentBalances[to] = toBalance
	return nil
}

type memDisclosures struct{ state *memoryState }

func (r *memDisclosures) Get(id models.Identity) (*models.RetailerDisclosure, error) {
	d, ok := r.state.disclosures[id]
	if !ok {
		return nil, nil
	}
	out := d
	return &out, nil
}

func (r *memDisclosures) Put(d *models.RetailerDisclosure) error {
	r.state.disclosures[d.Identity] = *d
	return nil
}

type memRateLimits struct{ state *memoryState }

func (r *memRateLimits) LastOperationBlock(id models.Identity) (uint64, error) {
	return r.state.lastOpBlocks[id], nil
}

func (r *memRateLimits) SetLastOperationBlock(id models.Identity, block uint64) error {
	r.state.lastOpBlocks[id] = block
	return nil
}

func (r *memRateLimits) OpCount(id models.Identity, block uint64) (uint64, error) {
	return r.state.opCounts[opCountKey{id, block}], nil
}

func (r *memRateLimits) SetOpCount(id models.Identity, block uint64, count uint64) error {
	r.state.opCounts[opCountKey{id, block}] = count
	return nil
}

type memState struct{ state *memoryState }

func (r *memState) Paused() (bool, error) {
	return r.state.paused, nil
}

func (r *memState) SetPaused(paused bool) error {
	r.state.paused = paused
	return nil
}
