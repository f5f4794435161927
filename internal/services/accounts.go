package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/greentrace/ledger/internal/ledger"
	"github.com/greentrace/ledger/internal/middleware"
	"github.com/greentrace/ledger/internal/models"
	"github.com/greentrace/ledger/internal/safemath"
)

// BaseUnitsPerUSD is the mock on-ramp conversion rate for deposits.
const BaseUnitsPerUSD = 1_000_000

// AccountStore persists API accounts. Reads of absent accounts return nil.
type AccountStore interface {
	CreateAccount(ctx context.Context, account *models.Account) error
	AccountByEmail(ctx context.Context, email string) (*models.Account, error)
	AccountByID(ctx context.Context, id uuid.UUID) (*models.Account, error)
}

// AccountService handles account registration, login and payment funding
type AccountService struct {
	accounts AccountStore
	store    ledger.Store
}

// NewAccountService creates a new account service
func NewAccountService(accounts AccountStore, store ledger.Store) *AccountService {
	return &AccountService{accounts: accounts, store: store}
}

// RegisterAccountRequest represents a registration request
type RegisterAccountRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
}

// LoginRequest represents a login request
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// DepositRequest represents a payment funding request
type DepositRequest struct {
	AmountUSD int64 `json:"amount_usd"`
}

// Register creates a new account and returns it with the plaintext API key,
// which is shown exactly once.
func (s *AccountService) Register(ctx context.Context, req RegisterAccountRequest) (*models.Account, string, error) {
	existing, err := s.accounts.AccountByEmail(ctx, req.Email)
	if err != nil {
		return nil, "", fmt.Errorf("failed to check account existence: %w", err)
	}
	if existing != nil {
		return nil, "", fmt.Errorf("account already exists")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", fmt.Errorf("failed to hash password: %w", err)
	}

	apiKey, err := generateAPIKey()
	if err != nil {
		return nil, "", err
	}

	account := &models.Account{
		ID:           uuid.New(),
		Email:        req.Email,
		PasswordHash: string(hash),
		APIKeyHash:   middleware.HashAPIKey(apiKey),
		CreatedAt:    time.Now().UTC(),
	}

	if err := s.accounts.CreateAccount(ctx, account); err != nil {
		return nil, "", fmt.Errorf("failed to create account: %w", err)
	}

	return account, apiKey, nil
}

// Login authenticates an account
func (s *AccountService) Login(ctx context.Context, req LoginRequest) (*models.Account, error) {
	account, err := s.accounts.AccountByEmail(ctx, req.Email)
	if err != nil || account == nil {
		return nil, fmt.Errorf("invalid credentials")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(req.Password)); err != nil {
		return nil, fmt.Errorf("invalid credentials")
	}

	return account, nil
}

// Account retrieves an account by id
func (s *AccountService) Account(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	account, err := s.accounts.AccountByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	if account == nil {
		return nil, fmt.Errorf("account not found")
	}
	return account, nil
}

// APIKeyHash retrieves the stored API key hash for middleware lookups.
func (s *AccountService) APIKeyHash(accountID string) (string, error) {
	id, err := uuid.Parse(accountID)
	if err != nil {
		return "", fmt.Errorf("invalid account id")
	}
	account, err := s.accounts.AccountByID(context.Background(), id)
	if err != nil || account == nil {
		return "", fmt.Errorf("account not found")
	}
	return account.APIKeyHash, nil
}

// Deposit credits the identity's payment balance from the mock on-ramp and
// returns the new balance.
func (s *AccountService) Deposit(ctx context.Context, identity models.Identity, req DepositRequest) (uint64, error) {
	if req.AmountUSD <= 0 {
		return 0, fmt.Errorf("%w: deposit must be positive", ledger.ErrInvalidAmount)
	}
	amount, err := safemath.Mul(uint64(req.AmountUSD), BaseUnitsPerUSD)
	if err != nil {
		return 0, err
	}

	var balance uint64
	err = s.store.WithinTx(ctx, func(tx ledger.Tx) error {
		current, err := tx.Payments().Balance(identity)
		if err != nil {
			return err
		}
		balance, err = safemath.Add(current, amount)
		if err != nil {
			return err
		}
		return tx.Payments().SetBalance(identity, balance)
	})
	if err != nil {
		return 0, err
	}
	return balance, nil
}

// PaymentBalance returns the identity's payment balance in base units.
func (s *AccountService) PaymentBalance(ctx context.Context, identity models.Identity) (uint64, error) {
	var balance uint64
	err := s.store.WithinTx(ctx, func(tx ledger.Tx) error {
		var err error
		balance, err = tx.Payments().Balance(identity)
		return err
	})
	if err != nil {
		return 0, err
	}
	return balance, nil
}

func generateAPIKey() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate api key: %w", err)
	}
	return hex.EncodeToString(bytes), nil
}
