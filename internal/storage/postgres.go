// Package storage provides the two ledger.Store implementations: PostgreSQL
// for deployments and an in-memory transactional store for tests and
// single-process use. Both also persist API accounts.
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/greentrace/ledger/internal/ledger"
	"github.com/greentrace/ledger/internal/models"
)

// DB wraps the PostgreSQL connection pool.
type DB struct {
	Pool *pgxpool.Pool
}

// New creates a new database connection.
func New(databaseURL string) (*DB, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// Close closes the database connection.
func (db *DB) Close() {
	db.Pool.Close()
}

// Migrate runs database migrations from the given directory.
func (db *DB) Migrate(migrationsPath string) error {
	config := db.Pool.Config().ConnConfig
	databaseURL := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		config.User, config.Password, config.Host, config.Port, config.Database, "disable")

	absPath, err := filepath.Abs(migrationsPath)
	if err != nil {
		return fmt.Errorf("failed to get absolute path: %w", err)
	}
	if _, err := os.Stat(absPath); os.IsNotExist(err) {
		return fmt.Errorf("migrations directory does not exist: %s", absPath)
	}

	m, err := migrate.New("file://"+absPath, databaseURL)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// WithinTx runs fn inside one database transaction. Serializable isolation
// keeps concurrent ledger operations equivalent to some serial order, which
// the rate limiter and the unique qr check rely on.
func (db *DB) WithinTx(ctx context.Context, fn func(tx ledger.Tx) error) error {
	pgtx, err := db.Pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer pgtx.Rollback(ctx)

	if err := fn(&pgTx{ctx: ctx, tx: pgtx}); err != nil {
		return err
	}

	if err := pgtx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// CreateAccount stores a new API account.
func (db *DB) CreateAccount(ctx context.Context, account *models.Account) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO accounts (id, email, password_hash, api_key_hash, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		account.ID, account.Email, account.PasswordHash, account.APIKeyHash, account.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

// AccountByEmail returns the account with the given email, or nil.
func (db *DB) AccountByEmail(ctx context.Context, email string) (*models.Account, error) {
	var account models.Account
	err := db.Pool.QueryRow(ctx, `
		SELECT id, email, password_hash, api_key_hash, created_at
		FROM accounts WHERE email = $1`, email).Scan(
		&account.ID, &account.Email, &account.PasswordHash, &account.APIKeyHash, &account.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return &account, nil
}

// AccountByID returns the account with the given id, or nil.
func (db *DB) AccountByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	var account models.Account
	err := db.Pool.QueryRow(ctx, `
		SELECT id, email, password_hash, api_key_hash, created_at
		FROM accounts WHERE id = $1`, id).Scan(
		&account.ID, &account.Email, &account.PasswordHash, &account.APIKeyHash, &account.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return &account, nil
}
