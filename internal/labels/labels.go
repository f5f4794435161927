// Package labels keeps a local cache of QR label keys generated by the
// greentrace command line tool, so operators can re-print or track labels
// without the ledger.
package labels

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Label is one generated product label
type Label struct {
	QRKey     string
	ProductID uint64
	Name      string
	CreatedAt time.Time
}

// DB wraps the SQLite database connection
type DB struct {
	Conn *sql.DB
}

// New creates a new SQLite database connection and ensures the schema exists
func New(dbPath string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS labels (
		qr_key TEXT PRIMARY KEY,
		product_id INTEGER NOT NULL,
		name TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_labels_product_id ON labels(product_id);
	`
	if _, err := conn.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &DB{Conn: conn}, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.Conn.Close()
}

// Save stores a label, replacing any previous entry for the same key
func (db *DB) Save(label *Label) error {
	query := `INSERT OR REPLACE INTO labels (qr_key, product_id, name, created_at) VALUES (?, ?, ?, ?)`
	createdAt := label.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := db.Conn.Exec(query, label.QRKey, label.ProductID, label.Name, createdAt)
	if err != nil {
		return fmt.Errorf("failed to save label: %w", err)
	}
	return nil
}

// Get retrieves a label by its QR key
func (db *DB) Get(qrKey string) (*Label, error) {
	query := `SELECT qr_key, product_id, name, created_at FROM labels WHERE qr_key = ?`
	label := &Label{}
	err := db.Conn.QueryRow(query, qrKey).Scan(&label.QRKey, &label.ProductID, &label.Name, &label.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get label: %w", err)
	}
	return label, nil
}

// List returns all cached labels, newest first
func (db *DB) List() ([]*Label, error) {
	query := `SELECT qr_key, product_id, name, created_at FROM labels ORDER BY created_at DESC`
	rows, err := db.Conn.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list labels: %w", err)
	}
	defer rows.Close()

	var labels []*Label
	for rows.Next() {
		label := &Label{}
		if err := rows.Scan(&label.QRKey, &label.ProductID, &label.Name, &label.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan label: %w", err)
		}
		labels = append(labels, label)
	}
	return labels, rows.Err()
}

// Count returns the number of cached labels
func (db *DB) Count() (int64, error) {
	var count int64
	err := db.Conn.QueryRow(`SELECT COUNT(*) FROM labels`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count labels: %w", err)
	}
	return count, nil
}
