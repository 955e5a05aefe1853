package receipt

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
)

const sqlSchema = `
CREATE TABLE IF NOT EXISTS belege (
	id             TEXT PRIMARY KEY,
	vendor         TEXT NOT NULL DEFAULT '',
	date           TEXT NOT NULL DEFAULT '',
	invoice_number TEXT NOT NULL DEFAULT '',
	document_type  TEXT NOT NULL DEFAULT '',
	gross_amount   TEXT,
	vat_rate       TEXT,
	net_amount     TEXT,
	file_name      TEXT NOT NULL DEFAULT '',
	created_at     DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_belege_created_at ON belege(created_at);
`

const receiptColumns = `id, vendor, date, invoice_number, document_type, gross_amount, vat_rate, net_amount, file_name, created_at`

// SQLDB implements the DB interface on a SQL database
type SQLDB struct {
	db *sql.DB
}

// NewSQLiteDB opens (or creates) a SQLite database at path
func NewSQLiteDB(path string) (*SQLDB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite: %w", err)
	}
	if _, err := db.Exec(sqlSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return NewSQLDB(db), nil
}

// NewSQLDB wraps an open database whose schema already exists
func NewSQLDB(db *sql.DB) *SQLDB {
	return &SQLDB{db: db}
}

// SaveReceipt inserts or replaces a receipt
func (s *SQLDB) SaveReceipt(r *Receipt) error {
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO belege (`+receiptColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Vendor, r.Date, r.InvoiceNumber, r.DocumentType,
		nullDecimal(r.GrossAmount), nullDecimal(r.VATRate), nullDecimal(r.NetAmount),
		r.FileName, r.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("inserting receipt: %w", err)
	}
	return nil
}

// GetReceipt retrieves a receipt by ID
func (s *SQLDB) GetReceipt(id string) (*Receipt, error) {
	row := s.db.QueryRow(`SELECT `+receiptColumns+` FROM belege WHERE id = ?`, id)
	r, err := scanReceipt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("receipt %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying receipt: %w", err)
	}
	return r, nil
}

// ListReceipts returns all receipts ordered by creation time
func (s *SQLDB) ListReceipts() ([]*Receipt, error) {
	rows, err := s.db.Query(`SELECT ` + receiptColumns + ` FROM belege ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("querying receipts: %w", err)
	}
	defer rows.Close()

	receipts := make([]*Receipt, 0)
	for rows.Next() {
		r, err := scanReceipt(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning receipt: %w", err)
		}
		receipts = append(receipts, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating receipts: %w", err)
	}
	return receipts, nil
}

// DeleteReceipt removes a receipt from the database
func (s *SQLDB) DeleteReceipt(id string) error {
	res, err := s.db.Exec(`DELETE FROM belege WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting receipt: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting receipt: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("receipt %s: %w", id, ErrNotFound)
	}
	return nil
}

// Close closes the database connection
func (s *SQLDB) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReceipt(row rowScanner) (*Receipt, error) {
	var (
		r               Receipt
		gross, vat, net decimal.NullDecimal
		createdAt       time.Time
	)
	err := row.Scan(&r.ID, &r.Vendor, &r.Date, &r.InvoiceNumber, &r.DocumentType,
		&gross, &vat, &net, &r.FileName, &createdAt)
	if err != nil {
		return nil, err
	}
	r.GrossAmount = decimalPtr(gross)
	r.VATRate = decimalPtr(vat)
	r.NetAmount = decimalPtr(net)
	r.CreatedAt = createdAt
	return &r, nil
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(*d)
}

func decimalPtr(d decimal.NullDecimal) *decimal.Decimal {
	if !d.Valid {
		return nil
	}
	v := d.Decimal
	return &v
}
