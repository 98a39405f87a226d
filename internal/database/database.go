package database

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/franckalain/medtrack/internal/logger"
	"github.com/franckalain/medtrack/internal/models"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaFS embed.FS

// DB interface defines the methods our database should implement
type DB interface {
	SaveMedicine(ctx context.Context, m *models.Medicine) error
	GetMedicine(ctx context.Context, id string) (*models.Medicine, error)
	DeleteMedicine(ctx context.Context, id string) (bool, error)
	ListMedicines(ctx context.Context) ([]*models.Medicine, error)
	SaveCaptureScan(ctx context.Context, scan *models.CaptureScan) error
	ListCaptureScans(ctx context.Context, limit int) ([]*models.CaptureScan, error)
	Close() error
}

// SQLiteDB implements the DB interface
type SQLiteDB struct {
	db *sql.DB
}

// NewSQLiteDB creates a new SQLite database connection
func NewSQLiteDB(dbPath string) (*SQLiteDB, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	// Enable foreign keys and WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("error enabling foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("error enabling WAL mode: %w", err)
	}

	if err := initializeSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("error initializing schema: %w", err)
	}

	return &SQLiteDB{db: db}, nil
}

func initializeSchema(db *sql.DB) error {
	schemaBytes, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return fmt.Errorf("error reading schema file: %w", err)
	}

	if _, err := db.Exec(string(schemaBytes)); err != nil {
		return fmt.Errorf("error executing schema: %w", err)
	}

	log := logger.WithComponent("database")
	log.Debug().Msg("database schema initialized")
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid stored timestamp %q: %w", s, err)
	}
	return t, nil
}

// SaveMedicine inserts or replaces a medicine. added_date is kept from the
// first insert.
func (s *SQLiteDB) SaveMedicine(ctx context.Context, m *models.Medicine) error {
	query := `
		INSERT INTO medicines (
			id, name, expiry_date, dosage, quantity, added_date, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			expiry_date = excluded.expiry_date,
			dosage = excluded.dosage,
			quantity = excluded.quantity,
			updated_at = excluded.updated_at
	`

	if m.UpdatedAt.IsZero() {
		m.UpdatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, query,
		m.ID, m.Name, m.ExpiryDate, m.Dosage, m.Quantity,
		m.AddedDate, formatTime(m.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("error saving medicine %s: %w", m.ID, err)
	}
	return nil
}

const medicineColumns = `id, name, expiry_date, dosage, quantity, added_date, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMedicine(row rowScanner) (*models.Medicine, error) {
	var m models.Medicine
	var updatedAt string
	if err := row.Scan(&m.ID, &m.Name, &m.ExpiryDate, &m.Dosage, &m.Quantity, &m.AddedDate, &updatedAt); err != nil {
		return nil, err
	}
	t, err := parseTime(updatedAt)
	if err != nil {
		return nil, err
	}
	m.UpdatedAt = t
	return &m, nil
}

// GetMedicine returns nil, nil when no medicine has the id
func (s *SQLiteDB) GetMedicine(ctx context.Context, id string) (*models.Medicine, error) {
	query := `SELECT ` + medicineColumns + ` FROM medicines WHERE id = ?`

	m, err := scanMedicine(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error reading medicine %s: %w", id, err)
	}
	return m, nil
}

// DeleteMedicine reports whether a row was removed
func (s *SQLiteDB) DeleteMedicine(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM medicines WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("error deleting medicine %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListMedicines returns every medicine ordered by added date. Display
// ordering is the caller's concern.
func (s *SQLiteDB) ListMedicines(ctx context.Context) ([]*models.Medicine, error) {
	query := `SELECT ` + medicineColumns + ` FROM medicines ORDER BY added_date, id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("error listing medicines: %w", err)
	}
	defer rows.Close()

	var results []*models.Medicine
	for rows.Next() {
		m, err := scanMedicine(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, m)
	}
	return results, rows.Err()
}

// SaveCaptureScan records a finished capture session
func (s *SQLiteDB) SaveCaptureScan(ctx context.Context, scan *models.CaptureScan) error {
	query := `
		INSERT OR REPLACE INTO capture_scans (
			id, connection_id, target, state, text, error, frame_bytes, created_at, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	now := time.Now()
	if scan.CreatedAt.IsZero() {
		scan.CreatedAt = now
	}
	if scan.FinishedAt.IsZero() {
		scan.FinishedAt = now
	}

	_, err := s.db.ExecContext(ctx, query,
		scan.ID, scan.ConnectionID, scan.Target, scan.State, scan.Text, scan.Error,
		scan.FrameBytes, formatTime(scan.CreatedAt), formatTime(scan.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("error saving capture scan %s: %w", scan.ID, err)
	}
	return nil
}

// ListCaptureScans retrieves the most recent capture scans
func (s *SQLiteDB) ListCaptureScans(ctx context.Context, limit int) ([]*models.CaptureScan, error) {
	query := `
		SELECT id, connection_id, target, state, text, error, frame_bytes, created_at, finished_at
		FROM capture_scans
		ORDER BY finished_at DESC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("error listing capture scans: %w", err)
	}
	defer rows.Close()

	var results []*models.CaptureScan
	for rows.Next() {
		var scan models.CaptureScan
		var createdAt, finishedAt string

		err := rows.Scan(
			&scan.ID, &scan.ConnectionID, &scan.Target, &scan.State, &scan.Text,
			&scan.Error, &scan.FrameBytes, &createdAt, &finishedAt,
		)
		if err != nil {
			return nil, err
		}

		if scan.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		if scan.FinishedAt, err = parseTime(finishedAt); err != nil {
			return nil, err
		}

		results = append(results, &scan)
	}

	return results, rows.Err()
}

// Close closes the database connection
func (s *SQLiteDB) Close() error {
	return s.db.Close()
}
