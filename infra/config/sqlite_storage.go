package config

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/mstgnz/gopaytr/infra/logger"
	"github.com/mstgnz/gopaytr/provider"
)

// ErrProfileNotFound is returned when no credentials are stored for a profile
var ErrProfileNotFound = errors.New("merchant profile not found")

// SQLiteStorage persists merchant credentials per profile
type SQLiteStorage struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

// StoredMerchant is a credential row without its secrets
type StoredMerchant struct {
	Profile    string    `json:"profile"`
	MerchantID string    `json:"merchantId"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// retryOperation executes a database operation with retry logic for SQLITE_BUSY errors
func (s *SQLiteStorage) retryOperation(operation func() error, maxRetries int) error {
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := operation()
		if err == nil {
			return nil
		}

		if !strings.Contains(err.Error(), "SQLITE_BUSY") && !strings.Contains(err.Error(), "database is locked") {
			return err
		}

		lastErr = err
		if attempt < maxRetries {
			// Exponential backoff: 10ms, 20ms, 40ms
			backoff := time.Duration(10*(1<<attempt)) * time.Millisecond
			logger.Warn("SQLite busy, retrying", logger.LogContext{
				Fields: map[string]any{"backoff": backoff.String(), "attempt": attempt + 1},
			})
			time.Sleep(backoff)
		}
	}

	return fmt.Errorf("operation failed after %d retries, last error: %w", maxRetries+1, lastErr)
}

// NewSQLiteStorage opens (and creates when needed) the credential database
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_timeout=20000&_txlock=immediate", dbPath)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)

	storage := &SQLiteStorage{
		db:   db,
		path: dbPath,
	}

	if err := storage.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite credential store initialized", logger.LogContext{
		Fields: map[string]any{"path": dbPath},
	})
	return storage, nil
}

// initSchema creates the necessary tables
func (s *SQLiteStorage) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS merchant_credentials (
		profile TEXT PRIMARY KEY,
		merchant_id TEXT NOT NULL,
		merchant_key TEXT NOT NULL,
		merchant_salt TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`

	_, err := s.db.Exec(query)
	return err
}

// SaveCredentials inserts or replaces the credentials of a profile
func (s *SQLiteStorage) SaveCredentials(profile string, creds provider.Credentials) error {
	if profile == "" {
		return errors.New("profile cannot be empty")
	}
	if !creds.Complete() {
		return provider.ErrMissingCredentials
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.retryOperation(func() error {
		query := `
		INSERT INTO merchant_credentials (profile, merchant_id, merchant_key, merchant_salt, updated_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(profile)
		DO UPDATE SET
			merchant_id = excluded.merchant_id,
			merchant_key = excluded.merchant_key,
			merchant_salt = excluded.merchant_salt,
			updated_at = CURRENT_TIMESTAMP
		`

		if _, err := s.db.Exec(query, profile, creds.MerchantID, creds.MerchantKey, creds.MerchantSalt); err != nil {
			return fmt.Errorf("failed to save credentials: %w", err)
		}

		logger.Info("Saved merchant credentials", logger.LogContext{
			MerchantID: creds.MerchantID,
			Fields:     map[string]any{"profile": profile},
		})
		return nil
	}, 3)
}

// LoadCredentials returns the credentials stored for a profile
func (s *SQLiteStorage) LoadCredentials(profile string) (provider.Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var creds provider.Credentials
	err := s.retryOperation(func() error {
		query := `
		SELECT merchant_id, merchant_key, merchant_salt
		FROM merchant_credentials
		WHERE profile = ?
		`

		err := s.db.QueryRow(query, profile).Scan(&creds.MerchantID, &creds.MerchantKey, &creds.MerchantSalt)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s", ErrProfileNotFound, profile)
		}
		if err != nil {
			return fmt.Errorf("failed to load credentials: %w", err)
		}
		return nil
	}, 3)

	return creds, err
}

// ListProfiles returns every stored profile ordered by name
func (s *SQLiteStorage) ListProfiles() ([]StoredMerchant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`SELECT profile, merchant_id, updated_at FROM merchant_credentials ORDER BY profile`)
	if err != nil {
		return nil, fmt.Errorf("failed to query profiles: %w", err)
	}
	defer rows.Close()

	var merchants []StoredMerchant
	for rows.Next() {
		var m StoredMerchant
		if err := rows.Scan(&m.Profile, &m.MerchantID, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		merchants = append(merchants, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return merchants, nil
}

// DeleteCredentials removes a profile
func (s *SQLiteStorage) DeleteCredentials(profile string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.retryOperation(func() error {
		result, err := s.db.Exec(`DELETE FROM merchant_credentials WHERE profile = ?`, profile)
		if err != nil {
			return fmt.Errorf("failed to delete credentials: %w", err)
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rowsAffected == 0 {
			return fmt.Errorf("%w: %s", ErrProfileNotFound, profile)
		}

		logger.Info("Deleted merchant credentials", logger.LogContext{
			Fields: map[string]any{"profile": profile},
		})
		return nil
	}, 3)
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// GetStats returns database statistics
func (s *SQLiteStorage) GetStats() (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := make(map[string]any)

	var profiles int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM merchant_credentials").Scan(&profiles); err != nil {
		return nil, fmt.Errorf("failed to count profiles: %w", err)
	}
	stats["total_profiles"] = profiles

	if fileInfo, err := os.Stat(s.path); err == nil {
		stats["db_size_bytes"] = fileInfo.Size()
	}
	stats["db_path"] = s.path

	return stats, nil
}
