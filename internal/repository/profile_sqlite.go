package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"profilehub-api/internal/model"

	_ "modernc.org/sqlite" // Pure Go SQLite driver - no CGO required
)

// SQLiteProfileRepository implements ProfileRepository using SQLite.
// Thread-safe with WAL mode for high-concurrency reads. The single-writer
// connection plus the mutex give whole-document read-modify-write the
// last-writer-wins serialization the sync engine assumes.
type SQLiteProfileRepository struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewSQLiteProfileRepository creates a new SQLite profile repository.
// dbPath is the path to the SQLite database file (e.g., "./data/profiles.db")
func NewSQLiteProfileRepository(dbPath string) (*SQLiteProfileRepository, error) {
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=10000&_busy_timeout=5000", dbPath)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite: %w", err)
	}

	// SQLite only supports 1 writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := createProfileTables(db); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	log.Printf("[SQLiteProfileRepository] Initialized with database: %s", dbPath)
	return &SQLiteProfileRepository{db: db}, nil
}

func createProfileTables(db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS profiles (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		account_id TEXT NOT NULL,
		profile_id TEXT NOT NULL,
		rvn INTEGER NOT NULL DEFAULT 0,
		command_revision INTEGER NOT NULL DEFAULT 0,
		document_json TEXT NOT NULL,
		updated_at DATETIME NOT NULL,
		UNIQUE(account_id, profile_id)
	);
	CREATE INDEX IF NOT EXISTS idx_profiles_account ON profiles(account_id);
	CREATE INDEX IF NOT EXISTS idx_profiles_updated ON profiles(updated_at);
	`
	_, err := db.Exec(query)
	return err
}

// GetProfile retrieves a profile document.
func (r *SQLiteProfileRepository) GetProfile(ctx context.Context, accountID string, profileID model.ProfileID) (*model.ProfileDocument, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	query := `SELECT document_json FROM profiles WHERE account_id = ? AND profile_id = ?`

	var docJSON string
	err := r.db.QueryRowContext(ctx, query, accountID, string(profileID)).Scan(&docJSON)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}

	var doc model.ProfileDocument
	if err := json.Unmarshal([]byte(docJSON), &doc); err != nil {
		return nil, fmt.Errorf("failed to decode profile document: %w", err)
	}
	return &doc, nil
}

// SaveProfile inserts or replaces the whole document. The revision columns
// are denormalized for admin queries; the JSON column is authoritative.
func (r *SQLiteProfileRepository) SaveProfile(ctx context.Context, doc *model.ProfileDocument) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	docJSON, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode profile document: %w", err)
	}

	query := `
		INSERT INTO profiles (account_id, profile_id, rvn, command_revision, document_json, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(account_id, profile_id) DO UPDATE SET
			rvn = excluded.rvn,
			command_revision = excluded.command_revision,
			document_json = excluded.document_json,
			updated_at = excluded.updated_at`

	_, err = r.db.ExecContext(ctx, query,
		doc.AccountID, string(doc.ProfileID), doc.Rvn, doc.CommandRevision, string(docJSON), doc.Updated)
	if err != nil {
		return fmt.Errorf("failed to save profile: %w", err)
	}
	return nil
}

// UpdateProfileStats merges attributes into stats.attributes without
// touching the revision pair. Ops tooling only.
func (r *SQLiteProfileRepository) UpdateProfileStats(ctx context.Context, accountID string, profileID model.ProfileID, attrs map[string]interface{}) error {
	return r.modify(ctx, accountID, profileID, func(doc *model.ProfileDocument) {
		if doc.Stats.Attributes == nil {
			doc.Stats.Attributes = make(map[string]interface{})
		}
		for k, v := range attrs {
			doc.Stats.Attributes[k] = v
		}
	})
}

// AddItemToProfile inserts a single item instance.
func (r *SQLiteProfileRepository) AddItemToProfile(ctx context.Context, accountID string, profileID model.ProfileID, itemID string, item *model.Item) error {
	return r.modify(ctx, accountID, profileID, func(doc *model.ProfileDocument) {
		doc.Items[itemID] = item
	})
}

// RemoveItemFromProfile removes a single item instance.
func (r *SQLiteProfileRepository) RemoveItemFromProfile(ctx context.Context, accountID string, profileID model.ProfileID, itemID string) error {
	return r.modify(ctx, accountID, profileID, func(doc *model.ProfileDocument) {
		delete(doc.Items, itemID)
	})
}

// UpdateItemInProfile replaces a single item instance.
func (r *SQLiteProfileRepository) UpdateItemInProfile(ctx context.Context, accountID string, profileID model.ProfileID, itemID string, item *model.Item) error {
	return r.AddItemToProfile(ctx, accountID, profileID, itemID, item)
}

func (r *SQLiteProfileRepository) modify(ctx context.Context, accountID string, profileID model.ProfileID, fn func(*model.ProfileDocument)) error {
	doc, err := r.GetProfile(ctx, accountID, profileID)
	if err != nil {
		return err
	}
	fn(doc)
	doc.Updated = time.Now().UTC()
	return r.SaveProfile(ctx, doc)
}

// GetStats returns statistics about the profile database.
func (r *SQLiteProfileRepository) GetStats(ctx context.Context) (map[string]interface{}, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := make(map[string]interface{})

	var count int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM profiles").Scan(&count); err != nil {
		return nil, err
	}
	stats["total_profiles"] = count

	var accounts int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(DISTINCT account_id) FROM profiles").Scan(&accounts); err == nil {
		stats["total_accounts"] = accounts
	}

	var lastUpdate sql.NullTime
	if err := r.db.QueryRowContext(ctx, "SELECT MAX(updated_at) FROM profiles").Scan(&lastUpdate); err == nil && lastUpdate.Valid {
		stats["last_update"] = lastUpdate.Time
	}

	// Database file size (approximate from page count)
	var pageCount, pageSize int64
	r.db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount)
	r.db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize)
	stats["db_size_bytes"] = pageCount * pageSize

	return stats, nil
}

// Close closes the database connection.
func (r *SQLiteProfileRepository) Close() error {
	return r.db.Close()
}

// Ensure SQLiteProfileRepository implements ProfileRepository
var _ ProfileRepository = (*SQLiteProfileRepository)(nil)
