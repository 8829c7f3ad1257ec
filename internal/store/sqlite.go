package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/motdiem/email-kanban/internal/model"
)

// SQLiteStore implements the Store interface using a local SQLite database.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// CreateAccount inserts a new account record.
func (s *SQLiteStore) CreateAccount(ctx context.Context, account model.Account) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (
			id, provider, display_name, email, color_tag, sort_order,
			credential_ref, shared_mailbox, gmail_user_index,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		account.ID, string(account.Provider), account.DisplayName,
		account.Email, account.ColorTag, account.SortOrder,
		account.CredentialRef, account.SharedMailbox, account.GmailUserIndex,
		account.CreatedAt.UTC(), account.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("creating account %s: %w", account.ID, err)
	}
	return nil
}

// GetAccount retrieves an account by ID.
func (s *SQLiteStore) GetAccount(ctx context.Context, id string) (*model.Account, error) {
	var account model.Account
	err := s.db.GetContext(ctx, &account, "SELECT * FROM accounts WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("account %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying account %s: %w", id, err)
	}
	return &account, nil
}

// ListAccounts retrieves all accounts ordered by their board position.
func (s *SQLiteStore) ListAccounts(ctx context.Context) ([]model.Account, error) {
	var accounts []model.Account
	err := s.db.SelectContext(ctx, &accounts,
		"SELECT * FROM accounts ORDER BY sort_order, created_at",
	)
	if err != nil {
		return nil, fmt.Errorf("querying accounts: %w", err)
	}
	return accounts, nil
}

// UpdateAccount persists changes to an existing account.
func (s *SQLiteStore) UpdateAccount(ctx context.Context, account model.Account) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE accounts SET
			display_name = ?, email = ?, color_tag = ?, sort_order = ?,
			shared_mailbox = ?, gmail_user_index = ?, updated_at = ?
		WHERE id = ?`,
		account.DisplayName, account.Email, account.ColorTag, account.SortOrder,
		account.SharedMailbox, account.GmailUserIndex, time.Now().UTC(),
		account.ID,
	)
	if err != nil {
		return fmt.Errorf("updating account %s: %w", account.ID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating account %s: %w", account.ID, err)
	}
	if affected == 0 {
		return fmt.Errorf("account %s: %w", account.ID, ErrNotFound)
	}
	return nil
}

// DeleteAccount removes an account record.
func (s *SQLiteStore) DeleteAccount(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM accounts WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting account %s: %w", id, err)
	}
	return nil
}

// ReorderAccounts assigns sort_order by position in orderedIDs inside a
// single transaction. orderedIDs must name every account exactly once.
func (s *SQLiteStore) ReorderAccounts(ctx context.Context, orderedIDs []string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var total int
	if err := tx.GetContext(ctx, &total, "SELECT COUNT(*) FROM accounts"); err != nil {
		return fmt.Errorf("counting accounts: %w", err)
	}
	if total != len(orderedIDs) {
		return fmt.Errorf("reorder: got %d ids, want %d", len(orderedIDs), total)
	}
	seen := make(map[string]struct{}, len(orderedIDs))
	for _, id := range orderedIDs {
		if _, dup := seen[id]; dup {
			return fmt.Errorf("reorder: duplicate id %s", id)
		}
		seen[id] = struct{}{}
	}

	stmt, err := tx.PreparexContext(ctx,
		"UPDATE accounts SET sort_order = ?, updated_at = ? WHERE id = ?",
	)
	if err != nil {
		return fmt.Errorf("preparing reorder statement: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for position, id := range orderedIDs {
		res, err := stmt.ExecContext(ctx, position, now, id)
		if err != nil {
			return fmt.Errorf("reordering account %s: %w", id, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("reordering account %s: %w", id, err)
		}
		if affected == 0 {
			return fmt.Errorf("reorder: account %s: %w", id, ErrNotFound)
		}
	}

	return tx.Commit()
}

// PutCredential stores or replaces an account's encrypted credential blob.
func (s *SQLiteStore) PutCredential(ctx context.Context, accountID string, blob []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO credentials (account_id, blob, updated_at)
		VALUES (?, ?, ?)`,
		accountID, blob, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("storing credential for %s: %w", accountID, err)
	}
	return nil
}

// GetCredential retrieves an account's encrypted credential blob.
func (s *SQLiteStore) GetCredential(ctx context.Context, accountID string) ([]byte, error) {
	var blob []byte
	err := s.db.GetContext(ctx, &blob,
		"SELECT blob FROM credentials WHERE account_id = ?", accountID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("credential for %s: %w", accountID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying credential for %s: %w", accountID, err)
	}
	return blob, nil
}

// DeleteCredential removes an account's credential blob.
func (s *SQLiteStore) DeleteCredential(ctx context.Context, accountID string) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM credentials WHERE account_id = ?", accountID,
	)
	if err != nil {
		return fmt.Errorf("deleting credential for %s: %w", accountID, err)
	}
	return nil
}

// ReplaceSnapshot replaces the account's cached items wholesale and
// records the fetch time, all in one transaction.
func (s *SQLiteStore) ReplaceSnapshot(ctx context.Context, accountID string, items []model.Item, fetchedAt time.Time) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM items WHERE account_id = ?", accountID); err != nil {
		return fmt.Errorf("clearing items for %s: %w", accountID, err)
	}

	stmt, err := tx.PreparexContext(ctx, `
		INSERT OR REPLACE INTO items (
			id, account_id, kind, title, sender,
			project_id, project_name, timestamp, due_date,
			status, web_link, raw_data
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("preparing item insert: %w", err)
	}
	defer stmt.Close()

	for _, it := range items {
		var due interface{}
		if it.DueDate != nil {
			due = it.DueDate.UTC()
		}
		var ts interface{}
		if !it.Timestamp.IsZero() {
			ts = it.Timestamp.UTC()
		}
		_, err = stmt.ExecContext(ctx,
			it.ID, accountID, string(it.Kind), it.Title, it.Sender,
			it.ProjectID, it.ProjectName, ts, due,
			it.Status, it.WebLink, it.RawData,
		)
		if err != nil {
			return fmt.Errorf("inserting item %s: %w", it.ID, err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO snapshots (account_id, fetched_at)
		VALUES (?, ?)`,
		accountID, fetchedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("recording snapshot for %s: %w", accountID, err)
	}

	return tx.Commit()
}

// GetSnapshot retrieves the account's cached items and fetch time.
func (s *SQLiteStore) GetSnapshot(ctx context.Context, accountID string) (*Snapshot, error) {
	var fetchedAt time.Time
	err := s.db.GetContext(ctx, &fetchedAt,
		"SELECT fetched_at FROM snapshots WHERE account_id = ?", accountID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("snapshot for %s: %w", accountID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying snapshot for %s: %w", accountID, err)
	}

	rows, err := s.db.QueryxContext(ctx,
		"SELECT * FROM items WHERE account_id = ? ORDER BY timestamp DESC", accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying items for %s: %w", accountID, err)
	}
	defer rows.Close()

	snapshot := &Snapshot{AccountID: accountID, FetchedAt: fetchedAt}
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		snapshot.Items = append(snapshot.Items, item)
	}

	return snapshot, rows.Err()
}

// UpdateItemStatus patches one cached item's status in place.
func (s *SQLiteStore) UpdateItemStatus(ctx context.Context, accountID, itemID, status string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE items SET status = ? WHERE account_id = ? AND id = ?",
		status, accountID, itemID,
	)
	if err != nil {
		return fmt.Errorf("updating item %s: %w", itemID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating item %s: %w", itemID, err)
	}
	if affected == 0 {
		return fmt.Errorf("item %s: %w", itemID, ErrNotFound)
	}
	return nil
}

// DeleteSnapshot drops the account's cached items and snapshot record.
func (s *SQLiteStore) DeleteSnapshot(ctx context.Context, accountID string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM items WHERE account_id = ?", accountID); err != nil {
		return fmt.Errorf("deleting items for %s: %w", accountID, err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM snapshots WHERE account_id = ?", accountID); err != nil {
		return fmt.Errorf("deleting snapshot for %s: %w", accountID, err)
	}

	return tx.Commit()
}

// scanItem scans an item row from a sqlx.Rows result set.
func scanItem(rows *sqlx.Rows) (model.Item, error) {
	var (
		item      model.Item
		kind      string
		timestamp sql.NullTime
		dueDate   sql.NullTime
	)

	err := rows.Scan(
		&item.ID, &item.AccountID, &kind, &item.Title, &item.Sender,
		&item.ProjectID, &item.ProjectName, &timestamp, &dueDate,
		&item.Status, &item.WebLink, &item.RawData,
	)
	if err != nil {
		return model.Item{}, fmt.Errorf("scanning item row: %w", err)
	}

	item.Kind = model.ItemKind(kind)
	if timestamp.Valid {
		item.Timestamp = timestamp.Time
	}
	if dueDate.Valid {
		due := dueDate.Time
		item.DueDate = &due
	}

	return item, nil
}
