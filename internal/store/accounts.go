package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// CreateAccount inserts a new account. It is an error to reuse a
// friendly_name or a view_key_fingerprint; the store rejects both so
// duplicate imports are caught at creation time (minotari spec §3).
func (s *Store) CreateAccount(ctx context.Context, a *Account) (int64, error) {
	var parentID interface{}
	if a.Parent != nil {
		parentID = a.Parent.AccountID
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (friendly_name, encrypted_view_key, encrypted_spend_pubkey,
			nonce, view_key_fingerprint, birthday, parent_account_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.FriendlyName, a.EncryptedViewKey, a.EncryptedSpendPubKey, a.Nonce,
		a.ViewKeyFingerprint[:], a.Birthday, parentID,
	)
	if err != nil {
		if isUniqueViolation(err, "accounts.friendly_name") {
			return 0, ErrDuplicateFriendlyName
		}
		if isUniqueViolation(err, "accounts.view_key_fingerprint") {
			return 0, ErrDuplicateViewKey
		}
		return 0, fmt.Errorf("store: create account: %w", err)
	}
	return res.LastInsertId()
}

// GetAccount fetches an account by id.
func (s *Store) GetAccount(ctx context.Context, id int64) (*Account, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, friendly_name, encrypted_view_key, encrypted_spend_pubkey, nonce,
			view_key_fingerprint, birthday, parent_account_id
		FROM accounts WHERE id = ?`, id)
	return scanAccount(row)
}

// ListAccounts returns every account, parents and children alike.
func (s *Store) ListAccounts(ctx context.Context) ([]*Account, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, friendly_name, encrypted_view_key, encrypted_spend_pubkey, nonce,
			view_key_fingerprint, birthday, parent_account_id
		FROM accounts ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("store: list accounts: %w", err)
	}
	defer rows.Close()

	var out []*Account
	for rows.Next() {
		a, err := scanAccountRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// RenameAccount updates an account's friendly_name, returning the prior
// name so callers can emit an audit log line (minotari SPEC_FULL §3.2).
func (s *Store) RenameAccount(ctx context.Context, id int64, newName string) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	var prior string
	row := tx.QueryRowContext(ctx, `SELECT friendly_name FROM accounts WHERE id = ?`, id)
	if err := row.Scan(&prior); err != nil {
		if err == sql.ErrNoRows {
			return "", ErrNotFound
		}
		return "", err
	}

	if _, err := tx.ExecContext(ctx, `UPDATE accounts SET friendly_name = ? WHERE id = ?`, newName, id); err != nil {
		if isUniqueViolation(err, "accounts.friendly_name") {
			return "", ErrDuplicateFriendlyName
		}
		return "", err
	}

	return prior, tx.Commit()
}

func scanAccount(row *sql.Row) (*Account, error) {
	a := &Account{}
	var fingerprint []byte
	var parentID sql.NullInt64

	err := row.Scan(&a.ID, &a.FriendlyName, &a.EncryptedViewKey, &a.EncryptedSpendPubKey,
		&a.Nonce, &fingerprint, &a.Birthday, &parentID)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: scan account: %w", err)
	}
	copy(a.ViewKeyFingerprint[:], fingerprint)
	if parentID.Valid {
		a.Parent = &ParentRef{AccountID: parentID.Int64}
	}
	return a, nil
}

func scanAccountRow(rows *sql.Rows) (*Account, error) {
	a := &Account{}
	var fingerprint []byte
	var parentID sql.NullInt64

	err := rows.Scan(&a.ID, &a.FriendlyName, &a.EncryptedViewKey, &a.EncryptedSpendPubKey,
		&a.Nonce, &fingerprint, &a.Birthday, &parentID)
	if err != nil {
		return nil, fmt.Errorf("store: scan account row: %w", err)
	}
	copy(a.ViewKeyFingerprint[:], fingerprint)
	if parentID.Valid {
		a.Parent = &ParentRef{AccountID: parentID.Int64}
	}
	return a, nil
}

// isUniqueViolation reports whether err is a sqlite UNIQUE constraint
// failure mentioning column. go-sqlite3 formats these as
// "UNIQUE constraint failed: <table>.<column>".
func isUniqueViolation(err error, column string) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed") &&
		strings.Contains(err.Error(), column)
}
