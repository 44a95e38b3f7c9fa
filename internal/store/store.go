// Package store is the single source of truth for the wallet backend's
// persistent state: accounts, outputs, inputs, balance changes, scanned
// tips, pending/completed/displayed transactions, events, and the webhook
// delivery queue. It is backed by sqlite, following the single-writer,
// many-reader pattern used throughout the example pack's sqlite-backed
// stores (grounded on the Klingon storage package: WAL mode, a capped
// connection pool, one schema-init call at open time).
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/decred/slog"
)

// log is the package-level subsystem logger. It is a no-op until UseLogger
// is called by the daemon's SetupLoggers.
var log = slog.Disabled

// UseLogger sets the package-wide logger used by Store.
func UseLogger(logger slog.Logger) {
	log = logger
}

// Store is the durable relational state backing the wallet. All multi-row
// state changes happen inside one *sql.Tx, obtained via BeginTx, so that a
// failure midway never leaves partial state observable (minotari spec §4.1).
type Store struct {
	db *sql.DB
}

// execer is satisfied by both *sql.DB and *sql.Tx, letting every entity
// method below run either standalone or as part of a caller-managed
// transaction.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Open creates (if necessary) and opens the sqlite database at path,
// initializing its schema on first use. Schema migrations are forward-only:
// schema_version tracks the last applied migration and new ones are applied
// in ascending order.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("store: create data dir: %w", err)
		}
	}

	dsn := path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ping database: %w", err)
	}

	// sqlite supports a single writer; serialize all access through one
	// connection so reads never race a write transaction's fsync.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}

	return s, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB. Exposed for tests that need to assert
// on raw rows.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Tx wraps a *sql.Tx so entity methods can be called uniformly against
// either a Store or an in-flight transaction.
type Tx struct {
	tx *sql.Tx
}

// BeginTx starts a new write transaction. Callers must Commit or Rollback
// it; per minotari spec §4.1, one transaction covers one scanned block or
// one outbound state transition.
func (s *Store) BeginTx(ctx context.Context) (*Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: begin tx: %w", err)
	}
	return &Tx{tx: tx}, nil
}

// Commit commits the transaction.
func (t *Tx) Commit() error {
	return t.tx.Commit()
}

// Rollback aborts the transaction. Calling it after a successful Commit is
// a no-op error that callers should ignore (standard database/sql
// semantics); the typical pattern is `defer tx.Rollback()` immediately
// after BeginTx.
func (t *Tx) Rollback() error {
	return t.tx.Rollback()
}

const schemaVersion = 1

func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return err
	}

	var current int
	row := s.db.QueryRow(`SELECT version FROM schema_version LIMIT 1`)
	switch err := row.Scan(&current); err {
	case sql.ErrNoRows:
		current = 0
	case nil:
	default:
		return err
	}

	migrations := []func(*sql.Tx) error{
		migration001InitialSchema,
	}

	for i := current; i < len(migrations); i++ {
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		if err := migrations[i](tx); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
		if _, err := tx.Exec(`DELETE FROM schema_version`); err != nil {
			tx.Rollback()
			return err
		}
		if _, err := tx.Exec(`INSERT INTO schema_version (version) VALUES (?)`, i+1); err != nil {
			tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		log.Infof("applied schema migration %d", i+1)
	}

	return nil
}

func migration001InitialSchema(tx *sql.Tx) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS accounts (
		id                      INTEGER PRIMARY KEY AUTOINCREMENT,
		friendly_name           TEXT NOT NULL UNIQUE,
		encrypted_view_key      BLOB NOT NULL,
		encrypted_spend_pubkey  BLOB NOT NULL,
		nonce                   BLOB NOT NULL,
		view_key_fingerprint    BLOB NOT NULL UNIQUE,
		birthday                INTEGER NOT NULL,
		parent_account_id       INTEGER REFERENCES accounts(id)
	);

	CREATE TABLE IF NOT EXISTS outputs (
		id                      INTEGER PRIMARY KEY AUTOINCREMENT,
		account_id              INTEGER NOT NULL REFERENCES accounts(id),
		output_hash             BLOB NOT NULL,
		mined_height            INTEGER NOT NULL,
		mined_block_hash        BLOB NOT NULL,
		value                   INTEGER NOT NULL,
		wallet_output_blob      BLOB NOT NULL,
		memo_parsed             TEXT NOT NULL DEFAULT '',
		memo_hex                TEXT NOT NULL DEFAULT '',
		confirmed_height        INTEGER,
		status                  INTEGER NOT NULL DEFAULT 0,
		locked_by_request_id    TEXT,
		locked_at               TIMESTAMP,
		deleted_at              TIMESTAMP,
		deleted_in_block_height INTEGER,
		UNIQUE(account_id, output_hash)
	);
	CREATE INDEX IF NOT EXISTS idx_outputs_account_status ON outputs(account_id, status) WHERE deleted_at IS NULL;
	CREATE INDEX IF NOT EXISTS idx_outputs_mined_height ON outputs(account_id, mined_height);
	CREATE INDEX IF NOT EXISTS idx_outputs_hash ON outputs(account_id, output_hash);

	CREATE TABLE IF NOT EXISTS inputs (
		id                   INTEGER PRIMARY KEY AUTOINCREMENT,
		account_id           INTEGER NOT NULL REFERENCES accounts(id),
		output_id            INTEGER NOT NULL REFERENCES outputs(id),
		mined_in_block_height INTEGER NOT NULL,
		mined_in_block_hash  BLOB NOT NULL,
		mined_timestamp      TIMESTAMP NOT NULL,
		deleted_at           TIMESTAMP
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_inputs_output_active ON inputs(output_id) WHERE deleted_at IS NULL;

	CREATE TABLE IF NOT EXISTS balance_changes (
		id                          INTEGER PRIMARY KEY AUTOINCREMENT,
		account_id                  INTEGER NOT NULL REFERENCES accounts(id),
		caused_by_output_id         INTEGER REFERENCES outputs(id),
		caused_by_input_id          INTEGER REFERENCES inputs(id),
		balance_credit              INTEGER NOT NULL DEFAULT 0,
		balance_debit               INTEGER NOT NULL DEFAULT 0,
		effective_height            INTEGER NOT NULL,
		effective_date              TIMESTAMP NOT NULL,
		description                 TEXT NOT NULL DEFAULT '',
		claimed_recipient           TEXT NOT NULL DEFAULT '',
		claimed_sender              TEXT NOT NULL DEFAULT '',
		claimed_fee                 INTEGER NOT NULL DEFAULT 0,
		claimed_amount              INTEGER NOT NULL DEFAULT 0,
		claimed_memo                TEXT NOT NULL DEFAULT '',
		is_reversal                 INTEGER NOT NULL DEFAULT 0,
		reversal_of_balance_change_id INTEGER REFERENCES balance_changes(id),
		is_reversed                 INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_balance_changes_account_height ON balance_changes(account_id, effective_height);
	CREATE INDEX IF NOT EXISTS idx_balance_changes_output ON balance_changes(caused_by_output_id);
	CREATE INDEX IF NOT EXISTS idx_balance_changes_input ON balance_changes(caused_by_input_id);

	CREATE TABLE IF NOT EXISTS scanned_tip_blocks (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		account_id INTEGER NOT NULL REFERENCES accounts(id),
		height     INTEGER NOT NULL,
		hash       BLOB NOT NULL,
		UNIQUE(account_id, height)
	);
	CREATE INDEX IF NOT EXISTS idx_scanned_tips_account_height ON scanned_tip_blocks(account_id, height DESC);

	CREATE TABLE IF NOT EXISTS pending_transactions (
		id                      TEXT PRIMARY KEY,
		idempotency_key         TEXT,
		account_id              INTEGER NOT NULL REFERENCES accounts(id),
		status                  INTEGER NOT NULL,
		requires_change_output  INTEGER NOT NULL,
		total_value             INTEGER NOT NULL,
		fee_without_change      INTEGER NOT NULL,
		fee_with_change         INTEGER NOT NULL,
		expires_at              TIMESTAMP NOT NULL,
		created_at              TIMESTAMP NOT NULL,
		UNIQUE(account_id, idempotency_key)
	);
	CREATE INDEX IF NOT EXISTS idx_pending_tx_status_expiry ON pending_transactions(status, expires_at);

	CREATE TABLE IF NOT EXISTS completed_transactions (
		id                      TEXT PRIMARY KEY,
		pending_tx_id           TEXT NOT NULL REFERENCES pending_transactions(id),
		account_id              INTEGER NOT NULL REFERENCES accounts(id),
		status                  INTEGER NOT NULL,
		last_rejected_reason    TEXT NOT NULL DEFAULT '',
		kernel_excess           BLOB,
		sent_payref             BLOB,
		sent_output_hash        BLOB,
		mined_height            INTEGER,
		mined_block_hash        BLOB,
		confirmation_height     INTEGER,
		broadcast_attempts      INTEGER NOT NULL DEFAULT 0,
		serialized_transaction  BLOB
	);
	CREATE INDEX IF NOT EXISTS idx_completed_tx_status ON completed_transactions(account_id, status);

	CREATE TABLE IF NOT EXISTS displayed_transactions (
		id                    BLOB PRIMARY KEY,
		account_id            INTEGER NOT NULL REFERENCES accounts(id),
		direction             INTEGER NOT NULL,
		source                INTEGER NOT NULL,
		status                INTEGER NOT NULL,
		amount                INTEGER NOT NULL,
		message               TEXT NOT NULL DEFAULT '',
		counterparty_address  TEXT NOT NULL DEFAULT '',
		block_height          INTEGER NOT NULL DEFAULT 0,
		fee                   INTEGER NOT NULL DEFAULT 0,
		payload               BLOB NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_displayed_tx_account_height ON displayed_transactions(account_id, block_height);
	CREATE INDEX IF NOT EXISTS idx_displayed_tx_status ON displayed_transactions(account_id, status);

	CREATE TABLE IF NOT EXISTS wallet_events (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		account_id  INTEGER NOT NULL REFERENCES accounts(id),
		event_type  TEXT NOT NULL,
		payload     BLOB NOT NULL,
		created_at  TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_wallet_events_account ON wallet_events(account_id, id);

	CREATE TABLE IF NOT EXISTS webhook_queue (
		id             INTEGER PRIMARY KEY AUTOINCREMENT,
		event_id       INTEGER NOT NULL REFERENCES wallet_events(id),
		event_type     TEXT NOT NULL,
		payload        BLOB NOT NULL,
		target_url     TEXT NOT NULL,
		status         INTEGER NOT NULL,
		attempt_count  INTEGER NOT NULL DEFAULT 0,
		next_retry_at  TIMESTAMP NOT NULL,
		last_error     TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_webhook_queue_status_retry ON webhook_queue(status, next_retry_at);
	`

	_, err := tx.Exec(schema)
	return err
}
