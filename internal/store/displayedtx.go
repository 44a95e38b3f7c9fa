package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// displayedTxPayload is the JSON-serializable mirror of DisplayedTransaction,
// stored in the payload column alongside indexed height/status/direction
// columns (minotari spec §3).
type displayedTxPayload struct {
	Direction           TxDirection
	Source              TxSource
	Status              TxStatus
	Amount              uint64
	Message             string
	CounterpartyAddress string
	Blockchain          BlockchainInfo
	Fee                 uint64
	Details             DisplayedTxDetails
}

func toPayload(d *DisplayedTransaction) ([]byte, error) {
	return json.Marshal(displayedTxPayload{
		Direction:           d.Direction,
		Source:              d.Source,
		Status:              d.Status,
		Amount:              d.Amount,
		Message:             d.Message,
		CounterpartyAddress: d.CounterpartyAddress,
		Blockchain:          d.Blockchain,
		Fee:                 d.Fee,
		Details:             d.Details,
	})
}

func fromPayload(id [8]byte, accountID int64, raw []byte) (*DisplayedTransaction, error) {
	var p displayedTxPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("store: unmarshal displayed tx payload: %w", err)
	}
	return &DisplayedTransaction{
		ID:                  id,
		AccountID:           accountID,
		Direction:           p.Direction,
		Source:              p.Source,
		Status:              p.Status,
		Amount:              p.Amount,
		Message:             p.Message,
		CounterpartyAddress: p.CounterpartyAddress,
		Blockchain:          p.Blockchain,
		Fee:                 p.Fee,
		Details:             p.Details,
	}, nil
}

// UpsertDisplayedTransaction inserts or, if an identical id already exists,
// replaces a DisplayedTransaction's payload and indexed columns in place.
func (t *Tx) UpsertDisplayedTransaction(ctx context.Context, d *DisplayedTransaction) error {
	payload, err := toPayload(d)
	if err != nil {
		return err
	}

	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO displayed_transactions (id, account_id, direction, source, status,
			amount, message, counterparty_address, block_height, fee, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			direction = excluded.direction, source = excluded.source,
			status = excluded.status, amount = excluded.amount, message = excluded.message,
			counterparty_address = excluded.counterparty_address,
			block_height = excluded.block_height, fee = excluded.fee, payload = excluded.payload`,
		d.ID[:], d.AccountID, d.Direction, d.Source, d.Status, d.Amount, d.Message,
		d.CounterpartyAddress, d.Blockchain.Height, d.Fee, payload)
	if err != nil {
		return fmt.Errorf("store: upsert displayed tx: %w", err)
	}
	return nil
}

// GetDisplayedTransaction fetches a displayed transaction by its
// deterministic id.
func (s *Store) GetDisplayedTransaction(ctx context.Context, id [8]byte) (*DisplayedTransaction, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT account_id, payload FROM displayed_transactions WHERE id = ?`, id[:])
	var accountID int64
	var payload []byte
	if err := row.Scan(&accountID, &payload); err == sql.ErrNoRows {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("store: get displayed tx: %w", err)
	}
	return fromPayload(id, accountID, payload)
}

// FindDisplayedTransactionByOutputHash scans active displayed transactions
// for one whose Details.OutputIDs contain outputID (an output row id, not a
// hash), used by the displayed-tx
// processor's "update existing" step (minotari spec §4.5 step 1). Linear
// scan is acceptable at wallet scale; see DESIGN.md.
func (s *Store) FindDisplayedTransactionByOutputHash(ctx context.Context, accountID int64, outputID int64) (*DisplayedTransaction, error) {
	return findDisplayedTransactionByOutputHash(ctx, s.db, accountID, outputID)
}

// FindDisplayedTransactionByOutputHash is the transaction-scoped twin of
// Store's method of the same name. Processor.Reconcile must use this one:
// reading through s.db while its own Tx holds the package's single sqlite
// connection would block forever.
func (t *Tx) FindDisplayedTransactionByOutputHash(ctx context.Context, accountID int64, outputID int64) (*DisplayedTransaction, error) {
	return findDisplayedTransactionByOutputHash(ctx, t.tx, accountID, outputID)
}

func findDisplayedTransactionByOutputHash(ctx context.Context, e execer, accountID int64, outputID int64) (*DisplayedTransaction, error) {
	candidates, err := listDisplayedTransactionsForReconciliation(ctx, e, accountID)
	if err != nil {
		return nil, err
	}
	for _, d := range candidates {
		for _, id := range d.Details.OutputIDs {
			if id == outputID {
				return d, nil
			}
		}
	}
	return nil, ErrNotFound
}

// FindDisplayedTransactionByInputHash is the input-side counterpart of
// FindDisplayedTransactionByOutputHash.
func (s *Store) FindDisplayedTransactionByInputHash(ctx context.Context, accountID int64, inputID int64) (*DisplayedTransaction, error) {
	return findDisplayedTransactionByInputHash(ctx, s.db, accountID, inputID)
}

// FindDisplayedTransactionByInputHash is the transaction-scoped twin; see
// Tx.FindDisplayedTransactionByOutputHash.
func (t *Tx) FindDisplayedTransactionByInputHash(ctx context.Context, accountID int64, inputID int64) (*DisplayedTransaction, error) {
	return findDisplayedTransactionByInputHash(ctx, t.tx, accountID, inputID)
}

func findDisplayedTransactionByInputHash(ctx context.Context, e execer, accountID int64, inputID int64) (*DisplayedTransaction, error) {
	candidates, err := listDisplayedTransactionsForReconciliation(ctx, e, accountID)
	if err != nil {
		return nil, err
	}
	for _, d := range candidates {
		for _, id := range d.Details.InputIDs {
			if id == inputID {
				return d, nil
			}
		}
	}
	return nil, ErrNotFound
}

// ListDisplayedTransactionsForReconciliation returns every DisplayedTransaction
// that is either Pending or has not yet reached the confirmed state at the
// height window currently of interest — the candidate set the displayed-tx
// processor matches new block events against (minotari spec §4.5).
func (s *Store) ListDisplayedTransactionsForReconciliation(ctx context.Context, accountID int64) ([]*DisplayedTransaction, error) {
	return listDisplayedTransactionsForReconciliation(ctx, s.db, accountID)
}

func listDisplayedTransactionsForReconciliation(ctx context.Context, e execer, accountID int64) ([]*DisplayedTransaction, error) {
	rows, err := e.QueryContext(ctx, `
		SELECT id, account_id, payload FROM displayed_transactions
		WHERE account_id = ? AND status IN (?, ?)`,
		accountID, TxStatusPending, TxStatusUnconfirmed)
	if err != nil {
		return nil, fmt.Errorf("store: list displayed tx for reconciliation: %w", err)
	}
	defer rows.Close()
	return scanDisplayedTxRows(rows)
}

// ListAllDisplayedTransactions returns every displayed transaction for an
// account, newest block height first, for API surfacing and rebuilds.
func (s *Store) ListAllDisplayedTransactions(ctx context.Context, accountID int64) ([]*DisplayedTransaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, account_id, payload FROM displayed_transactions
		WHERE account_id = ? ORDER BY block_height DESC, rowid DESC`, accountID)
	if err != nil {
		return nil, fmt.Errorf("store: list displayed tx: %w", err)
	}
	defer rows.Close()
	return scanDisplayedTxRows(rows)
}

func scanDisplayedTxRows(rows *sql.Rows) ([]*DisplayedTransaction, error) {
	var out []*DisplayedTransaction
	for rows.Next() {
		var rawID, payload []byte
		var accountID int64
		if err := rows.Scan(&rawID, &accountID, &payload); err != nil {
			return nil, fmt.Errorf("store: scan displayed tx row: %w", err)
		}
		var id [8]byte
		copy(id[:], rawID)
		d, err := fromPayload(id, accountID, payload)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// MarkDisplayedTransactionsReorganized sets status=Reorganized for every
// displayed transaction at block_height >= fromHeight, returning the
// affected rows (minotari spec §4.3 step e).
func (t *Tx) MarkDisplayedTransactionsReorganized(ctx context.Context, accountID int64, fromHeight uint64) ([]*DisplayedTransaction, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT id, account_id, payload FROM displayed_transactions
		WHERE account_id = ? AND block_height >= ?`, accountID, fromHeight)
	if err != nil {
		return nil, fmt.Errorf("store: select displayed tx to reorg: %w", err)
	}

	var affected []*DisplayedTransaction
	for rows.Next() {
		var rawID, payload []byte
		var acct int64
		if err := rows.Scan(&rawID, &acct, &payload); err != nil {
			rows.Close()
			return nil, fmt.Errorf("store: scan displayed tx row: %w", err)
		}
		var id [8]byte
		copy(id[:], rawID)
		d, err := fromPayload(id, acct, payload)
		if err != nil {
			rows.Close()
			return nil, err
		}
		affected = append(affected, d)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, d := range affected {
		d.Status = TxStatusReorganized
		if err := t.UpsertDisplayedTransaction(ctx, d); err != nil {
			return nil, err
		}
	}
	return affected, nil
}

// MarkDisplayedTransactionRejected transitions a DisplayedTransaction to
// Rejected, used by the transaction monitor on a permanent broadcast
// rejection.
func (t *Tx) MarkDisplayedTransactionRejected(ctx context.Context, id [8]byte) error {
	row := t.tx.QueryRowContext(ctx, `SELECT account_id, payload FROM displayed_transactions WHERE id = ?`, id[:])
	var accountID int64
	var payload []byte
	if err := row.Scan(&accountID, &payload); err == sql.ErrNoRows {
		return nil
	} else if err != nil {
		return fmt.Errorf("store: lookup displayed tx for rejection: %w", err)
	}

	d, err := fromPayload(id, accountID, payload)
	if err != nil {
		return err
	}
	d.Status = TxStatusRejected
	return t.UpsertDisplayedTransaction(ctx, d)
}
