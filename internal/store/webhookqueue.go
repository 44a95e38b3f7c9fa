package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// EnqueueWebhook adds a delivery job for an event that matches the user's
// subscribed event-type filter (minotari spec §9). It is inserted inside
// the same transaction as the WalletEvent it describes.
func (t *Tx) EnqueueWebhook(ctx context.Context, eventID int64, eventType string, payload []byte, targetURL string) (int64, error) {
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO webhook_queue (event_id, event_type, payload, target_url, status,
			attempt_count, next_retry_at, last_error)
		VALUES (?, ?, ?, ?, ?, 0, ?, '')`,
		eventID, eventType, payload, targetURL, WebhookPending, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("store: enqueue webhook: %w", err)
	}
	return res.LastInsertId()
}

const webhookSelectColumns = `
	SELECT id, event_id, event_type, payload, target_url, status, attempt_count,
		next_retry_at, last_error
	`

// ListDueWebhooks returns Pending/Failed items whose next_retry_at has
// passed, ready for the WebhookWorker to attempt delivery.
func (s *Store) ListDueWebhooks(ctx context.Context, now time.Time, limit int) ([]*WebhookQueueItem, error) {
	rows, err := s.db.QueryContext(ctx, webhookSelectColumns+`
		FROM webhook_queue
		WHERE status IN (?, ?) AND next_retry_at <= ?
		ORDER BY next_retry_at LIMIT ?`,
		WebhookPending, WebhookFailed, now, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list due webhooks: %w", err)
	}
	defer rows.Close()

	var out []*WebhookQueueItem
	for rows.Next() {
		w := &WebhookQueueItem{}
		if err := rows.Scan(&w.ID, &w.EventID, &w.EventType, &w.Payload, &w.TargetURL,
			&w.Status, &w.AttemptCount, &w.NextRetryAt, &w.LastError); err != nil {
			return nil, fmt.Errorf("store: scan webhook row: %w", err)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// GetWebhookQueueItem fetches a webhook item by id.
func (s *Store) GetWebhookQueueItem(ctx context.Context, id int64) (*WebhookQueueItem, error) {
	row := s.db.QueryRowContext(ctx, webhookSelectColumns+`FROM webhook_queue WHERE id = ?`, id)
	w := &WebhookQueueItem{}
	err := row.Scan(&w.ID, &w.EventID, &w.EventType, &w.Payload, &w.TargetURL,
		&w.Status, &w.AttemptCount, &w.NextRetryAt, &w.LastError)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get webhook item: %w", err)
	}
	return w, nil
}

// RecordWebhookSuccess marks item delivered.
func (s *Store) RecordWebhookSuccess(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE webhook_queue SET status = ?, attempt_count = attempt_count + 1, last_error = ''
		WHERE id = ?`, WebhookSuccess, id)
	if err != nil {
		return fmt.Errorf("store: record webhook success: %w", err)
	}
	return nil
}

// RecordWebhookRetry marks item for a future retry attempt.
func (s *Store) RecordWebhookRetry(ctx context.Context, id int64, nextRetryAt time.Time, lastError string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE webhook_queue
		SET status = ?, attempt_count = attempt_count + 1, next_retry_at = ?, last_error = ?
		WHERE id = ?`, WebhookFailed, nextRetryAt, lastError, id)
	if err != nil {
		return fmt.Errorf("store: record webhook retry: %w", err)
	}
	return nil
}

// RecordWebhookPermanentFailure marks item as permanently failed.
func (s *Store) RecordWebhookPermanentFailure(ctx context.Context, id int64, lastError string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE webhook_queue SET status = ?, attempt_count = attempt_count + 1, last_error = ?
		WHERE id = ?`, WebhookPermanentFailure, lastError, id)
	if err != nil {
		return fmt.Errorf("store: record webhook permanent failure: %w", err)
	}
	return nil
}
