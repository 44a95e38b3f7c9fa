// Package webhook polls the durable webhook_queue and delivers signed
// event notifications to the user's configured endpoint, with exponential
// backoff and permanent-failure classification (minotari spec §6).
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/decred/slog"

	"github.com/decred/minotari/internal/config"
	"github.com/decred/minotari/internal/store"
)

var log = slog.Disabled

// UseLogger sets the package-wide logger.
func UseLogger(logger slog.Logger) {
	log = logger
}

// DefaultPollInterval is how often Worker checks for due deliveries.
const DefaultPollInterval = 5 * time.Second

// DefaultBatchSize bounds how many due items Worker pulls per poll.
const DefaultBatchSize = 20

// httpClient is a narrow seam over *http.Client for tests to substitute a
// fake transport.
type httpClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Worker polls store for due webhook deliveries and posts them, signing
// each body with HMAC-SHA256 over "<unix_ts>.<body>" (minotari spec §6).
type Worker struct {
	store    *store.Store
	secret   []byte
	client   httpClient
	interval time.Duration
	batch    int
}

// New constructs a Worker using the default poll interval and batch size,
// and a plain *http.Client with a generous per-request timeout.
//
// A plain client is used instead of the node client's
// hashicorp/go-retryablehttp stack deliberately: retryablehttp retries 5xx
// responses itself before returning, which would double up with the
// queue's own backoff/attempt-count bookkeeping and corrupt the
// attempt_count the spec's retry schedule is keyed on.
func New(st *store.Store, secret []byte) *Worker {
	return &Worker{
		store:    st,
		secret:   secret,
		client:   &http.Client{Timeout: 30 * time.Second},
		interval: DefaultPollInterval,
		batch:    DefaultBatchSize,
	}
}

// Run polls until ctx is cancelled, attempting one batch of due deliveries
// per tick.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Infof("webhook: shutting down")
			return
		case <-ticker.C:
			if err := w.PollOnce(ctx); err != nil {
				log.Errorf("webhook: poll: %v", err)
			}
		}
	}
}

// PollOnce attempts delivery of every currently-due item, up to batch size.
func (w *Worker) PollOnce(ctx context.Context) error {
	due, err := w.store.ListDueWebhooks(ctx, time.Now().UTC(), w.batch)
	if err != nil {
		return fmt.Errorf("webhook: list due: %w", err)
	}
	for _, item := range due {
		w.deliver(ctx, item)
	}
	return nil
}

// deliver attempts one delivery of item and records the outcome. Errors
// updating store state are logged, not returned, so one bad row can't stall
// the rest of the batch.
func (w *Worker) deliver(ctx context.Context, item *store.WebhookQueueItem) {
	ts := time.Now().UTC().Unix()
	signature := Sign(w.secret, ts, item.Payload)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, item.TargetURL, bytes.NewReader(item.Payload))
	if err != nil {
		w.recordFailure(ctx, item, fmt.Sprintf("build request: %v", err))
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Minotari-Timestamp", strconv.FormatInt(ts, 10))
	req.Header.Set("X-Minotari-Signature", signature)

	resp, err := w.client.Do(req)
	if err != nil {
		w.recordFailure(ctx, item, err.Error())
		return
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if err := w.store.RecordWebhookSuccess(ctx, item.ID); err != nil {
			log.Errorf("webhook: record success for %d: %v", item.ID, err)
		}
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		if err := w.store.RecordWebhookPermanentFailure(ctx, item.ID, fmt.Sprintf("http %d", resp.StatusCode)); err != nil {
			log.Errorf("webhook: record permanent failure for %d: %v", item.ID, err)
		}
	default:
		w.recordFailure(ctx, item, fmt.Sprintf("http %d", resp.StatusCode))
	}
}

// recordFailure applies the retry schedule: 30*4^(attempt-1) seconds capped
// at 24h with +/-10% jitter, or PermanentFailure once attempt_count would
// reach WebhookMaxAttempts (minotari spec §6).
func (w *Worker) recordFailure(ctx context.Context, item *store.WebhookQueueItem, reason string) {
	nextAttempt := item.AttemptCount + 1
	if nextAttempt >= config.WebhookMaxAttempts {
		if err := w.store.RecordWebhookPermanentFailure(ctx, item.ID, reason); err != nil {
			log.Errorf("webhook: record permanent failure for %d: %v", item.ID, err)
		}
		return
	}

	delay := backoffFor(nextAttempt)
	nextRetryAt := time.Now().UTC().Add(delay)
	if err := w.store.RecordWebhookRetry(ctx, item.ID, nextRetryAt, reason); err != nil {
		log.Errorf("webhook: record retry for %d: %v", item.ID, err)
	}
}

// backoffFor computes 30*4^(attempt-1) seconds, capped at WebhookMaxBackoff,
// with +/-10% jitter.
func backoffFor(attempt int) time.Duration {
	base := float64(config.WebhookBaseBackoffSeconds)
	for i := 1; i < attempt; i++ {
		base *= 4
	}
	// Cap in seconds before converting: from attempt 16 on, the uncapped
	// value no longer fits in a Duration.
	if maxSeconds := config.WebhookMaxBackoff.Seconds(); base > maxSeconds {
		base = maxSeconds
	}
	d := time.Duration(base) * time.Second
	if d > config.WebhookMaxBackoff {
		d = config.WebhookMaxBackoff
	}

	jitter := 1 + (rand.Float64()*0.2 - 0.1)
	return time.Duration(float64(d) * jitter)
}

// Sign computes the X-Minotari-Signature header value for a delivery:
// "t=<ts>,v1=<hex hmac-sha256(secret, "<ts>.<body>")>" (minotari spec §6,
// §8 scenario 6).
func Sign(secret []byte, ts int64, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(strconv.FormatInt(ts, 10)))
	mac.Write([]byte("."))
	mac.Write(body)
	digest := mac.Sum(nil)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(digest))
}
