package webhook

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/decred/minotari/internal/store"
	"github.com/decred/minotari/internal/testutil"
)

func enqueue(t *testing.T, st *store.Store, accountID int64, targetURL string) int64 {
	t.Helper()
	ctx := context.Background()

	tx, err := st.BeginTx(ctx)
	require.NoError(t, err)
	defer tx.Rollback()

	ev, err := tx.InsertWalletEvent(ctx, accountID, "OutputDetected", []byte(`{"x":1}`))
	require.NoError(t, err)

	id, err := tx.EnqueueWebhook(ctx, ev.ID, "OutputDetected", []byte(`{"x":1}`), targetURL)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	return id
}

func TestWorkerDeliversOn2xxAndMarksSuccess(t *testing.T) {
	st := testutil.NewStore(t)
	accountID := testutil.NewAccount(t, st, "alice")

	var gotSig, gotTS string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get("X-Minotari-Signature")
		gotTS = r.Header.Get("X-Minotari-Timestamp")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	id := enqueue(t, st, accountID, srv.URL)

	w := New(st, []byte("s"))
	require.NoError(t, w.PollOnce(context.Background()))

	require.NotEmpty(t, gotSig)
	require.NotEmpty(t, gotTS)

	item, err := st.GetWebhookQueueItem(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, store.WebhookSuccess, item.Status)
}

func TestWorkerClassifies4xxAsPermanentFailure(t *testing.T) {
	st := testutil.NewStore(t)
	accountID := testutil.NewAccount(t, st, "bob")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	id := enqueue(t, st, accountID, srv.URL)

	w := New(st, []byte("s"))
	require.NoError(t, w.PollOnce(context.Background()))

	item, err := st.GetWebhookQueueItem(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, store.WebhookPermanentFailure, item.Status)
}

func TestWorkerSchedulesRetryOn5xx(t *testing.T) {
	st := testutil.NewStore(t)
	accountID := testutil.NewAccount(t, st, "carol")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	id := enqueue(t, st, accountID, srv.URL)

	w := New(st, []byte("s"))
	before := time.Now().UTC()
	require.NoError(t, w.PollOnce(context.Background()))

	item, err := st.GetWebhookQueueItem(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, store.WebhookFailed, item.Status)
	require.Equal(t, 1, item.AttemptCount)
	require.True(t, item.NextRetryAt.After(before))
}
