package minotari

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/decred/minotari/internal/config"
	"github.com/decred/minotari/internal/events"
	"github.com/decred/minotari/internal/nodeclient"
	"github.com/decred/minotari/internal/scanadapter"
	"github.com/decred/minotari/internal/scancoord"
	"github.com/decred/minotari/internal/store"
	"github.com/decred/minotari/internal/unlocker"
	"github.com/decred/minotari/internal/walletrpc"
	"github.com/decred/minotari/internal/webhook"
)

// Daemon wires every long-running component of the wallet backend together:
// the scan coordinator, the lock-expiry sweep, the event recorder, and the
// webhook delivery worker. cmd/minotariwalletd constructs one per process.
type Daemon struct {
	cfg       config.Config
	store     *store.Store
	bus       *events.Bus
	node      *nodeclient.Client
	scanner   walletrpc.ScannerFactory
	keys      scancoord.KeyDecryptor
	coord     *scancoord.Coordinator
	unlocker  *unlocker.Task
	recorder  *events.Recorder
	webhook   *webhook.Worker
}

// NewDaemon constructs a Daemon. scannerFactory and keys are the embedder-
// supplied boundaries minotari spec §1/§4.2 leave out of this module's
// scope: a real deployment links a concrete UTXO-scanning library and a
// concrete key-management/decryption implementation here.
func NewDaemon(cfg config.Config, st *store.Store, scannerFactory walletrpc.ScannerFactory, keys scancoord.KeyDecryptor) *Daemon {
	cfg = cfg.WithDefaults()
	bus := events.NewBus(256)
	node := nodeclient.New(cfg.NodeBaseURL)
	instrumented := scanadapter.Wrap(scannerFactory)

	return &Daemon{
		cfg:      cfg,
		store:    st,
		bus:      bus,
		node:     node,
		scanner:  instrumented,
		keys:     keys,
		coord:    scancoord.New(st, instrumented, node, bus, keys, cfg),
		unlocker: unlocker.New(st),
		recorder: events.NewRecorder(st, cfg.WebhookTargetURL, cfg.WebhookEventTypes),
		webhook:  webhook.New(st, cfg.WebhookSecret),
	}
}

// Run starts every component and blocks until ctx is cancelled or a
// component returns a non-cancellation error, at which point every other
// component is torn down too.
func (d *Daemon) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	sub, unsubscribe := d.bus.Subscribe()
	defer unsubscribe()

	g.Go(func() error {
		d.recorder.Run(gctx, sub)
		return nil
	})

	g.Go(func() error {
		d.unlocker.Run(gctx)
		return nil
	})

	g.Go(func() error {
		d.webhook.Run(gctx)
		return nil
	})

	g.Go(func() error {
		if err := d.coord.Run(gctx, scancoord.Continuous(d.cfg.PollInterval)); err != nil {
			return fmt.Errorf("scan coordinator: %w", err)
		}
		return nil
	})

	return g.Wait()
}
