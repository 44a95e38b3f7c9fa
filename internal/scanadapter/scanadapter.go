// Package scanadapter is the sole caller of the walletrpc.Scanner contract
// from the rest of this module's perspective: it wraps an embedder-supplied
// Scanner with structured logging and Prometheus instrumentation before
// handing it to the ScanCoordinator, so scancoord itself never needs to
// know its collaborator is an out-of-scope external library (minotari spec
// §4.2).
package scanadapter

import (
	"context"
	"time"

	"github.com/decred/slog"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/decred/minotari/internal/walletrpc"
)

var log = slog.Disabled

// UseLogger sets the package-wide logger.
func UseLogger(logger slog.Logger) {
	log = logger
}

var (
	blocksScanned = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "minotari",
		Subsystem: "scan",
		Name:      "blocks_scanned_total",
		Help:      "Total blocks returned by scan_blocks across every call.",
	})
	scanDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "minotari",
		Subsystem: "scan",
		Name:      "scan_blocks_duration_seconds",
		Help:      "Latency of individual scan_blocks calls.",
		Buckets:   prometheus.DefBuckets,
	})
	scanErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "minotari",
		Subsystem: "scan",
		Name:      "scan_blocks_errors_total",
		Help:      "scan_blocks calls that returned an error, by kind.",
	}, []string{"kind"})
)

func init() {
	prometheus.MustRegister(blocksScanned, scanDuration, scanErrors)
}

// Factory wraps a walletrpc.ScannerFactory so every Scanner it constructs is
// instrumented.
type Factory struct {
	inner walletrpc.ScannerFactory
}

// Wrap returns a Factory delegating construction to inner.
func Wrap(inner walletrpc.ScannerFactory) *Factory {
	return &Factory{inner: inner}
}

// NewScanner implements walletrpc.ScannerFactory.
func (f *Factory) NewScanner() (walletrpc.Scanner, error) {
	s, err := f.inner.NewScanner()
	if err != nil {
		return nil, err
	}
	return &instrumentedScanner{inner: s}, nil
}

// instrumentedScanner decorates a concrete walletrpc.Scanner with logging and
// metrics around its one externally-latent call, scan_blocks.
type instrumentedScanner struct {
	inner walletrpc.Scanner
}

func (s *instrumentedScanner) AddKey(viewKey []byte) (int, error) {
	return s.inner.AddKey(viewKey)
}

func (s *instrumentedScanner) ScanBlocks(ctx context.Context, cfg walletrpc.ScanConfig) ([]walletrpc.BlockScanResult, bool, error) {
	start := time.Now()
	results, more, err := s.inner.ScanBlocks(ctx, cfg)
	scanDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		kind := "other"
		if ctx.Err() != nil {
			kind = "timeout"
		}
		scanErrors.WithLabelValues(kind).Inc()
		log.Debugf("scanadapter: scan_blocks(start=%d, batch=%d) failed: %v", cfg.StartHeight, cfg.BatchSize, err)
		return results, more, err
	}

	blocksScanned.Add(float64(len(results)))
	log.Tracef("scanadapter: scan_blocks(start=%d, batch=%d) returned %d blocks, more=%v",
		cfg.StartHeight, cfg.BatchSize, len(results), more)
	return results, more, nil
}

func (s *instrumentedScanner) GetHeaderByHeight(ctx context.Context, height uint64) (*walletrpc.BlockHeader, error) {
	return s.inner.GetHeaderByHeight(ctx, height)
}

func (s *instrumentedScanner) GetTipInfo(ctx context.Context) (uint64, error) {
	return s.inner.GetTipInfo(ctx)
}

func (s *instrumentedScanner) Close() error {
	return s.inner.Close()
}
