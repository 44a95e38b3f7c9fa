package minotari

import (
	"github.com/decred/minotari/build"
	"github.com/decred/minotari/internal/blockproc"
	"github.com/decred/minotari/internal/displaytx"
	"github.com/decred/minotari/internal/events"
	"github.com/decred/minotari/internal/fundlock"
	"github.com/decred/minotari/internal/reorg"
	"github.com/decred/minotari/internal/scanadapter"
	"github.com/decred/minotari/internal/scancoord"
	"github.com/decred/minotari/internal/store"
	"github.com/decred/minotari/internal/txbuilder"
	"github.com/decred/minotari/internal/txmonitor"
	"github.com/decred/minotari/internal/unlocker"
	"github.com/decred/minotari/internal/webhook"
	"github.com/decred/slog"
)

// replaceableLogger is a thin wrapper around a logger that is used so the
// logger can be replaced easily once the root rotating writer is ready.
type replaceableLogger struct {
	slog.Logger
	subsystem string
}

// Loggers cannot be used before the log rotator has been initialized with a
// log file. This must be performed early during daemon startup by calling
// InitLogRotator on the root RotatingLogWriter.
var (
	// pkgLoggers tracks every package-level logger so it can be replaced
	// once SetupLoggers is called with the final root logger.
	pkgLoggers []*replaceableLogger

	addPkgLogger = func(subsystem string) *replaceableLogger {
		l := &replaceableLogger{
			Logger:    build.NewSubLogger(subsystem, nil),
			subsystem: subsystem,
		}
		pkgLoggers = append(pkgLoggers, l)
		return l
	}

	// mwltLog is the top-level daemon logger, used by cmd/minotariwalletd
	// and any glue code that doesn't belong to a specific subsystem.
	mwltLog = addPkgLogger("MWLT")
)

// SetupLoggers initializes all package-global logger variables against root,
// wiring each subsystem's UseLogger into the shared rotating writer.
func SetupLoggers(root *build.RotatingLogWriter) {
	for _, l := range pkgLoggers {
		l.Logger = build.NewSubLogger(l.subsystem, root.GenSubLogger)
		SetSubLogger(root, l.subsystem, l.Logger)
	}

	AddSubLogger(root, "STOR", store.UseLogger)
	AddSubLogger(root, "SCAN", scanadapter.UseLogger)
	AddSubLogger(root, "RORG", reorg.UseLogger)
	AddSubLogger(root, "BLKP", blockproc.UseLogger)
	AddSubLogger(root, "DTXP", displaytx.UseLogger)
	AddSubLogger(root, "TXMN", txmonitor.UseLogger)
	AddSubLogger(root, "FNDL", fundlock.UseLogger)
	AddSubLogger(root, "TXBL", txbuilder.UseLogger)
	AddSubLogger(root, "UNLK", unlocker.UseLogger)
	AddSubLogger(root, "SCRD", scancoord.UseLogger)
	AddSubLogger(root, "EVTB", events.UseLogger)
	AddSubLogger(root, "WHKW", webhook.UseLogger)
}

// AddSubLogger is a helper method to conveniently create and register the
// logger of one or more subsystems.
func AddSubLogger(root *build.RotatingLogWriter, subsystem string,
	useLoggers ...func(slog.Logger)) {

	logger := build.NewSubLogger(subsystem, root.GenSubLogger)
	SetSubLogger(root, subsystem, logger, useLoggers...)
}

// SetSubLogger is a helper method to conveniently register the logger of a
// subsystem.
func SetSubLogger(root *build.RotatingLogWriter, subsystem string,
	logger slog.Logger, useLoggers ...func(slog.Logger)) {

	root.RegisterSubLogger(subsystem, logger)
	for _, useLogger := range useLoggers {
		useLogger(logger)
	}
}

// logClosure is used to provide a closure over expensive logging operations
// so they aren't performed when the logging level doesn't warrant it.
type logClosure func() string

// String invokes the underlying function and returns the result.
func (c logClosure) String() string {
	return c()
}

// newLogClosure returns a new closure over a function that returns a string
// which itself provides a Stringer interface so it can be used with the
// logging system.
func newLogClosure(c func() string) logClosure {
	return logClosure(c)
}
