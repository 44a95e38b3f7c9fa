// Command minotariwalletd runs the view-only wallet backend daemon: it
// opens the store, wires the scan coordinator, lock-expiry sweep, event
// recorder, and webhook worker, and serves until terminated.
package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli"

	"github.com/decred/minotari"
	"github.com/decred/minotari/build"
	"github.com/decred/minotari/internal/config"
	"github.com/decred/minotari/internal/keyvault"
	"github.com/decred/minotari/internal/store"
)

func main() {
	app := cli.NewApp()
	app.Name = "minotariwalletd"
	app.Usage = "view-only wallet backend for the Tari UTXO chain"
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "db", Value: "minotari.db", Usage: "sqlite database path"},
		cli.StringFlag{Name: "node", Value: "http://127.0.0.1:18142", Usage: "remote node base URL"},
		cli.StringFlag{Name: "logdir", Value: "./logs", Usage: "log file directory"},
		cli.StringFlag{Name: "loglevel", Value: "info", Usage: "log level for every subsystem"},
		cli.StringFlag{Name: "masterkey", Usage: "hex-encoded 32-byte AES-256-GCM master key for view-key decryption"},
		cli.StringFlag{Name: "webhookurl", Usage: "endpoint webhook deliveries are POSTed to"},
		cli.StringFlag{Name: "webhooksecret", Usage: "HMAC-SHA256 secret signing webhook deliveries"},
		cli.Int64Flag{Name: "epochanchor", Usage: "unix-seconds timestamp of the node's genesis block"},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "minotariwalletd: %v\n", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	logWriter := build.NewRotatingLogWriter()
	if err := logWriter.InitLogRotator(c.String("logdir")+"/minotariwalletd.log", 10*1024, 3); err != nil {
		return fmt.Errorf("init log rotator: %w", err)
	}
	minotari.SetupLoggers(logWriter)
	logWriter.SetLogLevels(c.String("loglevel"))

	st, err := store.Open(c.String("db"))
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	masterKeyHex := c.String("masterkey")
	if masterKeyHex == "" {
		return fmt.Errorf("--masterkey is required (hex-encoded 32-byte AES-256-GCM key)")
	}
	masterKey, err := hex.DecodeString(masterKeyHex)
	if err != nil {
		return fmt.Errorf("decode master key: %w", err)
	}
	vault, err := keyvault.New(masterKey)
	if err != nil {
		return fmt.Errorf("init key vault: %w", err)
	}

	// The signer is not used by this daemon: outbound transaction
	// construction (FundLocker/TransactionBuilder) is an on-demand library
	// API an embedding application calls directly, not a network surface
	// this binary serves. Only the scan/monitor/webhook loops run here.
	scannerFactory, _, err := linkedScannerAndSigner()
	if err != nil {
		return err
	}

	cfg := config.Config{
		DBPath:            c.String("db"),
		NodeBaseURL:       c.String("node"),
		WebhookTargetURL:  c.String("webhookurl"),
		WebhookSecret:     []byte(c.String("webhooksecret")),
		EpochAnchor:       c.Int64("epochanchor"),
	}

	daemon := minotari.NewDaemon(cfg, st, scannerFactory, vault)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	return daemon.Run(ctx)
}
