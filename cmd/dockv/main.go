package main

import (
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/chzyer/readline"

	"github.com/DocKV/dockv/pkg/config"
	"github.com/DocKV/dockv/pkg/telemetry"
	"github.com/DocKV/dockv/pkg/txn"
	"github.com/DocKV/dockv/pkg/txn/remote"
)

// Command completer for readline
var completer = readline.NewPrefixCompleter(
	readline.PcItem(".help"),
	readline.PcItem(".exit"),
	readline.PcItem(".schema"),
	readline.PcItem(".stats"),
	readline.PcItem(".clock"),
	readline.PcItem(".save"),
	readline.PcItem(".load"),
	readline.PcItem("BEGIN"),
	readline.PcItem("COMMIT",
		readline.PcItem("AT"),
	),
	readline.PcItem("ABORT"),
	readline.PcItem("PUT"),
	readline.PcItem("DEL"),
	readline.PcItem("DELROW"),
	readline.PcItem("GET"),
	readline.PcItem("SCAN",
		readline.PcItem("AT"),
		readline.PcItem("FROM"),
	),
	readline.PcItem("SCHEMA"),
	readline.PcItem("DUMP"),
)

const helpText = `
DocKV (dockv) - A document-oriented multi-version store shell.

Usage:
  dockv [options]

Options:
  -data string            - Data directory holding the MANIFEST (optional)
  -serve-status string    - Also serve the transaction status authority over gRPC

Commands:
  .help                   - Show this help message
  .schema                 - Show the active table schema
  .stats                  - Show store statistics
  .clock                  - Show the session clock
  .save PATH              - Write the store to a segment file
  .load PATH              - Replace the store with a segment file
  .exit                   - Exit the program

  SCHEMA col:type[:key] ... - Define a new schema (resets the store)

  BEGIN [id]              - Begin a transaction (id is padded to 16 chars)
  COMMIT [AT micros]      - Commit the current transaction
  ABORT                   - Abort the current transaction

  PUT key col value [TTL dur] - Write a cell (dur like 5s or 100ms)
  DEL key col             - Delete a single column
  DELROW key              - Delete a whole document

  GET key                 - Read one document at the current clock
  SCAN [AT micros] [FROM key] - Scan documents at a read time
  DUMP                    - Print the raw versioned entries

Composite keys use '/' between components, e.g. PUT user1/42 name bob
`

func main() {
	dataDir := flag.String("data", "", "Data directory holding the MANIFEST")
	serveStatus := flag.String("serve-status", "", "Address to serve the status authority on")
	flag.Parse()

	cfg, err := loadConfig(*dataDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %s\n", err)
		os.Exit(1)
	}

	tel, err := telemetry.New(cfg.Telemetry)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing telemetry: %s\n", err)
		os.Exit(1)
	}

	sess, err := newSession(cfg, tel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating session: %s\n", err)
		os.Exit(1)
	}
	defer sess.Close()

	if *serveStatus != "" {
		srv, err := serveAuthority(*serveStatus, sess.local)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error starting status authority: %s\n", err)
			os.Exit(1)
		}
		defer srv.Stop()
		fmt.Printf("Status authority listening on %s\n", *serveStatus)
	}

	setupSignalHandler(sess)
	runInteractive(sess)
}

func loadConfig(dataDir string) (*config.Config, error) {
	if dataDir == "" {
		return config.NewDefaultConfig(os.TempDir()), nil
	}

	cfg, err := config.LoadConfigFromManifest(dataDir)
	if err == nil {
		return cfg, nil
	}
	if err != config.ErrManifestNotFound {
		return nil, err
	}

	cfg = config.NewDefaultConfig(dataDir)
	if err := cfg.SaveManifest(dataDir); err != nil {
		return nil, err
	}
	return cfg, nil
}

func serveAuthority(addr string, local *txn.InMemoryAuthority) (*remote.Server, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	srv := remote.NewServer(local)
	go func() {
		if err := srv.Serve(lis); err != nil {
			fmt.Fprintf(os.Stderr, "Status authority stopped: %s\n", err)
		}
	}()
	return srv, nil
}

func setupSignalHandler(sess *session) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		fmt.Printf("\nReceived signal %v, shutting down...\n", sig)
		sess.Close()
		os.Exit(0)
	}()
}
