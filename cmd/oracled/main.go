package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/decred/slog"
	"github.com/joho/godotenv"

	"github.com/stakeside/cashgame/pkg/chain"
	"github.com/stakeside/cashgame/pkg/feed"
	"github.com/stakeside/cashgame/pkg/lineup"
	"github.com/stakeside/cashgame/pkg/receipt"
	"github.com/stakeside/cashgame/pkg/server"
	"github.com/stakeside/cashgame/pkg/store"
	"github.com/stakeside/cashgame/pkg/table"
)

func main() {
	var (
		dbPath     string
		listen     string
		chainURL   string
		tables     string
		queueSize  int
		workers    int
		debugLevel string
	)
	flag.StringVar(&dbPath, "db", "", "Path to SQLite database file (created if missing)")
	flag.StringVar(&listen, "listen", "127.0.0.1:8080", "Address to serve HTTP on")
	flag.StringVar(&chainURL, "chain", "http://127.0.0.1:8545", "Base URL of the contract state gateway")
	flag.StringVar(&tables, "tables", "", "Comma-separated table contract addresses this oracle serves")
	flag.IntVar(&queueSize, "queuesize", 128, "Per-worker change queue size")
	flag.IntVar(&workers, "workers", 4, "Number of change dispatch workers")
	flag.StringVar(&debugLevel, "debuglevel", "info", "Logging level: trace, debug, info, warn, error")
	flag.Parse()

	// Local overrides, ignored when absent.
	_ = godotenv.Load()

	oraclePriv := os.Getenv("ORACLE_PRIV")
	if oraclePriv == "" {
		fmt.Fprintln(os.Stderr, "ORACLE_PRIV not set")
		os.Exit(1)
	}

	backend := slog.NewBackend(os.Stderr)
	log := backend.Logger("ORCL")
	if lvl, ok := slog.LevelFromString(debugLevel); ok {
		log.SetLevel(lvl)
	}

	if dbPath == "" {
		dbPath = filepath.Join(os.TempDir(), "cashgame.sqlite")
	}
	db, err := store.Open(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init db: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	var tableAddrs []string
	for _, t := range strings.Split(tables, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tableAddrs = append(tableAddrs, strings.ToLower(t))
		}
	}

	rc := receipt.NewCache()
	helper := lineup.New(rc)
	manager, err := table.New(table.Config{
		Log:        backend.Logger("TABL"),
		Store:      db,
		Chain:      chain.NewClient(chainURL),
		Helper:     helper,
		Receipts:   rc,
		OraclePriv: oraclePriv,
		Tables:     tableAddrs,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init table manager: %v\n", err)
		os.Exit(1)
	}
	log.Infof("oracle address: %s", manager.OracleAddr())

	hub := server.NewHub(backend.Logger("HUB"))
	settler := table.NewSettler(backend.Logger("STLR"), manager,
		&feed.LogPublisher{Log: backend.Logger("NOTI")})
	dispatcher := feed.NewDispatcher(backend.Logger("FEED"), helper, rc, settler, hub)
	runner := feed.NewRunner(backend.Logger("FEED"), dispatcher, queueSize, workers)
	runner.Start()
	defer runner.Stop()
	db.AddSink(runner)

	srv := &http.Server{
		Addr:         listen,
		Handler:      server.New(backend.Logger("HTTP"), manager, hub).Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	log.Infof("serving %d tables on %s", len(tableAddrs), listen)
	if err := srv.ListenAndServe(); err != nil {
		fmt.Fprintf(os.Stderr, "http serve error: %v\n", err)
		os.Exit(1)
	}
}
