package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	appconfig "escrowd/config"
	"escrowd/core/events"
	"escrowd/crypto"
	"escrowd/ledger"
	"escrowd/native/escrow"
	"escrowd/observability/logging"
	"escrowd/rpc"
	"escrowd/storage"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "./escrowd.toml", "path to the service configuration file")
	flag.Parse()

	cfg, err := appconfig.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("validate config: %v", err)
	}
	logger := logging.Setup("escrowd", cfg.Environment)

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()

	owner, err := cfg.Owner()
	if err != nil {
		log.Fatalf("decode owner: %v", err)
	}
	feeRecipient, err := cfg.FeeRecipient()
	if err != nil {
		log.Fatalf("decode fee recipient: %v", err)
	}

	l := ledger.New(db)
	if err := seedGenesisAccounts(cfg, l, db); err != nil {
		log.Fatalf("seed genesis accounts: %v", err)
	}

	platform := escrow.NewPlatform(owner, feeRecipient)
	engine := escrow.NewEngine(escrow.NewStore(db), l, platform)
	journal := events.NewJournal(cfg.EventJournalSize)
	engine.SetEmitter(journal)

	server := rpc.NewServer(engine, journal, logger)
	srv := &http.Server{
		Addr:    cfg.ListenAddress,
		Handler: server,
	}

	go func() {
		logger.Info("escrow engine listening", "addr", cfg.ListenAddress)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.Info("shutting down escrow engine")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "graceful shutdown failed: %v\n", err)
	}
}

// seedGenesisAccounts credits configured balances exactly once per data
// directory so restarts do not double-fund accounts.
func seedGenesisAccounts(cfg *appconfig.Config, l *ledger.Ledger, db storage.Database) error {
	seededKey := []byte("genesis:seeded")
	seeded, err := db.Has(seededKey)
	if err != nil {
		return err
	}
	if seeded || len(cfg.GenesisAccounts) == 0 {
		return nil
	}
	for _, acct := range cfg.GenesisAccounts {
		addr, err := crypto.DecodeAddress(acct.Address)
		if err != nil {
			return fmt.Errorf("genesis address %q: %w", acct.Address, err)
		}
		balance, ok := new(big.Int).SetString(acct.Balance, 10)
		if !ok || balance.Sign() <= 0 {
			return fmt.Errorf("genesis balance %q for %s", acct.Balance, acct.Address)
		}
		if err := l.Credit(addr, balance); err != nil {
			return err
		}
	}
	return db.Put(seededKey, []byte{0x01})
}
