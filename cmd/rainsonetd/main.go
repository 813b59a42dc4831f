// Copyright 2025 Certen Protocol
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	dbm "github.com/cometbft/cometbft-db"

	"github.com/Zarethos/Rainsonet/pkg/api"
	"github.com/Zarethos/Rainsonet/pkg/bus"
	"github.com/Zarethos/Rainsonet/pkg/config"
	"github.com/Zarethos/Rainsonet/pkg/consensus"
	"github.com/Zarethos/Rainsonet/pkg/crypto"
	"github.com/Zarethos/Rainsonet/pkg/database"
	"github.com/Zarethos/Rainsonet/pkg/genesis"
	"github.com/Zarethos/Rainsonet/pkg/kvdb"
	"github.com/Zarethos/Rainsonet/pkg/ledger"
	"github.com/Zarethos/Rainsonet/pkg/mempool"
	"github.com/Zarethos/Rainsonet/pkg/runtime"
	"github.com/Zarethos/Rainsonet/pkg/state"
)

// proposalInterval is how often a validator drains the mempool into a
// proposal when it has one. Not spec-mandated; a validator could instead
// propose as soon as one executable transaction lands, but batching on a
// short tick amortizes proposal overhead across bursts of submissions.
const proposalInterval = 2 * time.Second

func main() {
	validatorID := flag.String("validator-id", "", "override VALIDATOR_ID")
	flag.Parse()

	log.Printf("starting rainsonetd...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load configuration: %v", err)
	}
	if *validatorID != "" {
		cfg.ValidatorID = *validatorID
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	gen, err := genesis.Load(cfg.GenesisPath)
	if err != nil {
		log.Fatalf("load genesis: %v", err)
	}
	validators, err := gen.ValidatorSet()
	if err != nil {
		log.Fatalf("build validator set from genesis: %v", err)
	}

	var local *crypto.KeyPair
	if cfg.IsValidator {
		local, err = crypto.LoadOrGenerateKeyPair(cfg.Ed25519KeyPath)
		if err != nil {
			log.Fatalf("load validator key: %v", err)
		}
		log.Printf("validator identity: %s", ledger.AddressFromPublicKey(local.Public).Hex())
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		log.Fatalf("create data directory %s: %v", cfg.DataDir, err)
	}
	db, err := dbm.NewGoLevelDB("rainsonet-state", cfg.DataDir)
	if err != nil {
		log.Fatalf("open state database at %s: %v", cfg.DataDir, err)
	}
	store, err := state.NewPersistentStore(kvdb.NewKVAdapter(db))
	if err != nil {
		log.Fatalf("open persistent state store: %v", err)
	}

	l := ledger.NewLedger(store, cfg.BurnPercent)
	if store.Version() == 0 {
		if err := genesis.Apply(l, gen); err != nil {
			log.Fatalf("apply genesis allocations: %v", err)
		}
		log.Printf("applied genesis for chain %s (%d validators, %d allocations)", gen.ChainName, len(gen.Validators), len(gen.Allocations))
	}

	mp := mempool.New(cfg.MempoolMaxSize, cfg.MempoolMaxPerSender)
	eventBus := bus.New()
	engine := consensus.NewEngine(validators, local, eventBus)

	var archive *database.CertificateArchive
	dbClient, err := database.NewClient(cfg)
	if err != nil {
		if cfg.DatabaseRequired {
			log.Fatalf("certificate archive database required but unreachable: %v", err)
		}
		log.Printf("warning: certificate archive disabled, running without finality-certificate persistence: %v", err)
	} else {
		if err := dbClient.MigrateUp(context.Background()); err != nil {
			log.Printf("warning: certificate archive migration failed: %v", err)
		}
		archive = database.NewCertificateArchive(dbClient)
		defer dbClient.Close()
	}

	node := runtime.New(runtime.Config{
		MinFee:            cfg.MinFee,
		MaxTxAmount:       cfg.MaxTxAmount,
		BurnPercent:       cfg.BurnPercent,
		ProposalBatchSize: cfg.ProposalBatchSize,
	}, store, l, mp, engine, eventBus, func() int64 { return time.Now().Unix() })

	ctx, cancel := context.WithCancel(context.Background())

	finalized := eventBus.Subscribe(bus.TopicConsensus)
	go runFinalizationLoop(ctx, node, archive, finalized)

	if cfg.IsValidator {
		go runProposalLoop(ctx, node)
	}

	expiredTicker := time.NewTicker(time.Minute)
	go func() {
		for {
			select {
			case <-ctx.Done():
				expiredTicker.Stop()
				return
			case <-expiredTicker.C:
				if expired := mp.RemoveExpired(cfg.TxTTLSeconds); len(expired) > 0 {
					log.Printf("evicted %d expired transactions", len(expired))
				}
			}
		}
	}()

	httpServer := &http.Server{Addr: cfg.ListenAddr, Handler: api.New(node)}
	go func() {
		log.Printf("HTTP API listening on %s", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	log.Printf("rainsonetd ready (validator=%v, chain=%s)", cfg.IsValidator, gen.ChainName)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Printf("shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}
	if err := db.Close(); err != nil {
		log.Printf("state database close error: %v", err)
	}
	log.Printf("rainsonetd stopped")
}

// runProposalLoop periodically drains the mempool into a proposal. Only
// started for validator nodes.
func runProposalLoop(ctx context.Context, node *runtime.Node) {
	ticker := time.NewTicker(proposalInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p, err := node.ProposeBatch()
			if err != nil {
				log.Printf("propose batch: %v", err)
				continue
			}
			if p != nil {
				log.Printf("proposed state version %d (%d transactions)", p.StateVersion, len(p.TxIDs))
			}
		}
	}
}

// runFinalizationLoop applies every StateFinalized event to the KV store
// and, if a certificate archive is configured, persists its certificate.
func runFinalizationLoop(ctx context.Context, node *runtime.Node, archive *database.CertificateArchive, events <-chan bus.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-events:
			ev, ok := msg.Payload.(consensus.StateFinalizedEvent)
			if !ok {
				continue
			}
			if err := node.ApplyFinalized(ev.Certificate.ProposalID); err != nil {
				log.Printf("apply finalized proposal %x: %v", ev.Certificate.ProposalID, err)
				continue
			}
			log.Printf("finalized state version %d", ev.StateVersion)
			if archive != nil {
				if err := archive.Append(ctx, &ev.Certificate); err != nil {
					log.Printf("archive certificate for version %d: %v", ev.StateVersion, err)
				}
			}
		}
	}
}
