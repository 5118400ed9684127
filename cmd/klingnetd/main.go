// Klingnet hybrid PoW/PoS node daemon.
//
// Usage:
//
//	klingnetd [--mine --stake --address=...] Run node
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/klingon-tech/hybridnode/config"
	"github.com/klingon-tech/hybridnode/internal/ledger"
	"github.com/klingon-tech/hybridnode/internal/log"
	"github.com/klingon-tech/hybridnode/internal/miner"
	"github.com/klingon-tech/hybridnode/internal/p2p"
	"github.com/klingon-tech/hybridnode/internal/staking"
	"github.com/klingon-tech/hybridnode/internal/storage"
	"github.com/klingon-tech/hybridnode/pkg/types"
)

func main() {
	// ── 1. Load config (defaults → env → flags) ─────────────────────────
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// ── 2. Init logger ───────────────────────────────────────────────────
	log.Init(cfg.LogLevel, cfg.LogJSON)
	logger := log.WithComponent("node")

	if (cfg.Mine || cfg.Stake) && cfg.Address == "" {
		logger.Fatal().Msg("--mine/--stake requires --address")
	}
	if (cfg.Mine || cfg.Stake) && len(cfg.Peers) == 0 {
		logger.Fatal().Msg("--mine/--stake requires at least one configured peer")
	}

	// ── 3. Open the secondary UTXO cache, then the ledger ────────────────
	var cache storage.DB
	if cfg.DataDir != "" {
		cache, err = storage.NewBadger(cfg.BadgerPath())
		if err != nil {
			logger.Fatal().Err(err).Msg("opening UTXO cache")
		}
	} else {
		cache = storage.NewMemory()
	}

	l, err := ledger.New(cfg, cache)
	if err != nil {
		logger.Fatal().Err(err).Msg("loading ledger")
	}

	// ── 4. Start the P2P server and dial configured/remembered peers ────
	server := p2p.New(l, cfg.P2PPort, cfg.PeerLogPath())
	if err := server.Start(cfg.Peers); err != nil {
		logger.Fatal().Err(err).Msg("starting p2p server")
	}

	// ── 5. Start mining/staking, broadcasting anything they produce ─────
	var m *miner.Miner
	var s *staking.Service
	if cfg.Mine {
		m = miner.New(l, types.Address(cfg.Address))
		m.SetOnBlock(server.BroadcastBlock)
		m.Start()
	}
	if cfg.Stake {
		s = staking.New(l, types.Address(cfg.Address))
		s.SetOnBlock(server.BroadcastBlock)
		s.Start()
	}

	logger.Info().
		Int("height", l.Height()).
		Int("port", cfg.P2PPort).
		Bool("mining", cfg.Mine).
		Bool("staking", cfg.Stake).
		Msg("node started")

	// ── 6. Wait for shutdown signal ──────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info().Str("signal", sig.String()).Msg("shutdown signal received")

	if m != nil {
		m.Stop()
	}
	if s != nil {
		s.Stop()
	}
	if err := server.Stop(); err != nil {
		logger.Warn().Err(err).Msg("stopping p2p server")
	}
	logger.Info().Msg("goodbye")
}
