package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"corechain/core"
	"corechain/internal/config"
	"corechain/internal/logging"
	"corechain/transport"
)

const httpShutdownTimeout = 5 * time.Second

func main() {
	root := &cobra.Command{Use: "corechaind", Short: "peer-to-peer proof-of-work node"}
	root.PersistentFlags().String("config-dir", ".", "directory containing config.json")
	root.PersistentFlags().String("log-level", "info", "log level")

	root.AddCommand(runCmd())
	root.AddCommand(walletCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "start the node: chain, mempool, peer pool, consensus, miner and HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			logLevel, _ := cmd.Flags().GetString("log-level")
			return runNode(configDir, logLevel)
		},
	}
}

func walletCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "wallet", Short: "manage this node's keypair"}
	cmd.AddCommand(&cobra.Command{
		Use:   "new",
		Short: "generate a new wallet and print the recovery mnemonic",
		RunE: func(cmd *cobra.Command, args []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			return walletNew(configDir)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "print this node's public key",
		RunE: func(cmd *cobra.Command, args []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			return walletShow(configDir)
		},
	})
	return cmd
}

func walletNew(configDir string) error {
	cfg, err := config.Load(configDir)
	if err != nil {
		return err
	}
	w, mnemonic, err := core.NewWallet()
	if err != nil {
		return err
	}
	if err := w.Save(cfg.WalletPath); err != nil {
		return err
	}
	fmt.Printf("public key: %s\n", w.PublicKeyHex)
	fmt.Printf("recovery phrase (write this down, it will not be shown again):\n%s\n", mnemonic)
	return nil
}

func walletShow(configDir string) error {
	cfg, err := config.Load(configDir)
	if err != nil {
		return err
	}
	w, err := core.LoadWallet(cfg.WalletPath)
	if err != nil {
		return err
	}
	fmt.Println(w.PublicKeyHex)
	return nil
}

func runNode(configDir, logLevel string) error {
	cfg, err := config.Load(configDir)
	if err != nil {
		return err
	}

	log := logging.New(logLevel)
	nodeLog := logging.Component(log, "node")

	wallet, err := core.LoadWallet(cfg.WalletPath)
	if err != nil {
		nodeLog.WithError(err).Fatal("no wallet found; run `corechaind wallet new` first")
	}

	chain, err := core.NewChain(cfg.BlockchainID, true, cfg.ChainPath)
	if err != nil {
		nodeLog.WithError(err).Fatal("failed to initialise chain")
	}
	chain.Load()

	client := core.NewPeerClient()
	nodeID := uuid.NewString()
	listenPort, err := cfg.ListenPort()
	if err != nil {
		nodeLog.WithError(err).Fatal("invalid listen_addr")
	}
	peers := core.NewPeerPool(client, nodeID, cfg.BlockchainID, cfg.ProtocolVersion, cfg.NetworkVersion, cfg.Fullnode, listenPort)
	peers.AddSeeds(cfg.SeedNodes)

	status := core.NewSyncStatus()
	metrics := core.NewMetrics(chain, peers)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	consensus := core.NewConsensus(chain, peers, client, status)
	go consensus.Run(ctx)

	miner := core.NewMiner(chain, peers, client, status, wallet.PublicKeyHex, cfg.Fullnode)
	go miner.Run(ctx)

	srv := transport.New(chain, peers, status, metrics, nodeID, cfg.BlockchainID, cfg.ProtocolVersion, cfg.NetworkVersion, logging.Component(log, "transport"))
	httpServer := &http.Server{Addr: cfg.ListenAddr, Handler: srv}

	go func() {
		nodeLog.WithField("addr", cfg.ListenAddr).Info("listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			nodeLog.WithError(err).Fatal("http server failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	nodeLog.Info("shutting down")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
	defer shutdownCancel()
	return httpServer.Shutdown(shutdownCtx)
}
