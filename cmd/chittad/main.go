// Package main provides the chittad daemon entry point.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/chitta-project/chitta/internal/config"
	"github.com/chitta-project/chitta/internal/embed"
	"github.com/chitta-project/chitta/internal/mind"
	"github.com/chitta-project/chitta/internal/rpc"
	"github.com/chitta-project/chitta/internal/storage"
)

var version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "chittad",
		Short: "chittad is the semantic-memory engine daemon",
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("chittad v%s\n", version)
		},
	})

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the chittad daemon",
		RunE:  runServe,
	}
	serveCmd.Flags().String("db-path", "", "base path for warm/cold storage (overrides CHITTA_DB_PATH)")
	serveCmd.Flags().String("socket-path", "", "unix socket path (overrides CHITTA_SOCKET_PATH)")
	serveCmd.Flags().String("config", "", "optional YAML config file")
	serveCmd.Flags().String("embed-model", "", "path to the ONNX embedding model (overrides CHITTA_EMBED_MODEL_PATH); with neither set the zero embedder is used")
	serveCmd.Flags().Int("embed-dim", 384, "embedding dimension used by the zero-embedder fallback")
	serveCmd.Flags().Bool("no-auth", false, "disable the socket token handshake (local trusted use only)")
	rootCmd.AddCommand(serveCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	log := slog.New(slog.NewTextHandler(os.Stderr, nil))

	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadFromFileOrEnv(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if v, _ := cmd.Flags().GetString("db-path"); v != "" {
		cfg.DBPath = v
		cfg.Storage.BasePath = v
	}
	if v, _ := cmd.Flags().GetString("socket-path"); v != "" {
		cfg.SocketPath = v
	}

	if err := os.MkdirAll(cfg.DBPath, 0o755); err != nil {
		return fmt.Errorf("creating db path: %w", err)
	}

	lock, err := rpc.AcquireLock(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("acquiring storage lock: %w", err)
	}
	defer lock.Release()

	warm, err := storage.OpenBadgerBacking(filepath.Join(cfg.DBPath, "warm"), false)
	if err != nil {
		return fmt.Errorf("opening warm tier: %w", err)
	}
	defer warm.Close()
	cold, err := storage.OpenBadgerBacking(filepath.Join(cfg.DBPath, "cold"), false)
	if err != nil {
		return fmt.Errorf("opening cold tier: %w", err)
	}
	defer cold.Close()

	embedDim, _ := cmd.Flags().GetInt("embed-dim")
	embedModel, _ := cmd.Flags().GetString("embed-model")
	if embedModel == "" {
		embedModel = cfg.EmbedModelPath
	}
	var embedder embed.Embedder
	if embedModel != "" {
		onnx, _ := embed.NewOnnxEmbedder(embed.OnnxConfig{ModelPath: embedModel, Dimension: embedDim})
		if onnx.Ready() {
			embedder = onnx
		} else {
			log.Warn("embed model not ready, falling back to zero embedder", "path", embedModel)
			embedder = embed.NewZeroEmbedder(embedDim)
		}
	} else {
		embedder = embed.NewZeroEmbedder(embedDim)
	}

	m := mind.Open(mind.Config{Storage: cfg.Storage, Dynamics: cfg.Dynamics, Retrieval: cfg.Retrieval}, warm, cold, embedder)
	defer m.Close()

	noAuth, _ := cmd.Flags().GetBool("no-auth")
	var auth *rpc.TokenAuth
	if !noAuth {
		hashPath := filepath.Join(cfg.DBPath, "token.hash")
		if _, statErr := os.Stat(hashPath); statErr == nil {
			auth, err = rpc.LoadTokenAuth(hashPath)
		} else {
			var token string
			auth, token, err = rpc.NewTokenAuth(hashPath)
			if err == nil {
				log.Info("generated socket auth token", "path", hashPath)
				fmt.Fprintf(os.Stderr, "chittad token (hand this to the client once): %s\n", token)
			}
		}
		if err != nil {
			return fmt.Errorf("setting up socket auth: %w", err)
		}
	}

	server := rpc.New(rpc.Config{SocketPath: cfg.SocketPath, Auth: auth}, m, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go runTicker(ctx, m, cfg.Dynamics.DecayInterval, log)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Serve(ctx)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	log.Info("chittad ready", "socket", cfg.SocketPath, "db", cfg.DBPath)

	select {
	case <-sigCh:
		log.Info("shutting down")
		cancel()
		server.Close()
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("rpc server: %w", err)
		}
	}
	return nil
}

// runTicker drives Mind.Tick on a fixed wall-clock cadence; Tick itself
// gates the expensive decay/coherence passes by their own configured
// intervals, so a short ticker just keeps those gates checked promptly.
func runTicker(ctx context.Context, m *mind.Mind, interval time.Duration, log *slog.Logger) {
	if interval <= 0 {
		interval = time.Hour
	}
	tickEvery := interval / 12
	if tickEvery < time.Second {
		tickEvery = time.Second
	}
	ticker := time.NewTicker(tickEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if err := m.Tick(now); err != nil {
				log.Warn("tick failed", "error", err)
			}
		}
	}
}
