// Package cli provides command-line interface commands for the portwarden
// port monitor. This file implements the server command, which runs the
// API server and monitor in the foreground without daemonizing.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mfolkes/portwarden/internal/api"
	"github.com/mfolkes/portwarden/internal/auth"
	"github.com/mfolkes/portwarden/internal/config"
	"github.com/mfolkes/portwarden/internal/logging"
	"github.com/mfolkes/portwarden/internal/monitor"
	"github.com/mfolkes/portwarden/internal/store"
)

const serverShutdownTimeout = 10 * time.Second

var (
	serverHost string
	serverPort int
)

// serverCmd represents the server command.
var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the API server in the foreground",
	Long: `Run the portwarden API server and monitor attached to the current
terminal. This is the daemon without forking, PID files, or signal-driven
reloads; useful under a process supervisor or in containers.`,
	Example: `  portwarden server
  portwarden server --host 0.0.0.0 --port 8080`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(serverCmd)

	serverCmd.Flags().StringVar(&serverHost, "host", "", "listen address (overrides config)")
	serverCmd.Flags().IntVar(&serverPort, "port", 0, "listen port (overrides config)")
}

func runServer(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load(getConfigFilePath())
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	cfg.API.Enabled = true
	if serverHost != "" {
		cfg.API.ListenAddr = serverHost
	}
	if serverPort != 0 {
		cfg.API.Port = serverPort
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := logging.Default()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var st *store.Store
	var keys *auth.KeyStore
	if cfg.Database.Enabled {
		dbConfig := cfg.GetDatabaseConfig()
		st, err = store.Connect(ctx, &dbConfig)
		if err != nil {
			return fmt.Errorf("database connection failed: %w", err)
		}
		defer func() { _ = st.Close() }()

		keys, err = auth.NewKeyStore(ctx, st.DB())
		if err != nil {
			return fmt.Errorf("key store initialization failed: %w", err)
		}
	}

	scanCfg, err := cfg.ScanConfig()
	if err != nil {
		return fmt.Errorf("invalid scan configuration: %w", err)
	}

	monOpts := []monitor.Option{}
	if st != nil {
		monOpts = append(monOpts, monitor.WithStore(st))
	}
	mon := monitor.New(monitor.Config{
		Interval:    cfg.Monitor.Interval,
		StopTimeout: cfg.Monitor.StopTimeout,
		Scan:        scanCfg,
	}, monOpts...)

	apiOpts := []api.Option{}
	if st != nil {
		apiOpts = append(apiOpts, api.WithStore(st))
	}
	if keys != nil {
		apiOpts = append(apiOpts, api.WithKeyStore(keys))
	}
	server, err := api.New(cfg, mon, logger.Logger, apiOpts...)
	if err != nil {
		return fmt.Errorf("failed to create API server: %w", err)
	}

	if err := mon.Start(); err != nil {
		return fmt.Errorf("failed to start monitor: %w", err)
	}
	defer mon.Stop()

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	fmt.Printf("Portwarden API server listening on %s\n", cfg.GetAPIAddress())
	fmt.Println("Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigChan:
		fmt.Printf("\nReceived %v, shutting down...\n", sig)
	case err := <-serverErr:
		if err != nil {
			return err
		}
		return nil
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), serverShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}

	fmt.Println("Server stopped")
	return nil
}
