package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/msto63/spiritflow/internal/server"
	"github.com/msto63/spiritflow/pkg/core/logging"
	"github.com/msto63/spiritflow/pkg/core/version"
)

var (
	serveHost     string
	servePort     int
	serveHeadless bool
)

var serveCmd = &cobra.Command{
	Use:   "serve [flow...]",
	Short: "Serve the flow controllers over HTTP and WebSocket",
	Long: `Starts the SpiritFlow server with one controller per flow.

Endpoints:
  GET  /health
  GET  /api/v1/flows/{flow}
  PUT  /api/v1/flows/{flow}/intentions
  POST /api/v1/flows/{flow}/toggle
  POST /api/v1/flows/{flow}/stop
  GET  /api/v1/journal
  GET  /api/v1/ws            (live state and notice events)

Only one server may run per data directory.`,
	ValidArgs: []string{"rise", "rest", "morning", "evening"},
	RunE:      runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveHost, "host", "", "listen host (default from config)")
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "listen port (default from config)")
	serveCmd.Flags().BoolVar(&serveHeadless, "headless", false, "use the silent null audio device")
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := logging.New("serve")

	flows, err := parseFlows(args)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(appConfig.General.DataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	lock := flock.New(filepath.Join(appConfig.General.DataDir, "serve.lock"))
	ok, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another spiritflow server is already running for this data directory")
	}
	defer lock.Unlock()

	store, err := openJournal()
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}

	backend := ""
	if serveHeadless {
		backend = "null"
	}
	controllers, err := newControllers(flows, nil, backend, store)
	if err != nil {
		return err
	}

	cfg := server.Config{
		Host:          appConfig.Server.Host,
		Port:          appConfig.Server.Port,
		ReadTimeout:   appConfig.Server.ReadTimeout.Duration,
		WriteTimeout:  appConfig.Server.WriteTimeout.Duration,
		Version:       version.Server,
		ToggleTimeout: appConfig.Gemini.Timeout.Duration * 2,
	}
	if serveHost != "" {
		cfg.Host = serveHost
	}
	if servePort != 0 {
		cfg.Port = servePort
	}

	var srv *server.Server
	if store != nil {
		srv, err = server.New(cfg, controllers, store)
	} else {
		srv, err = server.New(cfg, controllers, nil)
	}
	if err != nil {
		closeControllers(controllers)
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	fmt.Printf("SpiritFlow server listening on http://%s\n", srv.Address())

	select {
	case <-sigCh:
		logger.Info("Shutdown requested")
	case err := <-errCh:
		if err != nil {
			closeControllers(controllers)
			return fmt.Errorf("server failed: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Stop(ctx)
}
