package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/technosupport/ts-vision-core/internal/config"
	"github.com/technosupport/ts-vision-core/internal/manager"
	"github.com/technosupport/ts-vision-core/internal/telemetry"
)

var (
	flagListenAddr       string
	flagReconcileEvery   time.Duration
	flagResourceInterval time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the manager, reconcile loop, and HTTP surface until signalled",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&flagListenAddr, "listen", ":8090", "HTTP listen address for /healthz, /metrics, /status, /resources")
	serveCmd.Flags().DurationVar(&flagReconcileEvery, "reconcile-interval", 10*time.Second, "how often the configuration store is polled for changes")
	serveCmd.Flags().DurationVar(&flagResourceInterval, "resource-interval", 30*time.Second, "how often host CPU/memory/backend-mix is sampled")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := config.LoadSystemConfig(flagConfigPath); err != nil {
		return fmt.Errorf("load system config: %w", err)
	}

	shutdownTracing, err := telemetry.Setup(ctx, telemetry.Config{ServiceName: "vision-engine"})
	if err != nil {
		return fmt.Errorf("setup telemetry: %w", err)
	}
	defer shutdownTracing(context.Background())

	db, st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	m, closeManager, err := buildManager(flagRulesDir)
	if err != nil {
		return err
	}
	defer closeManager()
	defer m.Stop()

	if err := reconcileOnce(ctx, st, m); err != nil {
		log.Printf("vision-engine: initial reconcile reported errors: %v", err)
	}

	sampler := manager.NewResourceSampler(m, flagResourceInterval)
	sampler.Start(ctx)
	manager.NewMetricsCollector(m, sampler, 5*time.Second).Start(ctx)

	httpServer := &http.Server{
		Addr:    flagListenAddr,
		Handler: manager.NewHTTPHandler(m, sampler),
	}
	go func() {
		log.Printf("vision-engine: listening on %s", flagListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("vision-engine: http server error: %v", err)
		}
	}()

	ticker := time.NewTicker(flagReconcileEvery)
	defer ticker.Stop()

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-ticker.C:
			if err := reconcileOnce(ctx, st, m); err != nil {
				log.Printf("vision-engine: reconcile reported errors: %v", err)
			}
		}
	}

	log.Println("vision-engine: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
