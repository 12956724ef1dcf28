package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ppiankov/podguard/internal/metrics"
	"github.com/ppiankov/podguard/internal/server"
	"github.com/ppiankov/podguard/internal/service"
)

var (
	servePort        int
	serveMetricsAddr string
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().IntVar(&servePort, "port", 0, "gRPC listen port (overrides server.port)")
	serveCmd.Flags().StringVar(&serveMetricsAddr, "metrics-addr", "", "Prometheus listen address, e.g. :9461 (overrides server.metrics_addr)")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gRPC containment server",
	Long: "Runs podguard as the containment decision service over gRPC.\n" +
		"Gateways call it for every clipboard, file, network, peripheral, print\n" +
		"and screen capture operation. Policy, denylist, pattern and signature\n" +
		"files are hot-reloaded.",
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if servePort != 0 {
		cfg.Server.Port = servePort
	}
	if serveMetricsAddr != "" {
		cfg.Server.MetricsAddr = serveMetricsAddr
	}

	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rt, err := service.New(ctx, cfg, service.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("failed to start runtime: %w", err)
	}
	defer rt.Close()

	// Start hot-reload watcher for rule files
	reloader, err := server.NewReloader(rt, rt.WatchPaths(), logger)
	if err != nil {
		logger.Warn("hot-reload disabled", zap.Error(err))
	} else {
		go reloader.Run(ctx)
	}

	var metricsSrv *http.Server
	if cfg.Server.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		metricsSrv = &http.Server{Addr: cfg.Server.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics listener failed", zap.Error(err))
			}
		}()
		logger.Info("metrics listening", zap.String("addr", cfg.Server.MetricsAddr))
	}

	srv := server.New(rt.Engine(), cfg.Server.Port, logger)

	go func() {
		<-ctx.Done()
		logger.Info("shutting down containment server")
		if metricsSrv != nil {
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			_ = metricsSrv.Shutdown(shutdownCtx)
		}
		srv.GracefulStop()
	}()

	logger.Info("podguard starting",
		zap.Int("port", cfg.Server.Port),
		zap.String("policy_hash", rt.PolicyHash()),
		zap.Strings("policies", rt.PolicyIDs()))
	return srv.Serve()
}
