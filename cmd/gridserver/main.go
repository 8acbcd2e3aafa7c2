// Command gridserver serves the grid stores of every source over RPC so
// geocoders can coalesce remotely. Packed segments written by
// "geoctl pack" can be loaded at startup with -segments.
//
// Usage:
//
//	go run ./cmd/gridserver [-config configs/development.yaml] [-segments dir]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Adithya-Monish-Kumar-K/geocoder/internal/coalesce"
	"github.com/Adithya-Monish-Kumar-K/geocoder/internal/store"
	"github.com/Adithya-Monish-Kumar-K/geocoder/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/geocoder/pkg/grpc"
	"github.com/Adithya-Monish-Kumar-K/geocoder/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/geocoder/pkg/metrics"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	segments := flag.String("segments", "", "directory of packed segments to load, one subdirectory per source")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging)
	slog.Info("starting gridserver", "rpc_port", cfg.Server.RPCPort, "sources", len(cfg.Sources))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port, reg)
		defer shutdownMetrics(context.Background())
	}

	stores, err := store.OpenAll(ctx, cfg.Store, cfg.Sources, m)
	if err != nil {
		slog.Error("failed to open source stores", "error", err)
		os.Exit(1)
	}
	defer func() {
		for _, st := range stores {
			st.Close()
		}
	}()

	svc := coalesce.NewService(coalesce.NewEngine())
	for i, src := range cfg.Sources {
		st := stores[src.Name]
		if *segments != "" {
			if err := loadSegments(ctx, st, filepath.Join(*segments, src.Name)); err != nil {
				slog.Error("failed to load segments", "source", src.Name, "error", err)
				os.Exit(1)
			}
		}
		svc.AddSource(i, st)
	}

	srv := grpc.NewServer()
	svc.Register(srv)
	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		srv.Stop()
	}()

	if err := srv.Serve(fmt.Sprintf(":%d", cfg.Server.RPCPort)); err != nil {
		slog.Error("rpc server error", "error", err)
		os.Exit(1)
	}
	slog.Info("gridserver stopped")
}

// loadSegments unpacks every *.seg file in dir into st. A missing dir is
// not an error.
func loadSegments(ctx context.Context, st *store.Store, dir string) error {
	paths, err := filepath.Glob(filepath.Join(dir, "*.seg"))
	if err != nil {
		return err
	}
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return fmt.Errorf("reading %s: %w", p, err)
		}
		typ, n, err := st.Unpack(ctx, data)
		if err != nil {
			return fmt.Errorf("unpacking %s: %w", p, err)
		}
		slog.Info("segment loaded", "source", st.Name(), "file", filepath.Base(p), "type", typ, "keys", n)
	}
	return nil
}
