// Package cli implements geoctl, the operator tool for building, packing and
// querying geocoder indexes without the HTTP services.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/geocoder/internal/coalesce"
	"github.com/Adithya-Monish-Kumar-K/geocoder/internal/features"
	"github.com/Adithya-Monish-Kumar-K/geocoder/internal/geocoder"
	"github.com/Adithya-Monish-Kumar-K/geocoder/internal/store"
	"github.com/Adithya-Monish-Kumar-K/geocoder/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/geocoder/pkg/logger"
)

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "geoctl",
	Short: "build, pack and query geocoder indexes",
	Long: `geoctl works directly on the grid stores and feature store named in the
config file. Use the badger store backend and postgres for anything that
must outlive the command.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// stdout carries command output, often JSON
		slog.SetDefault(logger.New(cmd.ErrOrStderr(), config.LoggingConfig{Level: logLevel, Format: "text"}))
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "configs/development.yaml", "path to config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "debug, info, warn or error; logs go to stderr")
	rootCmd.AddCommand(tokenizeCmd)
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(packCmd)
}

// env is everything a command needs, opened from one config.
type env struct {
	cfg      *config.Config
	stores   map[string]*store.Store
	features features.TrackedStore
	registry *geocoder.Registry
}

func openEnv(ctx context.Context, cfg *config.Config) (*env, error) {
	stores, err := store.OpenAll(ctx, cfg.Store, cfg.Sources, nil)
	if err != nil {
		return nil, err
	}
	e := &env{cfg: cfg, stores: stores}
	if e.features, err = features.Open(ctx, cfg.Postgres); err != nil {
		e.Close()
		return nil, err
	}
	if e.registry, err = geocoder.NewRegistry(cfg.Sources, stores); err != nil {
		e.Close()
		return nil, err
	}
	return e, nil
}

func loadEnv(ctx context.Context) (*env, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	return openEnv(ctx, cfg)
}

// geocoder returns a Geocoder coalescing in process.
func (e *env) geocoder() *geocoder.Geocoder {
	engine := coalesce.NewEngine()
	for _, src := range e.registry.Sources() {
		engine.Register(src.Idx, src.Store)
	}
	return geocoder.New(e.registry, engine, e.features, e.cfg.Geocoder, nil)
}

func (e *env) Close() {
	for name, st := range e.stores {
		if err := st.Close(); err != nil {
			slog.Warn("closing store failed", "source", name, "error", err)
		}
	}
	if e.features != nil {
		e.features.Close()
	}
}

func printf(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, format, args...)
}
