package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/geocoder/internal/features"
	"github.com/Adithya-Monish-Kumar-K/geocoder/internal/indexer/router"
	"github.com/Adithya-Monish-Kumar-K/geocoder/internal/ingestion/validator"
)

const maxLineBytes = 16 << 20

var indexCmd = &cobra.Command{
	Use:   "index <features.jsonl>",
	Short: "index line-delimited features into the configured sources",
	Long: `Read one feature JSON object per line, validate it, store it in the
feature store and index it into the grid store of its source. Use "-" to
read from stdin. Every source is flushed before the command exits.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		e, err := loadEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		in := io.Reader(os.Stdin)
		if args[0] != "-" {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			in = f
		}
		n, err := runIndex(ctx, e, in)
		printf(cmd.OutOrStdout(), "indexed %d features\n", n)
		return err
	},
}

// runIndex indexes every feature read from in and flushes all sources. It
// stops at the first invalid line.
func runIndex(ctx context.Context, e *env, in io.Reader) (int, error) {
	r, err := router.New(e.cfg.Sources, e.stores, e.cfg.Indexer, nil)
	if err != nil {
		return 0, err
	}

	batches := make(map[string][]features.Feature)
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var f features.Feature
		if err := json.Unmarshal(raw, &f); err != nil {
			r.Close()
			return 0, fmt.Errorf("line %d: %w", line, err)
		}
		if err := validator.ValidateFeature(&f, e.registry.Known); err != nil {
			r.Close()
			return 0, fmt.Errorf("line %d: %w", line, err)
		}
		if err := e.features.Put(ctx, f); err != nil {
			r.Close()
			return 0, fmt.Errorf("line %d: storing feature: %w", line, err)
		}
		batches[f.Source] = append(batches[f.Source], f)
	}
	if err := scanner.Err(); err != nil {
		r.Close()
		return 0, err
	}

	total := 0
	for source, batch := range batches {
		engine, err := r.Route(source)
		if err != nil {
			r.Close()
			return total, err
		}
		n, err := engine.IndexBatch(ctx, batch)
		total += n
		if err != nil {
			r.Close()
			return total, fmt.Errorf("indexing %s: %w", source, err)
		}
	}
	return total, r.Close()
}
