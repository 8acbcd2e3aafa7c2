package cli

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/geocoder/internal/store"
)

var packOut string

var packCmd = &cobra.Command{
	Use:   "pack",
	Short: "write every source store as packed segments",
	Long: `Pack the grid and frequency entries of every source into one segment
per shard, written to <out>/<source>/<type>-<shard>.seg. A gridserver
started with -segments <out> loads them at startup.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		e, err := loadEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()
		return runPack(ctx, e, cmd.OutOrStdout(), packOut)
	},
}

func init() {
	packCmd.Flags().StringVarP(&packOut, "out", "o", "segments", "output directory")
}

func runPack(ctx context.Context, e *env, w io.Writer, out string) error {
	for _, src := range e.registry.Sources() {
		for _, typ := range []string{store.TypeGrid, store.TypeFreq} {
			for shard := uint32(0); shard < src.Store.Shards(); shard++ {
				data, err := src.Store.Pack(ctx, typ, shard)
				if err != nil {
					return fmt.Errorf("packing %s %s shard %d: %w", src.Name(), typ, shard, err)
				}
				path := filepath.Join(out, src.Name(), fmt.Sprintf("%s-%d.seg", typ, shard))
				if err := store.WriteSegmentFile(path, data); err != nil {
					return err
				}
				printf(w, "%s\t%d bytes\n", path, len(data))
			}
		}
	}
	return nil
}
