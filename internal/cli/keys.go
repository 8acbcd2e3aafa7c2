package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/geocoder/internal/auth/apikey"
	"github.com/Adithya-Monish-Kumar-K/geocoder/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/geocoder/pkg/postgres"
)

var keysFlags struct {
	name      string
	scopes    []string
	expiresIn time.Duration
}

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "manage API keys for ingestion and cache administration",
}

var keysCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "create a key and print it once",
	Example: `  geoctl keys create --name loader --scope ingest
  geoctl keys create --name ops --scope admin --expires-in 720h`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if keysFlags.name == "" {
			return fmt.Errorf("--name is required")
		}
		return withKeys(cmd.Context(), func(v *apikey.Validator) error {
			var expiresAt *time.Time
			if keysFlags.expiresIn > 0 {
				t := time.Now().Add(keysFlags.expiresIn)
				expiresAt = &t
			}
			raw, err := v.CreateKey(cmd.Context(), keysFlags.name, keysFlags.scopes, expiresAt)
			if err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "%s\n", raw)
			return nil
		})
	},
}

var keysRevokeCmd = &cobra.Command{
	Use:   "revoke <key>",
	Short: "deactivate a key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withKeys(cmd.Context(), func(v *apikey.Validator) error {
			if err := v.RevokeKey(cmd.Context(), args[0]); err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "revoked\n")
			return nil
		})
	},
}

var keysListCmd = &cobra.Command{
	Use:   "list",
	Short: "list active keys",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withKeys(cmd.Context(), func(v *apikey.Validator) error {
			keys, err := v.ListKeys(cmd.Context())
			if err != nil {
				return err
			}
			return writeKeys(cmd.OutOrStdout(), keys)
		})
	},
}

func init() {
	keysCreateCmd.Flags().StringVar(&keysFlags.name, "name", "", "who the key is for")
	keysCreateCmd.Flags().StringSliceVar(&keysFlags.scopes, "scope", []string{apikey.ScopeIngest}, "scopes: ingest, admin")
	keysCreateCmd.Flags().DurationVar(&keysFlags.expiresIn, "expires-in", 0, "lifetime of the key, 0 for none")
	keysCmd.AddCommand(keysCreateCmd, keysRevokeCmd, keysListCmd)
	rootCmd.AddCommand(keysCmd)
}

// withKeys runs fn against the key table of the configured database.
func withKeys(ctx context.Context, fn func(v *apikey.Validator) error) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if !cfg.Postgres.Enabled {
		return fmt.Errorf("api keys are stored in postgres, which is disabled in %s", configPath)
	}
	db, err := postgres.New(ctx, cfg.Postgres)
	if err != nil {
		return err
	}
	defer db.Close()

	v := apikey.NewValidator(db)
	if err := v.Migrate(ctx); err != nil {
		return err
	}
	return fn(v)
}

func writeKeys(w io.Writer, keys []apikey.KeyInfo) error {
	if keys == nil {
		keys = []apikey.KeyInfo{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(keys)
}
