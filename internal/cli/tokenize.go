package cli

import (
	"encoding/json"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/geocoder/internal/termops"
)

var tokenizePhrases bool

var tokenizeCmd = &cobra.Command{
	Use:   "tokenize <text>",
	Short: "show how text is tokenized",
	Long: `Tokenize text the way queries are tokenized and print the result as JSON.

Examples:
  geoctl tokenize "Main St, Springfield"
  geoctl tokenize --phrases "Main Street"   # phrases an index would write`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTokenize(cmd.OutOrStdout(), strings.Join(args, " "), tokenizePhrases)
	},
}

func init() {
	tokenizeCmd.Flags().BoolVar(&tokenizePhrases, "phrases", false, "print indexable phrases instead of query tokens")
}

type tokenizeOutput struct {
	Tokens  []string                   `json:"tokens"`
	Phrases []termops.IndexablePhrase `json:"phrases,omitempty"`
}

func runTokenize(w io.Writer, text string, phrases bool) error {
	tq, err := termops.Tokenize(text, false)
	if err != nil {
		return err
	}
	if tq, err = termops.NormalizeQuery(tq); err != nil {
		return err
	}
	out := tokenizeOutput{Tokens: tq.Tokens}
	if phrases {
		out.Phrases = termops.GetIndexablePhrases(tq.Tokens, termops.Freq{}, nil)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
