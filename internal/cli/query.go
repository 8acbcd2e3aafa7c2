package cli

import (
	"context"
	"encoding/json"
	"io"
	"net/url"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/geocoder/internal/geocoder/handler"
)

var queryFlags struct {
	proximity string
	bbox      string
	types     string
	limit     int
}

var queryCmd = &cobra.Command{
	Use:   "query <text>",
	Short: "forward geocode a query against the local indexes",
	Long: `Run a forward geocode in process and print the response as JSON.

Examples:
  geoctl query "main st springfield"
  geoctl query --proximity -89.6,39.7 --types street "main st"
  geoctl query --bbox -91,38,-88,41 --limit 3 springfield`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		e, err := loadEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()
		return runQuery(ctx, e, cmd.OutOrStdout(), strings.Join(args, " "), queryValues())
	},
}

func init() {
	f := queryCmd.Flags()
	f.StringVar(&queryFlags.proximity, "proximity", "", "bias results toward lon,lat")
	f.StringVar(&queryFlags.bbox, "bbox", "", "restrict results to minLon,minLat,maxLon,maxLat")
	f.StringVar(&queryFlags.types, "types", "", "comma separated source types or names")
	f.IntVar(&queryFlags.limit, "limit", 0, "maximum number of results")
}

// queryValues maps the flags onto the parameters the HTTP endpoint takes so
// both share one parser.
func queryValues() url.Values {
	v := url.Values{}
	if queryFlags.proximity != "" {
		v.Set("proximity", queryFlags.proximity)
	}
	if queryFlags.bbox != "" {
		v.Set("bbox", queryFlags.bbox)
	}
	if queryFlags.types != "" {
		v.Set("types", queryFlags.types)
	}
	if queryFlags.limit > 0 {
		v.Set("limit", strconv.Itoa(queryFlags.limit))
	}
	return v
}

func runQuery(ctx context.Context, e *env, w io.Writer, text string, params url.Values) error {
	opts, err := handler.ParseOptions(params)
	if err != nil {
		return err
	}
	resp, err := e.geocoder().Forward(ctx, text, opts)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}
