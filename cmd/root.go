package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/census-enrich/internal/config"
	"github.com/sells-group/census-enrich/pkg/census"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "census-enrich",
	Short: "Census tract enrichment for building footprints",
	Long:  "Joins ACS5 tract statistics to building footprints and draws a per-building ownership, income bracket and synthetic income.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

// newCensusClient builds the Geocoder/ACS client from the census config section.
func newCensusClient(c config.CensusConfig) *census.Client {
	timeout := time.Duration(c.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return census.NewClient(
		census.WithAPIKey(c.APIKey),
		census.WithHTTPClient(&http.Client{Timeout: timeout}),
		census.WithRateLimit(c.RateLimit),
		census.WithGeocoderURL(c.GeocoderURL),
		census.WithACSURL(c.ACSURL),
		census.WithBlocksLayer(c.BlocksLayer),
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
