package main

import (
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/census-enrich/internal/cache"
	"github.com/sells-group/census-enrich/internal/config"
	"github.com/sells-group/census-enrich/internal/pipeline"
	"github.com/sells-group/census-enrich/internal/sink"
	"github.com/sells-group/census-enrich/internal/tiger"
)

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Enrich a building footprint dataset with tract statistics",
	Long: `Reads a geojson or shapefile dataset, resolves its state through the Census
Geocoder, fetches ACS5 tract statistics and TIGER tract boundaries, joins them
to every feature, and draws ownership, income bracket and synthetic income.

Without --out (and with the geojson driver) the result is summarised but not
written.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := applyEnrichFlags(cmd, cfg); err != nil {
			return err
		}
		if err := cfg.Validate("enrich"); err != nil {
			return err
		}

		log := zap.L().With(zap.String("command", "enrich"))

		client := newCensusClient(cfg.Census)
		var fetcher pipeline.StatsFetcher = client
		if cfg.Cache.Enabled {
			store, err := cache.Open(cfg.Cache.Path, time.Duration(cfg.Cache.TTLDays)*24*time.Hour)
			if err != nil {
				return err
			}
			defer store.Close() //nolint:errcheck
			if err := store.Migrate(ctx); err != nil {
				return err
			}
			if purged, err := store.Purge(ctx); err != nil {
				log.Warn("purge expired cache entries", zap.Error(err))
			} else if purged > 0 {
				log.Info("purged expired cache entries", zap.Int("entries", purged))
			}
			fetcher = &pipeline.CachedFetcher{Fetcher: client, Store: store}
		}

		tracts := &tiger.Source{
			BaseURL:    cfg.Tiger.BaseURL,
			CacheDir:   cfg.Tiger.TempDir,
			HTTPClient: &http.Client{Timeout: 10 * time.Minute},
		}

		var out sink.Sink
		if wantsSink(cfg.Output) {
			s, err := sink.New(ctx, sink.Config{
				Driver:      cfg.Output.Driver,
				Path:        cfg.Output.Path,
				DatabaseURL: cfg.Output.DatabaseURL,
				Schema:      cfg.Output.Schema,
				Table:       cfg.Output.Table,
				Replace:     cfg.Output.Replace,
			})
			if err != nil {
				return err
			}
			defer s.Close() //nolint:errcheck
			out = s
		}

		res, err := pipeline.New(cfg, client, fetcher, tracts, out).Run(ctx)
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "state:     %s\n", res.State)
		fmt.Fprintf(w, "features:  %d in, %d matched, %d unmatched\n", res.Join.Features, res.Join.Matched, res.Join.Unmatched)
		if res.Draws != nil {
			fmt.Fprintf(w, "draws:     %d owned, %d excluded, %d failed (run %s, seed %d)\n",
				res.Draws.Owned, res.Draws.Excluded, res.Draws.Failed, res.Draws.RunID, res.Draws.Seed)
		}
		fmt.Fprintf(w, "rows:      %d\n", res.Table.Len())
		if out != nil {
			fmt.Fprintf(w, "written:   %d\n", res.Written)
		}

		log.Info("enrich complete", zap.Int("rows", res.Table.Len()), zap.Int64("written", res.Written))
		return nil
	},
}

// wantsSink reports whether the run writes anywhere: a geojson path or a
// database driver.
func wantsSink(o config.OutputConfig) bool {
	switch strings.ToLower(o.Driver) {
	case "postgres", "postgis":
		return true
	}
	return o.Path != ""
}

// applyEnrichFlags copies explicitly set flags over the loaded config.
func applyEnrichFlags(cmd *cobra.Command, c *config.Config) error {
	f := cmd.Flags()
	var err error
	if f.Changed("in") {
		if c.Input.Path, err = f.GetString("in"); err != nil {
			return err
		}
	}
	if f.Changed("srid") {
		if c.Input.SRID, err = f.GetInt("srid"); err != nil {
			return err
		}
	}
	if f.Changed("out") {
		if c.Output.Path, err = f.GetString("out"); err != nil {
			return err
		}
	}
	if f.Changed("driver") {
		if c.Output.Driver, err = f.GetString("driver"); err != nil {
			return err
		}
	}
	if f.Changed("replace") {
		if c.Output.Replace, err = f.GetBool("replace"); err != nil {
			return err
		}
	}
	if f.Changed("report") {
		if c.Output.ReportPath, err = f.GetString("report"); err != nil {
			return err
		}
	}
	if f.Changed("vars") {
		if c.Census.Variables, err = f.GetStringSlice("vars"); err != nil {
			return err
		}
	}
	if f.Changed("year") {
		if c.Census.Year, err = f.GetInt("year"); err != nil {
			return err
		}
	}
	if f.Changed("state") {
		if c.Census.FallbackState, err = f.GetString("state"); err != nil {
			return err
		}
	}
	if f.Changed("mapping") {
		if c.Columns.MappingFile, err = f.GetString("mapping"); err != nil {
			return err
		}
	}
	if f.Changed("trials") {
		if c.Disaggregate.Trials, err = f.GetInt("trials"); err != nil {
			return err
		}
	}
	if f.Changed("seed") {
		if c.Disaggregate.Seed, err = f.GetUint64("seed"); err != nil {
			return err
		}
	}
	if f.Changed("workers") {
		if c.Disaggregate.Workers, err = f.GetInt("workers"); err != nil {
			return err
		}
	}
	if f.Changed("keep-counts") {
		if c.Columns.KeepCounts, err = f.GetBool("keep-counts"); err != nil {
			return err
		}
	}
	if f.Changed("no-draws") {
		noDraws, err := f.GetBool("no-draws")
		if err != nil {
			return err
		}
		c.Disaggregate.Enabled = !noDraws
	}
	if f.Changed("drop-excluded") {
		if c.Disaggregate.DropExcluded, err = f.GetBool("drop-excluded"); err != nil {
			return err
		}
	}
	if f.Changed("keep-unmatched") {
		if c.Join.KeepUnmatched, err = f.GetBool("keep-unmatched"); err != nil {
			return err
		}
	}
	if f.Changed("no-cache") {
		noCache, err := f.GetBool("no-cache")
		if err != nil {
			return err
		}
		c.Cache.Enabled = !noCache
	}
	return nil
}

func init() {
	f := enrichCmd.Flags()
	f.String("in", "", "input dataset (.geojson, .json or .shp)")
	f.Int("srid", 0, "coordinate reference of the input (4326, 4269, 3857)")
	f.String("out", "", "output path for the geojson driver")
	f.String("driver", "", "output driver: geojson or postgres")
	f.Bool("replace", false, "truncate the postgres table before writing")
	f.String("report", "", "write an xlsx draw report to this path")
	f.StringSlice("vars", nil, "ACS5 variable codes to request (default: built-in list)")
	f.Int("year", 0, "ACS5 vintage year")
	f.String("state", "", "fallback state FIPS code when the geocoder finds no block")
	f.String("mapping", "", "YAML file mapping variable codes to column names")
	f.Int("trials", 0, "trials per draw")
	f.Uint64("seed", 0, "random seed (0 picks one and reports it)")
	f.Int("workers", 0, "rows drawn concurrently")
	f.Bool("keep-counts", false, "keep bracket counts and add <bracket>_perc share columns")
	f.Bool("no-draws", false, "skip ownership and income draws")
	f.Bool("drop-excluded", false, "drop rows drawn as not owned")
	f.Bool("keep-unmatched", false, "keep features outside every tract with null statistics")
	f.Bool("no-cache", false, "bypass the local ACS table cache")
	rootCmd.AddCommand(enrichCmd)
}
