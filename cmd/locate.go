package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var locateCmd = &cobra.Command{
	Use:   "locate",
	Short: "Print the census geography of a coordinate",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("locate"); err != nil {
			return err
		}
		if !cmd.Flags().Changed("lon") || !cmd.Flags().Changed("lat") {
			return eris.New("locate: --lon and --lat are required")
		}
		lon, _ := cmd.Flags().GetFloat64("lon")
		lat, _ := cmd.Flags().GetFloat64("lat")

		g, err := newCensusClient(cfg.Census).Locate(cmd.Context(), lon, lat)
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "block:  %s\n", g.GEOID)
		fmt.Fprintf(w, "tract:  %s\n", g.TractGEOID())
		fmt.Fprintf(w, "state:  %s\n", g.State)
		fmt.Fprintf(w, "county: %s\n", g.County)
		return nil
	},
}

func init() {
	locateCmd.Flags().Float64("lon", 0, "longitude (EPSG:4326)")
	locateCmd.Flags().Float64("lat", 0, "latitude (EPSG:4326)")
	rootCmd.AddCommand(locateCmd)
}
