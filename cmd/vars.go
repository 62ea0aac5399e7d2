package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/census-enrich/internal/transform"
	"github.com/sells-group/census-enrich/pkg/census"
)

var varsCmd = &cobra.Command{
	Use:   "vars",
	Short: "List the default ACS5 variables and their column names",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return printVariables(cmd.OutOrStdout())
	},
}

func printVariables(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CODE\tCOLUMN\tDESCRIPTION")
	for _, code := range census.DefaultVariables {
		column := transform.DefaultMapping[string(code)]
		if column == "" {
			column = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", code, column, census.Descriptions[code])
	}
	return tw.Flush()
}

func init() {
	rootCmd.AddCommand(varsCmd)
}
