// Package report exports a disaggregation run summary and its failed rows
// as an XLSX workbook.
package report

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/sells-group/census-enrich/internal/disagg"
	"github.com/sells-group/census-enrich/internal/join"
)

// Sheet names.
const (
	SheetSummary  = "Summary"
	SheetFailures = "Failures"
)

var failureHeader = []string{"Row", "Feature ID", "GEOID", "Reason"}

// Export writes the run summary (and join counts when js is non-nil) plus
// one row per failed record.
func Export(path string, r disagg.Report, js *join.Summary) error {
	f := xlsx.NewFile()

	summary, err := f.AddSheet(SheetSummary)
	if err != nil {
		return eris.Wrap(err, "report: add summary sheet")
	}
	pairs := [][2]string{
		{"Run ID", r.RunID},
		{"Seed", strconv.FormatUint(r.Seed, 10)},
		{"Trials", strconv.Itoa(r.Trials)},
		{"Rows", strconv.Itoa(r.Rows)},
		{"Owned", strconv.Itoa(r.Owned)},
		{"Excluded", strconv.Itoa(r.Excluded)},
		{"Failed", strconv.Itoa(r.Failed)},
		{"Started", r.StartedAt.Format(time.RFC3339)},
		{"Finished", r.FinishedAt.Format(time.RFC3339)},
	}
	if js != nil {
		pairs = append(pairs,
			[2]string{"Input features", strconv.Itoa(js.Features)},
			[2]string{"Matched to tract", strconv.Itoa(js.Matched)},
			[2]string{"Unmatched", strconv.Itoa(js.Unmatched)},
		)
	}
	for _, p := range pairs {
		addRow(summary, p[0], p[1])
	}

	failures, err := f.AddSheet(SheetFailures)
	if err != nil {
		return eris.Wrap(err, "report: add failures sheet")
	}
	addRow(failures, failureHeader...)
	for _, fl := range r.Failures {
		addRow(failures, strconv.Itoa(fl.Index), fl.ID, fl.GEOID, fl.Reason)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return eris.Wrap(err, "report: create dir")
		}
	}
	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "report: save %s", path)
	}

	zap.L().Info("report: exported run report",
		zap.String("path", path),
		zap.String("run_id", r.RunID),
		zap.Int("failures", len(r.Failures)),
	)
	return nil
}

func addRow(sheet *xlsx.Sheet, values ...string) {
	row := sheet.AddRow()
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}
