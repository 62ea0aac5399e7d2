// Package join attaches census tract statistics to features, first by GEOID
// (statistics onto tract boundaries) and then spatially (boundaries onto
// feature representative points).
package join

import (
	"sort"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/census-enrich/internal/geo"
	"github.com/sells-group/census-enrich/internal/model"
)

// ColTractName is the column holding the tract's NAME from the statistics table.
const ColTractName = "TractName"

// Options controls the spatial join.
type Options struct {
	// KeepUnmatched keeps features that fall in no tract, with nil GEOID and
	// statistics, instead of dropping them.
	KeepUnmatched bool
	// Codes is the order statistic columns are added in. When empty, the
	// union of codes across tract records is used, sorted.
	Codes []string
}

// Summary counts the outcome of a spatial join.
type Summary struct {
	Features    int
	Matched     int
	Unmatched   int
	PointErrors int
}

// AttachBoundaries pairs each tract boundary with its statistics row by exact
// GEOID. Tracts without statistics and statistics without a boundary are
// dropped. Output order follows tracts.
func AttachBoundaries(tracts []model.Tract, stats *model.StatsTable) []model.TractRecord {
	byGEOID := make(map[string]model.TractStats, len(stats.Rows))
	for _, row := range stats.Rows {
		byGEOID[row.GEOID] = row
	}

	records := make([]model.TractRecord, 0, len(tracts))
	used := make(map[string]bool, len(tracts))
	for _, t := range tracts {
		s, ok := byGEOID[t.GEOID]
		if !ok {
			continue
		}
		used[t.GEOID] = true
		records = append(records, model.TractRecord{Tract: t, Stats: s})
	}

	zap.L().Debug("join: attached statistics to tract boundaries",
		zap.Int("tracts", len(tracts)),
		zap.Int("stats_rows", len(stats.Rows)),
		zap.Int("joined", len(records)),
		zap.Int("tracts_without_stats", len(tracts)-len(records)),
		zap.Int("stats_without_tract", len(stats.Rows)-len(used)),
	)
	return records
}

type indexedTract struct {
	rec    *model.TractRecord
	bounds *geom.Bounds
}

// Spatial assigns each feature the tract containing its representative point.
// The first containing tract in tract order wins. Matched features gain the
// GEOID, TractName and statistic columns. The input table is not modified.
func Spatial(features *model.Table, tracts []model.TractRecord, opts Options) (*model.Table, *Summary, error) {
	if features == nil {
		return nil, nil, eris.New("join: nil feature table")
	}
	log := zap.L().With(zap.String("component", "join.spatial"))

	codes := opts.Codes
	if len(codes) == 0 {
		codes = unionCodes(tracts)
	}

	index := make([]indexedTract, 0, len(tracts))
	for i := range tracts {
		if tracts[i].Geometry == nil {
			continue
		}
		index = append(index, indexedTract{rec: &tracts[i], bounds: tracts[i].Geometry.Bounds()})
	}

	out := &model.Table{
		Columns:  append([]string(nil), features.Columns...),
		Features: make([]model.Feature, 0, len(features.Features)),
		SRID:     features.SRID,
	}
	out.AddColumn(model.ColGEOID)
	out.AddColumn(ColTractName)
	for _, c := range codes {
		out.AddColumn(c)
	}

	sum := &Summary{Features: len(features.Features)}
	for _, f := range features.Features {
		rec, err := locate(f.Geometry, index)
		if err != nil {
			sum.PointErrors++
			log.Debug("representative point failed", zap.String("feature", f.ID), zap.Error(err))
		}

		if rec == nil {
			sum.Unmatched++
			if !opts.KeepUnmatched {
				continue
			}
			nf := f.Clone()
			nf.Properties[model.ColGEOID] = nil
			nf.Properties[ColTractName] = nil
			for _, c := range codes {
				nf.Properties[c] = nil
			}
			out.Features = append(out.Features, nf)
			continue
		}

		sum.Matched++
		nf := f.Clone()
		nf.Properties[model.ColGEOID] = rec.GEOID
		nf.Properties[ColTractName] = rec.Stats.Name
		for _, c := range codes {
			if v, ok := rec.Stats.Values[c]; ok {
				nf.Properties[c] = v
			} else {
				nf.Properties[c] = nil
			}
		}
		out.Features = append(out.Features, nf)
	}

	log.Info("spatial join complete",
		zap.Int("features", sum.Features),
		zap.Int("matched", sum.Matched),
		zap.Int("unmatched", sum.Unmatched),
		zap.Int("point_errors", sum.PointErrors),
		zap.Bool("keep_unmatched", opts.KeepUnmatched),
	)
	return out, sum, nil
}

// Join runs AttachBoundaries then Spatial. Statistic columns follow the
// order of stats.Codes unless opts.Codes overrides it.
func Join(features *model.Table, tracts []model.Tract, stats *model.StatsTable, opts Options) (*model.Table, *Summary, error) {
	if len(opts.Codes) == 0 {
		opts.Codes = stats.Codes
	}
	return Spatial(features, AttachBoundaries(tracts, stats), opts)
}

func locate(g geom.T, index []indexedTract) (*model.TractRecord, error) {
	x, y, err := geo.RepresentativePoint(g)
	if err != nil {
		return nil, err
	}
	pt := geom.Coord{x, y}
	for _, it := range index {
		if !it.bounds.OverlapsPoint(geom.XY, pt) {
			continue
		}
		if geo.ContainsPoint(it.rec.Geometry, x, y) {
			return it.rec, nil
		}
	}
	return nil, nil
}

func unionCodes(tracts []model.TractRecord) []string {
	seen := make(map[string]bool)
	for _, t := range tracts {
		for c := range t.Stats.Values {
			seen[c] = true
		}
	}
	codes := make([]string, 0, len(seen))
	for c := range seen {
		codes = append(codes, c)
	}
	sort.Strings(codes)
	return codes
}
