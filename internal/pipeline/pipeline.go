// Package pipeline runs the enrichment end to end: read and reproject the
// input, fetch tract statistics and boundaries, join, transform, draw, and
// write.
package pipeline

import (
	"context"
	"slices"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/census-enrich/internal/config"
	"github.com/sells-group/census-enrich/internal/disagg"
	"github.com/sells-group/census-enrich/internal/geo"
	"github.com/sells-group/census-enrich/internal/join"
	"github.com/sells-group/census-enrich/internal/model"
	"github.com/sells-group/census-enrich/internal/report"
	"github.com/sells-group/census-enrich/internal/sink"
	"github.com/sells-group/census-enrich/internal/transform"
	"github.com/sells-group/census-enrich/pkg/census"
)

// ErrMissingCredentials is returned when no Census API key is configured.
var ErrMissingCredentials = eris.New("pipeline: census api key is not configured")

// StateResolver maps a coordinate to its 2-digit state FIPS code.
type StateResolver interface {
	ResolveState(ctx context.Context, lon, lat float64) (string, error)
}

// StatsFetcher returns the ACS table for every tract in a state.
type StatsFetcher interface {
	FetchTractStatistics(ctx context.Context, year int, state string, vars census.Variables) (*model.StatsTable, error)
}

// TractSource returns the tract boundaries of a state.
type TractSource interface {
	Tracts(ctx context.Context, year int, state string) ([]model.Tract, error)
}

// Pipeline wires the enrichment stages to their collaborators.
type Pipeline struct {
	cfg      *config.Config
	resolver StateResolver
	fetcher  StatsFetcher
	tracts   TractSource
	sink     sink.Sink
	randOpts []disagg.Option
}

// New creates a Pipeline. out may be nil, in which case the enriched table is
// only returned.
func New(cfg *config.Config, resolver StateResolver, fetcher StatsFetcher, tracts TractSource, out sink.Sink, opts ...disagg.Option) *Pipeline {
	return &Pipeline{
		cfg:      cfg,
		resolver: resolver,
		fetcher:  fetcher,
		tracts:   tracts,
		sink:     out,
		randOpts: opts,
	}
}

// Result is the outcome of a run.
type Result struct {
	Table   *model.Table
	State   string
	Join    *join.Summary
	Draws   *disagg.Report
	Written int64
	Stages  []Stage
}

// Stage records how long one step took.
type Stage struct {
	Name     string
	Duration time.Duration
}

// Run executes every stage against the configured input.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	log := zap.L().With(zap.String("component", "pipeline"), zap.String("input", p.cfg.Input.Path))
	log.Info("pipeline: starting enrichment")

	result := &Result{}
	stage := func(name string, fn func() error) error {
		start := time.Now()
		err := fn()
		d := time.Since(start)
		result.Stages = append(result.Stages, Stage{Name: name, Duration: d})
		if err != nil {
			log.Error("pipeline: stage failed", zap.String("stage", name), zap.Duration("duration", d), zap.Error(err))
			return err
		}
		log.Info("pipeline: stage complete", zap.String("stage", name), zap.Duration("duration", d))
		return nil
	}

	// Configuration problems fail before any input is read or request made.
	if p.cfg.Census.APIKey == "" {
		return nil, ErrMissingCredentials
	}
	vars, err := census.ParseVariables(p.cfg.Census.Variables)
	if err != nil {
		return nil, err
	}
	mapping, applyRename, err := p.columnMapping(vars)
	if err != nil {
		return nil, err
	}

	var table *model.Table
	if err := stage("read", func() error {
		raw, err := geo.ReadDataset(p.cfg.Input.Path, p.cfg.Input.SRID)
		if err != nil {
			return err
		}
		table, err = geo.Reproject(raw)
		return err
	}); err != nil {
		return nil, err
	}
	if table.Len() == 0 {
		return nil, eris.Errorf("pipeline: %s has no features", p.cfg.Input.Path)
	}

	if err := stage("resolve_state", func() error {
		result.State, err = p.resolveState(ctx, table)
		return err
	}); err != nil {
		return nil, err
	}

	var stats *model.StatsTable
	if err := stage("fetch_stats", func() error {
		stats, err = p.fetcher.FetchTractStatistics(ctx, p.cfg.Census.Year, result.State, vars)
		return err
	}); err != nil {
		return nil, err
	}

	var tracts []model.Tract
	if err := stage("fetch_tracts", func() error {
		tracts, err = p.tracts.Tracts(ctx, p.cfg.Tiger.Year, result.State)
		return err
	}); err != nil {
		return nil, err
	}

	if err := stage("join", func() error {
		table, result.Join, err = join.Join(table, tracts, stats, join.Options{
			KeepUnmatched: p.cfg.Join.KeepUnmatched,
			Codes:         stats.Codes,
		})
		return err
	}); err != nil {
		return nil, err
	}

	if err := stage("transform", func() error {
		table, err = p.transform(table, mapping, applyRename)
		return err
	}); err != nil {
		return nil, err
	}

	if p.cfg.Disaggregate.Enabled {
		if err := stage("disaggregate", func() error {
			table, result.Draws, err = p.disaggregate(ctx, table, mapping, applyRename)
			return err
		}); err != nil {
			return nil, err
		}
		if p.cfg.Output.ReportPath != "" {
			if err := stage("report", func() error {
				return report.Export(p.cfg.Output.ReportPath, *result.Draws, result.Join)
			}); err != nil {
				return nil, err
			}
		}
	}

	if p.sink != nil {
		if err := stage("write", func() error {
			result.Written, err = p.sink.Write(ctx, table)
			return err
		}); err != nil {
			return nil, err
		}
	}

	result.Table = table
	log.Info("pipeline: enrichment complete",
		zap.String("state", result.State),
		zap.Int("rows", table.Len()),
		zap.Int64("written", result.Written),
	)
	return result, nil
}

// columnMapping returns the code -> name mapping and whether it can be
// applied to the requested codes. A mapping file must match the request
// exactly; the default mapping is skipped when custom codes do not cover it.
func (p *Pipeline) columnMapping(vars census.Variables) (map[string]string, bool, error) {
	requested := vars.Strings()

	if p.cfg.Columns.MappingFile == "" {
		covered := true
		for code := range transform.DefaultMapping {
			if !slices.Contains(requested, code) {
				covered = false
				break
			}
		}
		if !covered {
			zap.L().Warn("pipeline: requested codes do not cover the default mapping; columns keep their codes")
		}
		return transform.DefaultMapping, covered, nil
	}

	mapping, err := transform.LoadMapping(p.cfg.Columns.MappingFile)
	if err != nil {
		return nil, false, err
	}
	var missing []string
	for code := range mapping {
		if !slices.Contains(requested, code) {
			missing = append(missing, code)
		}
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return nil, false, eris.Wrapf(transform.ErrUnknownColumn, "pipeline: mapping codes not requested: %v", missing)
	}
	return mapping, true, nil
}

// resolveState geocodes the representative point of the first feature with a
// geometry. With a fallback state configured, a failed lookup degrades to
// that state.
func (p *Pipeline) resolveState(ctx context.Context, t *model.Table) (string, error) {
	state, err := p.lookupState(ctx, t)
	if err == nil {
		return state, nil
	}
	fallback := p.cfg.Census.FallbackState
	if fallback == "" || eris.Is(err, context.Canceled) {
		return "", err
	}
	zap.L().Warn("pipeline: state lookup failed, using fallback state",
		zap.String("fallback_state", fallback),
		zap.Error(err),
	)
	return fallback, nil
}

func (p *Pipeline) lookupState(ctx context.Context, t *model.Table) (string, error) {
	for _, f := range t.Features {
		if f.Geometry == nil {
			continue
		}
		x, y, err := geo.RepresentativePoint(f.Geometry)
		if err != nil {
			return "", err
		}
		return p.resolver.ResolveState(ctx, x, y)
	}
	return "", eris.Wrap(census.ErrGeocodeFailure, "pipeline: no feature has a geometry")
}

// transform renames codes, derives tenure shares and turns the income
// brackets into shares, in place or as <bracket>_perc columns when counts
// are kept.
func (p *Pipeline) transform(t *model.Table, mapping map[string]string, applyRename bool) (*model.Table, error) {
	var err error
	if applyRename {
		if t, err = transform.Rename(t, mapping); err != nil {
			return nil, err
		}
	}
	col := columnNamer(mapping, applyRename)

	own, rent := col(transform.ColOwnOcc), col(transform.ColRentOcc)
	if t.HasColumn(own) && t.HasColumn(rent) {
		if t, err = transform.DeriveTenure(t, own, rent); err != nil {
			return nil, err
		}
	}

	brackets := bracketColumns(col)
	if !hasAll(t, brackets) {
		return t, nil
	}
	if p.cfg.Columns.KeepCounts {
		return transform.AddPercentageColumns(t, brackets, transform.DefaultPercSuffix)
	}
	return transform.NormalizeToPercentage(t, brackets)
}

func (p *Pipeline) disaggregate(ctx context.Context, t *model.Table, mapping map[string]string, applyRename bool) (*model.Table, *disagg.Report, error) {
	d, err := disagg.New(disagg.Config{
		Trials:         p.cfg.Disaggregate.Trials,
		Seed:           p.cfg.Disaggregate.Seed,
		Workers:        p.cfg.Disaggregate.Workers,
		DropExcluded:   p.cfg.Disaggregate.DropExcluded,
		BracketColumns: p.shareColumns(columnNamer(mapping, applyRename)),
	}, p.randOpts...)
	if err != nil {
		return nil, nil, err
	}
	res, err := d.Run(ctx, t)
	if err != nil {
		return nil, nil, err
	}
	return res.Table, &res.Report, nil
}

// columnNamer maps a semantic column name to the column that holds it: the
// name itself after a rename, otherwise the code it was mapped from.
func columnNamer(mapping map[string]string, renamed bool) func(string) string {
	if renamed {
		return func(name string) string { return name }
	}
	inverse := transform.Invert(mapping)
	return func(name string) string {
		if code, ok := inverse[name]; ok {
			return code
		}
		return name
	}
}

// shareColumns names the columns holding the bracket shares after transform.
func (p *Pipeline) shareColumns(col func(string) string) []string {
	cols := bracketColumns(col)
	if p.cfg.Columns.KeepCounts {
		for i := range cols {
			cols[i] += transform.DefaultPercSuffix
		}
	}
	return cols
}

func bracketColumns(col func(string) string) []string {
	names := disagg.BracketNames()
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = col(n)
	}
	return out
}

func hasAll(t *model.Table, cols []string) bool {
	for _, c := range cols {
		if !t.HasColumn(c) {
			return false
		}
	}
	return true
}
