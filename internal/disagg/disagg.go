// Package disagg assigns each building a stochastic home-ownership draw and,
// for owned buildings, an income bracket and synthetic income drawn from the
// tract-level shares it was joined to.
package disagg

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/census-enrich/internal/model"
)

// ErrInvalidProbabilityVector is returned for a row whose ownership share or
// bracket shares are not a valid probability distribution.
var ErrInvalidProbabilityVector = eris.New("disagg: invalid probability vector")

// Output columns.
const (
	ColOwned       = "Owned"
	ColSynthIncome = "SynthIncome"
	DrawSuffix     = "_draw"
)

// DefaultOwnershipColumn holds the owner share of occupied units.
const DefaultOwnershipColumn = "OwnedPerc"

// sumTolerance absorbs float rounding of normalized bracket shares.
const sumTolerance = 1e-6

// Config controls a disaggregation run.
type Config struct {
	// Trials is n for both the ownership binomial and the bracket multinomial.
	Trials int
	// Seed selects the random streams. Zero picks a fresh seed, which is
	// recorded in the report.
	Seed uint64
	// Workers > 1 draws rows concurrently.
	Workers int
	// DropExcluded removes rows drawn Owned == 0 from the output table.
	DropExcluded bool
	// OwnershipColumn defaults to DefaultOwnershipColumn.
	OwnershipColumn string
	// BracketColumns holds the bracket shares in Brackets order and defaults
	// to BracketNames(). Draw columns are always named <bracket>_draw.
	BracketColumns []string
}

// Option configures a Disaggregator.
type Option func(*Disaggregator)

// WithRandSource replaces the per-row PCG streams.
func WithRandSource(fn func(row int) Rand) Option {
	return func(d *Disaggregator) {
		d.rowRand = fn
	}
}

// Disaggregator runs the ownership, bracket and income draws over a table.
type Disaggregator struct {
	cfg     Config
	rowRand func(row int) Rand
}

// New validates cfg and returns a Disaggregator.
func New(cfg Config, opts ...Option) (*Disaggregator, error) {
	if cfg.Trials < 1 {
		return nil, eris.Errorf("disagg: trials must be at least 1, got %d", cfg.Trials)
	}
	if cfg.OwnershipColumn == "" {
		cfg.OwnershipColumn = DefaultOwnershipColumn
	}
	if len(cfg.BracketColumns) == 0 {
		cfg.BracketColumns = BracketNames()
	}
	if len(cfg.BracketColumns) != len(Brackets) {
		return nil, eris.Errorf("disagg: %d bracket columns, want %d", len(cfg.BracketColumns), len(Brackets))
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.Seed == 0 {
		cfg.Seed = rand.Uint64()
	}

	d := &Disaggregator{cfg: cfg}
	d.rowRand = func(row int) Rand { return RowRand(cfg.Seed, row) }
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Seed returns the seed in use.
func (d *Disaggregator) Seed() uint64 { return d.cfg.Seed }

// Outcome is the result class of one row.
type Outcome int

const (
	// Owned rows received bracket and income draws.
	Owned Outcome = iota
	// Excluded rows drew zero ownership successes.
	Excluded
	// Failed rows had invalid inputs and are left out of the output.
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Owned:
		return "owned"
	case Excluded:
		return "excluded"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// RowResult is the draw outcome for one input row.
type RowResult struct {
	Index   int
	ID      string
	Outcome Outcome
	Owned   int
	Bracket string
	Income  int
	Err     error

	feature model.Feature
}

// RowFailure names a failed row in the report.
type RowFailure struct {
	Index  int
	ID     string
	GEOID  string
	Reason string
}

// Report summarises a run.
type Report struct {
	RunID      string
	Seed       uint64
	Trials     int
	Rows       int
	Owned      int
	Excluded   int
	Failed     int
	Failures   []RowFailure
	StartedAt  time.Time
	FinishedAt time.Time
}

// Result is the output of Run.
type Result struct {
	Table  *model.Table
	Rows   []RowResult
	Report Report
}

// Run draws every row of t. Row failures are recorded and the batch
// continues; missing ownership or bracket columns fail the whole run before
// any draw. The input table is not modified.
func (d *Disaggregator) Run(ctx context.Context, t *model.Table) (*Result, error) {
	if t == nil {
		return nil, eris.New("disagg: nil table")
	}
	required := append([]string{d.cfg.OwnershipColumn}, d.cfg.BracketColumns...)
	for _, c := range required {
		if !t.HasColumn(c) {
			return nil, eris.Errorf("disagg: table has no %q column", c)
		}
	}

	report := Report{
		RunID:     uuid.New().String(),
		Seed:      d.cfg.Seed,
		Trials:    d.cfg.Trials,
		Rows:      len(t.Features),
		StartedAt: time.Now().UTC(),
	}
	log := zap.L().With(
		zap.String("component", "disagg"),
		zap.String("run_id", report.RunID),
	)
	log.Info("disaggregation started",
		zap.Int("rows", report.Rows),
		zap.Int("trials", d.cfg.Trials),
		zap.Uint64("seed", d.cfg.Seed),
		zap.Int("workers", d.cfg.Workers),
	)

	results := make([]RowResult, len(t.Features))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.cfg.Workers)
	for i := range t.Features {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = d.drawRow(i, t.Features[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "disagg: run canceled")
	}

	out := &model.Table{
		Columns: append([]string(nil), t.Columns...),
		SRID:    t.SRID,
	}
	out.AddColumn(ColOwned)
	for _, b := range Brackets {
		out.AddColumn(b.Name + DrawSuffix)
	}
	out.AddColumn(ColSynthIncome)

	for i := range results {
		r := &results[i]
		switch r.Outcome {
		case Owned:
			report.Owned++
			out.Features = append(out.Features, r.feature)
		case Excluded:
			report.Excluded++
			if !d.cfg.DropExcluded {
				out.Features = append(out.Features, r.feature)
			}
		case Failed:
			report.Failed++
			report.Failures = append(report.Failures, RowFailure{
				Index:  r.Index,
				ID:     r.ID,
				GEOID:  t.Features[i].GEOID(),
				Reason: r.Err.Error(),
			})
			log.Debug("row failed", zap.Int("row", r.Index), zap.String("feature", r.ID), zap.Error(r.Err))
		}
		r.feature = model.Feature{}
	}
	report.FinishedAt = time.Now().UTC()

	log.Info("disaggregation complete",
		zap.Int("owned", report.Owned),
		zap.Int("excluded", report.Excluded),
		zap.Int("failed", report.Failed),
		zap.Duration("elapsed", report.FinishedAt.Sub(report.StartedAt)),
	)
	if report.Failed > 0 {
		log.Warn("rows failed disaggregation", zap.Int("failed", report.Failed))
	}

	return &Result{Table: out, Rows: results, Report: report}, nil
}

// drawRow runs the three stages for one row. It touches only its own copy
// of the feature.
func (d *Disaggregator) drawRow(idx int, f model.Feature) RowResult {
	res := RowResult{Index: idx, ID: f.ID}
	r := d.rowRand(idx)

	p := f.Float(d.cfg.OwnershipColumn)
	if math.IsNaN(p) || math.IsInf(p, 0) || p < 0 || p > 1 {
		res.Outcome = Failed
		res.Err = eris.Wrapf(ErrInvalidProbabilityVector, "disagg: %s = %v", d.cfg.OwnershipColumn, p)
		return res
	}

	nf := f.Clone()
	res.Owned = Binomial(r, d.cfg.Trials, p)
	nf.Properties[ColOwned] = res.Owned
	if res.Owned == 0 {
		res.Outcome = Excluded
		res.feature = nf
		return res
	}

	probs, err := d.bracketShares(f)
	if err != nil {
		res.Outcome = Failed
		res.Err = err
		return res
	}

	best := ArgmaxFirst(Multinomial(r, d.cfg.Trials, probs))
	onehot := OneHot(len(probs), best)
	for i, b := range Brackets {
		nf.Properties[b.Name+DrawSuffix] = onehot[i]
	}

	income, err := SynthesizeIncome(r, onehot)
	if err != nil {
		res.Outcome = Failed
		res.Err = err
		return res
	}
	nf.Properties[ColSynthIncome] = income

	res.Outcome = Owned
	res.Bracket = Brackets[best].Name
	res.Income = income
	res.feature = nf
	return res
}

func (d *Disaggregator) bracketShares(f model.Feature) ([]float64, error) {
	probs := make([]float64, len(d.cfg.BracketColumns))
	var sum float64
	for i, c := range d.cfg.BracketColumns {
		v := f.Float(c)
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return nil, eris.Wrapf(ErrInvalidProbabilityVector, "disagg: %s = %v", c, v)
		}
		probs[i] = v
		sum += v
	}
	if math.Abs(sum-1) > sumTolerance {
		return nil, eris.Wrapf(ErrInvalidProbabilityVector, "disagg: bracket shares sum to %v", sum)
	}
	return probs, nil
}
