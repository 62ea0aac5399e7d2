// Package transform holds the pure column operations applied to joined
// tables. Every function returns a new table and leaves its input untouched.
package transform

import (
	"math"
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/census-enrich/internal/model"
)

// ErrUnknownColumn is returned when an operation names a column the table lacks.
var ErrUnknownColumn = eris.New("transform: unknown column")

// Tenure columns.
const (
	ColOwnOcc    = "OwnOcc"
	ColRentOcc   = "RentOcc"
	ColOwnedPerc = "OwnedPerc"
	ColRentPerc  = "RentPerc"
)

// DefaultPercSuffix is appended by AddPercentageColumns.
const DefaultPercSuffix = "_perc"

// requireColumns fails with ErrUnknownColumn listing every missing column, sorted.
func requireColumns(t *model.Table, cols []string) error {
	var missing []string
	for _, c := range cols {
		if !t.HasColumn(c) {
			missing = append(missing, c)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return eris.Wrapf(ErrUnknownColumn, "transform: missing columns [%s]", strings.Join(missing, ", "))
}

// Rename renames columns according to mapping (old -> new). Every key must
// be a column of t. Column order is preserved.
func Rename(t *model.Table, mapping map[string]string) (*model.Table, error) {
	keys := make([]string, 0, len(mapping))
	for k := range mapping {
		keys = append(keys, k)
	}
	if err := requireColumns(t, keys); err != nil {
		return nil, err
	}

	for _, c := range t.Columns {
		if _, renamed := mapping[c]; renamed {
			continue
		}
		for _, k := range keys {
			if mapping[k] == c {
				return nil, eris.Errorf("transform: rename %s -> %s collides with an existing column", k, c)
			}
		}
	}

	out := t.Clone()
	for i, c := range out.Columns {
		if to, ok := mapping[c]; ok {
			out.Columns[i] = to
		}
	}
	for _, f := range out.Features {
		moved := make(map[string]any, len(mapping))
		for from, to := range mapping {
			if v, ok := f.Properties[from]; ok {
				moved[to] = v
				delete(f.Properties, from)
			}
		}
		for k, v := range moved {
			f.Properties[k] = v
		}
	}
	return out, nil
}

// NormalizeToPercentage replaces each of cols with its share of the row's
// sum across cols. A row whose sum is zero gets NaN in every column.
// Non-numeric or nil values count as NaN.
func NormalizeToPercentage(t *model.Table, cols []string) (*model.Table, error) {
	if err := requireColumns(t, cols); err != nil {
		return nil, err
	}
	out := t.Clone()
	for _, f := range out.Features {
		shares := rowShares(f, cols)
		for i, c := range cols {
			f.Properties[c] = shares[i]
		}
	}
	return out, nil
}

// AddPercentageColumns writes each column's row share to <col><suffix> and
// keeps the counts. An empty suffix means DefaultPercSuffix.
func AddPercentageColumns(t *model.Table, cols []string, suffix string) (*model.Table, error) {
	if err := requireColumns(t, cols); err != nil {
		return nil, err
	}
	if suffix == "" {
		suffix = DefaultPercSuffix
	}
	out := t.Clone()
	for _, c := range cols {
		out.AddColumn(c + suffix)
	}
	for _, f := range out.Features {
		shares := rowShares(f, cols)
		for i, c := range cols {
			f.Properties[c+suffix] = shares[i]
		}
	}
	return out, nil
}

// DeriveTenure adds OwnedPerc and RentPerc, the owner and renter shares of
// occupied units. Both are NaN when the two counts sum to zero.
func DeriveTenure(t *model.Table, ownCol, rentCol string) (*model.Table, error) {
	if err := requireColumns(t, []string{ownCol, rentCol}); err != nil {
		return nil, err
	}
	out := t.Clone()
	out.AddColumn(ColOwnedPerc)
	out.AddColumn(ColRentPerc)
	for _, f := range out.Features {
		shares := rowShares(f, []string{ownCol, rentCol})
		f.Properties[ColOwnedPerc] = shares[0]
		f.Properties[ColRentPerc] = shares[1]
	}
	return out, nil
}

func rowShares(f model.Feature, cols []string) []float64 {
	vals := make([]float64, len(cols))
	var sum float64
	for i, c := range cols {
		vals[i] = f.Float(c)
		sum += vals[i]
	}
	for i := range vals {
		if sum == 0 || math.IsNaN(sum) {
			vals[i] = math.NaN()
			continue
		}
		vals[i] /= sum
	}
	return vals
}
