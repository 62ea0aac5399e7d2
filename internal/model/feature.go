// Package model holds the tabular feature and tract types shared by the
// enrichment pipeline.
package model

import (
	"maps"
	"math"
	"slices"
	"strconv"

	"github.com/twpayne/go-geom"
)

// ColGEOID is the column holding the 11-character tract identifier after the join.
const ColGEOID = "GEOID"

// Feature is one input geometry with its attribute columns.
type Feature struct {
	ID         string
	Geometry   geom.T
	Properties map[string]any
}

// GEOID returns the joined tract identifier, or "" when the feature is join-incomplete.
func (f Feature) GEOID() string {
	v, ok := f.Properties[ColGEOID].(string)
	if !ok {
		return ""
	}
	return v
}

// Float returns the numeric value of a column. Missing, nil and non-numeric
// values come back as NaN so they propagate through arithmetic.
func (f Feature) Float(col string) float64 {
	return ToFloat(f.Properties[col])
}

// Clone copies the feature's property map. The geometry is shared; callers
// that rewrite coordinates must clone it themselves.
func (f Feature) Clone() Feature {
	props := make(map[string]any, len(f.Properties))
	maps.Copy(props, f.Properties)
	return Feature{ID: f.ID, Geometry: f.Geometry, Properties: props}
}

// Table is an ordered collection of features sharing one coordinate reference.
// Row order is the input order and is preserved by every transform.
type Table struct {
	Columns  []string
	Features []Feature
	SRID     int
}

// HasColumn reports whether col is one of the table's columns.
func (t *Table) HasColumn(col string) bool {
	return slices.Contains(t.Columns, col)
}

// AddColumn appends col to the column list if it is not already present.
func (t *Table) AddColumn(col string) {
	if !t.HasColumn(col) {
		t.Columns = append(t.Columns, col)
	}
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.Features) }

// Clone returns a table with copied column list and per-feature property maps.
func (t *Table) Clone() *Table {
	out := &Table{
		Columns:  slices.Clone(t.Columns),
		Features: make([]Feature, len(t.Features)),
		SRID:     t.SRID,
	}
	for i, f := range t.Features {
		out.Features[i] = f.Clone()
	}
	return out
}

// ToFloat converts a property value to float64. Strings are parsed; anything
// that cannot be read as a number is NaN.
func ToFloat(v any) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case float32:
		return float64(x)
	case int:
		return float64(x)
	case int32:
		return float64(x)
	case int64:
		return float64(x)
	case string:
		f, err := strconv.ParseFloat(x, 64)
		if err != nil {
			return math.NaN()
		}
		return f
	default:
		return math.NaN()
	}
}
