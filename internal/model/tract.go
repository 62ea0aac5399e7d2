package model

import (
	"fmt"

	"github.com/twpayne/go-geom"
)

// GEOIDLen is the length of a tract GEOID: 2-digit state, 3-digit county, 6-digit tract.
const GEOIDLen = 11

// TractGEOID concatenates the state, county and tract codes into a GEOID.
func TractGEOID(state, county, tract string) string {
	return state + county + tract
}

// ValidTractGEOID reports whether id has the shape of a tract GEOID.
func ValidTractGEOID(id string) bool {
	if len(id) != GEOIDLen {
		return false
	}
	for _, r := range id {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// TractStats is one ACS row: the requested statistic codes for a single tract.
type TractStats struct {
	GEOID  string
	Name   string
	Values map[string]float64
}

// StatsTable is the ACS result for every tract in one state.
type StatsTable struct {
	Year  int
	State string
	Codes []string
	Rows  []TractStats
}

// Tract is a census tract boundary read from a TIGER/Line shapefile.
type Tract struct {
	GEOID    string
	Name     string
	Geometry geom.T
}

// TractRecord is a tract boundary joined to its statistics.
type TractRecord struct {
	Tract
	Stats TractStats
}

func (t Tract) String() string {
	return fmt.Sprintf("tract %s (%s)", t.GEOID, t.Name)
}
