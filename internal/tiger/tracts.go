// Package tiger retrieves and reads TIGER/Line census tract boundaries.
package tiger

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/census-enrich/internal/geo"
	"github.com/sells-group/census-enrich/internal/model"
)

// DefaultBaseURL is the Census Bureau TIGER/Line root.
const DefaultBaseURL = "https://www2.census.gov/geo/tiger"

// Attribute columns of the tract product. Vintages before 2020 suffix the
// identifier columns with the decennial year (GEOID10).
var (
	geoidColumns = []string{"GEOID", "GEOID20", "GEOID10"}
	nameColumns  = []string{"NAMELSAD", "NAMELSAD20", "NAMELSAD10"}
)

// TractURL returns the download URL of the tract shapefile for one state.
func TractURL(baseURL string, year int, state string) string {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return fmt.Sprintf("%s/TIGER%d/TRACT/tl_%d_%s_tract.zip", strings.TrimRight(baseURL, "/"), year, year, state)
}

// Source fetches tract boundaries into a local cache directory.
type Source struct {
	BaseURL    string
	CacheDir   string
	HTTPClient *http.Client
}

// Tracts downloads (or reuses) and reads the tract boundaries of one state.
func (s *Source) Tracts(ctx context.Context, year int, state string) ([]model.Tract, error) {
	shpPath, err := Download(ctx, s.HTTPClient, TractURL(s.BaseURL, year, state), s.CacheDir)
	if err != nil {
		return nil, err
	}
	return ReadTracts(shpPath)
}

// ReadTracts reads a TIGER/Line tract shapefile. Boundaries are NAD83, which
// is treated as interchangeable with WGS84.
func ReadTracts(shpPath string) ([]model.Tract, error) {
	t, err := geo.ReadShapefile(shpPath)
	if err != nil {
		return nil, err
	}

	idCol := firstColumn(t, geoidColumns)
	if idCol == "" {
		return nil, eris.Errorf("tiger: %s has no GEOID column", shpPath)
	}
	nameCol := firstColumn(t, nameColumns)

	tracts := make([]model.Tract, 0, len(t.Features))
	var invalid int
	for _, f := range t.Features {
		id, _ := f.Properties[idCol].(string)
		if !model.ValidTractGEOID(id) || f.Geometry == nil {
			invalid++
			continue
		}
		var name string
		if nameCol != "" {
			name, _ = f.Properties[nameCol].(string)
		}
		tracts = append(tracts, model.Tract{GEOID: id, Name: name, Geometry: f.Geometry})
	}

	if invalid > 0 {
		zap.L().Warn("tiger: skipped tracts with bad GEOID or geometry",
			zap.String("path", shpPath),
			zap.Int("skipped", invalid),
		)
	}
	return tracts, nil
}

func firstColumn(t *model.Table, candidates []string) string {
	for _, c := range candidates {
		if t.HasColumn(c) {
			return c
		}
	}
	return ""
}
