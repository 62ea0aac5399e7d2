package geo

import (
	"bytes"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/sells-group/census-enrich/internal/model"
)

// ErrInputNotFound is returned when the source dataset path does not exist.
var ErrInputNotFound = eris.New("geo: input dataset not found")

// ReadDataset loads a feature table from a GeoJSON or shapefile path. srid is
// the coordinate reference of the stored coordinates (0 means EPSG:4326).
func ReadDataset(path string, srid int) (*model.Table, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, eris.Wrapf(ErrInputNotFound, "geo: %s", path)
		}
		return nil, eris.Wrapf(err, "geo: stat %s", path)
	}

	var (
		t   *model.Table
		err error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".geojson", ".json":
		t, err = ReadGeoJSON(path)
	case ".shp":
		t, err = ReadShapefile(path)
	default:
		return nil, eris.Errorf("geo: unsupported dataset format %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, err
	}
	t.SRID = srid
	return t, nil
}

// rawFeature keeps the id loose: GeoJSON allows strings or numbers there.
type rawFeature struct {
	ID         json.RawMessage `json:"id"`
	Geometry   json.RawMessage `json:"geometry"`
	Properties map[string]any  `json:"properties"`
}

type rawCollection struct {
	Type     string       `json:"type"`
	Features []rawFeature `json:"features"`
}

// ReadGeoJSON reads a GeoJSON FeatureCollection.
func ReadGeoJSON(path string) (*model.Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, eris.Wrapf(ErrInputNotFound, "geo: %s", path)
		}
		return nil, eris.Wrapf(err, "geo: read %s", path)
	}
	return ParseGeoJSON(data)
}

// ParseGeoJSON decodes a FeatureCollection document into a table. Column
// order follows first appearance, with each feature's keys taken in sorted order.
func ParseGeoJSON(data []byte) (*model.Table, error) {
	var fc rawCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, eris.Wrap(err, "geo: parse geojson")
	}
	if fc.Type != "FeatureCollection" {
		return nil, eris.Errorf("geo: expected FeatureCollection, got %q", fc.Type)
	}

	t := &model.Table{Features: make([]model.Feature, 0, len(fc.Features))}
	for i, rf := range fc.Features {
		f := model.Feature{
			ID:         featureID(rf.ID, i),
			Properties: rf.Properties,
		}
		if f.Properties == nil {
			f.Properties = make(map[string]any)
		}

		if len(rf.Geometry) > 0 && !bytes.Equal(bytes.TrimSpace(rf.Geometry), []byte("null")) {
			var g geom.T
			if err := geojson.Unmarshal(rf.Geometry, &g); err != nil {
				return nil, eris.Wrapf(err, "geo: parse geometry of feature %d", i)
			}
			f.Geometry = g
		}

		keys := make([]string, 0, len(f.Properties))
		for k := range f.Properties {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			t.AddColumn(k)
		}

		t.Features = append(t.Features, f)
	}
	return t, nil
}

// featureID renders a GeoJSON id as a string, falling back to the row index.
func featureID(raw json.RawMessage, idx int) string {
	if len(raw) == 0 {
		return strconv.Itoa(idx)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil && s != "" {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil && n != "" {
		return n.String()
	}
	return strconv.Itoa(idx)
}
