package geo

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
	"go.uber.org/zap"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/sells-group/census-enrich/internal/model"
)

// ReadShapefile reads every record of a shapefile. DBF attributes become
// trimmed string columns; empty values are nil. The .cpg sidecar, when
// present, selects the attribute code page.
func ReadShapefile(shpPath string) (*model.Table, error) {
	if _, err := os.Stat(shpPath); errors.Is(err, fs.ErrNotExist) {
		return nil, eris.Wrapf(ErrInputNotFound, "geo: %s", shpPath)
	}

	reader, err := shp.Open(shpPath)
	if err != nil {
		return nil, eris.Wrapf(err, "geo: open shapefile %s", shpPath)
	}
	defer func() { _ = reader.Close() }()

	dec, err := codePage(shpPath)
	if err != nil {
		return nil, err
	}

	fields := reader.Fields()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = strings.TrimRight(f.String(), "\x00")
	}

	t := &model.Table{Columns: names}
	var skipped int

	for reader.Next() {
		n, shape := reader.Shape()

		props := make(map[string]any, len(names))
		for i, name := range names {
			val := strings.TrimSpace(strings.TrimRight(reader.Attribute(i), "\x00"))
			if val == "" {
				props[name] = nil
				continue
			}
			if dec != nil {
				decoded, decErr := dec.String(val)
				if decErr == nil {
					val = decoded
				}
			}
			props[name] = val
		}

		g := ShapeToGeom(shape)
		if g == nil {
			skipped++
		}

		t.Features = append(t.Features, model.Feature{
			ID:         strconv.Itoa(n),
			Geometry:   g,
			Properties: props,
		})
	}

	if skipped > 0 {
		zap.L().Debug("geo: shapefile records without usable geometry",
			zap.String("path", shpPath),
			zap.Int("skipped", skipped),
		)
	}

	return t, nil
}

// codePage returns a decoder for the .cpg sidecar's encoding, or nil when the
// attributes are already UTF-8 (or no sidecar exists).
func codePage(shpPath string) (*encoding.Decoder, error) {
	cpgPath := strings.TrimSuffix(shpPath, filepath.Ext(shpPath)) + ".cpg"
	data, err := os.ReadFile(cpgPath)
	if err != nil {
		return nil, nil //nolint:nilerr // a missing .cpg means default encoding
	}

	name := strings.ToLower(strings.TrimSpace(string(data)))
	if name == "" || name == "utf-8" || name == "utf8" || name == "65001" {
		return nil, nil
	}
	// ESRI writes bare Windows code page numbers, e.g. "1252".
	if _, numErr := strconv.Atoi(name); numErr == nil {
		name = "windows-" + name
	}

	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, eris.Wrapf(err, "geo: unsupported shapefile code page %q", name)
	}
	return enc.NewDecoder(), nil
}

// ShapeToGeom converts a go-shp shape to a go-geom geometry. Unsupported or
// empty shapes return nil.
func ShapeToGeom(shape shp.Shape) geom.T {
	switch s := shape.(type) {
	case *shp.Point:
		return geom.NewPointFlat(geom.XY, []float64{s.X, s.Y})
	case *shp.PolyLine:
		return polyLineToMultiLineString(s)
	case *shp.Polygon:
		return polygonToMultiPolygon(s)
	default:
		return nil
	}
}

// partRange returns the [start, end) point indices of part i.
func partRange(parts []int32, numParts int32, numPoints int, i int32) (int32, int32) {
	start := parts[i]
	end := int32(numPoints)
	if i+1 < numParts {
		end = parts[i+1]
	}
	return start, end
}

func flatPoints(pts []shp.Point) []float64 {
	flat := make([]float64, 0, len(pts)*2)
	for _, p := range pts {
		flat = append(flat, p.X, p.Y)
	}
	return flat
}

func polyLineToMultiLineString(pl *shp.PolyLine) geom.T {
	if pl == nil || pl.NumParts == 0 || len(pl.Points) == 0 {
		return nil
	}

	mls := geom.NewMultiLineString(geom.XY)
	for i := int32(0); i < pl.NumParts; i++ {
		start, end := partRange(pl.Parts, pl.NumParts, len(pl.Points), i)
		ls := geom.NewLineStringFlat(geom.XY, flatPoints(pl.Points[start:end]))
		if err := mls.Push(ls); err != nil {
			zap.L().Debug("geo: skipping malformed linestring part", zap.Int32("part", i), zap.Error(err))
		}
	}

	if mls.NumLineStrings() == 0 {
		return nil
	}
	return mls
}

// polygonToMultiPolygon groups shapefile rings into polygons. Shapefiles
// store exterior rings clockwise and holes counter-clockwise; each hole
// belongs to the exterior ring that precedes it.
func polygonToMultiPolygon(p *shp.Polygon) geom.T {
	if p == nil || p.NumParts == 0 || len(p.Points) == 0 {
		return nil
	}

	mp := geom.NewMultiPolygon(geom.XY)
	var current *geom.Polygon

	flush := func() {
		if current == nil {
			return
		}
		if err := mp.Push(current); err != nil {
			zap.L().Debug("geo: skipping malformed polygon", zap.Error(err))
		}
		current = nil
	}

	for i := int32(0); i < p.NumParts; i++ {
		start, end := partRange(p.Parts, p.NumParts, len(p.Points), i)
		flat := flatPoints(p.Points[start:end])
		if len(flat) < 8 {
			continue
		}
		ring := geom.NewLinearRingFlat(geom.XY, flat)

		hole := current != nil && xy.IsRingCounterClockwise(geom.XY, flat)
		if !hole {
			flush()
			current = geom.NewPolygon(geom.XY)
		}
		if err := current.Push(ring); err != nil {
			zap.L().Debug("geo: skipping malformed polygon ring", zap.Int32("part", i), zap.Error(err))
		}
	}
	flush()

	if mp.NumPolygons() == 0 {
		return nil
	}
	return mp
}
