package sink

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"

	"github.com/sells-group/census-enrich/internal/model"
)

// GeoJSON writes a FeatureCollection file. The file is written beside Path
// and renamed into place, so readers never see a partial collection.
type GeoJSON struct {
	Path string
}

type outFeature struct {
	Type       string          `json:"type"`
	ID         string          `json:"id,omitempty"`
	Geometry   json.RawMessage `json:"geometry"`
	Properties map[string]any  `json:"properties"`
}

// Write encodes every feature of t. NaN values become null.
func (s *GeoJSON) Write(ctx context.Context, t *model.Table) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o755); err != nil {
		return 0, eris.Wrap(err, "sink: create output dir")
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.Path), ".census-enrich-*.geojson")
	if err != nil {
		return 0, eris.Wrap(err, "sink: create temp file")
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	w := bufio.NewWriter(tmp)
	n, err := s.encode(ctx, w, t)
	if err == nil {
		err = w.Flush()
	}
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return 0, eris.Wrapf(err, "sink: write %s", s.Path)
	}

	if err := os.Rename(tmp.Name(), s.Path); err != nil {
		return 0, eris.Wrapf(err, "sink: rename to %s", s.Path)
	}

	zap.L().Info("sink: wrote geojson", zap.String("path", s.Path), zap.Int64("features", n))
	return n, nil
}

func (s *GeoJSON) encode(ctx context.Context, w *bufio.Writer, t *model.Table) (int64, error) {
	if _, err := w.WriteString(`{"type":"FeatureCollection","features":[`); err != nil {
		return 0, err
	}

	enc := json.NewEncoder(w)
	var n int64
	for i, f := range t.Features {
		if i%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return n, err
			}
		}
		if i > 0 {
			if err := w.WriteByte(','); err != nil {
				return n, err
			}
		}

		geomJSON := json.RawMessage("null")
		if f.Geometry != nil {
			data, err := geojson.Marshal(f.Geometry)
			if err != nil {
				return n, eris.Wrapf(err, "encode geometry of feature %s", f.ID)
			}
			geomJSON = data
		}

		// Encoder appends a newline after each value, which keeps the
		// output line-per-feature.
		if err := enc.Encode(outFeature{
			Type:       "Feature",
			ID:         f.ID,
			Geometry:   geomJSON,
			Properties: jsonSafe(f.Properties),
		}); err != nil {
			return n, eris.Wrapf(err, "encode feature %s", f.ID)
		}
		n++
	}

	_, err := w.WriteString("]}\n")
	return n, err
}

// Close is a no-op.
func (s *GeoJSON) Close() error { return nil }
