package census

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Geography is the census block a coordinate falls in.
type Geography struct {
	GEOID    string // 15-character block GEOID
	State    string
	County   string
	Tract    string
	Block    string
	ObjectID string
}

// TractGEOID returns the 11-character tract identifier of the block.
func (g Geography) TractGEOID() string {
	return g.State + g.County + g.Tract
}

type censusBlock struct {
	GEOID    string      `json:"GEOID"`
	State    string      `json:"STATE"`
	County   string      `json:"COUNTY"`
	Tract    string      `json:"TRACT"`
	Block    string      `json:"BLOCK"`
	ObjectID json.Number `json:"OBJECTID"`
}

// censusCoordinatesResponse is the JSON response from geographies/coordinates.
type censusCoordinatesResponse struct {
	Result struct {
		Geographies map[string][]censusBlock `json:"geographies"`
	} `json:"result"`
}

// Locate resolves a lon/lat coordinate to its census block. Coordinates that
// fall in no block (ocean, outside the US) fail with ErrGeocodeFailure.
func (c *Client) Locate(ctx context.Context, lon, lat float64) (*Geography, error) {
	params := url.Values{
		"x":         {strconv.FormatFloat(lon, 'f', -1, 64)},
		"y":         {strconv.FormatFloat(lat, 'f', -1, 64)},
		"benchmark": {c.benchmark},
		"vintage":   {c.vintage},
		"layers":    {c.blocksLayer},
		"format":    {"json"},
	}

	status, body, err := c.get(ctx, c.geocoderURL+"?"+params.Encode(), "geocoder")
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, eris.Wrapf(ErrAPIFailure, "census: geocoder returned status %d", status)
	}

	var resp censusCoordinatesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, eris.Wrapf(ErrAPIFailure, "census: geocoder parse response: %v", err)
	}

	blocks := resp.Result.Geographies[c.blocksLayer]
	if len(blocks) == 0 {
		zap.L().Debug("census: coordinate outside census blocks",
			zap.Float64("lon", lon),
			zap.Float64("lat", lat),
		)
		return nil, eris.Wrapf(ErrGeocodeFailure, "census: (%f, %f)", lon, lat)
	}

	b := blocks[0]
	return &Geography{
		GEOID:    b.GEOID,
		State:    b.State,
		County:   b.County,
		Tract:    b.Tract,
		Block:    b.Block,
		ObjectID: b.ObjectID.String(),
	}, nil
}

// ResolveState returns the 2-digit state FIPS code for a coordinate.
func (c *Client) ResolveState(ctx context.Context, lon, lat float64) (string, error) {
	g, err := c.Locate(ctx, lon, lat)
	if err != nil {
		return "", err
	}
	return g.State, nil
}
