package census

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/census-enrich/internal/model"
)

// FetchTractStatistics queries the ACS5 API for every tract in a state.
// Estimates that are null or not numeric come back as NaN; the Census uses
// large negative sentinels (e.g. -666666666) for suppressed values and those
// are passed through unchanged.
func (c *Client) FetchTractStatistics(ctx context.Context, year int, state string, vars Variables) (*model.StatsTable, error) {
	codes := vars.Strings()
	if len(codes) == 0 {
		return nil, eris.Wrap(ErrInvalidVariableCode, "census: empty variable list")
	}

	params := url.Values{
		"get": {strings.Join(codes, ",")},
		"for": {"tract:*"},
		"in":  {fmt.Sprintf("state:%s county:*", state)},
	}
	if c.apiKey != "" {
		params.Set("key", c.apiKey)
	}
	reqURL := fmt.Sprintf("%s/%d/acs/acs5?%s", c.acsURL, year, params.Encode())

	status, body, err := c.get(ctx, reqURL, "acs")
	if err != nil {
		return nil, err
	}

	switch {
	case status == http.StatusNoContent:
		zap.L().Warn("census: acs returned no tracts", zap.Int("year", year), zap.String("state", state))
		return &model.StatsTable{Year: year, State: state, Codes: numericCodes(codes)}, nil
	case status == http.StatusBadRequest && bytes.Contains(bytes.ToLower(body), []byte("unknown variable")):
		return nil, eris.Wrapf(ErrInvalidVariableCode, "census: %s", strings.TrimSpace(string(body)))
	case status != http.StatusOK:
		return nil, eris.Wrapf(ErrAPIFailure, "census: acs returned status %d: %s", status, truncate(body, 200))
	}

	table, err := parseACSResponse(body, codes)
	if err != nil {
		return nil, err
	}
	table.Year = year
	table.State = state

	zap.L().Info("census: fetched tract statistics",
		zap.Int("year", year),
		zap.String("state", state),
		zap.Int("tracts", len(table.Rows)),
		zap.Int("variables", len(codes)),
	)
	return table, nil
}

// parseACSResponse decodes the API's array-of-arrays payload, whose first row
// is the header.
func parseACSResponse(body []byte, codes []string) (*model.StatsTable, error) {
	// An invalid key yields an HTML page with status 200.
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, eris.Wrapf(ErrAPIFailure, "census: acs response is not JSON (check API key): %s", truncate(body, 200))
	}

	var raw [][]*string
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return nil, eris.Wrapf(ErrAPIFailure, "census: parse acs response: %v", err)
	}
	if len(raw) == 0 {
		return nil, eris.Wrap(ErrAPIFailure, "census: acs response has no header row")
	}

	colIdx := make(map[string]int, len(raw[0]))
	for i, col := range raw[0] {
		if col != nil {
			colIdx[*col] = i
		}
	}
	for _, required := range []string{"state", "county", "tract"} {
		if _, ok := colIdx[required]; !ok {
			return nil, eris.Wrapf(ErrAPIFailure, "census: acs response missing %q column", required)
		}
	}

	numeric := numericCodes(codes)
	table := &model.StatsTable{
		Codes: numeric,
		Rows:  make([]model.TractStats, 0, len(raw)-1),
	}

	for _, record := range raw[1:] {
		geoid := model.TractGEOID(
			cell(record, colIdx, "state"),
			cell(record, colIdx, "county"),
			cell(record, colIdx, "tract"),
		)
		row := model.TractStats{
			GEOID:  geoid,
			Name:   cell(record, colIdx, string(CodeName)),
			Values: make(map[string]float64, len(numeric)),
		}
		for _, code := range numeric {
			row.Values[code] = parseEstimate(cell(record, colIdx, code))
		}
		table.Rows = append(table.Rows, row)
	}
	return table, nil
}

// numericCodes drops the label pseudo-variables from a request list.
func numericCodes(codes []string) []string {
	out := make([]string, 0, len(codes))
	for _, c := range codes {
		if c == string(CodeName) || c == "GEO_ID" {
			continue
		}
		out = append(out, c)
	}
	return out
}

func cell(record []*string, colIdx map[string]int, name string) string {
	idx, ok := colIdx[name]
	if !ok || idx >= len(record) || record[idx] == nil {
		return ""
	}
	return *record[idx]
}

func parseEstimate(s string) float64 {
	if s == "" {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
