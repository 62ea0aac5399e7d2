package cache

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/census-enrich/internal/model"
)

func newTestCache(t *testing.T, ttl time.Duration) *StatsCache {
	t.Helper()
	c, err := Open(filepath.Join(t.TempDir(), "acs.db"), ttl)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() }) //nolint:errcheck
	require.NoError(t, c.Migrate(context.Background()))
	return c
}

func sampleTable() *model.StatsTable {
	return &model.StatsTable{
		Year:  2020,
		State: "42",
		Codes: []string{"B01003_001E", "B19013_001E"},
		Rows: []model.TractStats{
			{GEOID: "42101000100", Name: "Census Tract 1", Values: map[string]float64{"B01003_001E": 2500, "B19013_001E": 61000}},
			{GEOID: "42101000200", Name: "Census Tract 2", Values: map[string]float64{"B01003_001E": 0, "B19013_001E": math.NaN()}},
		},
	}
}

func TestKey_SortsCodes(t *testing.T) {
	assert.Equal(t, Key(2020, "42", []string{"B", "A", "NAME"}), Key(2020, "42", []string{"NAME", "A", "B"}))
	assert.Equal(t, "2020|42|A,B", Key(2020, "42", []string{"B", "A"}))
	assert.NotEqual(t, Key(2020, "42", []string{"A"}), Key(2019, "42", []string{"A"}))
}

func TestStatsCache_PutGet(t *testing.T) {
	c := newTestCache(t, 0)
	ctx := context.Background()
	key := Key(2020, "42", []string{"B01003_001E", "B19013_001E"})

	got, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, c.Put(ctx, key, sampleTable()))

	got, err = c.Get(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 2020, got.Year)
	assert.Equal(t, "42", got.State)
	assert.Equal(t, []string{"B01003_001E", "B19013_001E"}, got.Codes)
	require.Len(t, got.Rows, 2)
	assert.Equal(t, 61000.0, got.Rows[0].Values["B19013_001E"])
	assert.True(t, math.IsNaN(got.Rows[1].Values["B19013_001E"]))
	assert.Equal(t, 0.0, got.Rows[1].Values["B01003_001E"])
}

func TestStatsCache_Replace(t *testing.T) {
	c := newTestCache(t, 0)
	ctx := context.Background()

	tbl := sampleTable()
	require.NoError(t, c.Put(ctx, "k", tbl))
	tbl.Rows = tbl.Rows[:1]
	require.NoError(t, c.Put(ctx, "k", tbl))

	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Len(t, got.Rows, 1)
}

func TestStatsCache_Expiry(t *testing.T) {
	c := newTestCache(t, time.Hour)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return base }
	require.NoError(t, c.Put(ctx, "k", sampleTable()))

	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.NotNil(t, got)

	c.now = func() time.Time { return base.Add(2 * time.Hour) }
	got, err = c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, got)

	n, err := c.Purge(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
