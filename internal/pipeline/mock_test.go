package pipeline

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/census-enrich/internal/model"
	"github.com/sells-group/census-enrich/pkg/census"
)

// --- StateResolver Mock ---

type mockResolver struct {
	mock.Mock
}

func (m *mockResolver) ResolveState(ctx context.Context, lon, lat float64) (string, error) {
	args := m.Called(ctx, lon, lat)
	return args.String(0), args.Error(1)
}

// --- StatsFetcher Mock ---

type mockFetcher struct {
	mock.Mock
}

func (m *mockFetcher) FetchTractStatistics(ctx context.Context, year int, state string, vars census.Variables) (*model.StatsTable, error) {
	args := m.Called(ctx, year, state, vars)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.StatsTable), args.Error(1)
}

// --- TractSource Mock ---

type mockTracts struct {
	mock.Mock
}

func (m *mockTracts) Tracts(ctx context.Context, year int, state string) ([]model.Tract, error) {
	args := m.Called(ctx, year, state)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Tract), args.Error(1)
}

// --- Sink Mock ---

type mockSink struct {
	mock.Mock
}

func (m *mockSink) Write(ctx context.Context, t *model.Table) (int64, error) {
	args := m.Called(ctx, t)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockSink) Close() error {
	return m.Called().Error(0)
}

// --- StatsStore Mock ---

type mockStore struct {
	mock.Mock
}

func (m *mockStore) Get(ctx context.Context, key string) (*model.StatsTable, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.StatsTable), args.Error(1)
}

func (m *mockStore) Put(ctx context.Context, key string, table *model.StatsTable) error {
	return m.Called(ctx, key, table).Error(0)
}

// fixedRand returns the same Float64 and IntN values on every call.
type fixedRand struct {
	f float64
	n int
}

func (r fixedRand) Float64() float64 { return r.f }

func (r fixedRand) IntN(n int) int { return min(r.n, n-1) }
