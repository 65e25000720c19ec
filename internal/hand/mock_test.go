package hand

import (
	"context"

	"github.com/stretchr/testify/mock"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/irc-risk/hand-cli/internal/model"
	"github.com/irc-risk/hand-cli/internal/store"
	"github.com/irc-risk/hand-cli/pkg/geocode"
	"github.com/irc-risk/hand-cli/pkg/raster"
)

// --- Geocoder Mock ---

type mockGeocoder struct {
	mock.Mock
}

func (m *mockGeocoder) Resolve(ctx context.Context, address string) (*geocode.Result, error) {
	args := m.Called(ctx, address)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*geocode.Result), args.Error(1)
}

func (m *mockGeocoder) ResolveAll(ctx context.Context, addresses []string) ([]geocode.Result, error) {
	args := m.Called(ctx, addresses)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]geocode.Result), args.Error(1)
}

// --- Sampler Mock ---

type mockSampler struct {
	mock.Mock
}

func (m *mockSampler) EnsureSession(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *mockSampler) SamplePoints(ctx context.Context, points *geojson.FeatureCollection) ([]raster.Sample, error) {
	args := m.Called(ctx, points)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]raster.Sample), args.Error(1)
}

// --- Store Mock ---

type mockStore struct {
	mock.Mock
}

func (m *mockStore) CreateRun(ctx context.Context, job model.Job) (*model.Run, error) {
	args := m.Called(ctx, job)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Run), args.Error(1)
}

func (m *mockStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	args := m.Called(ctx, runID, status)
	return args.Error(0)
}

func (m *mockStore) UpdateRunResult(ctx context.Context, runID string, result *model.RunResult) error {
	args := m.Called(ctx, runID, result)
	return args.Error(0)
}

func (m *mockStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	args := m.Called(ctx, runID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Run), args.Error(1)
}

func (m *mockStore) ListRuns(ctx context.Context, filter store.RunFilter) ([]model.Run, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Run), args.Error(1)
}

func (m *mockStore) CreateStage(ctx context.Context, runID string, name string) (*model.RunStage, error) {
	args := m.Called(ctx, runID, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.RunStage), args.Error(1)
}

func (m *mockStore) CompleteStage(ctx context.Context, stageID string, result *model.StageResult) error {
	args := m.Called(ctx, stageID, result)
	return args.Error(0)
}

func (m *mockStore) Migrate(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *mockStore) Close() error {
	args := m.Called()
	return args.Error(0)
}

// --- Ensure interface compliance ---
var (
	_ geocode.Client = (*mockGeocoder)(nil)
	_ raster.Sampler = (*mockSampler)(nil)
	_ store.Store    = (*mockStore)(nil)
)
