package backend

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/jupierce/coverage-browser/pkg/coverage"
)

// MockSource is a mock implementation of Source for testing.
type MockSource struct {
	mock.Mock
}

var _ Source = &MockSource{} // Compile-time check

// PathCoverage implements the Source interface.
func (m *MockSource) PathCoverage(ctx context.Context, path, revision string) (*coverage.Node, error) {
	args := m.Called(ctx, path, revision)
	node, _ := args.Get(0).(*coverage.Node)
	return node, args.Error(1)
}

// History implements the Source interface.
func (m *MockSource) History(ctx context.Context, path, revision string) ([]coverage.HistoryPoint, error) {
	args := m.Called(ctx, path, revision)
	points, _ := args.Get(0).([]coverage.HistoryPoint)
	return points, args.Error(1)
}

// Source implements the Source interface.
func (m *MockSource) Source(ctx context.Context, path string) (string, error) {
	args := m.Called(ctx, path)
	return args.String(0), args.Error(1)
}

// Latest implements the Source interface.
func (m *MockSource) Latest(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}
