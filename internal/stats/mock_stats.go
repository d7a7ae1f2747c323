package stats

import "github.com/stretchr/testify/mock"

var (
	_ StatsProvider = (*MockStatsProvider)(nil)
	_ StatsProvider = (*StatsUpdater)(nil)
	_ StatsProvider = (*PrometheusStats)(nil)
)

// MockStatsProvider records metric updates for assertions in hub and router
// tests.
type MockStatsProvider struct {
	mock.Mock
}

func (m *MockStatsProvider) Incr(name string) {
	m.Called(name)
}
func (m *MockStatsProvider) Decr(name string) {
	m.Called(name)
}
func (m *MockStatsProvider) RegisterMetric(name string) {
	m.Called(name)
}
func (m *MockStatsProvider) RegisterGaugeFunc(name string, fn func() float64) {
	m.Called(name, fn)
}
func (m *MockStatsProvider) Run() {
	m.Called()
}
