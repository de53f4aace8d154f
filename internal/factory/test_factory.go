package factory

import (
	"time"

	"github.com/mcoot/grimoire/internal/dependencies/mocks"
	"github.com/mcoot/grimoire/internal/services/catalog"
	"github.com/mcoot/grimoire/internal/storage/memory"
	"github.com/mcoot/grimoire/internal/testutil"
)

// TestApp extends App with test-specific helpers
type TestApp struct {
	*App

	// Mocks for test control
	MockClock  *mocks.MockClock
	MockRandom *mocks.MockRandom
}

// NewTestApp creates an App configured for testing with mocked dependencies
// over in-memory storage. It panics if the built-in catalog fails to load.
func NewTestApp() *TestApp {
	return NewTestAppWithConfig(Config{})
}

// NewTestAppWithConfig is NewTestApp with explicit lobby, reaper and origin
// settings. Storage settings in cfg are ignored.
func NewTestAppWithConfig(cfg Config) *TestApp {
	store := memory.New()
	mockClock := mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	mockRandom := mocks.NewMockRandom()

	cat, err := catalog.Default()
	if err != nil {
		panic(err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = testutil.NopLogger()
	}
	app := newWithDependencies(store, cat, mockClock, mockRandom, cfg, logger)

	return &TestApp{
		App:        app,
		MockClock:  mockClock,
		MockRandom: mockRandom,
	}
}
