package clock_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mcoot/grimoire/internal/dependencies/clock"
	"github.com/mcoot/grimoire/internal/dependencies/mocks"
)

func TestNormalize(t *testing.T) {
	loc := time.FixedZone("AEST", 10*60*60)
	in := time.Date(2024, 1, 1, 22, 0, 0, 123456789, loc)

	got := clock.Normalize(in)
	assert.Equal(t, time.UTC, got.Location())
	assert.Equal(t, 123456000, got.Nanosecond())
	assert.True(t, got.Equal(in.Truncate(time.Microsecond)))
}

func TestWallNowIsNormalized(t *testing.T) {
	now := clock.New().Now()
	assert.Equal(t, time.UTC, now.Location())
	assert.Zero(t, now.Nanosecond()%int(clock.Precision))
}

func TestCutoffAndAge(t *testing.T) {
	c := mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))

	assert.Equal(t, time.Date(2024, 1, 1, 6, 0, 0, 0, time.UTC), clock.Cutoff(c, 6*time.Hour))

	created := time.Date(2024, 1, 1, 11, 30, 0, 0, time.UTC)
	assert.Equal(t, 30*time.Minute, clock.Age(c, created))
	c.Advance(time.Hour)
	assert.Equal(t, 90*time.Minute, clock.Age(c, created))
}
