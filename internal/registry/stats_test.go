package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/carbon-tracker/internal/models"
	"github.com/carbon-tracker/internal/types"
)

func TestComputeStats_Empty(t *testing.T) {
	stats := ComputeStats(nil, time.Now())

	assert.Equal(t, 0, stats.TotalEntries)
	assert.Equal(t, 0, stats.VerifiedCount)
	assert.Equal(t, 0, stats.TodayCount)
	// With no verified values the average classifies zero.
	assert.Equal(t, types.ClassifyCarbonLevel(0), stats.AverageLevel)
}

func TestComputeStats_Counts(t *testing.T) {
	now := time.Date(2026, 8, 30, 15, 0, 0, 0, time.Local)
	yesterday := now.Add(-24 * time.Hour)

	records := []*models.Record{
		{BusinessKey: "a", CreatedAt: now.Unix(), IsVerified: true, DecryptedValue: 20},
		{BusinessKey: "b", CreatedAt: now.Unix(), IsVerified: true, DecryptedValue: 40},
		{BusinessKey: "c", CreatedAt: yesterday.Unix(), IsVerified: false, DecryptedValue: 99},
		{BusinessKey: "d", CreatedAt: yesterday.Unix(), IsVerified: true}, // verified, value unknown
	}

	stats := ComputeStats(records, now)

	assert.Equal(t, 4, stats.TotalEntries)
	assert.Equal(t, 3, stats.VerifiedCount)
	assert.Equal(t, 2, stats.TodayCount)
	// Mean of 20 and 40 is 30 -> High.
	assert.Equal(t, types.LevelHigh, stats.AverageLevel)
}

func TestComputeStats_VerifiedNeverExceedsTotal(t *testing.T) {
	records := []*models.Record{
		{BusinessKey: "a", IsVerified: true},
		{BusinessKey: "b", IsVerified: true},
	}
	stats := ComputeStats(records, time.Now())
	assert.LessOrEqual(t, stats.VerifiedCount, stats.TotalEntries)
}
