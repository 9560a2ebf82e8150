package registry

import (
	"time"

	"github.com/carbon-tracker/internal/models"
	"github.com/carbon-tracker/internal/types"
)

// ComputeStats derives summary statistics from a record set.
//
// todayCount compares the record's creation time against now in local time.
// averageLevel classifies the mean decrypted value over verified records with
// a known (non-zero) value; with none, it classifies zero.
func ComputeStats(records []*models.Record, now time.Time) models.Stats {
	stats := models.Stats{TotalEntries: len(records)}

	ny, nm, nd := now.Date()

	var sum, counted int64
	for _, r := range records {
		if r.IsVerified {
			stats.VerifiedCount++
		}

		created := time.Unix(r.CreatedAt, 0)
		if cy, cm, cd := created.Date(); cy == ny && cm == nm && cd == nd {
			stats.TodayCount++
		}

		if r.IsVerified && r.DecryptedValue > 0 {
			sum += r.DecryptedValue
			counted++
		}
	}

	var avg int64
	if counted > 0 {
		avg = sum / counted
	}
	stats.AverageLevel = types.ClassifyCarbonLevel(avg)

	return stats
}
