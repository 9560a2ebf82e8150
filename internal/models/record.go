// Package models provides data models for the carbon tracker system.
package models

import (
	"time"

	"github.com/carbon-tracker/internal/types"
)

// Record represents one confidential carbon-footprint entry.
//
// BusinessKey is the ledger's canonical identifier and the only
// invariant-bearing key; ID is a locally derived UI convenience and is not
// guaranteed unique across sessions.
type Record struct {
	ID           int64  `json:"id"`
	BusinessKey  string `json:"businessKey"`
	Name         string `json:"name"`
	Category     string `json:"category"`
	CreatedAt    int64  `json:"createdAt"`
	Creator      string `json:"creator"`
	PublicValue1 int64  `json:"publicValue1"`
	PublicValue2 int64  `json:"publicValue2"`
	IsVerified   bool   `json:"isVerified"`
	// DecryptedValue is trustworthy only when IsVerified is true or a local
	// decryption completed this session (Level != Unknown in that case).
	DecryptedValue int64             `json:"decryptedValue"`
	Level          types.CarbonLevel `json:"level"`
}

// Stats holds summary statistics derived from the current record set.
// Never mutated independently; recomputed on every successful registry load.
type Stats struct {
	TotalEntries  int               `json:"totalEntries"`
	VerifiedCount int               `json:"verifiedCount"`
	TodayCount    int               `json:"todayCount"`
	AverageLevel  types.CarbonLevel `json:"averageLevel"`
}

// HistoryEntry is one line of the bounded operation history
type HistoryEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Text      string    `json:"text"`
}
