// Package registry maintains the authoritative, refreshable snapshot of all
// carbon records visible to the orchestrator, together with derived stats.
package registry

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/carbon-tracker/internal/adapter"
	"github.com/carbon-tracker/internal/models"
	"github.com/carbon-tracker/internal/types"
)

// BusinessKeyPrefix tags every ledger business key minted by this client
const BusinessKeyPrefix = "carbon-"

// defaultCategory is assigned to records loaded from the ledger: the contract
// does not store the category, only a free-text description derived from it.
const defaultCategory = "activity"

// NormalizeRecord maps a raw ledger payload to a typed Record.
//
// Defaulting rules: nil numeric fields become 0; the level is Unknown unless
// the record is verified; the UI id is the millisecond component of the
// business key, falling back to the current time when parsing fails.
func NormalizeRecord(businessKey string, raw *adapter.BusinessData) (*models.Record, error) {
	if raw == nil {
		return nil, fmt.Errorf("nil business data for %q", businessKey)
	}
	if businessKey == "" {
		return nil, fmt.Errorf("empty business key")
	}

	decrypted := bigToInt64(raw.DecryptedValue)

	level := types.LevelUnknown
	if raw.IsVerified {
		level = types.ClassifyCarbonLevel(decrypted)
	}

	return &models.Record{
		ID:             parseRecordID(businessKey),
		BusinessKey:    businessKey,
		Name:           raw.Name,
		Category:       defaultCategory,
		CreatedAt:      bigToInt64(raw.Timestamp),
		Creator:        raw.Creator,
		PublicValue1:   bigToInt64(raw.PublicValue1),
		PublicValue2:   bigToInt64(raw.PublicValue2),
		IsVerified:     raw.IsVerified,
		DecryptedValue: decrypted,
		Level:          level,
	}, nil
}

// parseRecordID derives the UI-selection id from the numeric segment that
// follows the key prefix. Not an invariant-bearing key: collisions across
// sessions are acceptable.
func parseRecordID(businessKey string) int64 {
	trimmed := strings.TrimPrefix(businessKey, BusinessKeyPrefix)
	if i := strings.IndexByte(trimmed, '-'); i >= 0 {
		trimmed = trimmed[:i]
	}
	if id, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		return id
	}
	return time.Now().UnixMilli()
}

func bigToInt64(v *big.Int) int64 {
	if v == nil || !v.IsInt64() {
		return 0
	}
	return v.Int64()
}
