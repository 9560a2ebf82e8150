// Package types provides common type definitions for the carbon tracker system.
package types

import "fmt"

// CarbonLevel represents the severity bucket of a carbon footprint value
type CarbonLevel string

const (
	// LevelLow represents values below 10
	LevelLow CarbonLevel = "Low"
	// LevelMedium represents values from 10 up to 30
	LevelMedium CarbonLevel = "Medium"
	// LevelHigh represents values from 30 up to 50
	LevelHigh CarbonLevel = "High"
	// LevelVeryHigh represents values of 50 and above
	LevelVeryHigh CarbonLevel = "Very High"
	// LevelUnknown represents a record whose confidential value has not been revealed
	LevelUnknown CarbonLevel = "Unknown"
)

// ClassifyCarbonLevel maps a cleartext carbon value to its severity bucket.
// Pure and total: every integer maps to exactly one level.
func ClassifyCarbonLevel(value int64) CarbonLevel {
	switch {
	case value < 10:
		return LevelLow
	case value < 30:
		return LevelMedium
	case value < 50:
		return LevelHigh
	default:
		return LevelVeryHigh
	}
}

// Severity returns the numeric rank of a level, for ordering comparisons.
// Unknown ranks below Low.
func (l CarbonLevel) Severity() int {
	switch l {
	case LevelLow:
		return 1
	case LevelMedium:
		return 2
	case LevelHigh:
		return 3
	case LevelVeryHigh:
		return 4
	default:
		return 0
	}
}

// Category represents the activity category of a carbon record
type Category string

const (
	// CategoryTransport represents transportation activities
	CategoryTransport Category = "transport"
	// CategoryFood represents food-related activities
	CategoryFood Category = "food"
	// CategoryEnergy represents energy consumption
	CategoryEnergy Category = "energy"
	// CategoryShopping represents shopping activities
	CategoryShopping Category = "shopping"
)

// ParseCategory validates a category string
func ParseCategory(s string) (Category, error) {
	switch Category(s) {
	case CategoryTransport, CategoryFood, CategoryEnergy, CategoryShopping:
		return Category(s), nil
	default:
		return "", fmt.Errorf("unknown category %q", s)
	}
}

// StatusKind represents the kind of a transient transaction status
type StatusKind string

const (
	// StatusPending represents an in-flight operation
	StatusPending StatusKind = "pending"
	// StatusSuccess represents a completed operation
	StatusSuccess StatusKind = "success"
	// StatusError represents a failed operation
	StatusError StatusKind = "error"
)
