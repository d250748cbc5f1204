package models

import (
	"strings"

	"github.com/google/uuid"
)

// ID prefixes for persisted records.
const (
	PropertyIDPrefix    = "PROP_"
	FindingIDPrefix     = "FIND_"
	ImprovementIDPrefix = "IMP_"
	SummaryIDPrefix     = "SUM_"
)

// NewID returns prefix followed by 8 uppercase hex characters.
func NewID(prefix string) string {
	hex := strings.ReplaceAll(uuid.New().String(), "-", "")
	return prefix + strings.ToUpper(hex[:8])
}
