// Package scoring turns a set of findings into a weighted risk score and level.
package scoring

import (
	"math"

	"github.com/nivaasika/nivaasika-engine/pkg/models"
)

// Weights multiply a finding's severity by how dangerous its defect type is.
var Weights = map[models.DefectType]float64{
	models.DefectStructural: 3.0,
	models.DefectWiring:     2.5,
	models.DefectLeak:       2.0,
	models.DefectDamp:       1.8,
	models.DefectCrack:      1.5,
	models.DefectFinishing:  1.0,
}

// Level thresholds, both inclusive on the lower bucket.
const (
	LowRiskMax    = 20.0
	MediumRiskMax = 50.0
)

// Weight returns the multiplier for t. Unknown types weigh 1.0.
func Weight(t models.DefectType) float64 {
	if w, ok := Weights[t]; ok {
		return w
	}
	return 1.0
}

// Contribution is the score a single finding adds.
func Contribution(f models.Finding) float64 {
	return float64(f.Severity) * Weight(f.DefectType)
}

// RiskScore sums severity times weight over findings, rounded to 2 decimals.
func RiskScore(findings []models.Finding) float64 {
	var total float64
	for _, f := range findings {
		total += Contribution(f)
	}
	return Round2(total)
}

// Level buckets a score: <=20 Low, <=50 Medium, otherwise High.
func Level(score float64) models.RiskLevel {
	switch {
	case score <= LowRiskMax:
		return models.RiskLow
	case score <= MediumRiskMax:
		return models.RiskMedium
	default:
		return models.RiskHigh
	}
}

// Round2 rounds half away from zero on the second decimal.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
