package classifier

import (
	"fmt"

	"github.com/nivaasika/nivaasika-engine/pkg/models"
	"github.com/nivaasika/nivaasika-engine/pkg/scoring"
)

type sampleDefect struct {
	defectType  models.DefectType
	severity    int
	description string
}

// sampleDefects is served per room when live image analysis is unavailable.
var sampleDefects = map[string][]sampleDefect{
	"Kitchen": {
		{models.DefectDamp, 6, "Water stains visible near sink area"},
		{models.DefectFinishing, 3, "Minor paint peeling on ceiling"},
	},
	"Bathroom 1": {
		{models.DefectLeak, 7, "Active water seepage from ceiling"},
		{models.DefectDamp, 5, "Mold growth in corner"},
	},
	"Bathroom 2": {
		{models.DefectWiring, 8, "Exposed wiring near shower area - safety hazard"},
	},
	"Living Room": {
		{models.DefectCrack, 4, "Hairline crack on wall near window"},
	},
	"Master Bedroom": {
		{models.DefectFinishing, 2, "Minor cosmetic issues"},
	},
}

// FallbackFindings returns the sample findings for room. Unlisted rooms get none.
func FallbackFindings(room string) []models.Finding {
	samples := sampleDefects[room]
	findings := make([]models.Finding, 0, len(samples))
	for _, s := range samples {
		findings = append(findings, models.NewFinding(room, string(s.defectType), s.severity, s.description, models.SourceImageAI))
	}
	return findings
}

// FallbackSummary writes a templated summary tiered by risk score. The tier
// boundaries match the scoring levels.
func FallbackSummary(in SummaryInput, findingCount int) string {
	switch scoring.Level(in.RiskScore) {
	case models.RiskLow:
		return fmt.Sprintf("The property at %s is in good overall condition with minor cosmetic issues. "+
			"%d defects were identified, primarily low-severity items that can be addressed with routine maintenance. "+
			"This property represents a safe purchase with minimal renovation requirements.",
			in.Address, findingCount)
	case models.RiskMedium:
		return fmt.Sprintf("The property at %s shows moderate wear and requires attention in several areas. "+
			"%d defects were found, including some plumbing and electrical concerns. "+
			"While habitable, buyers should budget for necessary repairs estimated between the provided cost ranges. "+
			"Professional contractors should assess critical items before purchase.",
			in.Address, findingCount)
	default:
		return fmt.Sprintf("The property at %s has significant issues requiring immediate attention. "+
			"%d defects were identified, including critical structural, electrical, or water damage concerns. "+
			"Substantial renovation is needed before the property is safe for occupancy. "+
			"Buyers should proceed with caution and obtain detailed contractor assessments.",
			in.Address, findingCount)
	}
}
