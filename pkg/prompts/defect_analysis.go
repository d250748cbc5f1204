// Package prompts builds the instructions sent to the vision provider.
package prompts

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jinzhu/inflection"
)

// DefectCategories are the labels the model must choose from.
var DefectCategories = []string{"crack", "damp", "wiring", "leak", "structural", "finishing"}

// InspectorSystemMessage frames every request.
const InspectorSystemMessage = "You are an expert property inspector. You answer with JSON only when JSON is requested."

func writeDefectSchema(prompt *strings.Builder, exampleSeverity int, exampleDescription string) {
	prompt.WriteString("For EACH defect, provide:\n")
	prompt.WriteString(fmt.Sprintf("1. defect_type: One of [%s]\n", strings.Join(DefectCategories, ", ")))
	prompt.WriteString("2. severity: Rate from 1-10 (1=minor, 10=critical)\n")
	prompt.WriteString("3. description: Brief description of the issue\n\n")
	prompt.WriteString("Return ONLY valid JSON in this exact format:\n")
	prompt.WriteString("{\n  \"defects\": [\n    {\n")
	prompt.WriteString("      \"defect_type\": \"crack\",\n")
	prompt.WriteString(fmt.Sprintf("      \"severity\": %d,\n", exampleSeverity))
	prompt.WriteString(fmt.Sprintf("      \"description\": %q\n", exampleDescription))
	prompt.WriteString("    }\n  ]\n}\n\n")
	prompt.WriteString("If NO defects are found, return: {\"defects\": []}\n")
}

// BuildImagePrompt asks for every defect visible in a photo of room.
func BuildImagePrompt(room string) string {
	var prompt strings.Builder

	prompt.WriteString(fmt.Sprintf("You are an expert property inspector analyzing a %s image.\n\n", room))
	prompt.WriteString("Identify ALL defects, issues, or concerns visible in this image.\n\n")
	writeDefectSchema(&prompt, 7, "Large vertical crack on wall near ceiling")

	prompt.WriteString("\nBe thorough. Look for:\n")
	prompt.WriteString("- Cracks in walls, ceiling, floor\n")
	prompt.WriteString("- Water damage, damp patches, stains\n")
	prompt.WriteString("- Exposed or damaged wiring\n")
	prompt.WriteString("- Leaks or water seepage\n")
	prompt.WriteString("- Structural issues\n")
	prompt.WriteString("- Poor finishing or paint issues\n")

	return prompt.String()
}

// BuildNotesPrompt asks the model to classify defects described in free text.
func BuildNotesPrompt(room, notes string) string {
	var prompt strings.Builder

	prompt.WriteString(fmt.Sprintf("You are analyzing inspector notes for a %s.\n\n", room))
	prompt.WriteString(fmt.Sprintf("Inspector's notes: %q\n\n", notes))
	prompt.WriteString("Extract the defects mentioned and classify them. Estimate severity from the description.\n\n")
	writeDefectSchema(&prompt, 5, "Minor crack on wall")

	return prompt.String()
}

// SummaryFinding is the per-finding context for the summary prompt.
type SummaryFinding struct {
	Room        string
	DefectType  string
	Severity    int
	Description string
}

// BuildSummaryPrompt asks for a 3-4 sentence buyer-facing summary.
func BuildSummaryPrompt(address string, riskScore float64, findings []SummaryFinding) string {
	var prompt strings.Builder

	prompt.WriteString("Generate a concise, plain-language property inspection summary for home buyers.\n\n")
	prompt.WriteString(fmt.Sprintf("Property: %s\n", address))
	prompt.WriteString(fmt.Sprintf("Total defects found: %d\n", len(findings)))
	prompt.WriteString(fmt.Sprintf("Risk score: %.2f\n", riskScore))
	if breakdown := defectBreakdown(findings); breakdown != "" {
		prompt.WriteString(fmt.Sprintf("Breakdown: %s\n", breakdown))
	}

	prompt.WriteString("\nFindings:\n")
	for _, f := range findings {
		prompt.WriteString(fmt.Sprintf("- %s: %s (severity %d) - %s\n", f.Room, f.DefectType, f.Severity, f.Description))
	}

	prompt.WriteString("\nWrite a 3-4 sentence summary that:\n")
	prompt.WriteString("1. States overall property condition\n")
	prompt.WriteString("2. Highlights critical issues (if any)\n")
	prompt.WriteString("3. Mentions affected rooms\n")
	prompt.WriteString("4. Gives an honest assessment for buyers\n\n")
	prompt.WriteString("Be professional, clear, and honest. Don't sugarcoat serious issues.\n")

	return prompt.String()
}

// defectBreakdown renders counts like "2 cracks, 1 leak", most frequent first.
func defectBreakdown(findings []SummaryFinding) string {
	counts := make(map[string]int)
	var order []string
	for _, f := range findings {
		if counts[f.DefectType] == 0 {
			order = append(order, f.DefectType)
		}
		counts[f.DefectType]++
	}
	sort.SliceStable(order, func(i, j int) bool { return counts[order[i]] > counts[order[j]] })

	parts := make([]string, 0, len(order))
	for _, t := range order {
		noun := t
		if counts[t] > 1 {
			noun = inflection.Plural(t)
		}
		parts = append(parts, fmt.Sprintf("%d %s", counts[t], noun))
	}
	return strings.Join(parts, ", ")
}
