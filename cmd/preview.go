package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/nivaasika/nivaasika-engine/pkg/models"
	"github.com/nivaasika/nivaasika-engine/pkg/services"
)

var previewRulesFile string

var previewCmd = &cobra.Command{
	Use:   "preview <findings.json|->",
	Short: "Score a findings file without touching the database",
	Long: `Reads a JSON array of findings ({"room_name", "defect_type", "severity",
"description"}) and prints the risk score, cost range and recommendations
computed against the rules file.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := previewRulesFile
		if path == "" {
			path = cfg.Rules.SeedPath
		}
		rules, err := services.LoadRulesYAML(path)
		if err != nil {
			return err
		}

		findings, err := readFindings(cmd.InOrStdin(), args[0])
		if err != nil {
			return err
		}

		result := services.ComputePreview(findings, rules)
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

func init() {
	previewCmd.Flags().StringVar(&previewRulesFile, "rules", "", "rules YAML file (default: rules.seed_path from config)")
	rootCmd.AddCommand(previewCmd)
}

// readFindings decodes findings from path, or from stdin when path is "-".
// Defect types and severities are normalized the same way classifier output is.
func readFindings(stdin io.Reader, path string) ([]models.Finding, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read findings: %w", err)
	}

	var raw []struct {
		Room        string `json:"room_name"`
		DefectType  string `json:"defect_type"`
		Severity    int    `json:"severity"`
		Description string `json:"description"`
		Source      string `json:"source"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse findings: %w", err)
	}

	findings := make([]models.Finding, 0, len(raw))
	for _, r := range raw {
		source := models.FindingSource(r.Source)
		if source == "" {
			source = models.SourceInspectorNotes
		}
		findings = append(findings, models.NewFinding(r.Room, r.DefectType, r.Severity, r.Description, source))
	}
	return findings, nil
}
