package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nivaasika/nivaasika-engine/pkg/repositories"
	"github.com/nivaasika/nivaasika-engine/pkg/services"
)

var rulesFile string

var seedRulesCmd = &cobra.Command{
	Use:   "seed-rules",
	Short: "Upsert improvement rules from a YAML file",
	Long: `Upserts every rule in the file in one transaction. Rules not in the
file are left alone. File order is the match priority for overlapping bands.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := rulesFile
		if path == "" {
			path = cfg.Rules.SeedPath
		}

		db, err := connectDatabase(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()

		svc := services.NewRuleService(repositories.NewRuleRepository(), db, logger)
		n, err := svc.SeedFromYAML(cmd.Context(), path)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "seeded %d rules from %s\n", n, path)
		return nil
	},
}

func init() {
	seedRulesCmd.Flags().StringVar(&rulesFile, "file", "", "rules YAML file (default: rules.seed_path from config)")
	rootCmd.AddCommand(seedRulesCmd)
}
