package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ppiankov/deidentify/internal/pipeline"
)

// recognizersCmd represents the recognizers command
var recognizersCmd = &cobra.Command{
	Use:   "recognizers",
	Short: "List the configured recognizers and their entity types",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := applyEngineFlags(cmd, cfg); err != nil {
			return err
		}

		p, err := pipeline.New(cfg)
		if err != nil {
			return fmt.Errorf("build pipeline: %w", err)
		}

		fmt.Printf("Language: %s\n\n", cfg.TargetLanguage)
		for _, rec := range p.Registry().All() {
			fmt.Printf("  %-10s %-4s %s\n", rec.Name(), rec.SupportedLanguage(), strings.Join(rec.SupportedEntities(), ", "))
		}
		fmt.Printf("\nRequested entities: %s\n", strings.Join(p.Entities(), ", "))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(recognizersCmd)
	addEngineFlags(recognizersCmd, false)
}
