package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/strokeworks/strokeseg/internal/dataset"
)

var casesCmd = &cobra.Command{
	Use:   "cases",
	Short: "List available cases in the dataset",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		initLogger(cfg.Log)

		ds, err := dataset.Open(cfg.Dataset.Root, cfg.Dataset.Manifest)
		if err != nil {
			return fmt.Errorf("open dataset: %w", err)
		}

		ids := ds.CaseIDs()
		fmt.Fprintf(cmd.OutOrStdout(), "Found %d cases:\n", len(ids))
		for i, id := range ids {
			fmt.Fprintf(cmd.OutOrStdout(), "[%d] %s\n", i, id)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(casesCmd)
}
