package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/zeyxx/CYNIC-sub012/config"
	"github.com/zeyxx/CYNIC-sub012/export"
	"github.com/zeyxx/CYNIC-sub012/jsonx"
)

var (
	importFile          string
	importValidateLinks bool
	importSkipExisting  bool
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import a bundle file into the chain store",
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(importFile)
		if err != nil {
			return err
		}
		var bundle export.Bundle
		if err := jsonx.Unmarshal(data, &bundle); err != nil {
			return fmt.Errorf("failed to decode bundle: %w", err)
		}

		cfg, err := config.LoadNodeConfig(configPath)
		if err != nil {
			return err
		}
		chainStore, err := openChainStore(cfg)
		if err != nil {
			return err
		}
		defer chainStore.MustClose()

		report, err := export.Import(chainStore, &bundle, export.ImportOptions{
			ValidateLinks: importValidateLinks,
			SkipExisting:  importSkipExisting,
		})
		if err != nil {
			return err
		}

		fmt.Printf("imported=%d skipped=%d errors=%d\n", report.Imported, report.Skipped, len(report.Errors))
		for _, blkErr := range report.Errors {
			fmt.Printf("  slot %d: %s\n", blkErr.Slot, blkErr.Error)
		}
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importFile, "file", "", "bundle file to import")
	importCmd.Flags().BoolVar(&importValidateLinks, "validate-links", true, "abort on any broken hash link before writing")
	importCmd.Flags().BoolVar(&importSkipExisting, "skip-existing", false, "skip slots already present in the store")
	importCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(importCmd)
}
