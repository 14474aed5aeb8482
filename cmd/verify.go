package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zeyxx/CYNIC-sub012/config"
	"github.com/zeyxx/CYNIC-sub012/export"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Re-walk the stored chain and report integrity",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadNodeConfig(configPath)
		if err != nil {
			return err
		}
		chainStore, err := openChainStore(cfg)
		if err != nil {
			return err
		}
		defer chainStore.MustClose()

		report, err := export.VerifyIntegrity(chainStore)
		if err != nil {
			return err
		}

		if report.Valid {
			fmt.Printf("chain OK: %d blocks verified\n", report.BlocksChecked)
			return nil
		}
		fmt.Printf("chain BROKEN: %d blocks checked, %d bad links\n", report.BlocksChecked, len(report.BrokenLinks))
		for _, link := range report.BrokenLinks {
			fmt.Printf("  slot %d: %s\n", link.Slot, link.Reason)
		}
		return fmt.Errorf("chain integrity check failed")
	},
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}
