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
	exportFromBlock uint64
	exportLimit     int
	exportOut       string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a window of the chain to a bundle file",
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

		bundle, err := export.Export(chainStore, export.Options{
			FromBlock: exportFromBlock,
			Limit:     exportLimit,
		})
		if err != nil {
			return err
		}

		data, err := jsonx.MarshalIndent(bundle, "", "  ")
		if err != nil {
			return err
		}
		if exportOut == "" {
			fmt.Println(string(data))
			return nil
		}
		if err := os.WriteFile(exportOut, data, 0644); err != nil {
			return err
		}
		fmt.Printf("wrote %d blocks to %s\n", len(bundle.Blocks), exportOut)
		return nil
	},
}

func init() {
	exportCmd.Flags().Uint64Var(&exportFromBlock, "from-block", 0, "lowest slot to include")
	exportCmd.Flags().IntVar(&exportLimit, "limit", export.DefaultExportLimit, "maximum number of blocks")
	exportCmd.Flags().StringVar(&exportOut, "out", "", "output file (stdout when empty)")
	rootCmd.AddCommand(exportCmd)
}
