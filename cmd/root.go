package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/zeyxx/CYNIC-sub012/logx"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "poj",
	Short: "PoJ chain node CLI",
	Long:  "Command line interface for running and managing a Proof of Judgment chain node.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "node.yml", "path to node config file")
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		logx.Error("CMD", "Command execution failed: ", err)
		os.Exit(1)
	}
}
