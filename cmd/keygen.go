package cmd

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zeyxx/CYNIC-sub012/common"
	"github.com/zeyxx/CYNIC-sub012/config"
)

var keygenOut string

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate an ed25519 operator key",
	RunE: func(cmd *cobra.Command, args []string) error {
		pub, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return err
		}
		if err := config.WriteEd25519PrivKey(keygenOut, priv); err != nil {
			return err
		}
		fmt.Printf("operator key written to %s\n", keygenOut)
		fmt.Printf("operator id: %s\n", common.EncodeBytesToBase58(pub))
		return nil
	},
}

func init() {
	keygenCmd.Flags().StringVar(&keygenOut, "out", "operator.key", "output key file")
	rootCmd.AddCommand(keygenCmd)
}
