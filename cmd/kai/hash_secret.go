package main

import (
	"fmt"

	"github.com/sandevgo/kaidesk/internal/service/identity"
	"github.com/spf13/cobra"
)

var hashSecretCmd = &cobra.Command{
	Use:          "hash-secret <secret>",
	Short:        "Print the bcrypt hash of a step-up secret",
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		hash, err := identity.HashSecret(args[0])
		if err != nil {
			return err
		}
		fmt.Println(hash)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(hashSecretCmd)
}
