package main

import (
	"fmt"

	"github.com/ginmihq/ginmi/internal/model"
	_ "github.com/ginmihq/ginmi/internal/model/providers"

	"github.com/spf13/cobra"
)

var familiesCmd = &cobra.Command{
	Use:   "families",
	Short: "List registered adapter families",
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, family := range model.RegisteredFamilies() {
			fmt.Fprintln(cmd.OutOrStdout(), family)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(familiesCmd)
}
