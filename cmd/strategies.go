package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/evgrid/fleetsim/core/strategy"
)

var strategiesCmd = &cobra.Command{
	Use:   "strategies",
	Short: "List the available charging strategies",
	Run: func(cmd *cobra.Command, args []string) {
		for _, name := range strategy.Names() {
			fmt.Fprintln(cmd.OutOrStdout(), name)
		}
	},
}

func init() {
	rootCmd.AddCommand(strategiesCmd)
}
