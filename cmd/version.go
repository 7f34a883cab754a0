package cmd

import (
	"fmt"

	"github.com/Layr-Labs/fundtracer/internal/version"
	"github.com/spf13/cobra"
)

var runVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show the version of fundtracer",
	Run: func(cmd *cobra.Command, args []string) {
		bindCommandFlags(cmd)

		v := version.GetVersion()
		commit := version.GetCommit()

		fmt.Printf("FundtracerVersion: %s\nCommit: %s\n", v, commit)
	},
}
