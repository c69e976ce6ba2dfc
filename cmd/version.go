package cmd

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/edge-toolbox/commissioner/internal/version"
	"github.com/spf13/cobra"
)

var cmdVersion = &cobra.Command{
	Use:   "version",
	Short: "Print commissioner version along with dependency information.",
	Run: func(cmd *cobra.Command, args []string) {
		printVersion()
	},
}

func printVersion() {
	b, err := json.MarshalIndent(version.Current(), "", "  ")
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println(string(b))
}

func init() {
	rootCmd.AddCommand(cmdVersion)
}
