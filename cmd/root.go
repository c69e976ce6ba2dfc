package cmd

import (
	"log"

	"github.com/spf13/cobra"
)

var (
	cfgFile string
	debug   bool
	trace   bool
)

var rootCmd = &cobra.Command{
	Use:   "commissioner",
	Short: "commissioner onboards factory line devices onto the cloud and programs them",
	Run: func(cmd *cobra.Command, args []string) {
		_ = cmd.Help()
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "configuration file (default is $HOME/.commissioner.yml)")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVarP(&trace, "trace", "", false, "enable trace logging")
}
