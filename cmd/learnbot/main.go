package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set via -ldflags at build time.
var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "learnbot",
	Short: "A bot that learns topics from text and quizzes you about them",
	Long: `learnbot learns vocabulary and questions from text corpora, asks you
about them, and tracks how you feel about each topic.

Run "learnbot start" to launch the server, then "learnbot chat" to talk.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if v, _ := cmd.Flags().GetBool("no-color"); v {
			noColor = true
		}
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the current version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "learnbot", version)
	},
}

func init() {
	rootCmd.PersistentFlags().Bool("no-color", false, "disable colored output")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(learnCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(analysisCmd)
	rootCmd.AddCommand(settingsCmd)
	rootCmd.AddCommand(profileCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		printError("%v", err)
		os.Exit(1)
	}
}
