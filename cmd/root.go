package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "sway",
	Short: "Sway - a social-influence experiment runner",
	Long:  `Sway walks participants through scripted chat sessions with simulated conversational agents under controlled social-influence conditions.`,
}

func Execute() error {
	return rootCmd.Execute()
}
