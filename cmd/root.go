package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "pipeline",
	Short: "Admissions pipeline service",
	Long:  `Drives university applications through the admissions pipeline: review, offer letter, interview, CAS and visa stages.`,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
