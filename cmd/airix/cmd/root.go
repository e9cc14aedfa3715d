// Package cmd provides the command-line interface for the Airix kernel
// simulator.
package cmd

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "airix",
	Short: "Airix runs a simulated monolithic kernel core.",
	Long: `Airix runs a simulated monolithic kernel core: it creates ` +
		`processes from executable images, forks them, and tears them ` +
		`down, with exact physical-frame accounting throughout.`,
}

// Execute adds all child commands to the root command and sets flags
// appropriately.
func Execute() {
	// A .env file can preset any flag default, e.g. AIRIX_FRAMES.
	_ = godotenv.Load()

	err := rootCmd.Execute()
	if err != nil {
		atexit.Exit(1)
	}

	atexit.Exit(0)
}
