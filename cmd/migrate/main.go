package main

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/survivorsoul/soulsongs/cmd/migrate/cmd"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "migrate",
		Short:         "Database migrations for Survivor Soul Songs",
		SilenceUsage:  true,
	}

	rootCmd.AddCommand(cmd.UpCmd())
	rootCmd.AddCommand(cmd.DownCmd())
	rootCmd.AddCommand(cmd.StatusCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
