package main

import (
	"github.com/spf13/cobra"
)

var countyCmd = &cobra.Command{
	Use:   "county",
	Short: "Manage county boundaries and park county assignment",
}

func init() {
	rootCmd.AddCommand(countyCmd)
}
