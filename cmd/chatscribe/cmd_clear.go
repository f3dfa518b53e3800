package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Drop the stored transcript for the thread",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := newEngine()
		if err != nil {
			return err
		}
		defer eng.Close()

		before := eng.Count()
		if err := eng.Clear(); err != nil {
			return err
		}
		fmt.Printf("Cleared %d messages.\n", before)
		return nil
	},
}
