package main

import (
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"chatscribe/internal/driver"
)

var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Scroll the full history into view and capture the transcript",
	Long: `Attaches to the thread's browser tab, subscribes to document
mutations, and repeatedly scrolls the conversation to its origin until
the captured record count stays stable. The transcript is mirrored to
local storage as it grows, so a later export needs no browser at all.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		eng, err := newEngine()
		if err != nil {
			return err
		}
		defer eng.Close()

		if err := eng.Attach(ctx); err != nil {
			return fmt.Errorf("attach to browser: %w", err)
		}

		res, err := eng.Capture(ctx)
		if errors.Is(err, driver.ErrNoScrollContainer) {
			return fmt.Errorf("could not find the conversation scroll container; the site layout may have changed")
		}
		if err != nil {
			return err
		}

		fmt.Printf("Captured %d messages in %d scroll rounds.\n", res.Total, res.Rounds)
		return nil
	},
}
