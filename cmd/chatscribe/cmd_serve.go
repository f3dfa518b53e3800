package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"chatscribe/internal/api"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the control API for an external UI",
	Long: `Attaches to the thread's browser tab and serves the presentation
layer's command surface over HTTP: begin capture, deliver each export
format, clear, and query the captured count.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		eng, err := newEngine()
		if err != nil {
			return err
		}
		defer eng.Close()

		if err := eng.Attach(ctx); err != nil {
			return fmt.Errorf("attach to browser: %w", err)
		}

		srv := &http.Server{
			Addr:    cfg.Server.Addr,
			Handler: api.New(eng, logger).Router(),
		}

		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			fmt.Printf("Control API listening on http://%s\n", cfg.Server.Addr)
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
		return g.Wait()
	},
}
