package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"chatscribe/internal/render"
)

var exportDir string

var exportCmd = &cobra.Command{
	Use:   "export [md|html|json]",
	Short: "Render the stored transcript to a file",
	Long: `Renders the thread's captured transcript without touching the
browser. Markdown and HTML are presentation formats; JSON is lossless
and can be re-imported byte-for-byte.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := render.ParseFormat(args[0])
		if err != nil {
			return err
		}

		eng, err := newEngine()
		if err != nil {
			return err
		}
		defer eng.Close()

		if eng.Count() == 0 {
			return fmt.Errorf("no captured messages for this thread; run capture first")
		}

		file, err := eng.Export(format)
		if err != nil {
			return err
		}

		dir := exportDir
		if dir == "" {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			dir = cfg.Export.Dir
		}
		path := filepath.Join(dir, file.Name)
		if err := os.WriteFile(path, file.Data, 0644); err != nil {
			return fmt.Errorf("write export: %w", err)
		}

		fmt.Printf("Wrote %d messages to %s (%s)\n", eng.Count(), path, file.MediaType)
		return nil
	},
}

var previewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Render the Markdown export in the terminal",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := newEngine()
		if err != nil {
			return err
		}
		defer eng.Close()

		file, err := eng.Export(render.FormatMarkdown)
		if err != nil {
			return err
		}
		out, err := glamour.Render(string(file.Data), "auto")
		if err != nil {
			return fmt.Errorf("render preview: %w", err)
		}
		fmt.Print(out)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportDir, "out", "o", "", "output directory (defaults to export.dir from config)")
}
