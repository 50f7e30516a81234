package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/conneroisu/litterbox/internal/compositor"
)

var (
	composeOutput     string
	composeInstanceID string
)

var composeCmd = &cobra.Command{
	Use:     "compose <index.html> [style.css] [script.js]",
	Aliases: []string{"c"},
	Short:   "Compose host files into one sandbox document",
	Long: `Compose a markup file, and optionally a style and a script file, into
the document the preview frame would render, and print it.

Examples:
  litterbox compose index.html
  litterbox compose index.html style.css script.js -O preview.html
  litterbox compose index.html --instance-id abc123def`,
	Args: cobra.RangeArgs(1, 3),
	RunE: runCompose,
}

func init() {
	rootCmd.AddCommand(composeCmd)

	composeCmd.Flags().StringVarP(&composeOutput, "output", "O", "", "Write the document to a file instead of stdout")
	composeCmd.Flags().StringVar(&composeInstanceID, "instance-id", "", "Fixed instance ID (random by default)")
}

func runCompose(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	streams := make([]string, 3)
	for i, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		streams[i] = string(data)
	}

	opts := []compositor.Option{
		compositor.WithScriptName(cfg.Preview.ScriptName),
		compositor.WithLogger(logger),
	}
	if composeInstanceID != "" {
		opts = append(opts, compositor.WithInstanceID(composeInstanceID))
	}
	doc := compositor.New(opts...).Compose(streams[0], streams[1], streams[2])

	var out io.Writer = cmd.OutOrStdout()
	if composeOutput != "" {
		f, err := os.Create(composeOutput)
		if err != nil {
			return fmt.Errorf("creating %s: %w", composeOutput, err)
		}
		defer f.Close()
		out = f
	}

	if _, err := io.WriteString(out, doc.HTML); err != nil {
		return fmt.Errorf("writing document: %w", err)
	}

	return nil
}
