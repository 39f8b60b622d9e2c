package commands

import (
	"fmt"
	"log/slog"
	"os"

	"git.home.luguber.info/inful/assetpipe/internal/config"
	derrors "git.home.luguber.info/inful/assetpipe/internal/foundation/errors"
	"git.home.luguber.info/inful/assetpipe/internal/pipeline"
	"git.home.luguber.info/inful/assetpipe/internal/taskgraph"
)

// GraphCmd implements the 'graph' command.
type GraphCmd struct {
	Format string `short:"f" help:"Output format: text, mermaid, dot, json" default:"text" enum:"text,mermaid,dot,json"`
	Output string `short:"o" help:"Output file path (prints to stdout if not specified)"`
}

// Run renders the task graph. Without a configuration file the defaults
// are used; task names do not depend on configuration.
func (cmd *GraphCmd) Run(_ *Global, root *CLI) error {
	cfg, err := loadConfig(root)
	if err != nil {
		if !derrors.HasCategory(err, derrors.CategoryConfig) {
			return err
		}
		if _, statErr := os.Stat(root.Config); statErr == nil {
			return err
		}
		cfg = config.Default()
	}

	p, err := pipeline.New(cfg)
	if err != nil {
		return err
	}
	format, err := taskgraph.ParseFormat(cmd.Format)
	if err != nil {
		return err
	}
	output, err := p.Graph().Visualize(format)
	if err != nil {
		return fmt.Errorf("failed to visualize task graph: %w", err)
	}

	if cmd.Output != "" {
		// #nosec G306 -- diagram output is not sensitive
		if err := os.WriteFile(cmd.Output, []byte(output), 0o644); err != nil {
			return derrors.WrapError(err, derrors.CategoryFileSystem, "failed to write graph").
				Fatal().
				WithContext("path", cmd.Output).
				Build()
		}
		slog.Info("Task graph written", "file", cmd.Output, "format", cmd.Format)
		return nil
	}
	fmt.Print(output)
	return nil
}
