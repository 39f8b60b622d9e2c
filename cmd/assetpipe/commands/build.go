package commands

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"git.home.luguber.info/inful/assetpipe/internal/config"
	"git.home.luguber.info/inful/assetpipe/internal/logfields"
	"git.home.luguber.info/inful/assetpipe/internal/pipeline"
	"git.home.luguber.info/inful/assetpipe/internal/taskgraph"
)

// BuildCmd implements the 'build' command.
type BuildCmd struct {
	Output      string `short:"o" help:"Override output.directory"`
	Mirror      string `help:"Override output.mirror"`
	NoMirror    bool   `name:"no-mirror" help:"Do not write the mirror root"`
	Clean       bool   `help:"Remove the primary output root before building"`
	MaxParallel int    `name:"max-parallel" help:"Limit concurrently running steps (0 = unlimited)" default:"-1"`
}

func (b *BuildCmd) Run(_ *Global, root *CLI) error {
	cfg, err := loadConfig(root)
	if err != nil {
		return err
	}
	if err := b.apply(cfg); err != nil {
		return err
	}
	return RunBuild(cfg, os.Stdout)
}

func (b *BuildCmd) apply(cfg *config.Config) error {
	if b.Output != "" {
		cfg.Output.Directory = b.Output
	}
	if b.Mirror != "" {
		cfg.Output.Mirror = b.Mirror
	}
	if b.NoMirror {
		cfg.Output.Mirror = ""
	}
	if b.Clean {
		cfg.Output.Clean = true
	}
	if b.MaxParallel >= 0 {
		cfg.Build.MaxParallel = b.MaxParallel
	}
	return cfg.Validate()
}

// RunBuild runs one build and writes a per-task summary to out.
func RunBuild(cfg *config.Config, out io.Writer) error {
	ctx, cancel := signalContext()
	defer cancel()

	p, err := pipeline.New(cfg)
	if err != nil {
		return err
	}

	slog.Info("Starting build",
		logfields.Path(cfg.Output.Directory),
		slog.String("mirror", cfg.Output.Mirror))

	report, err := p.Build(ctx)
	if report != nil {
		printSummary(out, report)
	}
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "Build succeeded in %s\n", report.Duration().Round(time.Millisecond))
	return nil
}

func printSummary(out io.Writer, report *taskgraph.Report) {
	for _, r := range report.Results() {
		line := fmt.Sprintf("  %-12s %-10s %8s", r.Name, r.Outcome, r.Duration().Round(time.Millisecond))
		if r.Err != nil && r.Outcome != taskgraph.OutcomeSkipped {
			line += "  " + r.Err.Error()
		}
		_, _ = fmt.Fprintln(out, line)
	}
}
