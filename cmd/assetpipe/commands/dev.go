package commands

import (
	"log/slog"

	"git.home.luguber.info/inful/assetpipe/internal/config"
	"git.home.luguber.info/inful/assetpipe/internal/metrics"
	"git.home.luguber.info/inful/assetpipe/internal/pipeline"
)

// DevCmd starts the preview server and rebuilds on change.
type DevCmd struct {
	Host         string `help:"Override dev.host"`
	Port         int    `short:"p" help:"Override dev.port"`
	NoLiveReload bool   `name:"no-live-reload" help:"Disable live reload script injection"`
	Metrics      bool   `help:"Expose Prometheus metrics at /metrics"`
}

func (d *DevCmd) Run(_ *Global, root *CLI) error {
	cfg, err := loadConfig(root)
	if err != nil {
		return err
	}
	if err := d.apply(cfg); err != nil {
		return err
	}

	var opts []pipeline.Option
	if cfg.Dev.Metrics {
		opts = append(opts, pipeline.WithRecorder(metrics.NewPrometheusRecorder(nil)))
	}
	p, err := pipeline.New(cfg, opts...)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	slog.Info("Starting dev session", slog.String("config", root.Config))
	return p.Dev(ctx)
}

func (d *DevCmd) apply(cfg *config.Config) error {
	if d.Host != "" {
		cfg.Dev.Host = d.Host
	}
	if d.Port != 0 {
		cfg.Dev.Port = d.Port
	}
	if d.NoLiveReload {
		off := false
		cfg.Dev.LiveReload = &off
	}
	if d.Metrics {
		cfg.Dev.Metrics = true
	}
	return cfg.Validate()
}
