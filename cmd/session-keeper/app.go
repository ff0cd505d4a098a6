package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/0xmhha/session-keeper/pkg/config"
	"github.com/0xmhha/session-keeper/pkg/display"
	"github.com/0xmhha/session-keeper/pkg/logger"
	"github.com/0xmhha/session-keeper/pkg/persistence"
)

// app bundles what every command needs.
type app struct {
	cfg       *config.Config
	log       logger.Logger
	formatter display.Formatter
	mgr       *persistence.Manager
	out       io.Writer
}

// loadConfig loads configuration and applies the global flags.
func loadConfig(opts globalOptions) (*config.Config, error) {
	cfg, err := config.NewLoader(opts.configPath).Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if opts.logLevel != "" {
		if !logger.ValidLevel(opts.logLevel) {
			return nil, fmt.Errorf("invalid log level: %s", opts.logLevel)
		}
		cfg.Logging.Level = opts.logLevel
	}
	if opts.format != "" {
		cfg.Display.Format = opts.format
	}
	if opts.color != "" {
		cfg.Display.Color = opts.color
	}

	return cfg, nil
}

// newFormatter builds the formatter selected by cfg.
func newFormatter(cfg *config.Config, out io.Writer, compact bool) (display.Formatter, error) {
	format, err := display.ParseFormat(cfg.Display.Format)
	if err != nil {
		return nil, err
	}

	var color bool
	if f, ok := out.(*os.File); ok {
		color = display.ColorEnabled(cfg.Display.Color, f)
	} else {
		color = cfg.Display.Color == "always"
	}

	return display.New(display.Config{
		Format:  format,
		Color:   color,
		Compact: compact,
	}), nil
}

// openApp loads configuration and opens the persistence manager.
//
// The mutate hook, when set, adjusts the configuration before storage is
// opened.
func openApp(ctx context.Context, opts globalOptions, out io.Writer, mutate func(*config.Config)) (*app, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	if mutate != nil {
		mutate(cfg)
	}

	formatter, err := newFormatter(cfg, out, opts.compact)
	if err != nil {
		return nil, err
	}

	log := logger.New(cfg.Logging.Logger())

	mgr, err := persistence.Open(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize session persistence: %w", err)
	}

	return &app{
		cfg:       cfg,
		log:       log,
		formatter: formatter,
		mgr:       mgr,
		out:       out,
	}, nil
}

// close tears the manager down and releases storage.
func (a *app) close() {
	if err := a.mgr.Close(); err != nil {
		a.log.Error("failed to close session persistence", "error", err)
	}
}
