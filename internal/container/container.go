package container

import (
	"context"
	"fmt"

	"acore/adapters/classifier"
	"acore/adapters/ledger"
	"acore/adapters/output"
	"acore/adapters/quantile"
	"acore/adapters/rng"
	"acore/adapters/simulator"
	"acore/app"
	"acore/internal"
	"acore/internal/config"
	"acore/ports"
)

// Container holds all application dependencies and manages their lifecycle
type Container struct {
	Config *config.Config
	Logger *internal.Logger

	// Registries
	Simulators     *simulator.Registry
	Classifiers    *classifier.Registry
	Quantiles      ports.QuantileRegistry
	DebugQuantiles ports.QuantileRegistry

	// Infrastructure
	Ledger *ledger.SQLLedger
}

// New validates cfg and builds the registries. The ledger is opened separately
// by InitLedger because not every command needs it.
func New(cfg *config.Config) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	level, ok := internal.ParseLogLevel(cfg.LogLevel)
	if !ok {
		return nil, fmt.Errorf("unknown log level %q", cfg.LogLevel)
	}

	c := &Container{
		Config:         cfg,
		Logger:         internal.NewLogger(level),
		Simulators:     simulator.DefaultRegistry(),
		Classifiers:    classifier.DefaultRegistry(),
		Quantiles:      quantile.Complete(),
		DebugQuantiles: quantile.Small(),
	}

	if cfg.Calibration.RegistryFile != "" {
		qr, err := quantile.LoadFile(cfg.Calibration.RegistryFile)
		if err != nil {
			return nil, err
		}
		c.Quantiles, c.DebugQuantiles = qr, qr
	}
	return c, nil
}

// Catalog exposes the registries to configuration validation
func (c *Container) Catalog() app.Catalog {
	return app.Catalog{Simulators: c.Simulators, Classifiers: c.Classifiers}
}

// Validate checks the configuration against the registries
func (c *Container) Validate() error {
	return c.Config.Validate(c.Catalog())
}

// InitLedger opens the results ledger when a DSN is configured
func (c *Container) InitLedger(ctx context.Context) error {
	if c.Config.Ledger.DSN == "" {
		return nil
	}
	l, err := ledger.Open(ctx, c.Config.Ledger.Driver, c.Config.Ledger.DSN)
	if err != nil {
		return err
	}
	c.Ledger = l
	c.Logger.Info("results ledger opened (%s)", c.Config.Ledger.Driver)
	return nil
}

// Writers returns the result writers enabled by the configuration
func (c *Container) Writers() []ports.ResultWriter {
	writers := []ports.ResultWriter{output.NewCSVWriter(c.Config.Output.Root, c.Logger)}
	if c.Config.Output.XLSX {
		writers = append(writers, output.NewXLSXWriter(c.Config.Output.Root, c.Logger))
	}
	return writers
}

// CalibrationLoop wires the loop service
func (c *Container) CalibrationLoop() *app.CalibrationLoop {
	deps := app.LoopDeps{
		Simulators:     c.Simulators,
		Classifiers:    c.Classifiers,
		Quantiles:      c.Quantiles,
		DebugQuantiles: c.DebugQuantiles,
		RNG:            rng.NewSeededAdapter(),
		Writers:        c.Writers(),
		SkipPolicy:     c.Config.SkipPolicy(),
		Logger:         c.Logger,
	}
	if c.Ledger != nil {
		deps.Ledger = c.Ledger
	}
	return app.NewCalibrationLoop(deps)
}

// Shutdown gracefully shuts down all components
func (c *Container) Shutdown(ctx context.Context) error {
	if c.Ledger != nil {
		return c.Ledger.Close()
	}
	return nil
}
