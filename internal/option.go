package internal

import (
	"io"
	"log/slog"

	"github.com/starford/mapforge/internal/executor"
	"github.com/starford/mapforge/internal/planner"
)

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config *Config
	logger *slog.Logger
	stdout io.Writer
	stderr io.Writer
	runner executor.Runner
	prober planner.RasterProber
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithLogger replaces the logger built from the configuration.
func WithLogger(logger *slog.Logger) Option {
	return func(a *application) {
		a.logger = logger
	}
}

// WithOutput sets where subprocess output is streamed. Logs go to stderr
// unless WithLogger is given.
func WithOutput(stdout, stderr io.Writer) Option {
	return func(a *application) {
		a.stdout = stdout
		a.stderr = stderr
	}
}

// WithRunner replaces the shell runner.
func WithRunner(r executor.Runner) Option {
	return func(a *application) {
		a.runner = r
	}
}

// WithProber replaces the gdalinfo raster prober.
func WithProber(p planner.RasterProber) Option {
	return func(a *application) {
		a.prober = p
	}
}
