// Package rastertool implements the standalone raster helpers: cropping a
// preview subset, aligning a raster onto a template grid, blending two RGB
// layers through a mask, and publishing a finished file.
//
// Each helper shells out to the GDAL tools through an executor.Runner, so
// a failing tool surfaces as *apperr.StepError exactly like a pipeline step.
package rastertool

import (
	"context"
	"log/slog"

	"github.com/kballard/go-shellquote"

	"github.com/starford/mapforge/internal/apperr"
	"github.com/starford/mapforge/internal/executor"
	"github.com/starford/mapforge/internal/planner"
	"github.com/starford/mapforge/internal/storage"
)

// Inspector reads raster metadata. planner.GDALInfo implements it.
type Inspector interface {
	Info(ctx context.Context, path string) (planner.RasterInfo, error)
}

// Tools runs the helpers against one working directory.
type Tools struct {
	fs        storage.Provider
	runner    executor.Runner
	inspector Inspector
	logger    *slog.Logger
}

// New returns Tools. A nil logger means slog.Default().
func New(fs storage.Provider, runner executor.Runner, inspector Inspector, logger *slog.Logger) *Tools {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tools{fs: fs, runner: runner, inspector: inspector, logger: logger}
}

// run executes argv as one shell command. output names the file the
// command writes, for error reports.
func (t *Tools) run(ctx context.Context, output string, argv ...string) error {
	command := shellquote.Join(argv...)
	t.logger.Debug("running", slog.String("command", command))
	res, err := t.runner.Run(ctx, command)
	if err != nil || res.ExitCode != 0 {
		return &apperr.StepError{
			Command:  command,
			Output:   output,
			ExitCode: res.ExitCode,
			Stderr:   res.Stderr,
			Err:      err,
		}
	}
	return nil
}

// requireFiles fails with ErrMissingInput for the first path that does not
// exist.
func (t *Tools) requireFiles(paths ...string) error {
	for _, p := range paths {
		ok, err := t.fs.Exists(p)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.MissingInputf("%s not found", p)
		}
	}
	return nil
}

func (t *Tools) info(ctx context.Context, path string) (planner.RasterInfo, error) {
	if err := t.requireFiles(path); err != nil {
		return planner.RasterInfo{}, err
	}
	return t.inspector.Info(ctx, t.fs.Resolve(path))
}
