package rastertool

import (
	"context"
	"log/slog"
	"math"
	"strconv"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/mapforge/internal/apperr"
)

// Resampling methods accepted by gdalwarp -r.
var resamplingMethods = []any{
	"near", "bilinear", "cubic", "cubicspline", "lanczos", "average", "rms",
	"mode", "max", "min", "med", "q1", "q3", "sum",
}

// AlignOptions controls AlignRaster.
type AlignOptions struct {
	// Resampling defaults to bilinear.
	Resampling string
	// CreationOptions are passed to the output driver as -co NAME=VALUE.
	CreationOptions []string
}

// AlignRaster warps src onto the grid of template: same SRS, extent and
// pixel size. The result is written to out, replacing any existing file.
func (t *Tools) AlignRaster(ctx context.Context, src, template, out string, opts AlignOptions) error {
	if opts.Resampling == "" {
		opts.Resampling = "bilinear"
	}
	if err := validation.Validate(opts.Resampling, validation.In(resamplingMethods...)); err != nil {
		return apperr.Configf("align-raster: resampling method %q: %v", opts.Resampling, err)
	}
	if err := t.requireFiles(src); err != nil {
		return err
	}
	grid, err := t.info(ctx, template)
	if err != nil {
		return err
	}
	if grid.SRS == "" {
		return apperr.Configf("align-raster: template %s has no coordinate system", template)
	}
	if grid.Extent[0] == grid.Extent[2] || grid.Extent[1] == grid.Extent[3] {
		return apperr.Configf("align-raster: template %s has no extent", template)
	}

	t.logger.Info("aligning raster",
		slog.String("source", src),
		slog.String("template", template),
		slog.Any("extent", grid.Extent),
		slog.Float64("xres", grid.XRes),
		slog.Float64("yres", grid.YRes))

	argv := []string{"gdalwarp", "-t_srs", grid.SRS, "-te"}
	for _, v := range grid.Extent {
		argv = append(argv, formatFloat(v))
	}
	argv = append(argv, "-tr", formatFloat(math.Abs(grid.XRes)), formatFloat(math.Abs(grid.YRes)),
		"-r", opts.Resampling)
	for _, co := range opts.CreationOptions {
		argv = append(argv, "-co", co)
	}
	argv = append(argv, "-overwrite", src, out)
	return t.run(ctx, out, argv...)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
