package rastertool

import (
	"context"
	"log/slog"
	"strconv"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/mapforge/internal/apperr"
)

// SubsetOptions places a square crop inside the source raster. The anchors
// run from 0 (left, top) to 1 (right, bottom).
type SubsetOptions struct {
	Size    int
	XAnchor float64
	YAnchor float64
}

// DefaultSubset is a centred 4000 pixel crop.
var DefaultSubset = SubsetOptions{Size: 4000, XAnchor: 0.5, YAnchor: 0.5}

// Validate checks the crop size and anchors.
func (o SubsetOptions) Validate() error {
	return validation.ValidateStruct(&o,
		validation.Field(&o.Size, validation.Required, validation.Min(1)),
		validation.Field(&o.XAnchor, validation.Min(0.0), validation.Max(1.0)),
		validation.Field(&o.YAnchor, validation.Min(0.0), validation.Max(1.0)),
	)
}

// window returns the -srcwin offsets and size for a width x height raster.
// A crop larger than the short side keeps the whole raster.
func (o SubsetOptions) window(width, height int) (x, y, w, h int) {
	if o.Size > min(width, height) {
		return 0, 0, width, height
	}
	x = int(float64(width-o.Size) * o.XAnchor)
	y = int(float64(height-o.Size) * o.YAnchor)
	return x, y, o.Size, o.Size
}

// CreateSubset crops a Size x Size window out of in and writes it to out.
func (t *Tools) CreateSubset(ctx context.Context, in, out string, opts SubsetOptions) error {
	if err := opts.Validate(); err != nil {
		return apperr.Configf("create-subset: %v", err)
	}
	info, err := t.info(ctx, in)
	if err != nil {
		return err
	}
	x, y, w, h := opts.window(info.Width, info.Height)
	t.logger.Info("creating subset",
		slog.String("input", in),
		slog.String("output", out),
		slog.Any("window", []int{x, y, w, h}))
	return t.run(ctx, out, "gdal_translate", "-srcwin",
		strconv.Itoa(x), strconv.Itoa(y), strconv.Itoa(w), strconv.Itoa(h), in, out)
}
