package rastertool

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/starford/mapforge/internal/apperr"
)

// BlendOptions controls MaskedBlend.
type BlendOptions struct {
	// Calc is the gdal_calc formula. A is the foreground band, B the
	// background band and C the 8-bit mask, so the formula has to scale C
	// to 0..1 itself.
	Calc string
	// TempDir receives the single-band intermediates; defaults to ".".
	TempDir string
	// KeepTemp leaves the intermediates on disk.
	KeepTemp bool
}

var bands = []string{"R", "G", "B"}

// MaskedBlend blends the RGB rasters a and b through mask one band at a
// time and merges the three blended bands into out.
func (t *Tools) MaskedBlend(ctx context.Context, a, b, mask, out string, opts BlendOptions) error {
	if strings.TrimSpace(opts.Calc) == "" {
		return apperr.Configf("masked-blend: a calc formula is required")
	}
	if opts.TempDir == "" {
		opts.TempDir = "."
	}
	if err := t.requireFiles(a, b, mask); err != nil {
		return err
	}
	if err := os.MkdirAll(t.fs.Resolve(opts.TempDir), 0o755); err != nil {
		return err
	}

	t.logger.Info("blending layers",
		slog.String("foreground", a),
		slog.String("background", b),
		slog.String("mask", mask),
		slog.String("output", out))

	stem := strings.TrimSuffix(filepath.Base(out), filepath.Ext(out))
	var temps, blended []string
	if !opts.KeepTemp {
		defer func() {
			for _, f := range temps {
				if rmErr := t.fs.Remove(f); rmErr != nil {
					t.logger.Warn("temp file not removed", slog.String("path", f), slog.String("error", rmErr.Error()))
				}
			}
		}()
	}

	for i, band := range bands {
		aBand := filepath.Join(opts.TempDir, stem+"_A_"+band+".tif")
		bBand := filepath.Join(opts.TempDir, stem+"_B_"+band+".tif")
		outBand := filepath.Join(opts.TempDir, stem+"_"+band+".tif")
		temps = append(temps, aBand, bBand, outBand)
		blended = append(blended, outBand)

		index := strconv.Itoa(i + 1)
		if err := t.run(ctx, aBand, "gdal_translate", "-b", index, a, aBand); err != nil {
			return err
		}
		if err := t.run(ctx, bBand, "gdal_translate", "-b", index, b, bBand); err != nil {
			return err
		}
		if err := t.run(ctx, outBand, "gdal_calc.py",
			"-A", aBand, "-B", bBand, "-C", mask,
			"--calc", opts.Calc, "--type=Byte", "--overwrite", "--outfile", outBand); err != nil {
			return err
		}
	}

	return t.run(ctx, out, append([]string{"gdal_merge.py", "-separate", "-o", out}, blended...)...)
}
