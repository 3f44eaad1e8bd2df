package planner

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/starford/mapforge/internal/apperr"
	"github.com/starford/mapforge/internal/colorramp"
	"github.com/starford/mapforge/internal/dispatch"
	"github.com/starford/mapforge/internal/models"
)

func step(cmd string, inputs []string, output string) models.PlannedCommand {
	return models.PlannedCommand{Command: cmd, Inputs: inputs, Output: output}
}

// buildDEM mosaics the region's source rasters into a temporary VRT and
// warps it to the DEM.
func (b *Builder) buildDEM(_ context.Context, s *scope) ([]models.PlannedCommand, error) {
	names, err := s.cfg.List("REGIONS." + s.region + ".FILES")
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, apperr.Configf("REGIONS.%s.FILES is empty", s.region)
	}
	files := make([]string, len(names))
	for i, name := range names {
		files[i] = b.sourcePath(s, name)
	}

	dem := s.dem()
	vrt := "tmp_" + stem(dem) + ".vrt"
	return []models.PlannedCommand{
		step(cmdline("gdalbuildvrt", s.quiet(), s.cfg.Flags("GDALBUILDVRT"), q(vrt), q(files...)), files, vrt),
		step(cmdline("gdalwarp", s.quiet(), s.cfg.Flags("GDALWARP"),
			s.cfg.String("REGIONS."+s.region+".EXTENT", ""), q(vrt), q(dem)), []string{vrt}, dem),
	}, nil
}

func (b *Builder) hillshade(_ context.Context, s *scope) ([]models.PlannedCommand, error) {
	out, err := s.output()
	if err != nil {
		return nil, err
	}
	dem := s.dem()
	cmd := cmdline(s.cfg.String("GENERAL.gdaldem", "gdaldem"), "hillshade", s.quiet(),
		s.cfg.Flags("GDALDEM"), s.cfg.Flags("LAYERS."+s.region+".HILLSHADE"),
		s.cfg.String("GENERAL.gdaldem_compress", ""), q(dem), q(out))
	return []models.PlannedCommand{step(cmd, []string{dem}, out)}, nil
}

// colorRelief colours the DEM with a ramp file. The ramp defaults to
// <project>_<output>_color_ramp.txt and is never the raster being produced.
func (b *Builder) colorRelief(_ context.Context, s *scope) ([]models.PlannedCommand, error) {
	suffix, err := s.cfg.Require(s.key("OUTPUT"))
	if err != nil {
		return nil, err
	}
	out := s.filename(suffix)
	ramp := fmt.Sprintf("%s_%s_color_ramp.txt", s.project, strings.ToLower(suffix))
	ramp = s.expand(s.cfg.String(s.key("COLOR_RAMP"), ramp))

	dem := s.dem()
	cmd := cmdline(s.cfg.String("GENERAL.gdaldem", "gdaldem"), "color-relief", s.quiet(),
		s.cfg.Flags("GDALDEM"), s.cfg.Flags("LAYERS."+s.region+".COLOR_RELIEF"),
		s.cfg.String("GENERAL.gdaldem_compress", ""), q(dem, ramp, out))
	return []models.PlannedCommand{step(cmd, []string{dem, ramp}, out)}, nil
}

// prepareMask reprojects the raw mask to the DEM's resolution, then scales
// it into a byte mask.
func (b *Builder) prepareMask(ctx context.Context, s *scope) ([]models.PlannedCommand, error) {
	maskSuffix, err := s.cfg.Require(s.key("MASK_SUFFIX"))
	if err != nil {
		return nil, err
	}
	mask := s.filename(maskSuffix)
	raw := b.sourcePath(s, s.filename("raw_"+maskSuffix))
	crs := withSuffix(mask, "crs")

	ok, err := b.fs.Exists(raw)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.MissingInputf("required mask file not found: %s", raw)
	}

	bounds := make([]string, 3)
	for i, k := range []string{"LOWER_BOUND", "UPPER_BOUND", "BLEND_STRENGTH"} {
		v, err := s.cfg.Require(s.key(k))
		if err != nil {
			return nil, err
		}
		if _, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err != nil {
			return nil, apperr.Configf("%s must be a number, got %q", s.key(k), v)
		}
		bounds[i] = strings.TrimSpace(v)
	}
	lower, upper, strength := bounds[0], bounds[1], bounds[2]

	xres, yres, err := b.demResolution(ctx, s)
	if err != nil {
		return nil, err
	}
	tr := "-tr " + formatRes(xres) + " " + formatRes(yres)

	calc := fmt.Sprintf("numpy.clip(((A - %s) * 255.0 / (%s - %s) * %s), 0, 255)", lower, upper, lower, strength)
	return []models.PlannedCommand{
		step(cmdline("gdalwarp", s.quiet(), s.cfg.Flags("GDALWARP"),
			s.cfg.String("REGIONS."+s.region+".EXTENT", ""), tr, q(raw, crs)), []string{raw}, crs),
		step(cmdline("gdal_calc.py", "-A", q(crs), q("--outfile="+mask), q("--calc="+calc),
			"--type=Byte --overwrite --NoDataValue=None"), []string{crs}, mask),
	}, nil
}

// demResolution reads the pixel size of the region's DEM, which must
// already exist. In check mode the DEM is not touched.
func (b *Builder) demResolution(ctx context.Context, s *scope) (float64, float64, error) {
	if s.check {
		return 1, 1, nil
	}
	dem := s.dem()
	ok, err := b.fs.Exists(dem)
	if err != nil {
		return 0, 0, err
	}
	if !ok {
		return 0, 0, apperr.MissingInputf("DEM %s not found; build it before %s", dem, s.overlay)
	}
	xres, yres, err := b.prober.Resolution(ctx, b.fs.Resolve(dem))
	if err != nil {
		return 0, 0, fmt.Errorf("resolution of %s: %w", dem, err)
	}
	return xres, yres, nil
}

var channels = []string{"R", "G", "B"}

// maskedBlend blends LAYER1 over LAYER2 through the mask one band at a
// time, then merges the three blended bands.
func (b *Builder) maskedBlend(_ context.Context, s *scope) ([]models.PlannedCommand, error) {
	out, err := s.output()
	if err != nil {
		return nil, err
	}
	layer1, layer2, err := s.layers()
	if err != nil {
		return nil, err
	}
	maskSuffix, err := s.cfg.Require(s.key("MASK_SUFFIX"))
	if err != nil {
		return nil, err
	}
	mask := s.filename(maskSuffix)
	params := cmdline(s.cfg.Flags(s.key("MERGE_OPTIONS")), s.cfg.String("GENERAL.gdal_calc_compress", ""), s.longQuiet())

	const calc = "numpy.clip((C.astype(float) * A + (255 - C).astype(float) * B) / 255.0, 0, 255)"
	var cmds []models.PlannedCommand
	blended := make([]string, 0, len(channels))
	for i, ch := range channels {
		band := strconv.Itoa(i + 1)
		a, bb, blend := withSuffix(layer1, ch), withSuffix(layer2, ch), withSuffix(out, ch)
		cmds = append(cmds,
			step(cmdline("gdal_translate", "-b", band, q(layer1, a)), []string{layer1}, a),
			step(cmdline("gdal_translate", "-b", band, q(layer2, bb)), []string{layer2}, bb),
			step(cmdline("gdal_calc.py", "-A", q(a), "-B", q(bb), "-C", q(mask), q("--calc="+calc),
				params, "--overwrite", q("--outfile="+blend)), []string{a, bb, mask}, blend),
		)
		blended = append(blended, blend)
	}
	cmds = append(cmds, step(cmdline("gdal_merge.py", "-separate", "-o", q(out), q(blended...)), blended, out))
	return cmds, nil
}

func (b *Builder) blendLayers(_ context.Context, s *scope) ([]models.PlannedCommand, error) {
	out, err := s.output()
	if err != nil {
		return nil, err
	}
	layer1, layer2, err := s.layers()
	if err != nil {
		return nil, err
	}
	expr, err := s.cfg.Require(s.key("CALC_EXPR"))
	if err != nil {
		return nil, err
	}
	cmd := cmdline("gdal_calc.py", "-B", q(layer1), "-A", q(layer2), "--allBands=B", q("--calc="+expr),
		s.cfg.Flags(s.key("MERGE_OPTIONS")), s.cfg.String("GENERAL.gdal_calc_compress", ""), s.longQuiet(),
		"--overwrite", q("--outfile="+out))
	return []models.PlannedCommand{step(cmd, []string{layer1, layer2}, out)}, nil
}

// adjustColor plans an in-process call to the color-file capability.
func (b *Builder) adjustColor(_ context.Context, s *scope) ([]models.PlannedCommand, error) {
	inKey := s.key("INPUT_FILE")
	if !s.cfg.Has(inKey) {
		inKey = s.key("INPUT_FILES")
	}
	in, err := s.cfg.Require(inKey)
	if err != nil {
		return nil, err
	}
	out, err := s.cfg.Require(s.key("OUTPUT_FILE"))
	if err != nil {
		return nil, err
	}
	in, out = s.expand(in), s.expand(out)

	params, err := s.cfg.Params(s.key("PARAMETERS"))
	if err != nil {
		return nil, err
	}
	block := make(map[string]dispatch.Value, len(params))
	for _, p := range params {
		block[p.Key] = dispatch.ParamValue(p.Value)
	}
	// Reject bad parameters now rather than at execution time.
	if _, err := colorramp.ParamsFrom(block); err != nil {
		return nil, apperr.Configf("%s: %v", s.key("PARAMETERS"), err)
	}
	cmd := dispatch.Format(colorramp.CapabilityName, dispatch.Path(in), dispatch.Path(out), dispatch.Params(block))
	return []models.PlannedCommand{step(cmd, []string{in}, out)}, nil
}

func (s *scope) layers() (string, string, error) {
	l1, err := s.cfg.Require(s.key("INPUT_LAYERS.LAYER1"))
	if err != nil {
		return "", "", err
	}
	l2, err := s.cfg.Require(s.key("INPUT_LAYERS.LAYER2"))
	if err != nil {
		return "", "", err
	}
	return s.filename(l1), s.filename(l2), nil
}

// sourcePath resolves a file under GENERAL.DATA_FOLDER to an absolute path.
func (b *Builder) sourcePath(s *scope, name string) string {
	if filepath.IsAbs(name) {
		return filepath.Clean(name)
	}
	return b.fs.Resolve(filepath.Join(s.dataFolder(), name))
}

// formatRes renders a pixel size for -tr, which expects positive values.
func formatRes(f float64) string {
	return strconv.FormatFloat(math.Abs(f), 'f', -1, 64)
}
