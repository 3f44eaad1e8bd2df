// Package planner turns one overlay section of the pipeline file into the
// ordered list of planned commands that produce it.
package planner

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/mapforge/internal/apperr"
	"github.com/starford/mapforge/internal/models"
	"github.com/starford/mapforge/internal/overlay"
	"github.com/starford/mapforge/internal/storage"
)

// Command kinds understood by the builder.
const (
	KindBuildDEM      = "build_dem"
	KindHillshade     = "hillshade"
	KindColorRelief   = "color_relief"
	KindPrepareMask   = "prepare_mask"
	KindMaskedBlend   = "masked_blend"
	KindBlendLayers   = "blend_layers"
	KindAdjustColor   = "adjust_color"
	KindAdjustColorV1 = "process_gdal_color_file"
)

type kindFunc func(ctx context.Context, s *scope) ([]models.PlannedCommand, error)

// Builder produces plans. It never runs a command; the only side effects are
// path resolution, the raw-mask existence check and the DEM resolution
// lookup used by prepare_mask.
type Builder struct {
	fs     storage.Provider
	prober RasterProber
	logger *slog.Logger
	kinds  map[string]kindFunc
}

// NewBuilder creates a Builder. A nil prober defaults to gdalinfo.
func NewBuilder(fs storage.Provider, prober RasterProber, logger *slog.Logger) *Builder {
	if prober == nil {
		prober = GDALInfo{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	b := &Builder{fs: fs, prober: prober, logger: logger}
	b.kinds = map[string]kindFunc{
		KindBuildDEM:      b.buildDEM,
		KindHillshade:     b.hillshade,
		KindColorRelief:   b.colorRelief,
		KindPrepareMask:   b.prepareMask,
		KindMaskedBlend:   b.maskedBlend,
		KindBlendLayers:   b.blendLayers,
		KindAdjustColor:   b.adjustColor,
		KindAdjustColorV1: b.adjustColor,
	}
	return b
}

// Kinds returns the supported command kinds, sorted.
func (b *Builder) Kinds() []string {
	out := make([]string, 0, len(b.kinds))
	for k := range b.kinds {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// CheckOverlay resolves the command kind of overlayID and verifies that it
// is supported. It is cheap and touches no files, so callers use it to
// reject a bad pipeline before anything runs.
func (b *Builder) CheckOverlay(cfg *overlay.Config, overlayID string) (string, error) {
	kind, err := cfg.Kind(overlayID)
	if err != nil {
		return "", err
	}
	allowed := make([]any, 0, len(b.kinds))
	for _, k := range b.Kinds() {
		allowed = append(allowed, k)
	}
	if err := validation.Validate(kind, validation.Required, validation.In(allowed...)); err != nil {
		return "", apperr.Configf("overlay %s: unknown command %q", overlayID, kind)
	}
	return kind, nil
}

// Build returns the validated plan for overlayID.
func (b *Builder) Build(ctx context.Context, cfg *overlay.Config, overlayID, project, region string, preview bool) (models.Plan, error) {
	plan, err := b.build(ctx, cfg, overlayID, project, region, preview, false)
	if err != nil {
		return models.Plan{}, err
	}
	for _, c := range plan.Commands {
		b.logger.Debug("planned", "overlay", overlayID, "command", c.Command)
	}
	return plan, nil
}

// Check runs every lookup Build performs for overlayID and validates the
// result, but does not inspect files that earlier overlays produce: the
// prepare_mask DEM is neither required nor inspected. A pipeline that passes
// Check for every overlay fails later only on missing inputs or failing
// commands.
func (b *Builder) Check(ctx context.Context, cfg *overlay.Config, overlayID, project, region string, preview bool) error {
	_, err := b.build(ctx, cfg, overlayID, project, region, preview, true)
	return err
}

func (b *Builder) build(ctx context.Context, cfg *overlay.Config, overlayID, project, region string, preview, check bool) (models.Plan, error) {
	kind, err := b.CheckOverlay(cfg, overlayID)
	if err != nil {
		return models.Plan{}, err
	}
	if strings.TrimSpace(project) == "" {
		return models.Plan{}, apperr.Configf("project is required")
	}
	if strings.TrimSpace(region) == "" {
		return models.Plan{}, apperr.Configf("region is required")
	}

	s := &scope{
		cfg:     cfg,
		overlay: overlayID,
		project: project,
		region:  region,
		preview: preview,
		check:   check,
	}
	cmds, err := b.kinds[kind](ctx, s)
	if err != nil {
		return models.Plan{}, fmt.Errorf("overlay %s: %w", overlayID, err)
	}

	plan := models.Plan{Overlay: overlayID, Kind: kind, Commands: cmds}
	if err := plan.Validate(); err != nil {
		return models.Plan{}, err
	}
	return plan, nil
}

// scope carries the per-build lookups shared by every kind.
type scope struct {
	cfg     *overlay.Config
	overlay string
	project string
	region  string
	preview bool
	check   bool // skip lookups of files produced by earlier overlays
}

func (s *scope) key(name string) string { return s.overlay + "." + name }

func (s *scope) filename(suffix string) string {
	return Filename(s.project, s.region, suffix, s.preview)
}

func (s *scope) dem() string { return s.filename(DEMSuffix) }

// output returns the file named by the overlay's OUTPUT suffix.
func (s *scope) output() (string, error) {
	suffix, err := s.cfg.Require(s.key("OUTPUT"))
	if err != nil {
		return "", err
	}
	return s.filename(suffix), nil
}

func (s *scope) expand(text string) string {
	return strings.NewReplacer("{project}", s.project, "{region}", s.region).Replace(text)
}

func (s *scope) quiet() string { return s.cfg.String("GENERAL.quiet", "") }

// longQuiet is the --quiet spelling used by the gdal python utilities.
func (s *scope) longQuiet() string {
	if s.quiet() == "-q" {
		return "--quiet"
	}
	return ""
}

func (s *scope) dataFolder() string { return s.cfg.String("GENERAL.DATA_FOLDER", "") }
