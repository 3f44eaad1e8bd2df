package colorramp

import (
	"context"
	"fmt"
	"sort"

	"github.com/starford/mapforge/internal/dispatch"
	"github.com/starford/mapforge/internal/storage"
)

// CapabilityName is the in-process command adjusting a color file:
// adjust_gdal_colors("in.txt", "out.txt", {saturation: 0.8}).
const CapabilityName = "adjust_gdal_colors"

// Register adds the color-file capability to r. Files are read and written
// through fs, so relative paths resolve against the workspace.
func Register(r *dispatch.Registry, fs storage.Provider) {
	r.MustRegister(CapabilityName,
		[]dispatch.ArgKind{dispatch.ArgPath, dispatch.ArgPath, dispatch.ArgParams},
		func(_ context.Context, args []dispatch.Arg) error {
			p, err := ParamsFrom(args[2].Params)
			if err != nil {
				return err
			}
			return AdjustFile(fs, args[0].Text, args[1].Text, p)
		})
}

// AdjustFile reads in, adjusts it and atomically writes out.
func AdjustFile(fs storage.Provider, in, out string, p Params) error {
	data, err := fs.Read(in)
	if err != nil {
		return fmt.Errorf("colorramp: %w", err)
	}
	adjusted, err := Adjust(data, p)
	if err != nil {
		return err
	}
	if err := fs.Write(out, adjusted); err != nil {
		return fmt.Errorf("colorramp: %w", err)
	}
	return nil
}

// paramFields maps accepted parameter names to their field.
var paramFields = map[string]func(*Params) *float64{
	"saturation":            func(p *Params) *float64 { return &p.Saturation },
	"saturation_adjust":     func(p *Params) *float64 { return &p.Saturation },
	"saturation_multiplier": func(p *Params) *float64 { return &p.Saturation },
	"shadow_adjust":         func(p *Params) *float64 { return &p.ShadowAdjust },
	"mid_adjust":            func(p *Params) *float64 { return &p.MidAdjust },
	"highlight_adjust":      func(p *Params) *float64 { return &p.HighlightAdjust },
	"min_hue":               func(p *Params) *float64 { return &p.MinHue },
	"max_hue":               func(p *Params) *float64 { return &p.MaxHue },
	"target_hue":            func(p *Params) *float64 { return &p.TargetHue },
	"elev_adjust":           func(p *Params) *float64 { return &p.ElevAdjust },
}

// ParamsFrom converts a parameter block into Params, starting from
// DefaultParams. Unknown keys and non-numeric values are rejected.
func ParamsFrom(block map[string]dispatch.Value) (Params, error) {
	p := DefaultParams()
	keys := make([]string, 0, len(block))
	for k := range block {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		field, ok := paramFields[k]
		if !ok {
			return Params{}, fmt.Errorf("colorramp: unknown parameter %q", k)
		}
		f, err := block[k].Float()
		if err != nil {
			return Params{}, fmt.Errorf("colorramp: parameter %s: %w", k, err)
		}
		*field(&p) = f
	}
	return p, nil
}
