package planner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os/exec"
)

// RasterProber reports the pixel size of a raster.
type RasterProber interface {
	Resolution(ctx context.Context, path string) (xres, yres float64, err error)
}

// GDALInfo probes rasters with `gdalinfo -json`.
type GDALInfo struct {
	// Binary defaults to "gdalinfo".
	Binary string
}

// RasterInfo is the part of `gdalinfo -json` output mapforge reads.
type RasterInfo struct {
	Width, Height int
	// XRes and YRes are the geotransform pixel sizes; YRes is negative for
	// north-up rasters.
	XRes, YRes float64
	// Extent is xmin, ymin, xmax, ymax taken from the corner coordinates.
	// It is zero when gdalinfo reports no corners.
	Extent [4]float64
	// SRS is the WKT of the coordinate system, empty when there is none.
	SRS string
}

// Resolution implements RasterProber.
func (g GDALInfo) Resolution(ctx context.Context, path string) (float64, float64, error) {
	info, err := g.Info(ctx, path)
	if err != nil {
		return 0, 0, err
	}
	return math.Abs(info.XRes), math.Abs(info.YRes), nil
}

// Info runs gdalinfo on path and decodes its JSON report.
func (g GDALInfo) Info(ctx context.Context, path string) (RasterInfo, error) {
	bin := g.Binary
	if bin == "" {
		bin = "gdalinfo"
	}
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, "-json", path)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return RasterInfo{}, fmt.Errorf("%s %s: %w: %s", bin, path, err, bytes.TrimSpace(stderr.Bytes()))
	}
	return parseInfo(stdout.Bytes())
}

func parseInfo(data []byte) (RasterInfo, error) {
	var doc struct {
		Size             []int     `json:"size"`
		GeoTransform     []float64 `json:"geoTransform"`
		CoordinateSystem struct {
			WKT string `json:"wkt"`
		} `json:"coordinateSystem"`
		Corners map[string][]float64 `json:"cornerCoordinates"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return RasterInfo{}, fmt.Errorf("decode gdalinfo output: %w", err)
	}
	if len(doc.GeoTransform) < 6 {
		return RasterInfo{}, fmt.Errorf("gdalinfo output has no geoTransform")
	}
	if len(doc.Size) < 2 {
		return RasterInfo{}, fmt.Errorf("gdalinfo output has no size")
	}
	info := RasterInfo{
		Width:  doc.Size[0],
		Height: doc.Size[1],
		XRes:   doc.GeoTransform[1],
		YRes:   doc.GeoTransform[5],
		SRS:    doc.CoordinateSystem.WKT,
	}
	first := true
	for _, c := range doc.Corners {
		if len(c) < 2 {
			continue
		}
		if first {
			info.Extent = [4]float64{c[0], c[1], c[0], c[1]}
			first = false
			continue
		}
		info.Extent[0] = math.Min(info.Extent[0], c[0])
		info.Extent[1] = math.Min(info.Extent[1], c[1])
		info.Extent[2] = math.Max(info.Extent[2], c[0])
		info.Extent[3] = math.Max(info.Extent[3], c[1])
	}
	return info, nil
}
