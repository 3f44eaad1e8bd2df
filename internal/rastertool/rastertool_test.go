package rastertool

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/kballard/go-shellquote"

	"github.com/starford/mapforge/internal/apperr"
	"github.com/starford/mapforge/internal/executor"
	"github.com/starford/mapforge/internal/planner"
	"github.com/starford/mapforge/internal/storage"
	"github.com/starford/mapforge/internal/testutil"
)

// fakeRunner records each command as argv and creates the .tif files it
// names, the way the GDAL tools write their outputs. A command whose
// program is failOn exits with status 1.
type fakeRunner struct {
	fs     *storage.FS
	failOn string
	mu     sync.Mutex
	ran    [][]string
}

func (f *fakeRunner) Run(_ context.Context, command string) (executor.Result, error) {
	argv, err := shellquote.Split(command)
	if err != nil {
		return executor.Result{}, err
	}
	f.mu.Lock()
	f.ran = append(f.ran, argv)
	f.mu.Unlock()
	if argv[0] == f.failOn {
		return executor.Result{ExitCode: 1, Stderr: "ERROR 4: boom"}, nil
	}
	for _, tok := range argv[1:] {
		if !strings.HasSuffix(tok, ".tif") {
			continue
		}
		if ok, _ := f.fs.Exists(tok); !ok {
			if err := f.fs.Write(tok, []byte(command)); err != nil {
				return executor.Result{}, err
			}
		}
	}
	return executor.Result{}, nil
}

type fakeInspector struct {
	info  planner.RasterInfo
	paths []string
}

func (f *fakeInspector) Info(_ context.Context, path string) (planner.RasterInfo, error) {
	f.paths = append(f.paths, path)
	return f.info, nil
}

func newTestTools(t *testing.T, files ...string) (*Tools, *storage.FS, *fakeRunner, *fakeInspector) {
	t.Helper()
	dir, fs := testutil.TestWorkspace(t)
	for _, name := range files {
		testutil.WriteFile(t, dir, name, "raster", time.Time{})
	}
	runner := &fakeRunner{fs: fs}
	inspector := &fakeInspector{info: planner.RasterInfo{
		Width:  10000,
		Height: 8000,
		XRes:   30,
		YRes:   -30,
		Extent: [4]float64{500000, 4000000, 800000, 4240000},
		SRS:    `PROJCRS["WGS 84 / UTM zone 32N"]`,
	}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(fs, runner, inspector, logger), fs, runner, inspector
}

func TestCreateSubset(t *testing.T) {
	tests := []struct {
		name string
		opts SubsetOptions
		want []string
	}{
		{"centred", DefaultSubset, []string{"3000", "2000", "4000", "4000"}},
		{"top left", SubsetOptions{Size: 4000, XAnchor: 0, YAnchor: 0}, []string{"0", "0", "4000", "4000"}},
		{"bottom right", SubsetOptions{Size: 4000, XAnchor: 1, YAnchor: 1}, []string{"6000", "4000", "4000", "4000"}},
		{"larger than raster", SubsetOptions{Size: 9000, XAnchor: 0.5, YAnchor: 0.5}, []string{"0", "0", "10000", "8000"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tools, fs, runner, inspector := newTestTools(t, "dem.tif")
			if err := tools.CreateSubset(context.Background(), "dem.tif", "dem_prv.tif", tt.opts); err != nil {
				t.Fatalf("CreateSubset: %v", err)
			}
			want := [][]string{append(append([]string{"gdal_translate", "-srcwin"}, tt.want...), "dem.tif", "dem_prv.tif")}
			if diff := cmp.Diff(want, runner.ran); diff != "" {
				t.Errorf("commands (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff([]string{fs.Resolve("dem.tif")}, inspector.paths); diff != "" {
				t.Errorf("inspected (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCreateSubsetErrors(t *testing.T) {
	tools, _, runner, _ := newTestTools(t, "dem.tif")
	ctx := context.Background()

	err := tools.CreateSubset(ctx, "missing.tif", "out.tif", DefaultSubset)
	if !errors.Is(err, apperr.ErrMissingInput) {
		t.Errorf("missing input: err = %v", err)
	}
	err = tools.CreateSubset(ctx, "dem.tif", "out.tif", SubsetOptions{Size: 100, XAnchor: 1.5})
	if !errors.Is(err, apperr.ErrConfig) {
		t.Errorf("bad anchor: err = %v", err)
	}
	err = tools.CreateSubset(ctx, "dem.tif", "out.tif", SubsetOptions{})
	if !errors.Is(err, apperr.ErrConfig) {
		t.Errorf("zero size: err = %v", err)
	}
	if len(runner.ran) != 0 {
		t.Errorf("commands run = %v, want none", runner.ran)
	}
}

func TestAlignRaster(t *testing.T) {
	tools, _, runner, _ := newTestTools(t, "mask.tif", "dem.tif")
	err := tools.AlignRaster(context.Background(), "mask.tif", "dem.tif", "mask_aligned.tif", AlignOptions{
		CreationOptions: []string{"COMPRESS=DEFLATE", "TILED=YES"},
	})
	if err != nil {
		t.Fatalf("AlignRaster: %v", err)
	}
	want := [][]string{{
		"gdalwarp", "-t_srs", `PROJCRS["WGS 84 / UTM zone 32N"]`,
		"-te", "500000", "4000000", "800000", "4240000",
		"-tr", "30", "30",
		"-r", "bilinear",
		"-co", "COMPRESS=DEFLATE", "-co", "TILED=YES",
		"-overwrite", "mask.tif", "mask_aligned.tif",
	}}
	if diff := cmp.Diff(want, runner.ran); diff != "" {
		t.Errorf("commands (-want +got):\n%s", diff)
	}
}

func TestAlignRasterErrors(t *testing.T) {
	tools, _, runner, inspector := newTestTools(t, "mask.tif", "dem.tif")
	ctx := context.Background()

	err := tools.AlignRaster(ctx, "mask.tif", "dem.tif", "out.tif", AlignOptions{Resampling: "sharpest"})
	if !errors.Is(err, apperr.ErrConfig) {
		t.Errorf("bad method: err = %v", err)
	}
	err = tools.AlignRaster(ctx, "missing.tif", "dem.tif", "out.tif", AlignOptions{})
	if !errors.Is(err, apperr.ErrMissingInput) {
		t.Errorf("missing source: err = %v", err)
	}
	inspector.info.SRS = ""
	err = tools.AlignRaster(ctx, "mask.tif", "dem.tif", "out.tif", AlignOptions{})
	if !errors.Is(err, apperr.ErrConfig) {
		t.Errorf("template without SRS: err = %v", err)
	}
	if len(runner.ran) != 0 {
		t.Errorf("commands run = %v, want none", runner.ran)
	}
}

const blendCalc = "numpy.clip(A*(C/255.0) + B*(1-C/255.0), 0, 255)"

func TestMaskedBlend(t *testing.T) {
	tools, fs, runner, _ := newTestTools(t, "relief.tif", "shade.tif", "mask.tif")
	err := tools.MaskedBlend(context.Background(), "relief.tif", "shade.tif", "mask.tif", "out/blend.tif",
		BlendOptions{Calc: blendCalc, TempDir: "tmp"})
	if err != nil {
		t.Fatalf("MaskedBlend: %v", err)
	}
	if len(runner.ran) != 10 {
		t.Fatalf("ran %d commands, want 10", len(runner.ran))
	}
	wantFirst := [][]string{
		{"gdal_translate", "-b", "1", "relief.tif", "tmp/blend_A_R.tif"},
		{"gdal_translate", "-b", "1", "shade.tif", "tmp/blend_B_R.tif"},
		{"gdal_calc.py", "-A", "tmp/blend_A_R.tif", "-B", "tmp/blend_B_R.tif", "-C", "mask.tif",
			"--calc", blendCalc, "--type=Byte", "--overwrite", "--outfile", "tmp/blend_R.tif"},
	}
	if diff := cmp.Diff(wantFirst, runner.ran[:3]); diff != "" {
		t.Errorf("red band (-want +got):\n%s", diff)
	}
	wantMerge := []string{"gdal_merge.py", "-separate", "-o", "out/blend.tif",
		"tmp/blend_R.tif", "tmp/blend_G.tif", "tmp/blend_B.tif"}
	if diff := cmp.Diff(wantMerge, runner.ran[9]); diff != "" {
		t.Errorf("merge (-want +got):\n%s", diff)
	}

	if ok, _ := fs.Exists("out/blend.tif"); !ok {
		t.Error("blended output not written")
	}
	for _, band := range bands {
		for _, name := range []string{"blend_A_" + band, "blend_B_" + band, "blend_" + band} {
			if ok, _ := fs.Exists(filepath.Join("tmp", name+".tif")); ok {
				t.Errorf("temp file %s left behind", name)
			}
		}
	}
}

func TestMaskedBlendKeepTemp(t *testing.T) {
	tools, fs, _, _ := newTestTools(t, "relief.tif", "shade.tif", "mask.tif")
	err := tools.MaskedBlend(context.Background(), "relief.tif", "shade.tif", "mask.tif", "blend.tif",
		BlendOptions{Calc: blendCalc, KeepTemp: true})
	if err != nil {
		t.Fatalf("MaskedBlend: %v", err)
	}
	for _, name := range []string{"blend_A_G.tif", "blend_B_B.tif", "blend_R.tif"} {
		if ok, _ := fs.Exists(name); !ok {
			t.Errorf("temp file %s removed despite KeepTemp", name)
		}
	}
}

func TestMaskedBlendFailureCleansUp(t *testing.T) {
	tools, fs, runner, _ := newTestTools(t, "relief.tif", "shade.tif", "mask.tif")
	runner.failOn = "gdal_calc.py"

	err := tools.MaskedBlend(context.Background(), "relief.tif", "shade.tif", "mask.tif", "blend.tif",
		BlendOptions{Calc: blendCalc})
	var stepErr *apperr.StepError
	if !errors.As(err, &stepErr) {
		t.Fatalf("err = %v, want *StepError", err)
	}
	if stepErr.ExitCode != 1 || stepErr.Output != "blend_R.tif" || stepErr.Stderr != "ERROR 4: boom" {
		t.Errorf("step error = %+v", stepErr)
	}
	if apperr.ExitCode(err) != 4 {
		t.Errorf("exit code = %d, want 4", apperr.ExitCode(err))
	}
	for _, name := range []string{"blend_A_R.tif", "blend_B_R.tif"} {
		if ok, _ := fs.Exists(name); ok {
			t.Errorf("temp file %s left behind after failure", name)
		}
	}
}

func TestMaskedBlendErrors(t *testing.T) {
	tools, _, runner, _ := newTestTools(t, "relief.tif", "shade.tif")
	ctx := context.Background()

	err := tools.MaskedBlend(ctx, "relief.tif", "shade.tif", "mask.tif", "out.tif", BlendOptions{Calc: " "})
	if !errors.Is(err, apperr.ErrConfig) {
		t.Errorf("empty calc: err = %v", err)
	}
	err = tools.MaskedBlend(ctx, "relief.tif", "shade.tif", "mask.tif", "out.tif", BlendOptions{Calc: blendCalc})
	if !errors.Is(err, apperr.ErrMissingInput) {
		t.Errorf("missing mask: err = %v", err)
	}
	if len(runner.ran) != 0 {
		t.Errorf("commands run = %v, want none", runner.ran)
	}
}

func TestPublish(t *testing.T) {
	tests := []struct {
		name string
		opts PublishOptions
		want [][]string
	}{
		{"local", PublishOptions{}, [][]string{{"cp", "map.tif", "/srv/tiles"}}},
		{"host None", PublishOptions{Host: "None"}, [][]string{{"cp", "map.tif", "/srv/tiles"}}},
		{"remote", PublishOptions{Host: "tiles@example.org"}, [][]string{{"scp", "map.tif", "tiles@example.org:/srv/tiles"}}},
		{"disabled", PublishOptions{Host: "tiles@example.org", Disable: true}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tools, fs, runner, _ := newTestTools(t, "map.tif")
			tt.opts.MarkerFile = "markers/map.published"
			if err := tools.Publish(context.Background(), "map.tif", "/srv/tiles", tt.opts); err != nil {
				t.Fatalf("Publish: %v", err)
			}
			if diff := cmp.Diff(tt.want, runner.ran); diff != "" {
				t.Errorf("commands (-want +got):\n%s", diff)
			}
			if ok, _ := fs.Exists("markers/map.published"); !ok {
				t.Error("marker file not written")
			}
		})
	}
}

func TestPublishFailureSkipsMarker(t *testing.T) {
	tools, fs, runner, _ := newTestTools(t, "map.tif")
	runner.failOn = "cp"

	err := tools.Publish(context.Background(), "map.tif", "/srv/tiles", PublishOptions{MarkerFile: "map.published"})
	var stepErr *apperr.StepError
	if !errors.As(err, &stepErr) {
		t.Fatalf("err = %v, want *StepError", err)
	}
	if ok, _ := fs.Exists("map.published"); ok {
		t.Error("marker written for a failed publish")
	}
}
