package colorramp

import (
	"context"
	"strings"
	"testing"

	"github.com/starford/mapforge/internal/dispatch"
	"github.com/starford/mapforge/internal/storage"
)

const sampleRamp = `# elevation ramp
nv 0 0 0 0
0 255 0 0
50% 0 0 255
1000 128 128 128 255
not a color line
`

func TestAdjustIdentity(t *testing.T) {
	got, err := Adjust([]byte(sampleRamp), DefaultParams())
	if err != nil {
		t.Fatalf("Adjust: %v", err)
	}
	if string(got) != sampleRamp {
		t.Errorf("identity changed file:\n%s", got)
	}
}

func TestAdjustDesaturate(t *testing.T) {
	p := DefaultParams()
	p.Saturation = 0
	got, _ := Adjust([]byte("0 255 0 0\n"), p)
	if string(got) != "0 255 255 255\n" {
		t.Errorf("got %q", got)
	}
}

func TestAdjustHueRetarget(t *testing.T) {
	p := DefaultParams()
	p.MinHue, p.MaxHue, p.TargetHue = 0, 30, 120
	got, _ := Adjust([]byte("0 255 0 0\n10 0 0 255\n"), p)
	want := "0 0 255 0\n10 0 0 255\n"
	if string(got) != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestAdjustBrightnessBands(t *testing.T) {
	p := DefaultParams()
	p.ShadowAdjust = 1
	p.HighlightAdjust = -1
	got, _ := Adjust([]byte("0 10 10 10\n1 250 250 250\n"), p)
	want := "0 255 255 255\n1 0 0 0\n"
	if string(got) != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestAdjustElevation(t *testing.T) {
	p := DefaultParams()
	p.ElevAdjust = 1.5
	got, _ := Adjust([]byte("1000 1 2 3\n50% 1 2 3\nnv 0 0 0\n"), p)
	lines := strings.Split(strings.TrimSpace(string(got)), "\n")
	if lines[0] != "1500 1 2 3" {
		t.Errorf("numeric elevation = %q", lines[0])
	}
	if lines[1] != "50% 1 2 3" {
		t.Errorf("percent elevation = %q", lines[1])
	}
	if lines[2] != "nv 0 0 0" {
		t.Errorf("nodata line = %q", lines[2])
	}
}

func TestParamsFrom(t *testing.T) {
	p, err := ParamsFrom(map[string]dispatch.Value{
		"saturation_adjust": dispatch.ParamValue("0.8"),
		"target_hue":        dispatch.ParamValue("120"),
	})
	if err != nil {
		t.Fatalf("ParamsFrom: %v", err)
	}
	if p.Saturation != 0.8 || p.TargetHue != 120 || p.ElevAdjust != 1 {
		t.Errorf("params = %+v", p)
	}
	if _, err := ParamsFrom(map[string]dispatch.Value{"bogus": dispatch.ParamValue("1")}); err == nil {
		t.Error("expected unknown parameter error")
	}
	if _, err := ParamsFrom(map[string]dispatch.Value{"saturation": dispatch.ParamValue("high")}); err == nil {
		t.Error("expected non-numeric error")
	}
}

func TestCapabilityThroughRegistry(t *testing.T) {
	fs, err := storage.NewFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := fs.Write("ramp.txt", []byte("0 255 0 0\n")); err != nil {
		t.Fatal(err)
	}
	r := dispatch.NewRegistry()
	Register(r, fs)

	cmd := dispatch.Format(CapabilityName,
		dispatch.Path("ramp.txt"),
		dispatch.Path("out/ramp_adj.txt"),
		dispatch.Params(map[string]dispatch.Value{"saturation": dispatch.ParamValue("0")}),
	)
	call, ok, err := r.Match(cmd)
	if err != nil || !ok {
		t.Fatalf("Match(%s) = %v, %v", cmd, ok, err)
	}
	if err := call.Invoke(context.Background()); err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	got, err := fs.Read("out/ramp_adj.txt")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != "0 255 255 255\n" {
		t.Errorf("output = %q", got)
	}
}
