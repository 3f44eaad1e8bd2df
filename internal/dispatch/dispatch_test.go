package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSplitCall(t *testing.T) {
	tests := []struct {
		in   string
		name string
		args string
		ok   bool
	}{
		{"skip(x)", "skip", "x", true},
		{"  adjust(\"a\", 'b') ", "adjust", "\"a\", 'b'", true},
		{"noargs()", "noargs", "", true},
		{"gdalwarp -q a.tif b.tif", "", "", false},
		{"(x)", "", "", false},
		{"echo hi && skip(x)", "", "", false},
		{"gdal_calc.py --calc=\"max(A)\"", "", "", false},
		{"skip(a) && gdal_translate (b)", "", "", false},
		{"skip(a b)", "", "", false},
		{"skip(x);ls", "", "", false},
		{"skip(x) | tee (log)", "", "", false},
		{"skip($HOME)", "", "", false},
		{"skip(\"a\"b)", "", "", false},
		{"skip(\"unterminated)", "", "", false},
		{`skip("a (b)")`, "skip", `"a (b)"`, true},
		{`adjust("in", "out", {saturation: 0.8, 'note': "a b"})`, "adjust", `"in", "out", {saturation: 0.8, 'note': "a b"}`, true},
	}
	for _, tt := range tests {
		name, args, ok := splitCall(tt.in)
		if ok != tt.ok || name != tt.name || args != tt.args {
			t.Errorf("splitCall(%q) = %q, %q, %v", tt.in, name, args, ok)
		}
	}
}

func TestMatchLeavesShellCommands(t *testing.T) {
	r := NewRegistry()
	r.MustRegister("skip", []ArgKind{ArgString}, func(context.Context, []Arg) error {
		t.Error("capability invoked for a shell command")
		return nil
	})

	call, ok, err := r.Match("skip(a) && gdal_translate (b)")
	if ok || err != nil || call != nil {
		t.Errorf("Match = %v, %v, %v, want a non-call", call, ok, err)
	}
}

func TestMatchSkip(t *testing.T) {
	r := NewRegistry()
	var got []Arg
	r.MustRegister("skip", []ArgKind{ArgString}, func(_ context.Context, args []Arg) error {
		got = args
		return nil
	})

	call, ok, err := r.Match("skip(x)")
	if err != nil || !ok {
		t.Fatalf("Match = %v, %v", ok, err)
	}
	if err := call.Invoke(context.Background()); err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if len(got) != 1 || got[0].Text != "x" || got[0].Kind != ArgString {
		t.Errorf("args = %+v", got)
	}
}

func TestMatchUnregisteredIsNotACall(t *testing.T) {
	r := NewRegistry()
	_, ok, err := r.Match("frobnicate(x)")
	if ok || err != nil {
		t.Errorf("Match(unregistered) = %v, %v", ok, err)
	}
}

func TestSchemaEnforced(t *testing.T) {
	r := NewRegistry()
	r.MustRegister("scale", []ArgKind{ArgPath, ArgNumber, ArgParams}, func(context.Context, []Arg) error { return nil })

	bad := []string{
		`scale("a.tif")`,
		`scale("a.tif", "two", {})`,
		`scale("a.tif", 2, 3)`,
		`scale("a.tif", 2, {k: {nested: 1}})`,
		`scale("a.tif", 2, {}, extra)`,
	}
	for _, cmd := range bad {
		_, ok, err := r.Match(cmd)
		if !ok || err == nil {
			t.Errorf("Match(%q) = %v, %v; want schema error", cmd, ok, err)
		}
	}

	notCalls := []string{
		`scale("unterminated, 2, {})`,
		`scale(__import__('os').system('rm -rf /'), 2, {})`,
	}
	for _, cmd := range notCalls {
		if _, ok, err := r.Match(cmd); ok || err != nil {
			t.Errorf("Match(%q) = %v, %v; want a non-call", cmd, ok, err)
		}
	}

	call, ok, err := r.Match(`scale('/data/a b.tif', -1.5e2, {factor: 2, mode: "fast", 'label': x})`)
	if err != nil || !ok {
		t.Fatalf("Match = %v, %v", ok, err)
	}
	want := []Arg{
		Path("/data/a b.tif"),
		Number(-150),
		Params(map[string]Value{
			"factor": {IsNumber: true, Number: 2},
			"mode":   {Text: "fast"},
			"label":  {Text: "x"},
		}),
	}
	if diff := cmp.Diff(want, call.Args); diff != "" {
		t.Errorf("args (-want +got):\n%s", diff)
	}
}

func TestFormatRoundTrip(t *testing.T) {
	r := NewRegistry()
	r.MustRegister("adjust", []ArgKind{ArgPath, ArgPath, ArgParams}, func(context.Context, []Arg) error { return nil })

	in := []Arg{
		Path(`ramp "v1".txt`),
		Path("out.txt"),
		Params(map[string]Value{"saturation": ParamValue("0.8"), "note": ParamValue("warm")}),
	}
	cmd := Format("adjust", in...)
	if cmd != `adjust("ramp \"v1\".txt", "out.txt", {note: "warm", saturation: 0.8})` {
		t.Errorf("Format = %s", cmd)
	}
	call, ok, err := r.Match(cmd)
	if err != nil || !ok {
		t.Fatalf("Match(%s) = %v, %v", cmd, ok, err)
	}
	if diff := cmp.Diff(in, call.Args); diff != "" {
		t.Errorf("round trip (-want +got):\n%s", diff)
	}
}

func TestFormatDeterministic(t *testing.T) {
	p := map[string]Value{"b": ParamValue("2"), "a": ParamValue("1"), "c": ParamValue("x")}
	first := Format("f", Params(p))
	for i := 0; i < 20; i++ {
		if got := Format("f", Params(p)); got != first {
			t.Fatalf("Format not deterministic: %s vs %s", got, first)
		}
	}
}

func TestRegisterValidation(t *testing.T) {
	r := NewRegistry()
	noop := func(context.Context, []Arg) error { return nil }
	if err := r.Register("bad name", nil, noop); err == nil {
		t.Error("expected invalid name error")
	}
	if err := r.Register("ok", nil, nil); err == nil {
		t.Error("expected nil func error")
	}
	_ = r.Register("dup", nil, noop)
	if err := r.Register("dup", nil, noop); err == nil {
		t.Error("expected duplicate error")
	}
	if diff := cmp.Diff([]string{"dup"}, r.Names()); diff != "" {
		t.Errorf("Names (-want +got):\n%s", diff)
	}
}

func TestInvokePropagatesError(t *testing.T) {
	r := NewRegistry()
	boom := errors.New("boom")
	r.MustRegister("fail", nil, func(context.Context, []Arg) error { return boom })
	call, _, _ := r.Match("fail()")
	if err := call.Invoke(context.Background()); !errors.Is(err, boom) {
		t.Errorf("err = %v", err)
	}
}

func TestRegisterSkipLogs(t *testing.T) {
	var buf strings.Builder
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	r := NewRegistry()
	RegisterSkip(r, logger)
	call, ok, err := r.Match(`skip("hillshade disabled")`)
	if err != nil || !ok {
		t.Fatalf("Match = %v, %v", ok, err)
	}
	if err := call.Invoke(context.Background()); err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if !strings.Contains(buf.String(), "hillshade disabled") {
		t.Errorf("log = %q", buf.String())
	}
}
