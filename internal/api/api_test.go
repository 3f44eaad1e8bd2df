package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/starford/mapforge/internal/buildservice"
	"github.com/starford/mapforge/internal/colorramp"
	"github.com/starford/mapforge/internal/dispatch"
	"github.com/starford/mapforge/internal/executor"
	"github.com/starford/mapforge/internal/models"
	"github.com/starford/mapforge/internal/overlay"
	"github.com/starford/mapforge/internal/planner"
	"github.com/starford/mapforge/internal/testutil"
)

const pipeline = `
GENERAL:
  OVERLAYS: [COLORS]
COLORS:
  COMMAND: adjust_color
  TITLE: Ramp
  INPUT_FILE: ramp.txt
  OUTPUT_FILE: "{project}_{region}_ramp.txt"
  PARAMETERS:
    saturation: 0
SHADE:
  COMMAND: hillshade
  OUTPUT: hillshade
`

var target = buildservice.Target{Project: "proj", Region: "alps"}

// testEnv wires a build service whose only default overlay runs in-process.
func testEnv(t *testing.T, authToken string) (*buildservice.Service, http.Handler) {
	t.Helper()

	dir, fs := testutil.TestWorkspace(t)
	testutil.WriteFile(t, dir, "ramp.txt", "0 255 0 0\n", time.Time{})
	cfg, err := overlay.Parse([]byte(pipeline))
	if err != nil {
		t.Fatal(err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := dispatch.NewRegistry()
	colorramp.Register(reg, fs)
	store := testutil.TestStore(t)
	exec := executor.New(store, fs, reg, executor.ShellRunner{Dir: fs.Root()}, logger)
	svc := buildservice.New(buildservice.StaticLoader(cfg), fs, planner.NewBuilder(fs, nil, logger), exec, store, logger)

	router := NewRouter(svc, target, authToken != "", authToken, nil)
	return svc, router
}

func do(t *testing.T, h http.Handler, method, path string, out any) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if out != nil && w.Code < 300 {
		if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
			t.Fatalf("decode %s: %v (%s)", path, err, w.Body.String())
		}
	}
	return w
}

func TestListOverlays(t *testing.T) {
	_, router := testEnv(t, "")
	var resp OverlayListResponse
	w := do(t, router, http.MethodGet, "/overlays", &resp)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if len(resp.Overlays) != 2 {
		t.Fatalf("overlays = %+v", resp.Overlays)
	}
	if o := resp.Overlays[0]; o.ID != "COLORS" || o.Kind != "adjust_color" || !o.Default || o.Title != "Ramp" {
		t.Errorf("first overlay = %+v", o)
	}
	if resp.Overlays[1].Default {
		t.Error("SHADE is not in the default build order")
	}
}

func TestPlanPreview(t *testing.T) {
	_, router := testEnv(t, "")
	var resp PlanResponse
	w := do(t, router, http.MethodGet, "/plan?region=jura", &resp)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if resp.Project != "proj" || resp.Region != "jura" {
		t.Errorf("target = %s/%s", resp.Project, resp.Region)
	}
	if len(resp.Plans) != 1 || len(resp.Plans[0].Steps) != 1 {
		t.Fatalf("plans = %+v", resp.Plans)
	}
	step := resp.Plans[0].Steps[0]
	if step.Output != "proj_jura_ramp.txt" || !step.Run || step.Reason != models.ReasonCommandChanged {
		t.Errorf("step = %+v", step)
	}
}

func TestPlanBadRequest(t *testing.T) {
	_, router := testEnv(t, "")
	if w := do(t, router, http.MethodGet, "/plan?preview=maybe", nil); w.Code != http.StatusBadRequest {
		t.Errorf("bad preview flag: status = %d", w.Code)
	}
	if w := do(t, router, http.MethodGet, "/plan?overlay=NOPE", nil); w.Code != http.StatusBadRequest {
		t.Errorf("unknown overlay: status = %d", w.Code)
	}
}

func TestRunsAndFingerprints(t *testing.T) {
	svc, router := testEnv(t, "")

	if w := do(t, router, http.MethodGet, "/runs/last", nil); w.Code != http.StatusNotFound {
		t.Fatalf("before build: status = %d", w.Code)
	}

	rep, err := svc.Build(context.Background(), target)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	var last models.RunReport
	if w := do(t, router, http.MethodGet, "/runs/last", &last); w.Code != http.StatusOK {
		t.Fatalf("runs/last status = %d", w.Code)
	}
	if last.RunID != rep.RunID || len(last.Overlays) != 1 {
		t.Errorf("last run = %+v", last)
	}
	if s := last.Overlays[0].Steps[0]; !s.Internal || s.Status != models.StepSucceeded {
		t.Errorf("step = %+v", s)
	}

	var fps FingerprintListResponse
	do(t, router, http.MethodGet, "/fingerprints", &fps)
	if fps.Total != 1 || fps.Fingerprints[0].Key != "proj_alps_ramp.txt" {
		t.Fatalf("fingerprints = %+v", fps)
	}

	if w := do(t, router, http.MethodDelete, "/fingerprints/proj_alps_ramp.txt", nil); w.Code != http.StatusNoContent {
		t.Errorf("delete status = %d", w.Code)
	}
	if w := do(t, router, http.MethodDelete, "/fingerprints/proj_alps_ramp.txt", nil); w.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d", w.Code)
	}
	do(t, router, http.MethodGet, "/fingerprints", &fps)
	if fps.Total != 0 || fps.Fingerprints == nil {
		t.Errorf("fingerprints after forget = %+v", fps)
	}
}

func TestAuthToken(t *testing.T) {
	_, router := testEnv(t, "secret")

	if w := do(t, router, http.MethodGet, "/overlays", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("no token: status = %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/overlays", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token: status = %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/overlays", nil)
	req.Header.Set("Authorization", "Bearer secret")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("valid token: status = %d", w.Code)
	}
}
