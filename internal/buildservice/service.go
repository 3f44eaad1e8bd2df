// Package buildservice ties the planner and the executor together: it
// resolves which overlays to build, rejects a bad pipeline before anything
// runs, and executes overlays one at a time.
package buildservice

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"github.com/starford/mapforge/internal/apperr"
	"github.com/starford/mapforge/internal/executor"
	"github.com/starford/mapforge/internal/fingerprint"
	"github.com/starford/mapforge/internal/models"
	"github.com/starford/mapforge/internal/overlay"
	"github.com/starford/mapforge/internal/planner"
	"github.com/starford/mapforge/internal/storage"
)

// Target selects what to build.
type Target struct {
	Project  string
	Region   string
	Preview  bool
	Force    bool
	Overlays []string // empty means the pipeline's default build order
}

// Validate checks that project and region are set.
func (t Target) Validate() error {
	err := validation.ValidateStruct(&t,
		validation.Field(&t.Project, validation.Required),
		validation.Field(&t.Region, validation.Required),
	)
	if err != nil {
		return apperr.Configf("target: %v", err)
	}
	return nil
}

// Loader returns the current pipeline file.
type Loader func() (*overlay.Config, error)

// FileLoader re-reads path on every call so edits are picked up between
// builds.
func FileLoader(path string) Loader {
	return func() (*overlay.Config, error) { return overlay.Load(path) }
}

// StaticLoader always returns cfg.
func StaticLoader(cfg *overlay.Config) Loader {
	return func() (*overlay.Config, error) { return cfg, nil }
}

// Publisher receives build progress.
type Publisher interface {
	PublishStep(ev models.StepEvent)
	PublishRun(report models.RunReport)
}

// Service runs builds. Builds are serialised; read-only queries may run
// concurrently with a build.
type Service struct {
	load    Loader
	fs      storage.Provider
	builder *planner.Builder
	exec    *executor.Executor
	store   fingerprint.Store
	logger  *slog.Logger

	buildMu sync.Mutex

	mu    sync.RWMutex
	runID string
	last  *models.RunReport
	pub   Publisher
}

// New creates a Service. It takes over exec's event hook.
func New(load Loader, fs storage.Provider, builder *planner.Builder, exec *executor.Executor, store fingerprint.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{load: load, fs: fs, builder: builder, exec: exec, store: store, logger: logger}
	exec.OnEvent = s.onStep
	return s
}

// SetPublisher routes step and run events to p.
func (s *Service) SetPublisher(p Publisher) {
	s.mu.Lock()
	s.pub = p
	s.mu.Unlock()
}

// Overlays lists the overlays declared by the pipeline file.
func (s *Service) Overlays(_ context.Context) ([]models.Overlay, error) {
	cfg, err := s.load()
	if err != nil {
		return nil, err
	}
	order, err := cfg.BuildOrder()
	if err != nil {
		return nil, err
	}
	inOrder := make(map[string]bool, len(order))
	for _, id := range order {
		inOrder[id] = true
	}
	ids := cfg.Overlays()
	out := make([]models.Overlay, 0, len(ids))
	for _, id := range ids {
		kind, _ := cfg.Kind(id)
		out = append(out, models.Overlay{
			ID:      id,
			Kind:    kind,
			Title:   cfg.String(id+".TITLE", ""),
			Default: inOrder[id],
		})
	}
	return out, nil
}

// resolve returns the overlays to build after checking the configuration
// of every one of them, so a bad section fails the whole request before any
// command runs.
func (s *Service) resolve(ctx context.Context, cfg *overlay.Config, t Target) ([]string, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	ids := t.Overlays
	if len(ids) == 0 {
		var err error
		if ids, err = cfg.BuildOrder(); err != nil {
			return nil, err
		}
	}
	if len(ids) == 0 {
		return nil, apperr.Configf("no overlays to build")
	}
	for _, id := range ids {
		if err := s.builder.Check(ctx, cfg, id, t.Project, t.Region, t.Preview); err != nil {
			return nil, err
		}
	}
	return ids, nil
}

func (s *Service) plan(ctx context.Context, cfg *overlay.Config, id string, t Target) (models.Plan, error) {
	p, err := s.builder.Build(ctx, cfg, id, t.Project, t.Region, t.Preview)
	if err != nil {
		return models.Plan{}, err
	}
	if t.Force {
		p = p.WithForce()
	}
	return p, nil
}

// Plan builds every requested plan without executing anything.
func (s *Service) Plan(ctx context.Context, t Target) ([]models.Plan, error) {
	cfg, err := s.load()
	if err != nil {
		return nil, err
	}
	ids, err := s.resolve(ctx, cfg, t)
	if err != nil {
		return nil, err
	}
	plans := make([]models.Plan, 0, len(ids))
	for _, id := range ids {
		p, err := s.plan(ctx, cfg, id, t)
		if err != nil {
			return nil, err
		}
		plans = append(plans, p)
	}
	return plans, nil
}

// Preview returns the plans together with the decision the executor would
// take for each command right now. Steps whose inputs are produced earlier
// in the same build are judged on the files currently on disk.
func (s *Service) Preview(ctx context.Context, t Target) ([]models.PlanPreview, error) {
	plans, err := s.Plan(ctx, t)
	if err != nil {
		return nil, err
	}
	out := make([]models.PlanPreview, 0, len(plans))
	for _, p := range plans {
		pv := models.PlanPreview{Overlay: p.Overlay, Kind: p.Kind}
		for _, c := range p.Commands {
			step := models.PreviewStep{PlannedCommand: c}
			d, err := s.exec.Decide(ctx, c)
			if err != nil {
				step.Error = err.Error()
			} else {
				step.Run, step.Reason = d.Run, d.Reason
			}
			pv.Steps = append(pv.Steps, step)
		}
		out = append(out, pv)
	}
	return out, nil
}

// Build plans and executes each overlay in turn, stopping at the first
// failure. The returned report is non-nil whenever execution started.
func (s *Service) Build(ctx context.Context, t Target) (*models.RunReport, error) {
	s.buildMu.Lock()
	defer s.buildMu.Unlock()

	cfg, err := s.load()
	if err != nil {
		return nil, err
	}
	ids, err := s.resolve(ctx, cfg, t)
	if err != nil {
		return nil, err
	}

	report := &models.RunReport{
		RunID:     uuid.NewString(),
		Project:   t.Project,
		Region:    t.Region,
		Preview:   t.Preview,
		StartedAt: time.Now().UTC(),
	}
	s.mu.Lock()
	s.runID = report.RunID
	s.mu.Unlock()

	log := s.logger.With(slog.String("run_id", report.RunID))
	log.Info("build started",
		slog.String("target", t.String()),
		slog.Bool("force", t.Force),
		slog.Any("overlays", ids))

	err = s.run(ctx, cfg, ids, t, report)
	report.FinishedAt = time.Now().UTC()
	if err != nil {
		report.Error = err.Error()
		log.Error("build failed", slog.String("error", err.Error()))
	} else {
		log.Info("build finished", slog.Duration("duration", report.FinishedAt.Sub(report.StartedAt)))
	}
	s.finish(report)
	return report, err
}

func (s *Service) run(ctx context.Context, cfg *overlay.Config, ids []string, t Target, report *models.RunReport) error {
	for _, id := range ids {
		p, err := s.plan(ctx, cfg, id, t)
		if err != nil {
			return err
		}
		report.Plans = append(report.Plans, p)
		results, err := s.exec.RunPlan(ctx, p)
		report.Overlays = append(report.Overlays, models.OverlayReport{Overlay: id, Kind: p.Kind, Steps: results})
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) finish(report *models.RunReport) {
	s.mu.Lock()
	s.last = report
	s.runID = ""
	pub := s.pub
	s.mu.Unlock()
	if pub != nil {
		pub.PublishRun(*report)
	}
}

func (s *Service) onStep(ev models.StepEvent) {
	s.mu.RLock()
	ev.RunID = s.runID
	pub := s.pub
	s.mu.RUnlock()
	if pub != nil {
		pub.PublishStep(ev)
	}
}

// LastRun returns the report of the most recent build.
func (s *Service) LastRun() (*models.RunReport, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return nil, false
	}
	r := *s.last
	return &r, true
}

// Fingerprints lists the stored command fingerprints.
func (s *Service) Fingerprints(ctx context.Context) ([]models.Fingerprint, error) {
	return s.store.List(ctx)
}

// Forget drops the fingerprint stored under key, forcing the next build of
// that target to run.
func (s *Service) Forget(ctx context.Context, key string) error {
	return s.store.Forget(ctx, fingerprint.Key(key))
}

// SourceInputs returns the absolute paths of every input in report's plans
// that no plan produces itself: the files a rebuild depends on.
func (s *Service) SourceInputs(report *models.RunReport) []string {
	produced := make(map[string]bool)
	for _, p := range report.Plans {
		for _, out := range p.Outputs() {
			produced[s.fs.Resolve(out)] = true
		}
	}
	seen := make(map[string]bool)
	var out []string
	for _, p := range report.Plans {
		for _, c := range p.Commands {
			for _, in := range c.Inputs {
				abs := s.fs.Resolve(in)
				if produced[abs] || seen[abs] {
					continue
				}
				seen[abs] = true
				out = append(out, abs)
			}
		}
	}
	sort.Strings(out)
	return out
}

// String renders a target for log lines.
func (t Target) String() string {
	s := fmt.Sprintf("%s/%s", t.Project, t.Region)
	if t.Preview {
		s += " (preview)"
	}
	return s
}
