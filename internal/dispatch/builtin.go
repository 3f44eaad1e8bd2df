package dispatch

import (
	"context"
	"log/slog"
)

// SkipName is the capability that deliberately does nothing but log.
const SkipName = "skip"

// RegisterSkip adds skip(reason): it logs the reason and succeeds, letting a
// pipeline keep a placeholder step that still records a fingerprint.
func RegisterSkip(r *Registry, logger *slog.Logger) {
	r.MustRegister(SkipName, []ArgKind{ArgString}, func(_ context.Context, args []Arg) error {
		logger.Info("skipping", slog.String("reason", args[0].Text))
		return nil
	})
}
