package rastertool

import (
	"context"
	"log/slog"
)

// PublishOptions controls Publish.
type PublishOptions struct {
	// Host selects scp to Host:dir; empty or "None" copies locally.
	Host string
	// MarkerFile, when set, is created empty after the publish step, even
	// when publishing is disabled.
	MarkerFile string
	Disable    bool
}

// Publish copies src into dir, locally with cp or to a remote host with scp.
func (t *Tools) Publish(ctx context.Context, src, dir string, opts PublishOptions) error {
	if opts.Disable {
		t.logger.Info("publish disabled", slog.String("source", src))
	} else {
		if err := t.requireFiles(src); err != nil {
			return err
		}
		argv := []string{"cp", src, dir}
		if opts.Host != "" && opts.Host != "None" {
			argv = []string{"scp", src, opts.Host + ":" + dir}
		}
		t.logger.Info("publishing",
			slog.String("source", src),
			slog.String("destination", argv[2]))
		if err := t.run(ctx, argv[2], argv...); err != nil {
			return err
		}
	}

	if opts.MarkerFile != "" {
		if err := t.fs.Write(opts.MarkerFile, nil); err != nil {
			return err
		}
		t.logger.Debug("marker written", slog.String("path", opts.MarkerFile))
	}
	return nil
}
