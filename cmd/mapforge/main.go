package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/mapforge/internal"
	"github.com/starford/mapforge/internal/apperr"
	"github.com/starford/mapforge/internal/buildservice"
	"github.com/starford/mapforge/internal/executor"
	"github.com/starford/mapforge/internal/planner"
	"github.com/starford/mapforge/internal/rastertool"
	"github.com/starford/mapforge/internal/storage"
	pkgconfig "github.com/starford/mapforge/pkg/config"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

const defaultConfigPath = "config/config.yaml"

// loadConfig reads the app config and applies command-line overrides. A
// missing file is only accepted at the default path.
func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	configPath := cmd.String("config")
	if err := pkgconfig.LoadOptional(configPath, !cmd.IsSet("config"), cfg); err != nil {
		return nil, apperr.Configf("failed to parse config: %v", err)
	}

	if p := cmd.String("pipeline"); p != "" {
		cfg.Pipeline.File = p
	}
	if d := cmd.String("work-dir"); d != "" {
		cfg.Pipeline.WorkDir = d
	}
	if cmd.Bool("no-persist") {
		cfg.Fingerprints.Backend = internal.BackendMemory
	}
	if cmd.Bool("verbose") {
		cfg.App.LogLevel = slog.LevelDebug
	}
	if err := cfg.Validate(); err != nil {
		return nil, apperr.Configf("config validation failed: %v", err)
	}
	return cfg, nil
}

// open loads the config and wires a runtime for one command.
func open(cmd *cli.Command) (*internal.Runtime, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return internal.Open(internal.WithConfig(cfg))
}

// tools wires the raster helpers against the current directory, using the
// configured shell and log settings.
func tools(cmd *cli.Command) (*rastertool.Tools, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	fs, err := storage.NewFS(".")
	if err != nil {
		return nil, err
	}
	runner := executor.ShellRunner{
		Shell:  cfg.Executor.Shell,
		Dir:    fs.Root(),
		Stdout: stdout(cmd),
		Stderr: os.Stderr,
	}
	logger := internal.NewLogger(cfg.App, os.Stderr)
	return rastertool.New(fs, runner, planner.GDALInfo{}, logger), nil
}

func stdout(cmd *cli.Command) io.Writer {
	if w := cmd.Root().Writer; w != nil {
		return w
	}
	return os.Stdout
}

// target builds the build target from flags and overlay arguments.
func target(cmd *cli.Command) buildservice.Target {
	return buildservice.Target{
		Project:  cmd.String("project"),
		Region:   cmd.String("region"),
		Preview:  cmd.Bool("preview"),
		Force:    cmd.Bool("force"),
		Overlays: cmd.Args().Slice(),
	}
}

// targetFlags returns fresh copies of the flags selecting a build target,
// preceded by extra.
func targetFlags(extra ...cli.Flag) []cli.Flag {
	return append(extra,
		&cli.StringFlag{
			Name:    "project",
			Usage:   "Project name used in output file names",
			Sources: cli.EnvVars("MAPFORGE_PROJECT"),
		},
		&cli.StringFlag{
			Name:    "region",
			Aliases: []string{"r"},
			Usage:   "Region key under REGIONS in the pipeline file",
			Sources: cli.EnvVars("MAPFORGE_REGION"),
		},
		&cli.BoolFlag{
			Name:  "preview",
			Usage: "Build the reduced-size preview variant",
		},
	)
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:    "mapforge",
		Usage:   "Incremental builder for GDAL overlay pipelines",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: defaultConfigPath,
				Value:       defaultConfigPath,
				Sources:     cli.EnvVars("MAPFORGE_CONFIG"),
			},
			&cli.StringFlag{
				Name:    "pipeline",
				Aliases: []string{"p"},
				Usage:   "Path to the pipeline file (overrides pipeline.file)",
			},
			&cli.StringFlag{
				Name:  "work-dir",
				Usage: "Directory commands run in (overrides pipeline.work_dir)",
			},
			&cli.BoolFlag{
				Name:  "no-persist",
				Usage: "Keep fingerprints in memory for this run only",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Log at debug level",
			},
		},
		Commands: []*cli.Command{
			buildCommand(),
			planCommand(),
			watchCommand(),
			fingerprintsCommand(),
			adjustColorCommand(),
			createSubsetCommand(),
			alignRasterCommand(),
			maskedBlendCommand(),
			publishCommand(),
			mcpCommand(),
		},
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newApp().Run(ctx, os.Args)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "mapforge: %v\n", err)
		os.Exit(apperr.ExitCode(err))
	}
}
