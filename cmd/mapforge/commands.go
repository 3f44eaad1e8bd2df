package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/starford/mapforge/internal/apperr"
	"github.com/starford/mapforge/internal/colorramp"
	"github.com/starford/mapforge/internal/models"
	"github.com/starford/mapforge/internal/rastertool"
	"github.com/starford/mapforge/internal/storage"
)

func buildCommand() *cli.Command {
	return &cli.Command{
		Name:      "build",
		Usage:     "Build overlays, running only the steps that are out of date",
		ArgsUsage: "[overlay...]",
		Flags: targetFlags(
			&cli.BoolFlag{
				Name:  "force",
				Usage: "Run every step regardless of timestamps and fingerprints",
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			rt, err := open(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			report, err := rt.Build(ctx, target(cmd))
			if report != nil {
				printSummary(stdout(cmd), report)
			}
			return err
		},
	}
}

func printSummary(w io.Writer, report *models.RunReport) {
	var ran, skipped, failed int
	for _, o := range report.Overlays {
		for _, s := range o.Steps {
			switch s.Status {
			case models.StepSucceeded:
				ran++
			case models.StepSkipped:
				skipped++
			case models.StepFailed:
				failed++
			}
		}
	}
	fmt.Fprintf(w, "%d overlay(s): %d step(s) run, %d up to date, %d failed (%s)\n",
		len(report.Overlays), ran, skipped, failed, report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond))
}

func planCommand() *cli.Command {
	return &cli.Command{
		Name:      "plan",
		Usage:     "Show the planned commands and whether each would run",
		ArgsUsage: "[overlay...]",
		Flags: targetFlags(
			&cli.BoolFlag{
				Name:  "force",
				Usage: "Plan as if --force were given to build",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Print the plan as JSON",
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			rt, err := open(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			previews, err := rt.Preview(ctx, target(cmd))
			if err != nil {
				return err
			}
			w := stdout(cmd)
			if cmd.Bool("json") {
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				return enc.Encode(previews)
			}
			printPlan(w, previews)
			return nil
		},
	}
}

func printPlan(w io.Writer, previews []models.PlanPreview) {
	for _, p := range previews {
		fmt.Fprintf(w, "%s (%s)\n", p.Overlay, p.Kind)
		for _, s := range p.Steps {
			verdict := "skip"
			switch {
			case s.Error != "":
				verdict = "error: " + s.Error
			case s.Run:
				verdict = "run"
			}
			if s.Reason != "" {
				verdict += " (" + s.Reason + ")"
			}
			fmt.Fprintf(w, "  [%s] %s\n", verdict, s.Command)
		}
	}
}

func watchCommand() *cli.Command {
	return &cli.Command{
		Name:      "watch",
		Usage:     "Build, then rebuild whenever a source file or the pipeline changes",
		ArgsUsage: "[overlay...]",
		Flags:     targetFlags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			rt, err := open(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()
			return rt.Watch(ctx, target(cmd))
		},
	}
}

func fingerprintsCommand() *cli.Command {
	return &cli.Command{
		Name:  "fingerprints",
		Usage: "Inspect or drop stored command fingerprints",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List stored fingerprints",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					rt, err := open(cmd)
					if err != nil {
						return err
					}
					defer rt.Close()

					fps, err := rt.Fingerprints(ctx)
					if err != nil {
						return err
					}
					tw := tabwriter.NewWriter(stdout(cmd), 0, 4, 2, ' ', 0)
					fmt.Fprintln(tw, "TARGET\tHASH\tUPDATED")
					for _, fp := range fps {
						fmt.Fprintf(tw, "%s\t%.12s\t%s\n", fp.Key, fp.CommandHash, fp.UpdatedAt.Local().Format("2006-01-02 15:04:05"))
					}
					return tw.Flush()
				},
			},
			{
				Name:      "forget",
				Usage:     "Drop the fingerprint of each target so its next build runs",
				ArgsUsage: "<target>...",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					if cmd.Args().Len() == 0 {
						return apperr.Configf("forget: at least one target is required")
					}
					rt, err := open(cmd)
					if err != nil {
						return err
					}
					defer rt.Close()

					for _, target := range cmd.Args().Slice() {
						if err := rt.Forget(ctx, target); err != nil {
							return fmt.Errorf("forget %s: %w", target, err)
						}
						rt.Logger().Info("fingerprint removed", slog.String("target", target))
					}
					return nil
				},
			},
		},
	}
}

func adjustColorCommand() *cli.Command {
	return &cli.Command{
		Name:      "adjust-color",
		Usage:     "Adjust the HSV values of a gdaldem color-relief file",
		ArgsUsage: "<input> <output>",
		Flags: []cli.Flag{
			&cli.FloatFlag{Name: "saturation", Value: 1, Usage: "Saturation multiplier"},
			&cli.FloatFlag{Name: "shadow-adjust", Usage: "Brightness adjustment for shadows"},
			&cli.FloatFlag{Name: "mid-adjust", Usage: "Brightness adjustment for mid-tones"},
			&cli.FloatFlag{Name: "highlight-adjust", Usage: "Brightness adjustment for highlights"},
			&cli.FloatFlag{Name: "min-hue", Usage: "Minimum hue of the range to retarget (0-360)"},
			&cli.FloatFlag{Name: "max-hue", Usage: "Maximum hue of the range to retarget (0-360)"},
			&cli.FloatFlag{Name: "target-hue", Usage: "Hue the range is shifted to (0-360)"},
			&cli.FloatFlag{Name: "elev-adjust", Value: 1, Usage: "Elevation multiplier"},
		},
		Action: func(_ context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 2 {
				return apperr.Configf("adjust-color: want <input> <output>, got %d argument(s)", cmd.Args().Len())
			}
			fs, err := storage.NewFS(".")
			if err != nil {
				return err
			}
			p := colorramp.Params{
				Saturation:      cmd.Float("saturation"),
				ShadowAdjust:    cmd.Float("shadow-adjust"),
				MidAdjust:       cmd.Float("mid-adjust"),
				HighlightAdjust: cmd.Float("highlight-adjust"),
				MinHue:          cmd.Float("min-hue"),
				MaxHue:          cmd.Float("max-hue"),
				TargetHue:       cmd.Float("target-hue"),
				ElevAdjust:      cmd.Float("elev-adjust"),
			}
			return colorramp.AdjustFile(fs, cmd.Args().Get(0), cmd.Args().Get(1), p)
		},
	}
}

// wantArgs fails with a configuration error unless cmd got exactly n
// positional arguments.
func wantArgs(cmd *cli.Command, n int) error {
	if cmd.Args().Len() != n {
		return apperr.Configf("%s: want %s, got %d argument(s)", cmd.Name, cmd.ArgsUsage, cmd.Args().Len())
	}
	return nil
}

func createSubsetCommand() *cli.Command {
	return &cli.Command{
		Name:      "create-subset",
		Usage:     "Crop a square preview window out of a large raster",
		ArgsUsage: "<input> <output>",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "size", Value: int64(rastertool.DefaultSubset.Size), Usage: "Width and height of the crop in pixels"},
			&cli.FloatFlag{Name: "x-anchor", Value: rastertool.DefaultSubset.XAnchor, Usage: "Horizontal anchor (0 left, 0.5 centre, 1 right)"},
			&cli.FloatFlag{Name: "y-anchor", Value: rastertool.DefaultSubset.YAnchor, Usage: "Vertical anchor (0 top, 0.5 centre, 1 bottom)"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if err := wantArgs(cmd, 2); err != nil {
				return err
			}
			t, err := tools(cmd)
			if err != nil {
				return err
			}
			return t.CreateSubset(ctx, cmd.Args().Get(0), cmd.Args().Get(1), rastertool.SubsetOptions{
				Size:    int(cmd.Int("size")),
				XAnchor: cmd.Float("x-anchor"),
				YAnchor: cmd.Float("y-anchor"),
			})
		},
	}
}

func alignRasterCommand() *cli.Command {
	return &cli.Command{
		Name:      "align-raster",
		Usage:     "Resample a raster onto the SRS, extent and pixel grid of a template",
		ArgsUsage: "<source> <template> <output>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "resampling-method", Aliases: []string{"r"}, Value: "bilinear", Usage: "gdalwarp resampling method"},
			&cli.StringSliceFlag{Name: "co", Usage: "Creation option NAME=VALUE for the output driver (repeatable)"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if err := wantArgs(cmd, 3); err != nil {
				return err
			}
			t, err := tools(cmd)
			if err != nil {
				return err
			}
			args := cmd.Args()
			return t.AlignRaster(ctx, args.Get(0), args.Get(1), args.Get(2), rastertool.AlignOptions{
				Resampling:      cmd.String("resampling-method"),
				CreationOptions: cmd.StringSlice("co"),
			})
		},
	}
}

func maskedBlendCommand() *cli.Command {
	return &cli.Command{
		Name:      "masked-blend",
		Usage:     "Blend two RGB layers through a mask with gdal_calc, band by band",
		ArgsUsage: "<layerA> <layerB> <mask> <output>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "calc", Usage: "gdal_calc formula over A, B and the mask C; must scale C to 0..1"},
			&cli.StringFlag{Name: "temp-dir", Value: ".", Usage: "Directory for the single-band intermediates"},
			&cli.BoolFlag{Name: "keep-temp", Usage: "Keep the intermediates"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if err := wantArgs(cmd, 4); err != nil {
				return err
			}
			t, err := tools(cmd)
			if err != nil {
				return err
			}
			args := cmd.Args()
			return t.MaskedBlend(ctx, args.Get(0), args.Get(1), args.Get(2), args.Get(3), rastertool.BlendOptions{
				Calc:     cmd.String("calc"),
				TempDir:  cmd.String("temp-dir"),
				KeepTemp: cmd.Bool("keep-temp"),
			})
		},
	}
}

func publishCommand() *cli.Command {
	return &cli.Command{
		Name:      "publish",
		Usage:     "Copy a finished file to a local directory or, with --host, over scp",
		ArgsUsage: "<source> <directory>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "host", Usage: "Destination host for scp"},
			&cli.StringFlag{Name: "marker-file", Usage: "File to create once the publish step is done"},
			&cli.BoolFlag{Name: "disable", Usage: "Skip the copy; the marker file is still written"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if err := wantArgs(cmd, 2); err != nil {
				return err
			}
			t, err := tools(cmd)
			if err != nil {
				return err
			}
			return t.Publish(ctx, cmd.Args().Get(0), cmd.Args().Get(1), rastertool.PublishOptions{
				Host:       cmd.String("host"),
				MarkerFile: cmd.String("marker-file"),
				Disable:    cmd.Bool("disable"),
			})
		},
	}
}

func mcpCommand() *cli.Command {
	return &cli.Command{
		Name:  "mcp",
		Usage: "Serve read-only pipeline tools over MCP (stdio)",
		Flags: targetFlags(),
		Action: func(_ context.Context, cmd *cli.Command) error {
			rt, err := open(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()
			return rt.ServeMCP(target(cmd), version)
		},
	}
}
