package cmd

import (
	"fmt"

	"github.com/justapithecus/lode/lode"
	"github.com/urfave/cli/v2"

	"github.com/justapithecus/mk0link/archive"
	"github.com/justapithecus/mk0link/cli/render"
	"github.com/justapithecus/mk0link/s3x"
)

// ArchiveCommand returns the archive command group.
func ArchiveCommand() *cli.Command {
	return &cli.Command{
		Name:  "archive",
		Usage: "Read archived device log lines",
		Subcommands: []*cli.Command{
			{
				Name:  "query",
				Usage: "List archived lines, filtered by partition",
				Flags: append(ReadOnlyFlags(),
					ConfigFlag(),
					&cli.StringFlag{
						Name:  "backend",
						Usage: "Storage backend: fs, s3",
					},
					&cli.StringFlag{
						Name:  "path",
						Usage: "Archive root directory, or bucket/prefix for s3",
					},
					&cli.StringFlag{
						Name:  "dataset",
						Usage: "Dataset ID",
					},
					&cli.StringFlag{
						Name:  "region",
						Usage: "AWS region for s3",
					},
					&cli.StringFlag{
						Name:  "endpoint",
						Usage: "Custom S3 endpoint",
					},
					&cli.BoolFlag{
						Name:  "s3-path-style",
						Usage: "Force path-style S3 addressing",
					},
					&cli.StringFlag{
						Name:  "device",
						Usage: "Only lines from this device",
					},
					&cli.StringFlag{
						Name:  "day",
						Usage: "Only lines from this UTC day (YYYY-MM-DD)",
					},
					&cli.StringFlag{
						Name:  "level",
						Usage: "Only lines at this device level (e.g. ERROR)",
					},
				),
				Action: archiveQueryAction,
			},
		},
	}
}

func archiveQueryAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	backend := stringSetting(c, "backend", cfg.Archive.Backend)
	path := stringSetting(c, "path", cfg.Archive.Path)
	if path == "" {
		return cli.Exit("--path is required (or archive.path in config)", exitFailure)
	}

	var factory lode.StoreFactory
	switch backend {
	case "fs", "":
		factory = lode.NewFSFactory(path)
	case "s3":
		bucket, prefix := archive.ParseS3Path(path)
		factory, err = archive.NewS3Factory(c.Context, archive.S3Config{
			Bucket: bucket,
			Prefix: prefix,
			Options: s3x.Options{
				Region:       stringSetting(c, "region", cfg.Archive.Region),
				Endpoint:     stringSetting(c, "endpoint", cfg.Archive.Endpoint),
				UsePathStyle: c.Bool("s3-path-style") || cfg.Archive.S3PathStyle,
			},
		})
		if err != nil {
			return cli.Exit(err.Error(), exitFailure)
		}
	default:
		return cli.Exit(fmt.Sprintf("unknown archive backend: %s (must be fs or s3)", backend), exitFailure)
	}

	reader, err := archive.NewReader(stringSetting(c, "dataset", cfg.Archive.Dataset), factory)
	if err != nil {
		return cli.Exit(err.Error(), exitFailure)
	}
	records, err := reader.Query(c.Context, archive.Filter{
		Device: c.String("device"),
		Day:    c.String("day"),
		Level:  c.String("level"),
	})
	if err != nil {
		return cli.Exit(err.Error(), exitFailure)
	}
	return r.Render(render.NewArchivedLines(records))
}
