package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/mk0link/cli/render"
	"github.com/justapithecus/mk0link/logtable"
)

// HashResult is the output of logtable hash.
type HashResult struct {
	Hash    string `json:"hash" yaml:"hash"`
	Message string `json:"msg" yaml:"msg"`
}

// HashResults renders one row per hashed message.
type HashResults []HashResult

// TableHeader implements render.Table.
func (h HashResults) TableHeader() []string { return []string{"HASH", "MESSAGE"} }

// TableRows implements render.Table.
func (h HashResults) TableRows() [][]string {
	rows := make([][]string, len(h))
	for i, r := range h {
		rows[i] = []string{r.Hash, fmt.Sprintf("%q", r.Message)}
	}
	return rows
}

// LogTableCommand returns the logtable command group.
func LogTableCommand() *cli.Command {
	return &cli.Command{
		Name:  "logtable",
		Usage: "Build and inspect the log table artifact",
		Subcommands: []*cli.Command{
			{
				Name:      "build",
				Usage:     "Extract log messages from firmware sources",
				ArgsUsage: "<source files...>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "output",
						Aliases:  []string{"o"},
						Usage:    "Artifact to write",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "latest",
						Usage: "Previous artifact to extend",
					},
					&cli.StringSliceFlag{
						Name:  "macro",
						Usage: "Log macro name to scan for (repeatable)",
					},
					&cli.StringFlag{
						Name:  "source-version",
						Usage: "Version recorded as latest_version",
						Value: logtable.DefaultSourceVersion,
					},
					&cli.BoolFlag{
						Name:  "strict",
						Usage: "Fail when two messages share a hash",
					},
				},
				Action: buildAction,
			},
			{
				Name:      "hash",
				Usage:     "Print the hash of log messages",
				ArgsUsage: "<message...>",
				Flags:     ReadOnlyFlags(),
				Action:    hashAction,
			},
			{
				Name:   "show",
				Usage:  "List the entries of a log table",
				Flags:  append(ReadOnlyFlags(), ConfigFlag(), logTableFlag()),
				Action: showAction,
			},
		},
	}
}

func logTableFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "log-table",
		Usage: "Path to the log table artifact",
	}
}

func buildAction(c *cli.Context) error {
	result, err := logtable.Build(logtable.BuildOptions{
		Output:        c.String("output"),
		Latest:        c.String("latest"),
		Macros:        c.StringSlice("macro"),
		SourceFiles:   c.Args().Slice(),
		SourceVersion: c.String("source-version"),
		Stdout:        c.App.Writer,
	})
	if err != nil {
		return cli.Exit(err.Error(), exitFailure)
	}
	if c.Bool("strict") && len(result.Collisions) > 0 {
		return cli.Exit(fmt.Sprintf("%d hash collision(s)", len(result.Collisions)), exitFailure)
	}
	return nil
}

func hashAction(c *cli.Context) error {
	if c.NArg() == 0 {
		return cli.Exit("usage: mk0link logtable hash <message...>", exitFailure)
	}
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	out := make(HashResults, 0, c.NArg())
	for _, msg := range c.Args().Slice() {
		out = append(out, HashResult{Hash: logtable.Key(logtable.FNV1a64(msg)), Message: msg})
	}
	return r.Render(out)
}

func showAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	src, _, err := newTableSource(c.Context, c, cfg)
	if err != nil {
		return cli.Exit(err.Error(), exitFailure)
	}
	data, err := src.Fetch(c.Context)
	if err != nil {
		return cli.Exit(err.Error(), exitFailure)
	}
	table, err := logtable.Parse(data)
	if err != nil {
		return cli.Exit(fmt.Sprintf("%s: %v", src.String(), err), exitFailure)
	}
	return r.Render(render.NewLogTableEntries(table.Rows()))
}
