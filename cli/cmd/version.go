package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/justapithecus/mk0link/cli/render"
	"github.com/justapithecus/mk0link/types"
)

// VersionResponse is the response for the version command.
type VersionResponse struct {
	Version     string `json:"version" yaml:"version"`
	WireVersion string `json:"wire_version" yaml:"wire_version"`
	Commit      string `json:"commit" yaml:"commit"`
}

// TableHeader implements render.Table.
func (v VersionResponse) TableHeader() []string {
	return []string{"VERSION", "WIRE", "COMMIT"}
}

// TableRows implements render.Table.
func (v VersionResponse) TableRows() [][]string {
	return [][]string{{v.Version, v.WireVersion, v.Commit}}
}

// VersionCommand returns the version command. It never touches the device.
func VersionCommand(commit string) *cli.Command {
	return &cli.Command{
		Name:   "version",
		Usage:  "Show version information",
		Flags:  ReadOnlyFlags(),
		Action: versionAction(commit),
	}
}

func versionAction(commit string) cli.ActionFunc {
	return func(c *cli.Context) error {
		r, err := render.NewRenderer(c)
		if err != nil {
			return err
		}
		return r.Render(VersionResponse{
			Version:     types.Version,
			WireVersion: types.WireVersion,
			Commit:      commit,
		})
	}
}
