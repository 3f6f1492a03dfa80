package cli

import (
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"
)

type versionOutput struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Go      string `json:"go"`
	OS      string `json:"os"`
	Arch    string `json:"arch"`
}

func newVersionCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show devproxy version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := versionOutput{
				Version: Version,
				Commit:  Commit,
				Go:      runtime.Version(),
				OS:      runtime.GOOS,
				Arch:    runtime.GOARCH,
			}
			if info, ok := debug.ReadBuildInfo(); ok {
				if out.Version == "dev" && info.Main.Version != "" {
					out.Version = info.Main.Version
				}
				for _, s := range info.Settings {
					if s.Key == "vcs.revision" && out.Commit == "none" {
						out.Commit = s.Value
					}
				}
			}

			w := cmd.OutOrStdout()
			if opts.jsonOutput {
				return writeJSON(w, out)
			}
			fmt.Fprintf(w, "devproxy %s (%s)\n%s %s/%s\n", out.Version, out.Commit, out.Go, out.OS, out.Arch)
			return nil
		},
	}
}
