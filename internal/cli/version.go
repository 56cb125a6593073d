package cli

import (
	"fmt"
	"io"
	"runtime"

	"github.com/spf13/cobra"
)

// Version information (injected at build time via -ldflags)
var (
	Version   = "dev"     // Set via -ldflags "-X timelock/internal/cli.Version=x.y.z"
	GitCommit = "unknown" // Set via -ldflags "-X timelock/internal/cli.GitCommit=abc123"
	BuildDate = "unknown" // Set via -ldflags "-X timelock/internal/cli.BuildDate=2026-01-15"
)

type versionInfo struct {
	Version   string `json:"version" yaml:"version"`
	Commit    string `json:"commit" yaml:"commit"`
	BuildDate string `json:"build_date" yaml:"build_date"`
	GoVersion string `json:"go_version" yaml:"go_version"`
	OS        string `json:"os" yaml:"os"`
	Arch      string `json:"arch" yaml:"arch"`
}

func (a *app) versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info := versionInfo{
				Version:   Version,
				Commit:    GitCommit,
				BuildDate: BuildDate,
				GoVersion: runtime.Version(),
				OS:        runtime.GOOS,
				Arch:      runtime.GOARCH,
			}
			return a.printer.Print(info, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "timelock version %s\nGit commit: %s\nBuild date: %s\nGo version: %s\nOS/Arch: %s/%s\n",
					info.Version, info.Commit, info.BuildDate, info.GoVersion, info.OS, info.Arch)
				return err
			})
		},
	}
}
