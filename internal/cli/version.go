package cli

import (
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"
)

// Stamped with -ldflags "-X github.com/lazypower/recall/internal/cli.Version=...".
// Unset values fall back to the VCS info the go tool embeds.
var (
	Version   = "dev"
	Commit    = ""
	BuildDate = ""
)

type buildInfo struct {
	version, commit, date, goVersion string
}

func readBuildInfo() buildInfo {
	b := buildInfo{version: Version, commit: Commit, date: BuildDate, goVersion: runtime.Version()}
	if info, ok := debug.ReadBuildInfo(); ok {
		if b.version == "dev" && info.Main.Version != "" && info.Main.Version != "(devel)" {
			b.version = info.Main.Version
		}
		for _, s := range info.Settings {
			switch {
			case s.Key == "vcs.revision" && b.commit == "":
				b.commit = s.Value
			case s.Key == "vcs.time" && b.date == "":
				b.date = s.Value
			}
		}
	}
	if len(b.commit) > 12 {
		b.commit = b.commit[:12]
	}
	if b.commit == "" {
		b.commit = "unknown"
	}
	if b.date == "" {
		b.date = "unknown"
	}
	return b
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		b := readBuildInfo()
		fmt.Fprintf(cmd.OutOrStdout(), "recall %s (commit %s, built %s, %s)\n", b.version, b.commit, b.date, b.goVersion)
	},
}

// VersionString is the version reported by the HTTP and MCP servers.
func VersionString() string {
	b := readBuildInfo()
	return b.version + "+" + b.commit
}
