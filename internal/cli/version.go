package cli

import (
	"encoding/json"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"

	"github.com/datenknoten/restic-orchestrator/internal/config"
	"github.com/datenknoten/restic-orchestrator/internal/lifecycle"
)

// build is filled from main's ldflags. Builds without them (go install) fall
// back to the module info embedded by the toolchain.
var build = struct {
	version, commit, date string
}{"dev", "none", "unknown"}

var versionJSON bool

// VersionInfo is the output of the version command.
type VersionInfo struct {
	Version      string `json:"version"`
	Commit       string `json:"commit"`
	Built        string `json:"built"`
	Go           string `json:"go"`
	Platform     string `json:"platform"`
	ResticBinary string `json:"restic_binary"`
	PasswordFile string `json:"password_file"`
	SchemaDraft  string `json:"schema_draft"`
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version and the remote defaults",
	Long: `Print the restic-orchestrator version together with the defaults used
on the backup hosts: the restic binary, the temporary password file and the
JSON Schema dialect of the config schema.

Examples:
  restic-orchestrator version
  restic-orchestrator version --json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		info := currentVersion()
		if versionJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(info)
		}

		cmd.Printf("restic-orchestrator %s (%s, built %s)\n", info.Version, info.Commit, info.Built)
		cmd.Printf("%s %s\n", info.Go, info.Platform)
		cmd.Printf("remote restic:  %s\n", info.ResticBinary)
		cmd.Printf("password file:  %s\n", info.PasswordFile)
		cmd.Printf("config schema:  %s\n", info.SchemaDraft)
		return nil
	},
}

func init() {
	versionCmd.Flags().BoolVar(&versionJSON, "json", false, "output in JSON format")
	rootCmd.AddCommand(versionCmd)
}

func currentVersion() VersionInfo {
	info := VersionInfo{
		Version:      build.version,
		Commit:       build.commit,
		Built:        build.date,
		Go:           runtime.Version(),
		Platform:     runtime.GOOS + "/" + runtime.GOARCH,
		ResticBinary: lifecycle.DefaultResticBinary,
		PasswordFile: lifecycle.DefaultPasswordFile,
		SchemaDraft:  config.SchemaDraft,
	}
	if build.version == "dev" {
		if bi, ok := debug.ReadBuildInfo(); ok {
			fromBuildInfo(&info, bi)
		}
	}
	info.Version = formatVersion(info.Version)
	return info
}

// fromBuildInfo fills version fields from the toolchain's build metadata.
func fromBuildInfo(info *VersionInfo, bi *debug.BuildInfo) {
	if v := bi.Main.Version; v != "" && v != "(devel)" {
		info.Version = v
	}
	dirty := false
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			info.Commit = s.Value
			if len(info.Commit) > 12 {
				info.Commit = info.Commit[:12]
			}
		case "vcs.time":
			info.Built = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if dirty {
		info.Commit += "-dirty"
	}
}

// formatVersion ensures version has a 'v' prefix for display
func formatVersion(v string) string {
	if v == "" || v == "dev" {
		return v
	}
	if v[0] != 'v' {
		return "v" + v
	}
	return v
}

// SetVersionInfo sets the version information (called from main).
func SetVersionInfo(version, commit, date string) {
	build.version = version
	build.commit = commit
	build.date = date
}
