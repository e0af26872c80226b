package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teranos/gridpulse/version"
)

// VersionCmd prints build information
var VersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show gridpulse version information",
	Long: `Display version, commit, build time and platform of the gridpulse binary.
--short prints only the version tag, handy for update scripts on the host.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		info := version.Get()
		out := cmd.OutOrStdout()

		switch {
		case versionJSON:
			data, err := json.MarshalIndent(info, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to encode version info: %w", err)
			}
			fmt.Fprintln(out, string(data))
		case versionShort:
			fmt.Fprintln(out, info.Version)
		default:
			fmt.Fprintln(out, info.String())
			fmt.Fprintf(out, "Platform: %s\nGo: %s\n", info.Platform, info.GoVersion)
		}
		return nil
	},
}

var (
	versionJSON  bool
	versionShort bool
)

func init() {
	VersionCmd.Flags().BoolVarP(&versionJSON, "json", "j", false, "Output version info as JSON")
	VersionCmd.Flags().BoolVarP(&versionShort, "short", "s", false, "Print only the version tag")
}
