package cmd

import (
	"fmt"
	"os"
	"runtime"
	"text/tabwriter"

	"github.com/menace-cli/menace/internal/platform"
	"github.com/spf13/cobra"
)

var platformCmd = &cobra.Command{
	Use:   "platform",
	Short: "Show the agent binary for this machine",
	Long: `Show which prebuilt agent binary menace runs on this machine and where
it is expected. With --all, list every supported platform.`,
	Args: cobra.NoArgs,
	RunE: runPlatform,
}

var platformAll bool

func init() {
	platformCmd.Flags().BoolVar(&platformAll, "all", false, "list all supported platforms")
	rootCmd.AddCommand(platformCmd)
}

func runPlatform(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	if platformAll {
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "OS\tARCH\tBINARY")
		for _, t := range platform.Targets() {
			line := fmt.Sprintf("%s\t%s\t%s", t.OS, t.Arch, t.Binary)
			if t.OS == runtime.GOOS && t.Arch == runtime.GOARCH {
				line += "\t" + currentStyle.Render("(this machine)")
			}
			fmt.Fprintln(w, line)
		}
		return w.Flush()
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	binDir, err := cfg.Launcher.ResolveBinDir()
	if err != nil {
		return fmt.Errorf("failed to locate launcher directory: %w", err)
	}

	path, err := platform.BinaryPath(binDir, runtime.GOOS, runtime.GOARCH)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s/%s: %s\n", runtime.GOOS, runtime.GOARCH, path)
	if _, statErr := os.Stat(path); statErr != nil {
		fmt.Fprintln(out, mutedStyle.Render("(binary not found at this location)"))
	}
	return nil
}
