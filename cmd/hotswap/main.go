// hotswap CLI - authoring, inspection and watching of reloadable type images
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tliron/commonlog"

	"github.com/chazu/hotswap/manifest"

	_ "github.com/tliron/commonlog/simple"
)

var (
	rootOpts = struct {
		verbosity int
		configDir string
	}{}

	rootCmd = &cobra.Command{
		Use:   "hotswap",
		Short: "Live-reload type image tooling",
		Long: `hotswap authors, inspects and diffs binary type images, and watches
directories of images, publishing every change as a new type version.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			commonlog.Configure(rootOpts.verbosity, nil)
		},
	}
)

func init() {
	rootCmd.PersistentFlags().CountVarP(&rootOpts.verbosity, "verbose", "v", "Increase log verbosity (repeatable)")
	rootCmd.PersistentFlags().StringVar(&rootOpts.configDir, "config", ".", "Directory to search upwards for "+manifest.FileName)

	rootCmd.AddCommand(encodeCmd, inspectCmd, diffCmd, watchCmd)
}

// loadManifest finds the configuration, falling back to defaults.
func loadManifest() (*manifest.Manifest, error) {
	m, err := manifest.FindAndLoad(rootOpts.configDir)
	if err != nil {
		return nil, err
	}
	if m == nil {
		if m, err = manifest.Parse(nil); err != nil {
			return nil, err
		}
		m.Dir = rootOpts.configDir
	}
	return m, nil
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
