package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/podev-dev/podev/internal/bundler"
	"github.com/podev-dev/podev/internal/config"
	"github.com/podev-dev/podev/internal/importer"
	"github.com/podev-dev/podev/internal/resolve"
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Produce production client and SSR bundles",
	Long: `Run a one-shot production build: the client bundle from the logical
entry points that exist on disk, and one SSR-importable bundle per component
under client/. No watch, no reload endpoint.`,
	RunE: runBuild,
}

func init() {
	rootCmd.AddCommand(buildCmd)

	buildCmd.Flags().Bool("minify", true, "Minify production output")
	viper.BindPFlag("build.minify", buildCmd.Flags().Lookup("minify"))
}

func runBuild(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	entries := resolve.Existing(cfg.App.Root)
	if len(entries) == 0 {
		return fmt.Errorf("no entry points found under %s (looked for content/fallback/scripts/lazy)", cfg.App.Root)
	}

	outputs, err := bundler.BuildClient(entries, cfg.ClientDir(), cfg.Build.Minify)
	if err != nil {
		return fmt.Errorf("client build: %w", err)
	}
	fmt.Printf("Client build: %d entries, %d output files in %s\n", len(entries), len(outputs), cfg.ClientDir())

	components, err := componentSources(cfg.App.Root)
	if err != nil {
		return err
	}

	ssr := bundler.NewSSRBundler(cfg.Build.External, cfg.Build.Minify)
	for _, src := range components {
		name, err := importer.ElementName(src)
		if err != nil {
			fmt.Fprintf(os.Stderr, "skipping %s: %v\n", src, err)
			continue
		}
		out := filepath.Join(cfg.ServerDir(), name+".js")
		if err := ssr.BundleElement(context.Background(), src, out); err != nil {
			return fmt.Errorf("SSR bundle for %s: %w", src, err)
		}
		fmt.Printf("SSR bundle: %s\n", out)
	}

	return nil
}

// componentSources lists the SSR-bundleable component sources: the content
// and fallback entries plus everything directly under client/.
func componentSources(root string) ([]string, error) {
	seen := make(map[string]struct{})
	var sources []string

	for _, name := range []string{"content", "fallback"} {
		if entry := resolve.Resolve(root, name); entry.Exists {
			seen[entry.Path] = struct{}{}
			sources = append(sources, entry.Path)
		}
	}

	for _, ext := range []string{"js", "ts"} {
		matches, err := filepath.Glob(filepath.Join(root, "client", "*."+ext))
		if err != nil {
			return nil, err
		}
		for _, m := range matches {
			if _, ok := seen[m]; !ok {
				seen[m] = struct{}{}
				sources = append(sources, m)
			}
		}
	}

	return sources, nil
}
