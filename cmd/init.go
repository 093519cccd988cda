package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/podev-dev/podev/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default .podev.yml configuration file",
	RunE:  runInit,
}

var initForce bool

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing .podev.yml")
}

func runInit(cmd *cobra.Command, args []string) error {
	const path = ".podev.yml"

	if _, err := os.Stat(path); err == nil && !initForce {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}

	defaults := config.Config{
		App: config.AppConfig{
			Name: "podlet",
			Port: 4000,
			Host: "localhost",
			Mode: config.ModeDevelopment,
			Base: "/",
			Root: ".",
		},
		Podlet: config.PodletConfig{
			Content:  "/",
			Fallback: "/fallback",
			Manifest: "/manifest.json",
		},
		Dev: config.DevConfig{
			RenderMode: "hydrate",
			AssetPort:  6935,
		},
		Build: config.BuildConfig{
			External: []string{"lit"},
		},
	}

	data, err := yaml.Marshal(&defaults)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return err
	}

	fmt.Printf("Wrote %s\n", path)
	return nil
}
