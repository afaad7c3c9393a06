// Package initcmder provides the init command for initializing a local .parlor
// directory in the current working directory.
package initcmder

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/parlorhq/parlor/pkg/config"
)

const (
	dirName = ".parlor"
)

const initLongDesc string = `Initialize a new .parlor/ directory in the current working directory.

Creates a local .parlor/ directory with a default config.toml. A local
directory takes precedence over the default ~/.parlor/ directory for
session storage, user records, configuration, and chat state.

This is useful for maintaining separate parlor state per project or directory.

Examples:
  parlor init`

const initShortDesc string = "Initialize a local .parlor/ directory"

func NewInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: initShortDesc,
		Long:  initLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runInit()
		},
	}

	return cmd
}

func runInit() error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting current directory: %w", err)
	}

	dir := filepath.Join(cwd, dirName)

	info, err := os.Stat(dir)
	if err == nil && info.IsDir() {
		fmt.Printf("Already initialized: %s\n", dir)
		return nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating .parlor directory: %w", err)
	}

	cfger, err := config.NewConfiger(dir)
	if err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	if err := cfger.SaveConfig(config.NewDefaultConfig()); err != nil {
		return fmt.Errorf("writing default config: %w", err)
	}

	fmt.Printf("Initialized .parlor directory: %s\n", dir)
	return nil
}
