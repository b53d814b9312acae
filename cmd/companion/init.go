package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nanaoosaki/health-companion/examples"
	"github.com/nanaoosaki/health-companion/internal/buildinfo"
)

func (c *cli) initCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "init [dir]",
		Short: "Write an example config.yaml and data directory (default: .)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			return c.runInit(dir)
		},
	}
}

// runInit prepares a working directory. Existing files are never
// overwritten.
func (c *cli) runInit(dir string) error {
	fmt.Fprintf(c.stdout, "Initializing companion workspace in %s\n", dir)

	dataDir := filepath.Join(dir, "data")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dataDir, err)
	}
	fmt.Fprintf(c.stdout, "  ✓ %s/\n", dataDir)

	// The config may carry an API key.
	configPath := filepath.Join(dir, "config.yaml")
	written, err := writeIfMissing(configPath, examples.ConfigYAML, 0o600)
	if err != nil {
		return err
	}
	if written {
		fmt.Fprintf(c.stdout, "  ✓ %s\n", configPath)
	} else {
		fmt.Fprintf(c.stdout, "  - %s (exists, left unchanged)\n", configPath)
	}

	fmt.Fprintln(c.stdout)
	fmt.Fprintln(c.stdout, "Edit config.yaml to pick your model provider, then run: companion serve")
	return nil
}

func writeIfMissing(path string, content []byte, perm os.FileMode) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	}
	if err := os.WriteFile(path, content, perm); err != nil {
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	return true, nil
}

func (c *cli) versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and build information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info := buildinfo.Current()
			if c.jsonOutput() {
				return c.printJSON(info)
			}
			fmt.Fprintln(c.stdout, buildinfo.String())
			fmt.Fprintf(c.stdout, "  %-12s %s\n", "go_version:", info.GoVersion)
			fmt.Fprintf(c.stdout, "  %-12s %s\n", "platform:", info.Platform)
			return nil
		},
	}
}
