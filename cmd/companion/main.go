// Command companion is a conversational health logger and coach.
//
// It tracks symptom episodes from free-text messages, answers questions
// about past episodes, and offers general self-care guidance. It runs as
// an HTTP/WebSocket server or from the terminal. Configuration is loaded
// from a YAML file discovered automatically (see
// [config.DefaultSearchPaths]), then overridden by COMPANION_* environment
// variables and flags.
//
// Usage:
//
//	companion serve                    Start the API server
//	companion ask <message>            Send one message
//	companion chat                     Interactive session on stdin
//	companion episodes list            List recorded episodes
//	companion history [YYYY-MM-DD]     Daily summary
//	companion import <dir>             Load legacy JSON data
//	companion init [dir]               Write an example config
//	companion version                  Print build information
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nanaoosaki/health-companion/internal/config"
	"github.com/nanaoosaki/health-companion/internal/llm"

	_ "github.com/mattn/go-sqlite3" // SQLite driver for database/sql
)

// main only gathers OS state and hands it to run, so that the whole
// command can be driven from tests.
func main() {
	if err := run(context.Background(), os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point. A .env file in the working directory is
// loaded into the environment first; a missing file is not an error.
func run(ctx context.Context, stdout, stderr io.Writer, args []string) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	c := newCLI(os.Stdin, stdout, stderr)
	return c.execute(ctx, args)
}

// cli holds the per-invocation state shared by every subcommand. Each
// invocation gets its own viper instance so tests can run side by side.
type cli struct {
	stdin          io.Reader
	stdout, stderr io.Writer
	v              *viper.Viper

	// newClient builds the LLM backend; tests substitute a fake.
	newClient func(cfg *config.Config, logger *slog.Logger) (llm.Client, error)
}

func newCLI(stdin io.Reader, stdout, stderr io.Writer) *cli {
	v := viper.New()
	v.SetEnvPrefix("COMPANION")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	return &cli{
		stdin:     stdin,
		stdout:    stdout,
		stderr:    stderr,
		v:         v,
		newClient: buildLLMClient,
	}
}

func (c *cli) execute(ctx context.Context, args []string) error {
	root := c.rootCommand()
	root.SetArgs(args)
	root.SetOut(c.stdout)
	root.SetErr(c.stderr)
	return root.ExecuteContext(ctx)
}

func (c *cli) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "companion",
		Short:         "Conversational health logger and coach",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.String("config", "", "path to config file (default: auto-discover)")
	pf.Bool("json", false, "output JSON")
	pf.String("data-dir", "", "directory holding companion.db")
	pf.String("log-level", "", "trace, debug, info, warn or error")
	_ = c.v.BindPFlag("config", pf.Lookup("config"))
	_ = c.v.BindPFlag("json", pf.Lookup("json"))
	_ = c.v.BindPFlag("data_dir", pf.Lookup("data-dir"))
	_ = c.v.BindPFlag("log_level", pf.Lookup("log-level"))

	root.AddCommand(
		c.serveCommand(),
		c.askCommand(),
		c.chatCommand(),
		c.episodesCommand(),
		c.historyCommand(),
		c.importCommand(),
		c.initCommand(),
		c.versionCommand(),
	)
	return root
}

// loadConfig locates and parses the config file, then applies
// environment and flag overrides. With no file and no explicit --config,
// the built-in defaults are used.
func (c *cli) loadConfig() (*config.Config, string, error) {
	explicit := c.v.GetString("config")

	cfg := config.Default()
	path, err := config.FindConfig(explicit)
	switch {
	case err == nil:
		if cfg, err = config.Load(path); err != nil {
			return nil, path, fmt.Errorf("load config %s: %w", path, err)
		}
	case explicit != "":
		return nil, "", err
	default:
		path = ""
	}

	c.applyOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, path, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, path, nil
}

// applyOverrides copies values set through COMPANION_* variables or
// flags onto cfg. Keys mirror the YAML layout, so COMPANION_LLM_API_KEY
// sets llm.api_key.
func (c *cli) applyOverrides(cfg *config.Config) {
	str := func(key string, dst *string) {
		if c.v.IsSet(key) {
			if s := c.v.GetString(key); s != "" {
				*dst = s
			}
		}
	}
	num := func(key string, dst *int) {
		if c.v.IsSet(key) {
			*dst = c.v.GetInt(key)
		}
	}

	str("data_dir", &cfg.DataDir)
	str("log_level", &cfg.LogLevel)
	str("log_file", &cfg.LogFile)
	str("listen.address", &cfg.Listen.Address)
	num("listen.port", &cfg.Listen.Port)
	str("llm.provider", &cfg.LLM.Provider)
	str("llm.model", &cfg.LLM.Model)
	str("llm.router_model", &cfg.LLM.RouterModel)
	str("llm.router_provider", &cfg.LLM.RouterProvider)
	str("llm.base_url", &cfg.LLM.BaseURL)
	str("llm.api_key", &cfg.LLM.APIKey)
	num("episodes.linking_window_hours", &cfg.Episodes.LinkingWindowHours)
	num("episodes.candidate_window_hours", &cfg.Episodes.CandidateWindowHours)
	num("episodes.max_duration_hours", &cfg.Episodes.MaxDurationHours)
	num("episodes.close_interval_minutes", &cfg.Episodes.CloseIntervalMinutes)
	num("sessions.max", &cfg.Sessions.Max)
	num("sessions.ttl_minutes", &cfg.Sessions.TTLMinutes)
}

func (c *cli) jsonOutput() bool {
	return c.v.GetBool("json")
}

func (c *cli) printJSON(v any) error {
	enc := json.NewEncoder(c.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
