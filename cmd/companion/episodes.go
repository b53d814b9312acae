package main

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/nanaoosaki/health-companion/internal/episode"
	"github.com/nanaoosaki/health-companion/internal/healthstore"
)

func (c *cli) episodesCommand() *cobra.Command {
	cmd := &cobra.Command{Use: "episodes", Short: "Inspect and close symptom episodes"}
	cmd.AddCommand(
		c.episodesListCommand(),
		c.episodesShowCommand(),
		c.episodesCloseCommand(),
		c.episodesCloseStaleCommand(),
	)
	return cmd
}

// withStore runs fn against the health store without building the LLM
// stack.
func (c *cli) withStore(fn func(e *env, store *healthstore.Store) error) error {
	e, err := c.environment()
	if err != nil {
		return err
	}
	defer e.close()
	store, err := e.openStore()
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(e, store)
}

func (c *cli) episodesListCommand() *cobra.Command {
	var (
		status    string
		condition string
		limit     int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List episodes, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := healthstore.EpisodeFilter{Status: episode.Status(status), Limit: limit}
			switch f.Status {
			case "", episode.StatusOpen, episode.StatusClosed:
			default:
				return fmt.Errorf("--status must be open or closed, got %q", status)
			}
			if condition != "" {
				f.Conditions = []string{episode.NormalizeCondition(condition)}
			}

			return c.withStore(func(_ *env, store *healthstore.Store) error {
				episodes := store.ListEpisodes(cmd.Context(), f)
				if c.jsonOutput() {
					if episodes == nil {
						episodes = []episode.Episode{}
					}
					return c.printJSON(episodes)
				}
				if len(episodes) == 0 {
					fmt.Fprintln(c.stdout, "No episodes recorded.")
					return nil
				}

				tw := table.NewWriter()
				tw.SetOutputMirror(c.stdout)
				tw.AppendHeader(table.Row{"ID", "Condition", "Started", "Status", "Severity", "Peak", "Last update"})
				for _, ep := range episodes {
					tw.AppendRow(table.Row{
						ep.ID, ep.Condition, formatTime(ep.StartedAt), ep.Status,
						severity(ep.CurrentSeverity), severity(ep.PeakSeverity), formatTime(ep.LastUpdatedAt),
					})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "open or closed")
	cmd.Flags().StringVar(&condition, "condition", "", "condition name")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum episodes to list")
	return cmd
}

func (c *cli) episodesShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <episode-id>",
		Short: "Show one episode with its notes and interventions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withStore(func(_ *env, store *healthstore.Store) error {
				ep, err := store.GetEpisode(cmd.Context(), args[0])
				if errors.Is(err, healthstore.ErrNotFound) {
					return fmt.Errorf("no episode %s", args[0])
				}
				if err != nil {
					return err
				}
				if c.jsonOutput() {
					return c.printJSON(ep)
				}

				tw := table.NewWriter()
				tw.SetOutputMirror(c.stdout)
				tw.AppendRows([]table.Row{
					{"ID", ep.ID},
					{"Condition", ep.Condition},
					{"Status", ep.Status},
					{"Started", formatTime(ep.StartedAt)},
					{"Severity", severity(ep.CurrentSeverity)},
					{"Peak", severity(ep.PeakSeverity)},
					{"Last update", formatTime(ep.LastUpdatedAt)},
				})
				if ep.EndedAt != nil {
					tw.AppendRow(table.Row{"Ended", formatTime(*ep.EndedAt)})
				}
				tw.Render()

				if len(ep.Notes) > 0 {
					notes := table.NewWriter()
					notes.SetOutputMirror(c.stdout)
					notes.AppendHeader(table.Row{"When", "Note"})
					for _, n := range ep.Notes {
						notes.AppendRow(table.Row{formatTime(n.At), n.Text})
					}
					notes.Render()
				}
				if len(ep.Interventions) > 0 {
					iv := table.NewWriter()
					iv.SetOutputMirror(c.stdout)
					iv.AppendHeader(table.Row{"When", "Intervention", "Dose", "Timing"})
					for _, in := range ep.Interventions {
						iv.AppendRow(table.Row{formatTime(in.Timestamp), in.Type, in.Dose, in.Timing})
					}
					iv.Render()
				}
				return nil
			})
		},
	}
}

func (c *cli) episodesCloseCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "close <episode-id>",
		Short: "Mark an open episode as closed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withStore(func(_ *env, store *healthstore.Store) error {
				if !store.CloseEpisode(cmd.Context(), args[0], time.Now()) {
					return fmt.Errorf("no open episode %s", args[0])
				}
				fmt.Fprintf(c.stdout, "Closed %s\n", args[0])
				return nil
			})
		},
	}
}

func (c *cli) episodesCloseStaleCommand() *cobra.Command {
	var maxAgeHours int
	cmd := &cobra.Command{
		Use:   "close-stale",
		Short: "Close open episodes that have not been updated recently",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withStore(func(e *env, store *healthstore.Store) error {
				maxAge := e.cfg.Episodes.MaxDuration()
				if maxAgeHours > 0 {
					maxAge = time.Duration(maxAgeHours) * time.Hour
				}
				n, err := store.CloseStale(cmd.Context(), maxAge, time.Now())
				if err != nil {
					return err
				}
				if c.jsonOutput() {
					return c.printJSON(map[string]int{"closed": n})
				}
				fmt.Fprintf(c.stdout, "Closed %d stale episode(s)\n", n)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&maxAgeHours, "max-age-hours", 0, "idle hours before closing (default: episodes.max_duration_hours)")
	return cmd
}

func (c *cli) historyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "history [YYYY-MM-DD]",
		Short: "Summarize one day (default today, UTC)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			day := time.Now().UTC()
			if len(args) == 1 {
				d, err := time.Parse(time.DateOnly, args[0])
				if err != nil {
					return fmt.Errorf("date must be YYYY-MM-DD: %w", err)
				}
				day = d
			}

			return c.withStore(func(_ *env, store *healthstore.Store) error {
				h, err := store.DailyRollup(cmd.Context(), day)
				if err != nil {
					return err
				}
				if c.jsonOutput() {
					return c.printJSON(h)
				}

				avg := "-"
				if h.AvgPain != nil {
					avg = strconv.FormatFloat(*h.AvgPain, 'f', 1, 64)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(c.stdout)
				tw.AppendHeader(table.Row{"Date", "Episodes", "Avg pain", "Max pain", "Observations"})
				tw.AppendRow(table.Row{h.Date, h.Episodes, avg, severity(h.MaxPain), h.Observations})
				tw.Render()
				return nil
			})
		},
	}
}

func (c *cli) importCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "import <dir>",
		Short: "Load episodes.json, observations.json and interventions.json from a legacy data directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withStore(func(e *env, store *healthstore.Store) error {
				stats, err := store.ImportJSON(cmd.Context(), args[0])
				if err != nil {
					return fmt.Errorf("import %s: %w", args[0], err)
				}
				e.logger.Info("import complete", "dir", args[0], "episodes", stats.Episodes,
					"observations", stats.Observations, "interventions", stats.Interventions, "skipped", stats.Skipped)
				if c.jsonOutput() {
					return c.printJSON(stats)
				}

				tw := table.NewWriter()
				tw.SetOutputMirror(c.stdout)
				tw.AppendHeader(table.Row{"Episodes", "Observations", "Interventions", "Skipped"})
				tw.AppendRow(table.Row{stats.Episodes, stats.Observations, stats.Interventions, stats.Skipped})
				tw.Render()
				return nil
			})
		},
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

func severity(p *int) string {
	if p == nil {
		return "-"
	}
	return fmt.Sprintf("%d/10", *p)
}
