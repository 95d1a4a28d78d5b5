package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/Hilo-Hilo/Memories-AI-Hackathon-sub002/internal/config"
	"github.com/Hilo-Hilo/Memories-AI-Hackathon-sub002/internal/storage"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var historyDate string

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show persisted distraction intervals for a day",
	Long:  `List the distraction intervals persisted for one UTC day together with the time spent per distraction type.`,
	Example: `  attentiond history
  attentiond -c config.yaml history --date 2024-03-18`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().StringVar(&historyDate, "date", "", "Day to show (YYYY-MM-DD, UTC) - defaults to today")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	date, err := parseHistoryDate(historyDate, time.Now())
	if err != nil {
		return err
	}

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	store, err := openStorage(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	intervals, err := store.Intervals().ListIntervals(ctx, date)
	if err != nil {
		return fmt.Errorf("failed to list intervals: %w", err)
	}
	summary, err := store.Intervals().GetDailySummary(ctx, date)
	if err != nil {
		return fmt.Errorf("failed to load daily summary: %w", err)
	}

	printHistory(cmd.OutOrStdout(), date, intervals, summary)
	return nil
}

// parseHistoryDate validates the --date flag; empty means today in UTC
func parseHistoryDate(s string, now time.Time) (string, error) {
	if s == "" {
		return now.UTC().Format(storage.DateFormat), nil
	}
	t, err := time.Parse(storage.DateFormat, s)
	if err != nil {
		return "", fmt.Errorf("invalid date %q: must be YYYY-MM-DD", s)
	}
	return t.Format(storage.DateFormat), nil
}

// printHistory prints the intervals and summary with colors
func printHistory(w io.Writer, date string, intervals []storage.Interval, summary *storage.DailySummary) {
	cyan := color.New(color.FgCyan, color.Bold)
	yellow := color.New(color.FgYellow)
	red := color.New(color.FgRed, color.Bold)

	rule := strings.Repeat("━", 50)

	_, _ = fmt.Fprintln(w)
	_, _ = cyan.Fprintln(w, rule)
	_, _ = cyan.Fprintf(w, "DISTRACTION HISTORY %s\n", date)
	_, _ = cyan.Fprintln(w, rule)
	_, _ = fmt.Fprintln(w)

	if len(intervals) == 0 {
		_, _ = fmt.Fprintln(w, "No distraction intervals recorded.")
		_, _ = fmt.Fprintln(w)
		return
	}

	for _, iv := range intervals {
		_, _ = fmt.Fprintf(w, "%s - %s  ",
			iv.StartedAt.Local().Format("15:04:05"), iv.EndedAt.Local().Format("15:04:05"))
		c := yellow
		if iv.State == "Absent" {
			c = red
		}
		_, _ = c.Fprintf(w, "%-10s", iv.Type)
		_, _ = fmt.Fprintf(w, " %8s  label=%s confidence=%.0f%% (%s)\n",
			iv.Duration().Round(time.Second), iv.Label, iv.Confidence*100, iv.Reason)
	}

	_, _ = fmt.Fprintln(w)
	_, _ = cyan.Fprintln(w, "Totals:")
	for _, typ := range summary.Types() {
		_, _ = fmt.Fprintf(w, "  %-10s %s\n", typ, time.Duration(summary.ByType[typ])*time.Second)
	}
	_, _ = fmt.Fprintf(w, "  %-10s %s in %d interval(s)\n", "all",
		time.Duration(summary.TotalSeconds)*time.Second, summary.Count)

	_, _ = fmt.Fprintln(w)
	_, _ = cyan.Fprintln(w, rule)
	_, _ = fmt.Fprintln(w)
}
