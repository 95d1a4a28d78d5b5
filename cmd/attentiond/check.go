package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/Hilo-Hilo/Memories-AI-Hackathon-sub002/internal/config"
	"github.com/Hilo-Hilo/Memories-AI-Hackathon-sub002/internal/escalation"
	"github.com/Hilo-Hilo/Memories-AI-Hackathon-sub002/internal/taxonomy"
	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	checkType         string
	checkPreviousType string
	checkLabel        string
	checkGap          time.Duration
	checkDuration     time.Duration
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check policy decisions interactively",
	Long:  `Check what attentiond would decide for a given situation without running a session.`,
}

var checkEscalationCmd = &cobra.Command{
	Use:   "escalation [flags]",
	Short: "Check the suggested action of a consecutive distraction",
	Long:  `Evaluate the escalation policy for two distraction intervals that ended close together.`,
	Example: `  attentiond -c config.yaml check escalation --type Social --previous-type Social --gap 40s
  attentiond check escalation --type Phone --previous-type Phone --label PhoneLikely --gap 10s`,
	Args: cobra.NoArgs,
	RunE: runCheckEscalation,
}

func init() {
	checkEscalationCmd.Flags().StringVar(&checkType, "type", "", "Distraction type of the interval that just ended (required)")
	checkEscalationCmd.Flags().StringVar(&checkPreviousType, "previous-type", "", "Distraction type of the previous interval (required)")
	checkEscalationCmd.Flags().StringVar(&checkLabel, "label", "", "Deciding label of the interval (optional)")
	checkEscalationCmd.Flags().DurationVar(&checkGap, "gap", 30*time.Second, "Time between the two interval ends")
	checkEscalationCmd.Flags().DurationVar(&checkDuration, "duration", time.Minute, "Duration of the interval that just ended")
	_ = checkEscalationCmd.MarkFlagRequired("type")
	_ = checkEscalationCmd.MarkFlagRequired("previous-type")

	checkCmd.AddCommand(checkEscalationCmd)
	rootCmd.AddCommand(checkCmd)
}

func runCheckEscalation(cmd *cobra.Command, args []string) error {
	current, err := taxonomy.ParseDistractionType(checkType)
	if err != nil {
		return fmt.Errorf("invalid --type: %w", err)
	}
	previous, err := taxonomy.ParseDistractionType(checkPreviousType)
	if err != nil {
		return fmt.Errorf("invalid --previous-type: %w", err)
	}

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Create a quiet logger for check mode
	logger := zerolog.New(os.Stderr).Level(zerolog.ErrorLevel).With().Timestamp().Logger()

	engine, err := escalation.NewEngine(cfg.Escalation.PolicyDir, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize escalation policy: %w", err)
	}

	input := escalation.Input{
		Type:            string(current),
		Label:           checkLabel,
		PreviousType:    string(previous),
		GapSeconds:      checkGap.Seconds(),
		DurationSeconds: checkDuration.Seconds(),
		Evidence:        map[string]int{},
	}

	action, err := engine.Decide(context.Background(), input)
	if err != nil {
		return fmt.Errorf("failed to evaluate escalation policy: %w", err)
	}

	window := config.ParseDuration(cfg.Notifications.ConsecutiveWindow, 60*time.Second)
	printEscalationResult(cmd.OutOrStdout(), input, window, action)
	return nil
}

// printEscalationResult prints the escalation check result with colors
func printEscalationResult(w io.Writer, input escalation.Input, window time.Duration, action escalation.SuggestedAction) {
	cyan := color.New(color.FgCyan, color.Bold)
	green := color.New(color.FgGreen, color.Bold)
	yellow := color.New(color.FgYellow, color.Bold)
	red := color.New(color.FgRed, color.Bold)

	_, _ = fmt.Fprintln(w)
	_, _ = cyan.Fprintln(w, "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	_, _ = cyan.Fprintln(w, "ESCALATION POLICY CHECK")
	_, _ = cyan.Fprintln(w, "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	_, _ = fmt.Fprintln(w)

	_, _ = fmt.Fprintf(w, "Type:          %s\n", input.Type)
	_, _ = fmt.Fprintf(w, "Previous type: %s\n", input.PreviousType)
	if input.Label != "" {
		_, _ = fmt.Fprintf(w, "Label:         %s\n", input.Label)
	}
	_, _ = fmt.Fprintf(w, "Gap:           %s\n", time.Duration(input.GapSeconds*float64(time.Second)))
	_, _ = fmt.Fprintln(w)

	if input.GapSeconds > window.Seconds() {
		_, _ = yellow.Fprintf(w, "Note:          gap exceeds the consecutive window (%s), no escalation would fire\n", window)
		_, _ = fmt.Fprintln(w)
	}

	_, _ = cyan.Fprint(w, "Decision:      ")
	switch action.Action {
	case escalation.ActionNotify:
		_, _ = green.Fprintln(w, "NOTIFY")
		_, _ = fmt.Fprintln(w, "               → The user is notified only")
	case escalation.ActionCloseApp:
		_, _ = red.Fprintln(w, "CLOSE APP")
		_, _ = fmt.Fprintf(w, "               → An agent is asked to close %q\n", action.Target)
	case escalation.ActionSilencePhone:
		_, _ = red.Fprintln(w, "SILENCE PHONE")
		_, _ = fmt.Fprintln(w, "               → An agent is asked to silence the phone")
	default:
		_, _ = fmt.Fprintf(w, "%s\n", action.Action)
	}

	if action.Reason != "" {
		_, _ = fmt.Fprintf(w, "Reason:        %s\n", action.Reason)
	}

	_, _ = fmt.Fprintln(w)
	_, _ = cyan.Fprintln(w, "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	_, _ = fmt.Fprintln(w)
}
