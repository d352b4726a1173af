package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kiranshivaraju/logsweep/internal/run"
)

var planInput run.PlanInput

var planCmd = &cobra.Command{
	Use:     "plan",
	Short:   "Create a run and its pending windows",
	Example: `  logsweep plan --source payments-api --days 2 --window-hours 4`,
	RunE:    runPlan,
}

func init() {
	planCmd.Flags().StringVar(&planInput.LogSource, "source", "", "log source (service name) to analyze")
	planCmd.Flags().IntVar(&planInput.DaysToAnalyze, "days", run.DefaultDaysToAnalyze, "days of history to analyze, ending now")
	planCmd.Flags().IntVar(&planInput.WindowSizeHours, "window-hours", run.DefaultWindowSizeHours, "hours per window")
	_ = planCmd.MarkFlagRequired("source")
}

func runPlan(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer a.close()

	plan, err := a.runs.Start(cmd.Context(), planInput)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Run %s\n", plan.Run.ID)
	fmt.Fprintf(out, "  source:  %s\n", plan.Run.LogSource)
	fmt.Fprintf(out, "  span:    %s .. %s\n", plan.Run.StartTime.Format(timeLayout), plan.Run.EndTime.Format(timeLayout))
	fmt.Fprintf(out, "  windows: %d x %s\n", len(plan.Windows), plan.Run.WindowSize)
	return nil
}
