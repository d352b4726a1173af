package cli

import (
	"fmt"
	"log/slog"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/kiranshivaraju/logsweep/pkg/models"
)

const timeLayout = time.RFC3339

var statusCmd = &cobra.Command{
	Use:   "status <run-id>",
	Short: "Show per-window status of a run",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	runID, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid run id %q: %w", args[0], err)
	}

	a, err := newApp(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer a.close()

	st, err := a.runs.Status(cmd.Context(), runID)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Run %s (%s)\n", st.Run.ID, st.Run.LogSource)
	fmt.Fprintf(out, "  pending=%d processing=%d completed=%d error=%d done=%t\n\n",
		st.Counts[models.WindowStatusPending], st.Counts[models.WindowStatusProcessing],
		st.Counts[models.WindowStatusCompleted], st.Counts[models.WindowStatusError], st.Done)

	if a.redis != nil {
		counters, err := a.cache.RunCounters(cmd.Context(), runID)
		if err != nil {
			slog.Warn("run counters unavailable", "run_id", runID, "error", err)
		} else {
			fmt.Fprintf(out, "  cache: completed=%d error=%d\n\n",
				counters[models.WindowStatusCompleted], counters[models.WindowStatusError])
		}
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "WINDOW\tSTART\tEND\tSTATUS\tERROR")
	for _, w := range st.Windows {
		msg := ""
		if w.ErrorMessage != nil {
			msg = *w.ErrorMessage
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n",
			w.ID, w.StartTime.Format(timeLayout), w.EndTime.Format(timeLayout), w.Status, msg)
	}
	return tw.Flush()
}
