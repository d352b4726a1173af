package cli

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/kiranshivaraju/logsweep/internal/processor"
)

var processSource string

var processCmd = &cobra.Command{
	Use:   "process <run-id> <window-id>...",
	Short: "Process one or more windows of a run",
	Long: `Process fetches, condenses and analyzes each named window in order.
Completed windows are reprocessed and their result overwritten. A failed
window is reported and the remaining windows are still attempted.`,
	Args: cobra.MinimumNArgs(2),
	RunE: runProcess,
}

func init() {
	processCmd.Flags().StringVar(&processSource, "source", "", "override the run's log source")
}

func runProcess(cmd *cobra.Command, args []string) error {
	runID, windowIDs, err := parseProcessArgs(args)
	if err != nil {
		return err
	}

	a, err := newApp(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer a.close()

	out := cmd.OutOrStdout()
	var errs []error
	for _, id := range windowIDs {
		sum, err := a.processor.Process(cmd.Context(), processor.Request{
			RunID:     runID,
			WindowID:  id,
			LogSource: processSource,
		})
		if err != nil {
			fmt.Fprintf(out, "window %d: error: %v\n", id, err)
			errs = append(errs, fmt.Errorf("window %d: %w", id, err))
			continue
		}
		fmt.Fprintf(out, "window %d: %s logs=%d analyzed=%d sections=%d truncated=%t fallback=%t\n",
			id, sum.Status, sum.LogCount, sum.AnalyzedLogCount, sum.SectionCount, sum.Truncated, sum.Fallback)
	}
	return errors.Join(errs...)
}

func parseProcessArgs(args []string) (uuid.UUID, []int, error) {
	runID, err := uuid.Parse(args[0])
	if err != nil {
		return uuid.Nil, nil, fmt.Errorf("invalid run id %q: %w", args[0], err)
	}
	ids := make([]int, 0, len(args)-1)
	for _, s := range args[1:] {
		id, err := strconv.Atoi(s)
		if err != nil || id < 0 {
			return uuid.Nil, nil, fmt.Errorf("invalid window id %q", s)
		}
		ids = append(ids, id)
	}
	return runID, ids, nil
}
