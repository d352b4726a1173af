// Package condense renders a window's log events into a bounded-size text
// document for the inference prompt.
package condense

import (
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kiranshivaraju/logsweep/pkg/models"
)

// DefaultMaxChars is the default budget for the condensed text.
const DefaultMaxChars = 32000

// TimestampFormat is used for every instant in the condensed text.
const TimestampFormat = "2006-01-02T15:04:05.000Z07:00"

// Result is the condensed form of a set of log events.
type Result struct {
	Text      string
	Total     int
	Rendered  int
	Truncated bool
	Earliest  time.Time
	Latest    time.Time
	Span      time.Duration
}

// Condense renders events within maxChars characters. An empty input uses
// the current time for the period.
func Condense(events []models.LogEvent, maxChars int) Result {
	return CondenseAt(events, maxChars, time.Now())
}

// CondenseAt is Condense with an explicit clock for the empty-input period.
//
// The statistics header is always emitted in full and counts against the
// budget. Lines are selected newest first until the next line would exceed
// the budget, then written oldest first. When lines were dropped a notice
// with the authoritative shown/total counts follows the header.
func CondenseAt(events []models.LogEvent, maxChars int, now time.Time) Result {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}

	sorted := make([]models.LogEvent, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	res := Result{Total: len(sorted)}
	if len(sorted) > 0 {
		res.Earliest = sorted[0].Timestamp.UTC()
		res.Latest = sorted[len(sorted)-1].Timestamp.UTC()
		res.Span = res.Latest.Sub(res.Earliest)
	} else {
		res.Earliest = now.UTC()
		res.Latest = res.Earliest
	}

	header := fmt.Sprintf(
		"Log Analysis Statistics:\nTotal Logs: %d\nTime Span: %s\nPeriod: %s to %s\n-------------------\n\n",
		res.Total, res.Span, res.Earliest.Format(TimestampFormat), res.Latest.Format(TimestampFormat),
	)
	used := utf8.RuneCountInString(header)

	// Newest first.
	lines := make([]string, 0, len(sorted))
	for i := len(sorted) - 1; i >= 0; i-- {
		line := renderLine(sorted[i])
		n := utf8.RuneCountInString(line)
		if used+n > maxChars {
			break
		}
		lines = append(lines, line)
		used += n
	}
	res.Rendered = len(lines)
	res.Truncated = res.Rendered < res.Total

	var b strings.Builder
	b.Grow(len(header) + used)
	b.WriteString(header)
	if res.Truncated {
		b.WriteString(Notice(res.Rendered, res.Total))
	}
	for i := len(lines) - 1; i >= 0; i-- {
		b.WriteString(lines[i])
	}
	res.Text = b.String()
	return res
}

// Notice is the line appended when not every event fit the budget.
func Notice(shown, total int) string {
	return fmt.Sprintf("\n[Note: Showing %d of %d logs due to size limits]\n", shown, total)
}

func renderLine(e models.LogEvent) string {
	return e.Timestamp.UTC().Format(TimestampFormat) + " - " + e.Message + "\n"
}
