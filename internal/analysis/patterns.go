// Package analysis finds recurring message patterns in a window of logs.
package analysis

import (
	"crypto/sha256"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kiranshivaraju/logsweep/pkg/models"
)

// Normalization regexes compiled once at package init.
var (
	reDatetime   = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}:\d{2}(\.\d+)?(Z|[+-]\d{2}:\d{2})?\s*`)
	reHexAddr    = regexp.MustCompile(`0x[0-9a-fA-F]+`)
	reUUID       = regexp.MustCompile(`(?i)[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`)
	reIPv4       = regexp.MustCompile(`\b\d{1,3}(\.\d{1,3}){3}(:\d+)?\b`)
	reDuration   = regexp.MustCompile(`\b\d+(\.\d+)?(ns|us|µs|ms|s|m|h)\b`)
	reBracketNum = regexp.MustCompile(`\[\d+\]`)
	reParenNum   = regexp.MustCompile(`\(\d+\)`)
	reWhitespace = regexp.MustCompile(`\s+`)
)

// DefaultPatternLimit caps the patterns recorded per window.
const DefaultPatternLimit = 20

// Patterns groups events by normalized message fingerprint and returns at
// most limit patterns sorted by (Count DESC, severity DESC, Fingerprint ASC).
// limit <= 0 returns every pattern. Returns empty slice for empty input (never nil).
func Patterns(events []models.LogEvent, limit int) []models.Pattern {
	if len(events) == 0 {
		return []models.Pattern{}
	}

	type patternState struct {
		fingerprint   string
		level         string
		count         int
		firstSeen     int64 // unix nano for comparison
		lastSeen      int64
		sampleMessage string
	}

	groups := make(map[string]*patternState)

	for _, e := range events {
		fp := Fingerprint(e.Message)
		ns := e.Timestamp.UnixNano()
		ps, exists := groups[fp]
		if !exists {
			ps = &patternState{
				fingerprint:   fp,
				level:         e.Level,
				firstSeen:     ns,
				lastSeen:      ns,
				sampleMessage: truncateString(e.Message, 2000),
			}
			groups[fp] = ps
		}

		ps.count++
		if ns < ps.firstSeen {
			ps.firstSeen = ns
		}
		if ns > ps.lastSeen {
			ps.lastSeen = ns
		}
		if LevelSeverity(e.Level) > LevelSeverity(ps.level) {
			ps.level = e.Level
		}
	}

	patterns := make([]models.Pattern, 0, len(groups))
	for _, ps := range groups {
		patterns = append(patterns, models.Pattern{
			Fingerprint:   ps.fingerprint,
			Level:         ps.level,
			Count:         ps.count,
			FirstSeenAt:   timeFromNano(ps.firstSeen),
			LastSeenAt:    timeFromNano(ps.lastSeen),
			SampleMessage: ps.sampleMessage,
		})
	}

	sort.Slice(patterns, func(i, j int) bool {
		if patterns[i].Count != patterns[j].Count {
			return patterns[i].Count > patterns[j].Count
		}
		si, sj := LevelSeverity(patterns[i].Level), LevelSeverity(patterns[j].Level)
		if si != sj {
			return si > sj
		}
		return patterns[i].Fingerprint < patterns[j].Fingerprint
	})

	if limit > 0 && len(patterns) > limit {
		patterns = patterns[:limit]
	}
	return patterns
}

// Fingerprint computes a stable SHA-256 fingerprint for a log message.
func Fingerprint(message string) string {
	normalized := NormalizeMessage(message)
	hash := sha256.Sum256([]byte(normalized))
	return fmt.Sprintf("%x", hash)
}

// NormalizeMessage applies all normalization rules to a log message.
func NormalizeMessage(msg string) string {
	msg = reDatetime.ReplaceAllString(msg, "")
	msg = reHexAddr.ReplaceAllString(msg, "0xADDR")
	msg = reUUID.ReplaceAllString(msg, "UUID")
	msg = reIPv4.ReplaceAllString(msg, "IP")
	msg = reDuration.ReplaceAllString(msg, "DURATION")
	msg = reBracketNum.ReplaceAllString(msg, "[N]")
	msg = reParenNum.ReplaceAllString(msg, "(N)")
	msg = reWhitespace.ReplaceAllString(msg, " ")
	msg = strings.ToLower(msg)
	msg = strings.TrimSpace(msg)
	msg = truncateString(msg, 500)
	return msg
}

// LevelSeverity maps a log level string to a numeric severity.
func LevelSeverity(level string) int {
	switch strings.ToUpper(level) {
	case "FATAL":
		return 4
	case "CRITICAL":
		return 3
	case "ERROR":
		return 2
	case "WARN", "WARNING":
		return 1
	default:
		return 0
	}
}

// truncateString truncates s to maxBytes without splitting UTF-8 runes.
func truncateString(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	for maxBytes > 0 && !utf8.RuneStart(s[maxBytes]) {
		maxBytes--
	}
	return s[:maxBytes]
}

func timeFromNano(ns int64) time.Time {
	return time.Unix(0, ns).UTC()
}
