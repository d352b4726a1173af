// Package prompt renders condensed log text into the structured analysis
// request sent to the inference provider.
package prompt

import "strings"

// Section is one required heading of the analysis report.
type Section struct {
	Title    string
	Bullets  []string
	Fallback string
}

// Sections is the fixed report contract, in order.
var Sections = []Section{
	{
		Title: "OVERALL HEALTH STATUS",
		Bullets: []string{
			"Current system health assessment",
			"Key metrics overview and trends over the analyzed period",
			"System stability indicators and patterns",
		},
		Fallback: "Insufficient data for health assessment",
	},
	{
		Title: "CRITICAL ISSUES",
		Bullets: []string{
			"Critical errors and their frequencies over time",
			"High-priority warnings and their patterns",
			"Service disruptions or failures and their timing",
		},
		Fallback: "No critical issues detected",
	},
	{
		Title: "PERFORMANCE METRICS",
		Bullets: []string{
			"Response time patterns and trends",
			"Resource utilization patterns",
			"Performance bottlenecks and their frequency",
			"Latency issues and timing patterns",
		},
		Fallback: "No performance data available",
	},
	{
		Title: "SECURITY EVENTS",
		Bullets: []string{
			"Authentication patterns",
			"Access violations and their timing",
			"Security-related warnings and trends",
			"Potential security threats and patterns",
		},
		Fallback: "No security events detected",
	},
	{
		Title: "UNUSUAL PATTERNS",
		Bullets: []string{
			"Unexpected behaviors and their timing",
			"Anomalous events and their frequency",
			"Deviations from normal patterns",
		},
		Fallback: "No unusual patterns detected",
	},
	{
		Title: "SYSTEM HEALTH INDICATORS",
		Bullets: []string{
			"Resource health trends",
			"Service availability patterns",
			"Error rates and trends over time",
		},
		Fallback: "Insufficient data for health indicators",
	},
	{
		Title: "RECOMMENDATIONS",
		Bullets: []string{
			"Immediate actions needed based on trends",
			"Preventive measures for identified patterns",
			"Performance optimization suggestions",
			"Security improvements based on observed patterns",
		},
		Fallback: "Implement more detailed logging",
	},
	{
		Title: "LONG-TERM TRENDS",
		Bullets: []string{
			"Recurring patterns and cycles",
			"Gradual changes or degradation",
			"Capacity planning insights",
			"System evolution recommendations",
		},
		Fallback: "Insufficient data for trend analysis",
	},
}

// SectionTitles returns the titles of Sections in order.
func SectionTitles() []string {
	titles := make([]string, len(Sections))
	for i, s := range Sections {
		titles[i] = s.Title
	}
	return titles
}

const preamble = "You are an expert log analyzer. Analyze these logs and provide a detailed summary. " +
	"Focus on identifying patterns, trends, and significant changes over time. " +
	"Your analysis should be in the following format:\n\n"

// Build wraps logText in the analysis instructions.
func Build(logText string) string {
	var b strings.Builder
	b.Grow(len(logText) + 2048)
	b.WriteString(preamble)
	for _, s := range Sections {
		b.WriteString(s.Title)
		b.WriteString(":\n")
		for _, bullet := range s.Bullets {
			b.WriteString("- ")
			b.WriteString(bullet)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	b.WriteString("LOGS TO ANALYZE:\n")
	b.WriteString(logText)
	return b.String()
}

// Fallback is the report substituted when the provider returns nothing usable.
func Fallback() string {
	var b strings.Builder
	b.WriteString("No meaningful patterns found in the logs.\n\n")
	for _, s := range Sections {
		b.WriteString(s.Title)
		b.WriteString(":\n- ")
		b.WriteString(s.Fallback)
		b.WriteString("\n\n")
	}
	return b.String()
}

// Usable reports whether a generated analysis has any content.
func Usable(analysis string) bool {
	return strings.TrimSpace(analysis) != ""
}
