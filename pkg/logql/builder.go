package logql

import (
	"fmt"
	"strings"
)

// QueryBuilder constructs safe LogQL query strings.
// All methods are pure functions with no side effects.
// Zero value is ready to use.
type QueryBuilder struct{}

// SourceParams defines inputs for a window query against one log source.
//
// Source is either a raw LogQL stream selector ("{app=\"api\"}"), a
// "namespace/service" pair, or a bare service name.
type SourceParams struct {
	Source  string
	Levels  []string
	Keyword string
}

// BuildSourceQuery returns the LogQL query used to fetch a window of logs.
func (b QueryBuilder) BuildSourceQuery(p SourceParams) string {
	parts := []string{b.buildSelector(p.Source)}

	if kf := b.buildKeywordFilter(p.Keyword); kf != "" {
		parts = append(parts, kf)
	}
	if lf := b.buildLevelFilter(p.Levels); lf != "" {
		parts = append(parts, lf)
	}

	return strings.Join(parts, " ")
}

// ParseSource splits a "namespace/service" source id. A bare name is a service.
func ParseSource(source string) (namespace, service string) {
	if i := strings.LastIndex(source, "/"); i >= 0 {
		return source[:i], source[i+1:]
	}
	return "", source
}

func (b QueryBuilder) buildSelector(source string) string {
	source = strings.TrimSpace(source)
	if strings.HasPrefix(source, "{") {
		return source
	}
	namespace, service := ParseSource(source)
	if namespace != "" {
		return fmt.Sprintf(`{service="%s", namespace="%s"}`, escape(service), escape(namespace))
	}
	return fmt.Sprintf(`{service="%s"}`, escape(service))
}

func (b QueryBuilder) buildLevelFilter(levels []string) string {
	if len(levels) == 0 {
		return ""
	}
	lower := make([]string, len(levels))
	for i, l := range levels {
		lower[i] = strings.ToLower(l)
	}
	return fmt.Sprintf(`| level =~ "(?i)(%s)"`, strings.Join(lower, "|"))
}

func (b QueryBuilder) buildKeywordFilter(keyword string) string {
	if keyword == "" {
		return ""
	}
	return fmt.Sprintf("|= `%s`", strings.ReplaceAll(keyword, "`", ""))
}

// escape quotes a label value for use inside a double-quoted matcher.
func escape(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	return strings.ReplaceAll(v, `"`, `\"`)
}
