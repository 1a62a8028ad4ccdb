package sanitize

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Pure, stateless scrubbing of span attribute values. Every function is
// nil-safe for empty input, idempotent, and never fails: these run on the
// hot path at span completion and must not disturb the instrumented
// operation.

const (
	mask      = "***"
	emailMask = "***@***.***"

	// maxAttributeLength bounds attribute values so one oversized statement
	// cannot bloat an exported span.
	maxAttributeLength = 1024
)

var (
	emailPattern = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)

	// Payment-card-like sequences: 13 to 19 digits, contiguous or grouped by
	// spaces, dots or dashes.
	cardPattern = regexp.MustCompile(`\b(?:\d[ .\-]?){12,18}\d\b`)

	statementStringLiteral = regexp.MustCompile(`'[^']*'`)
	statementNumberLiteral = regexp.MustCompile(`=\s*-?\d+(?:\.\d+)?`)
	statementInClause      = regexp.MustCompile(`(?i)IN\s*\([^)]*\)`)

	urlQueryParam = regexp.MustCompile(`([?&][^=&#\s]+)=([^&#\s]*)`)

	secretAssignment = regexp.MustCompile(`(?i)(password|passwd|pwd|secret|token|api[_-]?key|key|authorization)\s*[:=]\s*\S+`)
)

// Statement redacts literal values from a database statement while keeping
// its shape: quoted literals become '***', bare numeric literals after an
// equals sign become ***, IN lists are collapsed.
func Statement(s string) string {
	if s == "" {
		return s
	}
	out := statementStringLiteral.ReplaceAllString(s, "'"+mask+"'")
	out = statementNumberLiteral.ReplaceAllString(out, "= "+mask)
	out = statementInClause.ReplaceAllString(out, "IN ("+mask+")")
	return MaskPII(out)
}

// URL masks the value of every query parameter, keeping parameter names and
// the path intact, then scrubs any email addresses left in the path itself.
func URL(s string) string {
	if s == "" {
		return s
	}
	out := urlQueryParam.ReplaceAllString(s, "${1}="+mask)
	return MaskEmail(out)
}

// MaskEmail replaces RFC-5322-like email addresses with a fixed mask.
func MaskEmail(s string) string {
	if s == "" {
		return s
	}
	return emailPattern.ReplaceAllString(s, emailMask)
}

// MaskPII masks payment-card-like digit sequences (13-19 digits, contiguous
// or grouped) and email addresses. Grouping separators are preserved so the
// masked value keeps the original shape.
func MaskPII(s string) string {
	if s == "" {
		return s
	}
	out := cardPattern.ReplaceAllStringFunc(s, func(match string) string {
		return strings.Map(func(r rune) rune {
			if r >= '0' && r <= '9' {
				return '*'
			}
			return r
		}, match)
	})
	return MaskEmail(out)
}

// ErrorMessage scrubs an exception/error message: PII patterns plus
// key=value style secret assignments (password=..., token=...).
func ErrorMessage(s string) string {
	if s == "" {
		return s
	}
	out := MaskPII(s)
	return secretAssignment.ReplaceAllString(out, "${1}="+mask)
}

// Truncate caps a value at max runes, marking the cut with an ellipsis. The
// cut lands on a rune boundary so the result is always valid UTF-8.
func Truncate(s string, max int) string {
	if max <= 3 || utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max-3]) + "..."
}

// safeHeaders are the only header values allowed through unmasked.
var safeHeaders = map[string]struct{}{
	"content-type":   {},
	"content-length": {},
	"accept":         {},
	"user-agent":     {},
}

func isSafeHeader(key string) bool {
	name := strings.ToLower(key[strings.LastIndex(key, ".")+1:])
	_, ok := safeHeaders[name]
	return ok
}

// ByAttributeKey dispatches to the right scrubber based on a fixed attribute
// key taxonomy. Unknown keys pass through except for PII pattern matches.
func ByAttributeKey(key, value string) string {
	if value == "" {
		return value
	}
	switch {
	case strings.HasPrefix(key, "db."):
		value = Statement(value)
	case key == "http.url" || strings.HasSuffix(key, ".url") || strings.Contains(key, "endpoint"):
		value = URL(value)
	case strings.HasPrefix(key, "http.header"):
		if !isSafeHeader(key) {
			value = mask
		}
	case strings.Contains(key, "error") || strings.Contains(key, "message"):
		value = ErrorMessage(value)
	default:
		value = MaskPII(value)
	}
	return Truncate(value, maxAttributeLength)
}
