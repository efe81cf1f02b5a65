package mapping

import (
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Kind is the normalisation rule attached to a custom profile field. It is
// decided once from the host datatype when the table is built.
type Kind int

const (
	KindPlain Kind = iota
	KindText
	KindTextArea
	KindDate
	KindMenu
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindTextArea:
		return "textarea"
	case KindDate:
		return "date"
	case KindMenu:
		return "menu"
	default:
		return "plain"
	}
}

// KindFor maps a host profile field datatype to a Kind. Unknown datatypes
// fall back to KindPlain.
func KindFor(datatype string) Kind {
	switch strings.ToLower(strings.TrimSpace(datatype)) {
	case "text":
		return KindText
	case "textarea":
		return KindTextArea
	case "datetime", "date":
		return KindDate
	case "menu":
		return KindMenu
	default:
		return KindPlain
	}
}

// dateLayouts are the formats the directory has been seen to emit for
// contract dates.
var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02T15:04:05",
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"02/01/2006",
	"2006/01/02",
}

// normaliseDate renders v as YYYY-MM-DD, or "" when v is not a date.
func normaliseDate(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return ""
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.Format(time.DateOnly)
		}
	}
	return ""
}

// sanitise composes v to NFC and drops control characters. Line breaks and
// tabs survive only when keepLines is set.
func sanitise(v string, keepLines bool) string {
	v = norm.NFC.String(v)
	v = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			if keepLines {
				return r
			}
			return ' '
		}
		if r == '\r' {
			return -1
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, v)
	return strings.TrimSpace(v)
}

// matchOption returns the canonical spelling of v among options, compared
// case-insensitively, or "" when v is not one of them.
func matchOption(v string, options []string, fold cases.Caser) string {
	want := fold.String(strings.TrimSpace(v))
	if want == "" {
		return ""
	}
	for _, opt := range options {
		if fold.String(opt) == want {
			return opt
		}
	}
	return ""
}

// parseOptions splits a menu definition into its trimmed, non-empty options.
func parseOptions(param string) []string {
	var opts []string
	for _, line := range strings.Split(param, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			opts = append(opts, line)
		}
	}
	return opts
}
