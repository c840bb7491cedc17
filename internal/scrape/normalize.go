package scrape

import (
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/ciscoinsights/device-insights/internal/alerts"
)

// wireDate is the DD-MM-YYYY form all dates take on the wire.
const wireDate = "02-01-2006"

// Date layouts found on support pages. Day numbers appear both padded
// and unpadded, which time.Parse tolerates with these layouts.
const (
	seriesDateLayout   = "2-Jan-2006"
	longFormDateLayout = "January 2, 2006"
)

var (
	punctuation   = regexp.MustCompile(`[^\w\s]`)
	unsafeSegment = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)
)

// CamelCase normalizes a table header into a camelCase key. Punctuation
// is stripped, the first word is lowercased, and every later word keeps
// only its leading letter upper. "Affected OS Type" becomes
// "affectedOsType"; a header with no words becomes "".
func CamelCase(header string) string {
	words := strings.Fields(punctuation.ReplaceAllString(header, ""))
	if len(words) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(strings.ToLower(words[0]))
	for _, word := range words[1:] {
		runes := []rune(strings.ToLower(word))
		runes[0] = unicode.ToUpper(runes[0])
		b.WriteString(string(runes))
	}
	return b.String()
}

// NormalizeDate reformats a series-level date such as "15-Mar-2020" to
// DD-MM-YYYY. Input that does not parse is returned unchanged.
func NormalizeDate(s string) string {
	return reformatDate(s, seriesDateLayout)
}

// NormalizeLongDate reformats a long-form date such as "March 15, 2020"
// to DD-MM-YYYY. Input that does not parse is returned unchanged.
func NormalizeLongDate(s string) string {
	return reformatDate(s, longFormDateLayout)
}

func reformatDate(s, layout string) string {
	t, err := time.Parse(layout, strings.TrimSpace(s))
	if err != nil {
		return s
	}
	return t.Format(wireDate)
}

// ParseNoticeTitle splits a four-part notice title of the form
// "FN12345 - Product - Short Description - Workaround Provided" into
// the short description and the workaround flag. Titles in any other
// shape leave both unparsed.
func ParseNoticeTitle(title string) (string, alerts.OptionalFlag) {
	parts := strings.Split(title, " - ")
	if len(parts) != 4 {
		return "", alerts.OptionalFlag{}
	}
	return parts[2], alerts.Flag(parts[3] == "Workaround Provided")
}

// PathSegment maps a free-text category or family name onto a safe
// archive path segment.
func PathSegment(name string) string {
	seg := unsafeSegment.ReplaceAllString(strings.TrimSpace(name), "_")
	seg = strings.Trim(seg, "._")
	if seg == "" {
		return "unnamed"
	}
	return seg
}
