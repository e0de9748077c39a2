package normalizer

import (
	"regexp"
	"strings"
	"time"

	"github.com/denysvitali/go-datesfinder"
)

const isoDate = "2006-01-02"

// yearFirstLayouts are tried before the free-text date search, which reads
// ambiguous numeric dates day first.
var yearFirstLayouts = []string{isoDate, "2006/01/02", "2006.01.02", "2006/1/2"}

func normalizeText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

var (
	currencyMarkers = regexp.MustCompile(`(?i)(eur|chf|usd|gbp|fr\.|sfr|€|\$|£)`)
	taxBasisMarkers = regexp.MustCompile(`(?i)\b(ttc|htva|ht|tva)\b\.?`)
	amountPattern   = regexp.MustCompile(`^-?[0-9]+(\.[0-9]+)?$`)
	groupingRunes   = strings.NewReplacer(" ", "", " ", "", " ", "", "'", "", "’", "")
)

// normalizeAmount converts an amount to a dot-decimal string with at least
// two decimals. Values that do not parse are returned trimmed.
func normalizeAmount(s string) string {
	text := normalizeText(s)
	if text == "" {
		return ""
	}

	v := taxBasisMarkers.ReplaceAllString(text, "")
	v = currencyMarkers.ReplaceAllString(v, "")
	v = groupingRunes.Replace(v)

	negative := false
	switch {
	case strings.HasPrefix(v, "(") && strings.HasSuffix(v, ")"):
		negative = true
		v = v[1 : len(v)-1]
	case strings.HasSuffix(v, "-") && !strings.HasPrefix(v, "-"):
		negative = true
		v = strings.TrimSuffix(v, "-")
	}
	if strings.HasPrefix(v, "-") {
		negative = !negative
		v = strings.TrimPrefix(v, "-")
	}
	v = strings.TrimPrefix(v, "+")
	v = decimalDot(v)

	if !amountPattern.MatchString(v) {
		return text
	}

	intPart, frac, _ := strings.Cut(v, ".")
	intPart = strings.TrimLeft(intPart, "0")
	if intPart == "" {
		intPart = "0"
	}
	for len(frac) < 2 {
		frac += "0"
	}
	out := intPart + "." + frac
	if negative && strings.Trim(out, "0.") != "" {
		out = "-" + out
	}
	return out
}

// decimalDot resolves grouping and decimal separators: when both ',' and
// '.' appear the last one is the decimal separator; a lone separator
// repeated more than once is grouping.
func decimalDot(v string) string {
	lastComma := strings.LastIndex(v, ",")
	lastDot := strings.LastIndex(v, ".")
	switch {
	case lastComma >= 0 && lastDot >= 0:
		if lastComma > lastDot {
			v = strings.ReplaceAll(v, ".", "")
			return strings.Replace(v, ",", ".", 1)
		}
		return strings.ReplaceAll(v, ",", "")
	case lastComma >= 0:
		if strings.Count(v, ",") > 1 {
			return strings.ReplaceAll(v, ",", "")
		}
		return strings.Replace(v, ",", ".", 1)
	case strings.Count(v, ".") > 1:
		return strings.ReplaceAll(v, ".", "")
	}
	return v
}

func isNegativeAmount(s string) bool {
	return strings.HasPrefix(s, "-") && amountPattern.MatchString(s)
}

// normalizeDate returns the first date found in s as YYYY-MM-DD, or the
// trimmed input when none is found.
func normalizeDate(s string) string {
	text := normalizeText(s)
	if text == "" {
		return ""
	}
	for _, layout := range yearFirstLayouts {
		if d, err := time.Parse(layout, text); err == nil {
			return d.Format(isoDate)
		}
	}
	dates, _ := datesfinder.FindDates(text)
	if len(dates) == 0 {
		return text
	}
	return dates[0].Format(isoDate)
}
