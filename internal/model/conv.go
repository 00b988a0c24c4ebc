package model

import (
	"strconv"
	"strings"
)

// ParseInt reads a broker numeric field. Broker fields arrive zero-padded,
// space-padded, with thousands separators and with a leading +/- direction
// marker ("000012345", " -1,234", "+500"). Anything unparsable is 0.
func ParseInt(s string) int64 {
	s = cleanNumber(s)
	if s == "" {
		return 0
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil {
			return 0
		}
		return int64(f)
	}
	return n
}

// ParseAbs is ParseInt without the direction marker. Price fields use the sign
// to flag an up/down move, not a negative price.
func ParseAbs(s string) int64 {
	n := ParseInt(s)
	if n < 0 {
		return -n
	}
	return n
}

// ParseFloat reads a broker rate field such as "+3.25" or "-0.80".
func ParseFloat(s string) float64 {
	s = cleanNumber(s)
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

func cleanNumber(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimPrefix(s, "+")
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	trimmed := strings.TrimLeft(s, "0")
	if trimmed == "" || trimmed[0] == '.' {
		if s == "" {
			return ""
		}
		trimmed = "0" + trimmed
	}
	if neg {
		return "-" + trimmed
	}
	return trimmed
}

// FormatKRW renders n with thousands separators ("1,234,567").
func FormatKRW(n int64) string {
	digits := strconv.FormatInt(n, 10)
	sign := ""
	if n < 0 {
		sign, digits = "-", digits[1:]
	}
	var b strings.Builder
	for i, c := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	return sign + b.String()
}
