package cart

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// ExtractBaseProductID returns the catalog id of a possibly composite cart id:
// the part before the first "::", then before the first "-".
func ExtractBaseProductID(id string) string {
	head, _, _ := strings.Cut(id, "::")
	base, _, _ := strings.Cut(head, "-")
	return base
}

// ParseQuantity reads a leading base-10 integer the way form inputs are read:
// surrounding space is ignored and trailing garbage is dropped.
func ParseQuantity(raw string) (int, bool) {
	s := strings.TrimSpace(raw)
	end := 0
	if end < len(s) && (s[end] == '+' || s[end] == '-') {
		end++
	}
	digits := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digits {
		return 0, false
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0, false
	}
	return n, true
}

// ParsePrice reads the longest leading decimal number in raw.
func ParsePrice(raw string) (float64, bool) {
	s := strings.TrimSpace(raw)
	for end := len(s); end > 0; end-- {
		f, err := strconv.ParseFloat(s[:end], 64)
		if err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
			return f, true
		}
	}
	return 0, false
}

// clampQuantity maps unparseable or non-positive quantities to 1.
func clampQuantity(q int) int {
	if q < 1 {
		return 1
	}
	return q
}

func clampPrice(p float64) float64 {
	if p < 0 || math.IsNaN(p) || math.IsInf(p, 0) {
		return 0
	}
	return p
}

// looseString decodes a JSON string or number.
func looseString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var n json.Number
	if json.Unmarshal(raw, &n) == nil {
		return n.String()
	}
	return ""
}

// looseNumber decodes a JSON number or numeric string.
func looseNumber(raw json.RawMessage) (float64, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	var f float64
	if json.Unmarshal(raw, &f) == nil {
		return f, true
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return ParsePrice(s)
	}
	return 0, false
}
