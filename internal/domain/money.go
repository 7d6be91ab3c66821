package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// FormatAmount groups thousands with spaces, French style, dropping cents
// when the amount is whole.
func FormatAmount(v float64) string {
	cents := int64(math.Round(math.Abs(v) * 100))
	digits := strconv.FormatInt(cents/100, 10)

	var b strings.Builder
	if v < 0 && cents > 0 {
		b.WriteByte('-')
	}
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(' ')
		}
		b.WriteRune(r)
	}
	if rem := cents % 100; rem != 0 {
		b.WriteByte(',')
		b.WriteString(strings.TrimRight(fmt.Sprintf("%02d", rem), "0"))
	}
	return b.String()
}
