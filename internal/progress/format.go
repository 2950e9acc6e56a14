package progress

import (
	"math"
	"strconv"
	"strings"
)

// sizeUnits are the binary magnitudes FormatSize can select, smallest first.
var sizeUnits = []string{"B", "KB", "MB", "GB", "TB", "PB", "EB"}

// FormatSize returns a human-readable size string such as "1.5 KB" or
// "-2 KB". The magnitude is rounded half to even at one decimal digit and
// trailing zeros are trimmed.
func FormatSize(n int64) string {
	if n == 0 {
		return "0 " + sizeUnits[0]
	}

	// Two's complement: -MinInt64 does not fit in int64, so negate in uint64.
	abs := uint64(n)
	if n < 0 {
		abs = -abs
	}

	place := 0
	for q := abs; q >= 1024 && place < len(sizeUnits)-1; q /= 1024 {
		place++
	}

	value := math.RoundToEven(float64(abs)/math.Pow(1024, float64(place))*10) / 10
	if n < 0 {
		value = -value
	}

	return formatDecimal(value) + " " + sizeUnits[place]
}

// formatDecimal prints v with at most two fractional digits, dropping
// trailing zeros and a dangling decimal point.
func formatDecimal(v float64) string {
	s := strconv.FormatFloat(v, 'f', 2, 64)
	if strings.Contains(s, ".") {
		s = strings.TrimRight(s, "0")
		s = strings.TrimSuffix(s, ".")
	}

	if s == "-0" {
		return "0"
	}

	return s
}
