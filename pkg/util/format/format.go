package format

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	KB = 1 << (10 * (iota + 1))
	MB
	GB
	TB
)

var ErrInvalidSize = errors.New("invalid byte size")

// FormatBytes formats bytes into human-readable units, avoiding .00 for whole numbers
func FormatBytes(b int64) string {
	val := float64(b)
	var unit string

	switch {
	case b >= TB:
		val /= float64(TB)
		unit = "TB"
	case b >= GB:
		val /= float64(GB)
		unit = "GB"
	case b >= MB:
		val /= float64(MB)
		unit = "MB"
	case b >= KB:
		val /= float64(KB)
		unit = "KB"
	default:
		return fmt.Sprintf("%dB", b)
	}

	// Use %.0f for whole numbers, %.2f for numbers with decimals
	if val == float64(int(val)) {
		return fmt.Sprintf("%.0f%s", val, unit)
	}
	return fmt.Sprintf("%.2f%s", val, unit)
}

// ParseBytes parses a human-readable size such as "512", "64KB" or "4MB".
// Units are powers of 1024 and case-insensitive; the trailing "B" is optional.
// An empty string parses as 0.
func ParseBytes(s string) (uint64, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return 0, nil
	}

	mul := uint64(1)
	num := strings.TrimSuffix(s, "B")

	for _, u := range []struct {
		suffix string
		mul    uint64
	}{
		{"K", KB},
		{"M", MB},
		{"G", GB},
		{"T", TB},
	} {
		if strings.HasSuffix(num, u.suffix) {
			num = strings.TrimSuffix(num, u.suffix)
			mul = u.mul
			break
		}
	}

	v, err := strconv.ParseFloat(strings.TrimSpace(num), 64)
	if err != nil || v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSize, s)
	}

	n := v * float64(mul)
	if n >= math.MaxUint64 {
		return 0, fmt.Errorf("%w: %q out of range", ErrInvalidSize, s)
	}
	return uint64(n), nil
}
