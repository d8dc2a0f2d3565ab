package exporter

import (
	"fmt"
	"strconv"
)

// formatNumber formats a numeric covariate value at full precision so a
// re-imported panel round-trips exactly
func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// formatPct formats a percentage with 2 decimal places
func formatPct(f float64) string {
	return fmt.Sprintf("%.2f", f)
}

// formatInt formats an int64 value for CSV output
func formatInt(i int64) string {
	return fmt.Sprintf("%d", i)
}
