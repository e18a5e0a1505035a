package allocation

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MINUTE ARITHMETIC - Durations are whole minutes everywhere
// =============================================================================

// MinutesBetween returns the whole minutes from start to end, truncated.
func MinutesBetween(start, end time.Time) int {
	return int(end.Sub(start) / time.Minute)
}

// AddMinutes returns t shifted by n minutes.
func AddMinutes(t time.Time, n int) time.Time {
	return t.Add(time.Duration(n) * time.Minute)
}

// Hours converts minutes to hours rounded to two decimal places.
func Hours(minutes int) decimal.Decimal {
	return decimal.NewFromInt(int64(minutes)).Div(decimal.NewFromInt(60)).Round(2)
}

// FormatMinutes renders minutes as "1h 30m". Negative values keep the sign.
func FormatMinutes(minutes int) string {
	sign := ""
	if minutes < 0 {
		sign = "-"
		minutes = -minutes
	}
	return fmt.Sprintf("%s%dh %dm", sign, minutes/60, minutes%60)
}
