package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// FormatQuantity formats a whole number with thousands separators.
func FormatQuantity(n int64) string {
	negative := n < 0
	s := strconv.FormatInt(n, 10)
	if negative {
		s = s[1:]
	}
	s = groupThousands(s)
	if negative {
		return "-" + s
	}
	return s
}

func groupThousands(s string) string {
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	head := len(s) % 3
	if head > 0 {
		b.WriteString(s[:head])
	}
	for i := head; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

// FormatCash formats an amount of game currency.
func FormatCash(amount int64) string {
	return "$" + FormatQuantity(amount)
}

// FormatPrice formats an optional price; nil renders as a dash.
func FormatPrice(p *int64) string {
	if p == nil {
		return "-"
	}
	return FormatQuantity(*p)
}

// FormatSpeed formats a speed multiplier as "10x".
func FormatSpeed(m decimal.Decimal) string {
	return m.String() + "x"
}

// FormatTime formats a timestamp in local time.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("15:04:05")
}

// FormatDateTime formats a timestamp with its date in local time.
func FormatDateTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

// FormatAge formats how long ago t was.
func FormatAge(t time.Time, now time.Time) string {
	if t.IsZero() {
		return "never"
	}
	d := now.Sub(t)
	switch {
	case d < time.Second:
		return "just now"
	case d < time.Minute:
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm %ds ago", int(d.Minutes()), int(d.Seconds())%60)
	default:
		return fmt.Sprintf("%dh %dm ago", int(d.Hours()), int(d.Minutes())%60)
	}
}

// TruncateString truncates a string to max runes with ellipsis.
func TruncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}

// Bar renders value as a bar of at most width cells scaled to maxValue.
// Any positive value gets at least one cell.
func Bar(value, maxValue int64, width int) string {
	if value <= 0 || maxValue <= 0 || width <= 0 {
		return ""
	}
	n := int(value * int64(width) / maxValue)
	if n == 0 {
		n = 1
	}
	if n > width {
		n = width
	}
	return strings.Repeat("#", n)
}
