package report

import (
	"strconv"
	"time"
)

const cellTimeLayout = "2006-01-02 15:04:05"

// formatCell renders a normalized value for text outputs (PDF, HTML).
func formatCell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case time.Time:
		if x.Hour() == 0 && x.Minute() == 0 && x.Second() == 0 && x.Nanosecond() == 0 {
			return x.Format("2006-01-02")
		}
		return x.Format(cellTimeLayout)
	default:
		return formatCell(normalize(x))
	}
}
