package notify

import (
	"fmt"
	"html"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"reportd/internal/eventbus"
)

const maxErrLen = 500

// FormatRunFinished renders a finished run as Telegram HTML.
func FormatRunFinished(fin eventbus.RunFinished) string {
	var b strings.Builder
	switch {
	case fin.Err != "":
		b.WriteString("❌ <b>Report failed</b>")
	case !fin.Success:
		b.WriteString("⚠️ <b>Report empty</b>")
	default:
		b.WriteString("✅ <b>Report sent</b>")
	}
	fmt.Fprintf(&b, "\n<b>%s</b> <code>%s</code>", html.EscapeString(fin.TaskName), html.EscapeString(fin.TaskID))
	if fin.Trigger != "" {
		fmt.Fprintf(&b, "\nsource: %s", html.EscapeString(fin.Trigger))
	}
	if fin.Success {
		fmt.Fprintf(&b, "\nrows: %s", humanize.Comma(int64(fin.Rows)))
	}
	if len(fin.Files) > 0 {
		names := make([]string, len(fin.Files))
		for i, f := range fin.Files {
			names[i] = html.EscapeString(filepath.Base(f))
		}
		fmt.Fprintf(&b, "\nfiles: %s", strings.Join(names, ", "))
	}
	fmt.Fprintf(&b, "\ntook: %s", fin.Took.Round(time.Millisecond))
	if fin.NextRun != nil {
		fmt.Fprintf(&b, "\nnext: %s", fin.NextRun.Format("2006-01-02 15:04:05 MST"))
	}
	if fin.Err != "" {
		msg := fin.Err
		if len(msg) > maxErrLen {
			msg = msg[:maxErrLen] + "..."
		}
		fmt.Fprintf(&b, "\n<pre>%s</pre>", html.EscapeString(msg))
	}
	return b.String()
}

func FormatRunSkipped(sk eventbus.RunSkipped) string {
	return fmt.Sprintf("⚠️ <b>Run dropped</b> <code>%s</code>\nreason: %s", html.EscapeString(sk.TaskID), html.EscapeString(sk.Reason))
}
