package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/celerix-dev/celerix-todo/pkg/schema"
)

// FormatTasks writes one line per task: "[x] <id>  <title>", with the
// description indented below when present.
func FormatTasks(w io.Writer, list []schema.Task) {
	if len(list) == 0 {
		fmt.Fprintln(w, "no tasks")
		return
	}
	for _, t := range list {
		mark := " "
		if t.Completed {
			mark = "x"
		}
		fmt.Fprintf(w, "[%s] %s  %s\n", mark, t.ID, oneLine(t.Title))
		if d := oneLine(t.Description); d != "" {
			fmt.Fprintf(w, "    %s\n", d)
		}
	}
}

func oneLine(s string) string {
	s = strings.ReplaceAll(s, "\r", " ")
	return strings.TrimSpace(strings.ReplaceAll(s, "\n", " "))
}
