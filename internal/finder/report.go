package finder

import (
	"fmt"
	"io"
	"strings"
)

func joinTimes(times []string) string {
	if len(times) == 0 {
		return "-"
	}
	return strings.Join(times, ", ")
}

// Report prints the result for a human
func Report(w io.Writer, r Result) error {
	var b strings.Builder
	if !r.Found {
		fmt.Fprintf(&b, "No free slot among %d possible days from %s.\n", r.Candidates, r.Start)
	} else {
		fmt.Fprintf(&b, "First sure date: %s [%s]\n", r.First, joinTimes(r.Times))
		for _, e := range r.Earlier {
			fmt.Fprintf(&b, "possible earlier date: %s [%s]\n", e.Date, joinTimes(e.Times))
		}
		fmt.Fprintf(&b, "Found %d earlier dates.\n", len(r.Earlier))
	}
	fmt.Fprintf(&b, "(%d days inspected in %.1fs)\n", r.Evaluations, r.Took.Seconds())

	_, err := io.WriteString(w, b.String())
	return err
}
