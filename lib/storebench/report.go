package storebench

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
)

// Render writes the report as tables: timings, comparisons against the
// baseline, and the verification of the array lengths.
func (r *Report) Render(w io.Writer) {
	fmt.Fprintf(w, "=== Performance Test Results (%s items) ===\n", humanize.Comma(int64(r.Iterations)))
	fmt.Fprintf(w, "Run %s, started %s\n\n", r.ID, humanize.Time(r.Started))

	header := []string{"Operation"}
	for _, result := range r.Results {
		header = append(header, result.Contender)
	}
	timings := tablewriter.NewWriter(w)
	timings.SetHeader(header)
	for _, m := range Measurements {
		row := []string{m.String()}
		for _, result := range r.Results {
			row = append(row, formatDuration(result.Durations[m]))
		}
		timings.Append(row)
	}
	timings.Render()

	if comparisons := r.Compare(); len(comparisons) > 0 {
		fmt.Fprintln(w)
		table := tablewriter.NewWriter(w)
		table.SetHeader([]string{"Operation", "Versus", "Result"})
		for _, c := range comparisons {
			table.Append([]string{c.Measurement.String(), c.Other, describe(c)})
		}
		table.Render()
	}

	fmt.Fprintf(w, "\nArray Lengths (should all be %d):\n", r.Iterations)
	lengths := tablewriter.NewWriter(w)
	lengths.SetHeader([]string{"Contender", "One by One", "Bulk"})
	for _, result := range r.Results {
		lengths.Append([]string{result.Contender, fmt.Sprint(result.OneByOneLength), fmt.Sprint(result.BulkLength)})
	}
	lengths.Render()
	fmt.Fprintf(w, "Verified: %t\n", r.Verified())
}

var (
	fasterColor = color.New(color.FgGreen)
	slowerColor = color.New(color.FgRed)
)

func describe(c Comparison) string {
	verdict := c.Verdict()
	switch verdict {
	case "faster":
		verdict = fasterColor.Sprint(verdict)
	case "slower":
		verdict = slowerColor.Sprint(verdict)
	default:
		return verdict
	}
	return fmt.Sprintf("%s is %.1f%% %s", c.Baseline, c.Percent, verdict)
}

func formatDuration(d time.Duration) string {
	return fmt.Sprintf("%.2fms", float64(d)/float64(time.Millisecond))
}
