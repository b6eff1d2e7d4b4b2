package main

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/vnykmshr/opsched/pkg/reaper"
	"github.com/vnykmshr/opsched/pkg/scheduling/driver"
)

func sortEntries(entries []reaper.Entry) {
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].PID < entries[j].PID })
}

// printSummary writes one row per reaped process followed by the driver counters.
func printSummary(w io.Writer, stats driver.Stats, entries []reaper.Entry) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PID\tPRIORITY\tEXIT\tCOMMAND")
	for _, e := range entries {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%s\n", e.PID, e.Priority, e.ExitCode, e.Command)
	}
	_ = tw.Flush()

	fmt.Fprintf(w, "\nticks=%d submitted=%d completed=%d failed=%d killed=%d reaped=%d\n",
		stats.Ticks, stats.Submitted, stats.Completed, stats.Failed, stats.Killed, stats.Reaped)
}
