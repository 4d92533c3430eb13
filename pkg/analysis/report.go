package analysis

import (
	"fmt"
	"io"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
)

// Render writes one table per factor
func Render(w io.Writer, summaries []FactorSummary) {
	for _, fs := range summaries {
		if len(fs.Levels) == 0 {
			continue
		}
		fmt.Fprintf(w, "\n%s\n", fs.Factor)

		table := tablewriter.NewWriter(w)
		table.SetAutoFormatHeaders(false)
		table.SetHeader([]string{"level", "n", "frame time (ms)", "delta (ms)", "gzipped", "build (s)"})
		for _, l := range fs.Levels {
			name := l.Level
			if l.Baseline {
				name += " *"
			}
			delta := "-"
			if fs.HasBaseline {
				delta = fmt.Sprintf("%+.2f", l.FrameTimeDelta)
			}
			table.Append([]string{
				name,
				strconv.Itoa(l.Count),
				fmt.Sprintf("%.2f", l.MeanFrameTime),
				delta,
				humanize.Bytes(uint64(l.MeanSizeGzipped)),
				fmt.Sprintf("%.1f", l.MeanTotalBuildTime),
			})
		}
		table.Render()
	}
}
