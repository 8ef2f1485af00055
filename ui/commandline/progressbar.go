// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package commandline

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/muesli/termenv"
	"github.com/schollz/progressbar/v3"
)

// ExtraMetricFn is any function that will give extra values to display along the progress bar.
// It is called at each time the progress bar is updated, and it should return a name and the current value when it is called.
type ExtraMetricFn func() (name, value string)

// ProgressbarStyle to use. Defaults to the ASCII version.
// Consider "progressbar.ThemeUnicode" for a prettier version.
// But it requires some of the graphical symbols to be supported.
var ProgressbarStyle = progressbar.ThemeASCII

// maxUpdateFrequency is the time between updates to the commandline display of stats.
var maxUpdateFrequency = time.Millisecond * 200

// ProgressBar displays the progression of a pipeline run, one step per batch, with a table of
// statistics above it.
type ProgressBar struct {
	w             io.Writer
	numBatches    int
	bar           *progressbar.ProgressBar
	termenv       *termenv.Output
	statsStyle    lipgloss.Style
	statsTable    *lgtable.Table
	isFirstOutput bool
	lastUpdate    time.Time
	pending       int
	numLines      int

	durations      []time.Duration
	samples        int
	extraMetricFns []ExtraMetricFn
}

// NewProgressBar creates a progress bar for numBatches batches, written to w.
// If numBatches is unknown, use -1.
//
// Optionally, one can provide extraMetrics: functions that are called at every update of
// the progress bar and should return a name (title) and a value to be included in the
// updated print-out.
func NewProgressBar(w io.Writer, numBatches int, extraMetrics ...ExtraMetricFn) *ProgressBar {
	pBar := &ProgressBar{
		w:              w,
		numBatches:     numBatches,
		termenv:        termenv.NewOutput(w),
		statsStyle:     lipgloss.NewStyle().PaddingLeft(8),
		isFirstOutput:  true,
		extraMetricFns: extraMetrics,
	}
	pBar.statsTable = lgtable.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color(tableBorderColor))).
		StyleFunc(func(row, col int) lipgloss.Style {
			if col == 0 {
				return rightAlignedStyle
			}
			return normalStyle
		})
	pBar.bar = progressbar.NewOptions(numBatches,
		progressbar.OptionSetDescription("      [bold]"),
		progressbar.OptionUseANSICodes(true),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("batches"),
		progressbar.OptionSetTheme(ProgressbarStyle),
		progressbar.OptionSetWriter(w),
	)
	return pBar
}

// Step reports one more batch of numSamples samples, processed in elapsed time.
// The display is refreshed at most every maxUpdateFrequency.
func (pBar *ProgressBar) Step(numSamples int, elapsed time.Duration) {
	pBar.durations = append(pBar.durations, elapsed)
	pBar.samples += numSamples
	pBar.pending++
	if time.Since(pBar.lastUpdate) < maxUpdateFrequency && len(pBar.durations) != pBar.numBatches {
		return
	}
	pBar.draw()
}

// Batches returns the number of batches reported so far.
func (pBar *ProgressBar) Batches() int { return len(pBar.durations) }

// Samples returns the number of samples reported so far.
func (pBar *ProgressBar) Samples() int { return pBar.samples }

// MedianDuration of the batches reported so far.
func (pBar *ProgressBar) MedianDuration() time.Duration { return MedianDuration(pBar.durations) }

func (pBar *ProgressBar) draw() {
	pBar.statsTable.Data(lgtable.NewStringData())
	if pBar.numBatches > 0 {
		pBar.statsTable.Row("Batches", fmt.Sprintf("%s of %s", humanize.Comma(int64(pBar.Batches())), humanize.Comma(int64(pBar.numBatches))))
	} else {
		pBar.statsTable.Row("Batches", humanize.Comma(int64(pBar.Batches())))
	}
	pBar.statsTable.Row("Samples", humanize.Comma(int64(pBar.samples)))
	pBar.statsTable.Row("Median batch duration", FormatDuration(pBar.MedianDuration()))
	for _, extraMetric := range pBar.extraMetricFns {
		name, value := extraMetric()
		pBar.statsTable.Row(name, value)
	}

	// Clear the previous lines that will be overwritten.
	pBar.termenv.HideCursor()
	if !pBar.isFirstOutput {
		pBar.termenv.CursorPrevLine(pBar.numLines)
	}
	pBar.isFirstOutput = false

	table := pBar.statsStyle.Render(pBar.statsTable.String())
	_, _ = fmt.Fprintln(pBar.w, table)
	_ = pBar.bar.Add(pBar.pending) // Prints progress bar line.
	_, _ = fmt.Fprintln(pBar.w)
	pBar.termenv.ShowCursor()
	pBar.numLines = lipgloss.Height(table) + 2
	pBar.pending = 0
	pBar.lastUpdate = time.Now()
}

// Done draws the final state of the progress bar.
func (pBar *ProgressBar) Done() {
	if pBar.pending > 0 || pBar.isFirstOutput {
		pBar.draw()
	}
	_, _ = fmt.Fprintln(pBar.w)
}
