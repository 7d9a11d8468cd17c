package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"

	"github.com/korydraughn/irodsd/internal/worker"
)

// printSummary renders one row per worker after shutdown.
func printSummary(out io.Writer, handles []*worker.Handle) {
	if len(handles) == 0 {
		return
	}
	colorize := shouldColorize(out)

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Role", "PID", "State", "Exit", "Uptime"})
	for _, h := range handles {
		state := h.State().String()
		if colorize {
			state = stateColors(h.State()).Sprint(state)
		}
		tw.AppendRow(table.Row{
			h.Role.DisplayName(),
			strconv.Itoa(h.PID),
			state,
			h.ExitDescription(),
			h.Uptime().Round(time.Millisecond).String(),
		})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight, AlignHeader: text.AlignLeft},
		{Number: 5, Align: text.AlignRight, AlignHeader: text.AlignLeft},
	})
	fmt.Fprintln(out, tw.Render())
}

func stateColors(state worker.State) text.Colors {
	if state == worker.Reaped {
		return text.Colors{text.FgGreen}
	}
	return text.Colors{text.FgRed}
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
