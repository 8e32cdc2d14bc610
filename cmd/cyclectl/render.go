package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/i474232898/cycle-tracker/internal/cycle"
)

var (
	flowColor      = color.New(color.FgRed)
	predictedColor = color.New(color.FgMagenta)
	complaintColor = color.New(color.FgYellow)
	todayColor     = color.New(color.Bold, color.Underline)
	mutedColor     = color.New(color.FgHiBlack)
)

func renderCycles(w io.Writer, sum cycle.Summary) {
	if len(sum.Cycles) == 0 {
		fmt.Fprintln(w, mutedColor.Sprint("no cycles recorded"))
		return
	}
	for i := len(sum.Cycles) - 1; i >= 0; i-- {
		c := sum.Cycles[i]
		status := ""
		if c.Ongoing {
			status = " " + todayColor.Sprint("(ongoing)")
		}
		fmt.Fprintf(w, "%s → %s  %3d days  %s%s\n",
			c.StartDateKey, c.EndDateKey, c.DurationDays(),
			flowColor.Sprint(strings.Repeat("●", c.Flow.PeriodDays)), status)
	}
	fmt.Fprintf(w, "average cycle: %d days (from %d completed)\n", sum.AverageCycleDays, sum.HistoryCycleCount)
}

func renderPrediction(w io.Writer, sum cycle.Summary) {
	if sum.Prediction == nil {
		fmt.Fprintln(w, mutedColor.Sprint("no prediction"))
		return
	}
	fmt.Fprintf(w, "next period: %s → %s\n",
		predictedColor.Sprint(sum.Prediction.Start), predictedColor.Sprint(sum.Prediction.End))
}

// renderCalendar draws a Monday-first month grid. Flow days show their level,
// complaint-only days a "!", predicted days a "~".
func renderCalendar(w io.Writer, view cycle.CalendarMonth) {
	fmt.Fprintf(w, "%s\n Mo  Tu  We  Th  Fr  Sa  Su\n", view.Month)
	if len(view.Days) == 0 {
		return
	}

	offset := (int(view.Days[0].Date.Date().Weekday()) + 6) % 7
	fmt.Fprint(w, strings.Repeat("    ", offset))
	for i, d := range view.Days {
		fmt.Fprint(w, dayCell(d))
		if (offset+i+1)%7 == 0 {
			fmt.Fprintln(w)
		}
	}
	if (offset+len(view.Days))%7 != 0 {
		fmt.Fprintln(w)
	}
	renderPrediction(w, cycle.Summary{Prediction: view.Prediction})
}

func dayCell(d cycle.CalendarDay) string {
	day := fmt.Sprintf("%2d", d.Date.Date().Day())
	mark := " "
	switch {
	case d.FlowLevel > 0:
		mark = flowColor.Sprint(d.FlowLevel)
	case d.ShowComplaintMarker():
		mark = complaintColor.Sprint("!")
	case d.Predicted:
		mark = predictedColor.Sprint("~")
	}

	switch {
	case d.Today:
		day = todayColor.Sprint(day)
	case d.Disabled:
		day = mutedColor.Sprint(day)
	case d.Predicted:
		day = predictedColor.Sprint(day)
	}
	return day + mark + " "
}
