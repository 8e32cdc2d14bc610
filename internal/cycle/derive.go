package cycle

import "sort"

// GapThresholdDays is the longest distance, in days, between two flow days of
// the same period. A flow day further away than this from the previous one
// opens a new cycle.
const GapThresholdDays = 5

// DeriveCycles partitions the positive observations into cycles ordered by
// start date. Observations may be unsorted and may repeat a day; readings with
// intensity <= 0 are ignored. The most recent cycle is open and ends at today.
func DeriveCycles(observations []Observation, today DateKey) []Cycle {
	peaks := make(map[DateKey]int)
	for _, o := range observations {
		if o.Intensity <= 0 {
			continue
		}
		if o.Intensity > peaks[o.ValueDateKey] {
			peaks[o.ValueDateKey] = o.Intensity
		}
	}

	cycles := make([]Cycle, 0)
	if len(peaks) == 0 {
		return cycles
	}

	days := make([]DateKey, 0, len(peaks))
	for d := range peaks {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i] < days[j] })

	var periods [][]DateKey
	for i, day := range days {
		if i == 0 || DaysBetween(days[i-1], day) > GapThresholdDays {
			periods = append(periods, []DateKey{day})
			continue
		}
		last := len(periods) - 1
		periods[last] = append(periods[last], day)
	}

	for i, period := range periods {
		c := Cycle{
			StartDateKey: period[0],
			Flow:         flowStats(period, peaks),
		}
		if i+1 < len(periods) {
			c.EndDateKey = periods[i+1][0].AddDays(-1)
		} else {
			c.Ongoing = true
			c.EndDateKey = today
			if c.EndDateKey < c.Flow.LastFlowDateKey {
				c.EndDateKey = c.Flow.LastFlowDateKey
			}
		}
		cycles = append(cycles, c)
	}

	return cycles
}

// flowStats summarizes the sorted flow days of one period.
func flowStats(period []DateKey, peaks map[DateKey]int) FlowStats {
	first, last := period[0], period[len(period)-1]
	stats := FlowStats{
		FlowDays:        len(period),
		PeriodDays:      DaysBetween(first, last) + 1,
		LastFlowDateKey: last,
	}

	var sum int
	for _, d := range period {
		p := peaks[d]
		sum += p
		if p > stats.PeakIntensity {
			stats.PeakIntensity = p
		}
	}
	stats.MeanIntensity = float64(sum) / float64(len(period))
	return stats
}

// LastFlowDay returns the most recent positive flow day across all cycles.
func LastFlowDay(cycles []Cycle) (DateKey, bool) {
	if len(cycles) == 0 {
		return 0, false
	}
	return cycles[len(cycles)-1].Flow.LastFlowDateKey, true
}
