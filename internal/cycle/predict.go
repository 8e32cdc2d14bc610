package cycle

const (
	// DefaultCycleLengthDays is used when there is no completed cycle to average.
	DefaultCycleLengthDays = 28
	// DefaultWindowDays is the width of the predicted window after its first day.
	DefaultWindowDays = 5
	// DefaultHistoryCycles is how many completed cycles feed the average.
	DefaultHistoryCycles = 3
)

// Policy tunes the predictor. The zero value disables prediction.
type Policy struct {
	Enabled               bool
	WindowDays            int
	HistoryCycles         int
	DefaultCycleDays      int
	RequireCompletedCycle bool
}

// DefaultPolicy returns prediction enabled with the stock constants.
func DefaultPolicy() Policy {
	return Policy{
		Enabled:          true,
		WindowDays:       DefaultWindowDays,
		HistoryCycles:    DefaultHistoryCycles,
		DefaultCycleDays: DefaultCycleLengthDays,
	}
}

func (p Policy) normalized() Policy {
	if p.WindowDays < 0 {
		p.WindowDays = 0
	}
	if p.HistoryCycles <= 0 {
		p.HistoryCycles = DefaultHistoryCycles
	}
	if p.DefaultCycleDays <= 0 {
		p.DefaultCycleDays = DefaultCycleLengthDays
	}
	return p
}

// completedHistory returns up to n completed cycles, newest first. The most
// recent cycle is always skipped since it may still be open.
func completedHistory(cycles []Cycle, n int) []Cycle {
	if len(cycles) < 2 {
		return nil
	}
	history := make([]Cycle, 0, n)
	for i := len(cycles) - 2; i >= 0 && len(history) < n; i-- {
		history = append(history, cycles[i])
	}
	return history
}

// AverageCycleLength floors the mean inclusive duration of the last n completed
// cycles. It returns fallback and 0 when there is no completed cycle.
func AverageCycleLength(cycles []Cycle, n, fallback int) (avg int, used int) {
	history := completedHistory(cycles, n)
	if len(history) == 0 {
		return fallback, 0
	}
	var total int
	for _, c := range history {
		total += c.DurationDays()
	}
	return total / len(history), len(history)
}

// PredictNextWindow projects the next period window from the cycles returned
// by DeriveCycles. The second result is false when no prediction is made.
func PredictNextWindow(cycles []Cycle, policy Policy) (PredictedWindow, bool) {
	if !policy.Enabled {
		return PredictedWindow{}, false
	}
	p := policy.normalized()

	lastFlow, ok := LastFlowDay(cycles)
	if !ok {
		return PredictedWindow{}, false
	}

	avg, used := AverageCycleLength(cycles, p.HistoryCycles, p.DefaultCycleDays)
	if used == 0 && p.RequireCompletedCycle {
		return PredictedWindow{}, false
	}

	start := lastFlow.AddDays(avg)
	return PredictedWindow{
		Start: start,
		End:   start.AddDays(p.WindowDays),
	}, true
}

// IsWithinPredictedWindow reports whether date falls in [w.Start, w.End].
func IsWithinPredictedWindow(date DateKey, w PredictedWindow) bool {
	return date >= w.Start && date <= w.End
}
