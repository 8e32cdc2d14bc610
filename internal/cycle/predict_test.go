package cycle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scenarioCycles() []Cycle {
	var obs []Observation
	obs = append(obs, flowDays(2, span(KeyFromDate(2024, 1, 1), 3)...)...)
	obs = append(obs, flowDays(2, span(KeyFromDate(2024, 1, 29), 3)...)...)
	obs = append(obs, flowDays(2, span(KeyFromDate(2024, 2, 26), 3)...)...)
	return DeriveCycles(obs, KeyFromDate(2024, 3, 10))
}

func TestPredictNextWindow_Scenario(t *testing.T) {
	w, ok := PredictNextWindow(scenarioCycles(), DefaultPolicy())
	require.True(t, ok)
	assert.Equal(t, "2024-03-27", w.Start.String())
	assert.Equal(t, "2024-04-01", w.End.String())
}

func TestPredictNextWindow_Empty(t *testing.T) {
	_, ok := PredictNextWindow(nil, DefaultPolicy())
	assert.False(t, ok)
	_, ok = PredictNextWindow([]Cycle{}, DefaultPolicy())
	assert.False(t, ok)
}

func TestPredictNextWindow_DefaultCycleLength(t *testing.T) {
	cycles := DeriveCycles(flowDays(1, span(KeyFromDate(2024, 1, 1), 3)...), KeyFromDate(2024, 1, 10))
	require.Len(t, cycles, 1)

	w, ok := PredictNextWindow(cycles, DefaultPolicy())
	require.True(t, ok)
	assert.Equal(t, KeyFromDate(2024, 1, 3).AddDays(DefaultCycleLengthDays), w.Start)
	assert.Equal(t, w.Start.AddDays(DefaultWindowDays), w.End)

	strict := DefaultPolicy()
	strict.RequireCompletedCycle = true
	_, ok = PredictNextWindow(cycles, strict)
	assert.False(t, ok)
}

func TestPredictNextWindow_Disabled(t *testing.T) {
	p := DefaultPolicy()
	p.Enabled = false
	_, ok := PredictNextWindow(scenarioCycles(), p)
	assert.False(t, ok)

	_, ok = PredictNextWindow(scenarioCycles(), Policy{})
	assert.False(t, ok)
}

func TestPredictNextWindow_UsesLastThreeCompleted(t *testing.T) {
	base := KeyFromDate(2024, 1, 1)
	// completed durations 20, 30, 26, 28, then an open cycle
	starts := []int{0, 20, 50, 76, 104}
	var obs []Observation
	for _, s := range starts {
		obs = append(obs, Observation{ValueDateKey: base.AddDays(s), Intensity: 1})
	}
	cycles := DeriveCycles(obs, base.AddDays(110))
	require.Len(t, cycles, 5)

	avg, used := AverageCycleLength(cycles, DefaultHistoryCycles, DefaultCycleLengthDays)
	assert.Equal(t, 3, used)
	assert.Equal(t, 28, avg)

	w, ok := PredictNextWindow(cycles, DefaultPolicy())
	require.True(t, ok)
	assert.Equal(t, base.AddDays(104+28), w.Start)
}

func TestAverageCycleLength_Floors(t *testing.T) {
	base := KeyFromDate(2023, 6, 1)
	// completed durations 28, 29, 29
	starts := []int{0, 28, 57, 86}
	var obs []Observation
	for _, s := range starts {
		obs = append(obs, Observation{ValueDateKey: base.AddDays(s), Intensity: 2})
	}
	cycles := DeriveCycles(obs, base.AddDays(90))

	avg, used := AverageCycleLength(cycles, 3, 28)
	assert.Equal(t, 3, used)
	assert.Equal(t, 28, avg)

	avg, used = AverageCycleLength(cycles, 1, 28)
	assert.Equal(t, 1, used)
	assert.Equal(t, 29, avg)
}

func TestPredictNextWindow_CustomWindow(t *testing.T) {
	p := DefaultPolicy()
	p.WindowDays = 7
	w, ok := PredictNextWindow(scenarioCycles(), p)
	require.True(t, ok)
	assert.Equal(t, "2024-04-03", w.End.String())
}

func TestIsWithinPredictedWindow(t *testing.T) {
	w := PredictedWindow{Start: KeyFromDate(2024, 3, 27), End: KeyFromDate(2024, 4, 1)}

	assert.True(t, IsWithinPredictedWindow(w.Start, w))
	assert.True(t, IsWithinPredictedWindow(w.End, w))
	assert.True(t, IsWithinPredictedWindow(KeyFromDate(2024, 3, 30), w))
	assert.False(t, IsWithinPredictedWindow(w.Start.AddDays(-1), w))
	assert.False(t, IsWithinPredictedWindow(w.End.AddDays(1), w))
}
