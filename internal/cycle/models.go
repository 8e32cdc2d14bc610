package cycle

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned by stores when a sample does not exist.
	ErrNotFound = errors.New("sample not found")
	// ErrInvalidDate is returned for malformed or out-of-range date keys.
	ErrInvalidDate = errors.New("invalid date")
	// ErrInvalidSample is returned when a day entry cannot be turned into samples.
	ErrInvalidSample = errors.New("invalid sample")
)

// MaxIntensity is the top of the flow scale; 0 means no flow.
const MaxIntensity = 3

// Category is the kind of thing a user logged for a day.
type Category string

const (
	CategoryFlow      Category = "flow"
	CategoryComplaint Category = "complaint"
	CategoryNote      Category = "note"
)

// AllCategories is the set queried for day and calendar views.
var AllCategories = []Category{CategoryFlow, CategoryComplaint, CategoryNote}

var loincCodes = map[Category]string{
	CategoryFlow:      "49033-4",
	CategoryComplaint: "75322-8",
	CategoryNote:      "34109-9",
}

// LOINC returns the label code the backend files this category under.
func (c Category) LOINC() string {
	return loincCodes[c]
}

// CategoryFromLOINC maps a backend label code back to a Category.
func CategoryFromLOINC(code string) (Category, bool) {
	for c, l := range loincCodes {
		if l == code {
			return c, true
		}
	}
	return "", false
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	_, ok := loincCodes[c]
	return ok
}

// Sample is one stored record: a flow level, a single complaint or a note.
type Sample struct {
	ID           string    `json:"id"`
	UserID       string    `json:"userId"`
	Category     Category  `json:"category"`
	ValueDateKey DateKey   `json:"valueDate"`
	Intensity    int       `json:"intensity,omitempty"` // flow only
	Code         string    `json:"code,omitempty"`      // SNOMED-CT complaint code
	Text         string    `json:"text,omitempty"`      // note only
	BatchID      string    `json:"batchId,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Observation returns the flow reading carried by s.
func (s Sample) Observation() Observation {
	return Observation{ValueDateKey: s.ValueDateKey, Intensity: s.Intensity}
}

// Observation is a single flow reading for a day.
type Observation struct {
	ValueDateKey DateKey `json:"valueDate"`
	Intensity    int     `json:"intensity"`
}

// FlowStats summarizes the flow days of one cycle.
type FlowStats struct {
	FlowDays        int     `json:"flowDays"`
	PeriodDays      int     `json:"periodDays"` // first to last flow day, inclusive
	LastFlowDateKey DateKey `json:"lastFlowDate"`
	PeakIntensity   int     `json:"peakIntensity"`
	MeanIntensity   float64 `json:"meanIntensity"`
}

// Cycle spans one period's first flow day up to the day before the next period.
type Cycle struct {
	StartDateKey DateKey   `json:"startDate"`
	EndDateKey   DateKey   `json:"endDate"`
	Ongoing      bool      `json:"ongoing"`
	Flow         FlowStats `json:"flow"`
}

// DurationDays is the inclusive day count of the cycle.
func (c Cycle) DurationDays() int {
	return DaysBetween(c.StartDateKey, c.EndDateKey) + 1
}

// PredictedWindow is the range in which the next period is expected to begin.
type PredictedWindow struct {
	Start DateKey `json:"start"`
	End   DateKey `json:"end"`
}

// DayEntry is everything a user logs for a single day.
type DayEntry struct {
	Date       DateKey  `json:"date"`
	FlowLevel  int      `json:"flowLevel"`
	Complaints []string `json:"complaints"`
	Note       string   `json:"note"`
}

// CalendarDay is the per-day view model for the month calendar.
type CalendarDay struct {
	Date         DateKey `json:"date"`
	FlowLevel    int     `json:"flowLevel"`
	HasComplaint bool    `json:"hasComplaint"`
	HasNote      bool    `json:"hasNote"`
	Predicted    bool    `json:"predicted"`
	Today        bool    `json:"today"`
	Disabled     bool    `json:"disabled"`
}

// ShowComplaintMarker reports whether the complaint icon is drawn; flow drops take precedence.
func (d CalendarDay) ShowComplaintMarker() bool {
	return (d.HasComplaint || d.HasNote) && d.FlowLevel == 0
}

// CalendarMonth is the month view returned to the calendar.
type CalendarMonth struct {
	Month         string           `json:"month"` // 2006-01
	Days          []CalendarDay    `json:"days"`
	Prediction    *PredictedWindow `json:"prediction"`
	MaxSelectable DateKey          `json:"maxSelectable"`
}

// HistoryEntry is a cycle together with what was logged on each of its days.
type HistoryEntry struct {
	Cycle
	DurationDays int        `json:"durationDays"`
	Days         []DayEntry `json:"days"`
}

// Summary is the derived state for one user as of a given day.
type Summary struct {
	Today             DateKey          `json:"today"`
	Cycles            []Cycle          `json:"cycles"`
	AverageCycleDays  int              `json:"averageCycleDays"`
	HistoryCycleCount int              `json:"historyCycleCount"`
	Prediction        *PredictedWindow `json:"prediction"`
}
