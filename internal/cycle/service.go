package cycle

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/maypok86/otter/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/i474232898/cycle-tracker/internal/logger"
)

const (
	defaultSummaryTTL = 30 * time.Minute
	maxNoteLength     = 2000
)

// Service ties the sample store to cycle derivation and prediction.
type Service struct {
	stores StoreResolver
	users  UserLister
	now    func() time.Time

	mu     sync.RWMutex
	policy Policy

	// gen is bumped on every write or policy change so that a summary computed
	// from a stale read is not cached.
	gen        atomic.Uint64
	summaryTTL time.Duration
	summaries  *otter.Cache[string, Summary]
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithPolicy sets the initial prediction policy.
func WithPolicy(p Policy) Option {
	return func(s *Service) { s.policy = p }
}

// WithUserLister lets Rollover re-warm summaries for every known user.
func WithUserLister(l UserLister) Option {
	return func(s *Service) { s.users = l }
}

// WithSummaryTTL bounds how long a computed summary is reused.
func WithSummaryTTL(ttl time.Duration) Option {
	return func(s *Service) { s.summaryTTL = ttl }
}

// NewService creates a new Service.
func NewService(stores StoreResolver, opts ...Option) *Service {
	s := &Service{
		stores:     stores,
		now:        time.Now,
		policy:     DefaultPolicy(),
		summaryTTL: defaultSummaryTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.summaryTTL <= 0 {
		s.summaryTTL = defaultSummaryTTL
	}
	s.summaries = otter.Must(&otter.Options[string, Summary]{
		MaximumSize:      10_000,
		ExpiryCalculator: otter.ExpiryWriting[string, Summary](s.summaryTTL),
	})
	return s
}

// Today is the calendar day of the service clock.
func (s *Service) Today() DateKey {
	return KeyOf(s.now())
}

// Policy returns the prediction policy in effect.
func (s *Service) Policy() Policy {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.policy
}

// SetPolicy swaps the prediction policy and drops every cached summary.
func (s *Service) SetPolicy(p Policy) {
	s.mu.Lock()
	s.policy = p
	s.mu.Unlock()

	s.gen.Add(1)
	s.summaries.InvalidateAll()
	logger.Log.WithFields(logrus.Fields{
		"enabled":        p.Enabled,
		"window_days":    p.WindowDays,
		"history_cycles": p.HistoryCycles,
	}).Info("cycle: prediction policy updated")
}

// Summary derives cycles and the prediction from the user's full flow history.
func (s *Service) Summary(ctx context.Context, userID string) (Summary, error) {
	today := s.Today()
	if cached, ok := s.summaries.GetIfPresent(userID); ok && cached.Today == today {
		return cloneSummary(cached), nil
	}

	gen := s.gen.Load()
	store, err := s.stores.Resolve(ctx, userID)
	if err != nil {
		return Summary{}, err
	}
	flow, err := store.ListAll(ctx, userID, CategoryFlow)
	if err != nil {
		return Summary{}, fmt.Errorf("listing flow history: %w", err)
	}

	sum := Summarize(flow, today, s.Policy())
	if s.gen.Load() == gen {
		s.summaries.Set(userID, sum)
	}

	logger.Log.WithFields(logrus.Fields{
		"user":    userID,
		"samples": len(flow),
		"cycles":  len(sum.Cycles),
	}).Debug("cycle: summary computed")
	return cloneSummary(sum), nil
}

// Summarize is the pure part of Summary: flow samples in, derived state out.
func Summarize(flow []Sample, today DateKey, policy Policy) Summary {
	observations := make([]Observation, 0, len(flow))
	for _, smp := range flow {
		if smp.Category != "" && smp.Category != CategoryFlow {
			continue
		}
		observations = append(observations, smp.Observation())
	}

	cycles := DeriveCycles(observations, today)
	p := policy.normalized()
	avg, used := AverageCycleLength(cycles, p.HistoryCycles, p.DefaultCycleDays)

	sum := Summary{
		Today:             today,
		Cycles:            cycles,
		AverageCycleDays:  avg,
		HistoryCycleCount: used,
	}
	if w, ok := PredictNextWindow(cycles, policy); ok {
		sum.Prediction = &w
	}
	return sum
}

func cloneSummary(s Summary) Summary {
	s.Cycles = slices.Clone(s.Cycles)
	if s.Prediction != nil {
		w := *s.Prediction
		s.Prediction = &w
	}
	return s
}

func (s *Service) invalidate(userID string) {
	s.gen.Add(1)
	s.summaries.Invalidate(userID)
}

// Prediction returns the predicted window, or nil when none can be made.
func (s *Service) Prediction(ctx context.Context, userID string) (*PredictedWindow, error) {
	sum, err := s.Summary(ctx, userID)
	if err != nil {
		return nil, err
	}
	return sum.Prediction, nil
}

// Day returns what the user logged on one day.
func (s *Service) Day(ctx context.Context, userID string, date DateKey) (DayEntry, error) {
	if !date.Valid() {
		return DayEntry{}, fmt.Errorf("%w: %d", ErrInvalidDate, date)
	}
	store, err := s.stores.Resolve(ctx, userID)
	if err != nil {
		return DayEntry{}, err
	}
	samples, err := store.ListBetween(ctx, userID, AllCategories, date, date.AddDays(1))
	if err != nil {
		return DayEntry{}, fmt.Errorf("listing day samples: %w", err)
	}
	if e, ok := groupByDay(samples)[date]; ok {
		return *e, nil
	}
	return DayEntry{Date: date, Complaints: []string{}}, nil
}

func validateEntry(entry DayEntry) error {
	if !entry.Date.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidDate, entry.Date)
	}
	if entry.FlowLevel < 0 || entry.FlowLevel > MaxIntensity {
		return fmt.Errorf("%w: flow level %d out of range 0..%d", ErrInvalidSample, entry.FlowLevel, MaxIntensity)
	}
	for _, code := range entry.Complaints {
		if strings.TrimSpace(code) == "" {
			return fmt.Errorf("%w: empty complaint code", ErrInvalidSample)
		}
	}
	if len(entry.Note) > maxNoteLength {
		return fmt.Errorf("%w: note longer than %d bytes", ErrInvalidSample, maxNoteLength)
	}
	return nil
}

// LogDay replaces what the user logged on entry.Date: the flow level is
// upserted, complaints are added or removed to match entry.Complaints and the
// note is set, or deleted when entry.Note is empty.
func (s *Service) LogDay(ctx context.Context, userID string, entry DayEntry) (DayEntry, error) {
	if err := validateEntry(entry); err != nil {
		return DayEntry{}, err
	}
	store, err := s.stores.Resolve(ctx, userID)
	if err != nil {
		return DayEntry{}, err
	}
	existing, err := store.ListBetween(ctx, userID, AllCategories, entry.Date, entry.Date.AddDays(1))
	if err != nil {
		return DayEntry{}, fmt.Errorf("listing day samples: %w", err)
	}

	batchID := uuid.NewString()
	newSample := func(c Category) Sample {
		return Sample{UserID: userID, Category: c, ValueDateKey: entry.Date, BatchID: batchID}
	}

	var (
		toSave   []Sample
		toDelete []string
		flowSeen bool
		noteSeen bool
	)
	wanted := make(map[string]bool, len(entry.Complaints))
	for _, code := range entry.Complaints {
		wanted[strings.TrimSpace(code)] = true
	}

	for _, smp := range existing {
		switch smp.Category {
		case CategoryFlow:
			if flowSeen {
				toDelete = append(toDelete, smp.ID)
				continue
			}
			flowSeen = true
			if smp.Intensity != entry.FlowLevel {
				smp.Intensity = entry.FlowLevel
				toSave = append(toSave, smp)
			}
		case CategoryComplaint:
			if wanted[smp.Code] {
				delete(wanted, smp.Code)
				continue
			}
			toDelete = append(toDelete, smp.ID)
		case CategoryNote:
			if noteSeen || entry.Note == "" {
				toDelete = append(toDelete, smp.ID)
				continue
			}
			noteSeen = true
			if smp.Text != entry.Note {
				smp.Text = entry.Note
				toSave = append(toSave, smp)
			}
		}
	}

	if !flowSeen {
		flow := newSample(CategoryFlow)
		flow.Intensity = entry.FlowLevel
		toSave = append(toSave, flow)
	}
	codes := make([]string, 0, len(wanted))
	for code := range wanted {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	for _, code := range codes {
		c := newSample(CategoryComplaint)
		c.Code = code
		toSave = append(toSave, c)
	}
	if !noteSeen && entry.Note != "" {
		n := newSample(CategoryNote)
		n.Text = entry.Note
		toSave = append(toSave, n)
	}

	if len(toDelete) > 0 {
		if err := store.DeleteSamples(ctx, userID, toDelete); err != nil {
			return DayEntry{}, fmt.Errorf("deleting replaced samples: %w", err)
		}
	}
	if len(toSave) > 0 {
		if _, err := store.SaveSamples(ctx, toSave); err != nil {
			return DayEntry{}, fmt.Errorf("saving day samples: %w", err)
		}
	}
	s.invalidate(userID)

	logger.Log.WithFields(logrus.Fields{
		"user":    userID,
		"date":    entry.Date.String(),
		"saved":   len(toSave),
		"deleted": len(toDelete),
	}).Info("cycle: day logged")

	return s.Day(ctx, userID, entry.Date)
}

// ClearDay deletes everything logged on one day.
func (s *Service) ClearDay(ctx context.Context, userID string, date DateKey) error {
	if !date.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidDate, date)
	}
	store, err := s.stores.Resolve(ctx, userID)
	if err != nil {
		return err
	}
	samples, err := store.ListBetween(ctx, userID, AllCategories, date, date.AddDays(1))
	if err != nil {
		return fmt.Errorf("listing day samples: %w", err)
	}
	if len(samples) == 0 {
		return nil
	}
	ids := make([]string, 0, len(samples))
	for _, smp := range samples {
		ids = append(ids, smp.ID)
	}
	if err := store.DeleteSamples(ctx, userID, ids); err != nil {
		return fmt.Errorf("deleting day samples: %w", err)
	}
	s.invalidate(userID)
	return nil
}

// DeleteSample removes a single sample by ID.
func (s *Service) DeleteSample(ctx context.Context, userID, id string) error {
	store, err := s.stores.Resolve(ctx, userID)
	if err != nil {
		return err
	}
	if err := store.DeleteSamples(ctx, userID, []string{id}); err != nil {
		return err
	}
	s.invalidate(userID)
	return nil
}

// Calendar builds the month view: per-day markers plus the predicted window.
func (s *Service) Calendar(ctx context.Context, userID string, year int, month time.Month) (CalendarMonth, error) {
	if month < time.January || month > time.December || year < 1 || year > 9999 {
		return CalendarMonth{}, fmt.Errorf("%w: %04d-%02d", ErrInvalidDate, year, month)
	}
	store, err := s.stores.Resolve(ctx, userID)
	if err != nil {
		return CalendarMonth{}, err
	}
	from, to := MonthBounds(year, month)

	var (
		samples []Sample
		sum     Summary
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		samples, err = store.ListBetween(gctx, userID, AllCategories, from, to)
		if err != nil {
			return fmt.Errorf("listing month samples: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		sum, err = s.Summary(gctx, userID)
		return err
	})
	if err := g.Wait(); err != nil {
		return CalendarMonth{}, err
	}

	today := sum.Today
	byDay := groupByDay(samples)
	view := CalendarMonth{
		Month:         from.Date().Format("2006-01"),
		Days:          make([]CalendarDay, 0, DaysBetween(from, to)),
		Prediction:    sum.Prediction,
		MaxSelectable: today,
	}
	for d := from; d < to; d = d.AddDays(1) {
		day := CalendarDay{
			Date:     d,
			Today:    d == today,
			Disabled: d > today,
		}
		if e, ok := byDay[d]; ok {
			day.FlowLevel = e.FlowLevel
			day.HasComplaint = len(e.Complaints) > 0
			day.HasNote = e.Note != ""
		}
		if sum.Prediction != nil {
			day.Predicted = IsWithinPredictedWindow(d, *sum.Prediction)
		}
		view.Days = append(view.Days, day)
	}
	return view, nil
}

// History returns every cycle, newest first, with the days logged inside it.
func (s *Service) History(ctx context.Context, userID string) ([]HistoryEntry, error) {
	sum, err := s.Summary(ctx, userID)
	if err != nil {
		return nil, err
	}
	entries := make([]HistoryEntry, 0, len(sum.Cycles))
	if len(sum.Cycles) == 0 {
		return entries, nil
	}

	store, err := s.stores.Resolve(ctx, userID)
	if err != nil {
		return nil, err
	}
	first, last := sum.Cycles[0], sum.Cycles[len(sum.Cycles)-1]
	samples, err := store.ListBetween(ctx, userID, AllCategories, first.StartDateKey, last.EndDateKey.AddDays(1))
	if err != nil {
		return nil, fmt.Errorf("listing cycle samples: %w", err)
	}
	byDay := groupByDay(samples)

	for i := len(sum.Cycles) - 1; i >= 0; i-- {
		c := sum.Cycles[i]
		entry := HistoryEntry{Cycle: c, DurationDays: c.DurationDays(), Days: []DayEntry{}}
		for d := c.StartDateKey; d <= c.EndDateKey; d = d.AddDays(1) {
			if e, ok := byDay[d]; ok {
				entry.Days = append(entry.Days, *e)
			}
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Rollover drops cached summaries so open cycles are closed out against the
// new day, then recomputes them for every user the store knows about.
func (s *Service) Rollover(ctx context.Context) (int, error) {
	s.gen.Add(1)
	s.summaries.InvalidateAll()
	if s.users == nil {
		return 0, nil
	}

	users, err := s.users.Users(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing users: %w", err)
	}
	warmed := 0
	for _, u := range users {
		if ctx.Err() != nil {
			return warmed, ctx.Err()
		}
		if _, err := s.Summary(ctx, u); err != nil {
			logger.Log.WithError(err).WithField("user", u).Warn("cycle: rollover summary failed")
			continue
		}
		warmed++
	}
	return warmed, nil
}

// groupByDay folds samples into one DayEntry per date. Duplicate flow samples
// keep the highest level; the most recently created note wins.
func groupByDay(samples []Sample) map[DateKey]*DayEntry {
	days := make(map[DateKey]*DayEntry)
	noteAt := make(map[DateKey]time.Time)
	for _, smp := range samples {
		e, ok := days[smp.ValueDateKey]
		if !ok {
			e = &DayEntry{Date: smp.ValueDateKey, Complaints: []string{}}
			days[smp.ValueDateKey] = e
		}
		switch smp.Category {
		case CategoryFlow:
			if smp.Intensity > e.FlowLevel {
				e.FlowLevel = smp.Intensity
			}
		case CategoryComplaint:
			if smp.Code != "" && !slices.Contains(e.Complaints, smp.Code) {
				e.Complaints = append(e.Complaints, smp.Code)
			}
		case CategoryNote:
			if e.Note == "" || smp.CreatedAt.After(noteAt[smp.ValueDateKey]) {
				e.Note = smp.Text
				noteAt[smp.ValueDateKey] = smp.CreatedAt
			}
		}
	}
	for _, e := range days {
		sort.Strings(e.Complaints)
	}
	return days
}
