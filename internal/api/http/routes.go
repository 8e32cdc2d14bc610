package httpapi

import (
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/cycle-tracker/internal/cycle"
	"github.com/i474232898/cycle-tracker/internal/cycle/sources"
	"github.com/i474232898/cycle-tracker/internal/session"
)

// SessionHeader carries the caller's session key; it doubles as the user id.
const SessionHeader = "X-Session-Key"

const userLocal = "user"

var validate = validator.New()

// Forgetter drops per-session state on logout.
type Forgetter interface {
	Forget(sessionKey string)
}

// RegisterRoutes wires the HTTP handlers into the Fiber app. sessions may be
// nil when stores are not session scoped.
func RegisterRoutes(app *fiber.App, service *cycle.Service, sessions Forgetter) {
	v1 := app.Group("/api/v1", requireSession)

	v1.Get("/days/:date", func(c *fiber.Ctx) error {
		date, err := parseDateParam(c)
		if err != nil {
			return err
		}
		entry, err := service.Day(c.UserContext(), userID(c), date)
		if err != nil {
			return toFiberError(err, "failed to load day")
		}
		return c.JSON(entry)
	})

	v1.Put("/days/:date", func(c *fiber.Ctx) error {
		date, err := parseDateParam(c)
		if err != nil {
			return err
		}
		var req dayRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		entry, err := service.LogDay(c.UserContext(), userID(c), req.toEntry(date))
		if err != nil {
			return toFiberError(err, "failed to save day")
		}
		return c.JSON(entry)
	})

	v1.Delete("/days/:date", func(c *fiber.Ctx) error {
		date, err := parseDateParam(c)
		if err != nil {
			return err
		}
		if err := service.ClearDay(c.UserContext(), userID(c), date); err != nil {
			return toFiberError(err, "failed to clear day")
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	v1.Delete("/samples/:id", func(c *fiber.Ctx) error {
		if err := service.DeleteSample(c.UserContext(), userID(c), c.Params("id")); err != nil {
			if errors.Is(err, cycle.ErrNotFound) {
				return fiber.NewError(fiber.StatusNotFound, "sample not found")
			}
			return toFiberError(err, "failed to delete sample")
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	v1.Get("/calendar", func(c *fiber.Ctx) error {
		var q calendarQuery
		if err := q.bind(c, service.Today()); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		view, err := service.Calendar(c.UserContext(), userID(c), q.year, q.month)
		if err != nil {
			return toFiberError(err, "failed to build calendar")
		}
		return c.JSON(newCalendarResponse(view))
	})

	v1.Get("/cycles", func(c *fiber.Ctx) error {
		history, err := service.History(c.UserContext(), userID(c))
		if err != nil {
			return toFiberError(err, "failed to load cycle history")
		}
		return c.JSON(fiber.Map{"cycles": history})
	})

	v1.Get("/prediction", func(c *fiber.Ctx) error {
		w, err := service.Prediction(c.UserContext(), userID(c))
		if err != nil {
			return toFiberError(err, "failed to predict next period")
		}
		return c.JSON(fiber.Map{
			"predicted": w != nil,
			"window":    w,
		})
	})

	v1.Get("/summary", func(c *fiber.Ctx) error {
		sum, err := service.Summary(c.UserContext(), userID(c))
		if err != nil {
			return toFiberError(err, "failed to summarize cycles")
		}
		return c.JSON(sum)
	})

	if sessions != nil {
		v1.Delete("/session", func(c *fiber.Ctx) error {
			sessions.Forget(userID(c))
			return c.SendStatus(fiber.StatusNoContent)
		})
	}
}

func requireSession(c *fiber.Ctx) error {
	key := strings.TrimSpace(c.Get(SessionHeader))
	if key == "" {
		return fiber.NewError(fiber.StatusUnauthorized, "missing "+SessionHeader+" header")
	}
	c.Locals(userLocal, key)
	return c.Next()
}

func userID(c *fiber.Ctx) string {
	id, _ := c.Locals(userLocal).(string)
	return id
}

// toFiberError maps domain errors to HTTP status codes.
func toFiberError(err error, msg string) error {
	switch {
	case errors.Is(err, cycle.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, cycle.ErrInvalidDate), errors.Is(err, cycle.ErrInvalidSample):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, session.ErrNoSession), errors.Is(err, sources.ErrUnauthorized):
		return fiber.NewError(fiber.StatusUnauthorized, err.Error())
	default:
		return fiber.NewError(fiber.StatusInternalServerError, msg)
	}
}

func parseDateParam(c *fiber.Ctx) (cycle.DateKey, error) {
	date, err := cycle.ParseDateKey(c.Params("date"))
	if err != nil {
		return 0, fiber.NewError(fiber.StatusBadRequest, "invalid date; use YYYY-MM-DD")
	}
	return date, nil
}

// dayRequest is the body of PUT /days/:date.
type dayRequest struct {
	FlowLevel  int      `json:"flowLevel" validate:"min=0,max=3"`
	Complaints []string `json:"complaints" validate:"omitempty,max=50,dive,required,max=32"`
	Note       string   `json:"note" validate:"max=2000"`
}

func (r dayRequest) toEntry(date cycle.DateKey) cycle.DayEntry {
	complaints := r.Complaints
	if complaints == nil {
		complaints = []string{}
	}
	return cycle.DayEntry{
		Date:       date,
		FlowLevel:  r.FlowLevel,
		Complaints: complaints,
		Note:       strings.TrimSpace(r.Note),
	}
}

// calendarQuery holds the month query parameter; it defaults to the current month.
type calendarQuery struct {
	year  int
	month time.Month
}

func (q *calendarQuery) bind(c *fiber.Ctx, today cycle.DateKey) error {
	raw := c.Query("month")
	if raw == "" {
		t := today.Date()
		q.year, q.month = t.Year(), t.Month()
		return nil
	}
	t, err := time.Parse("2006-01", raw)
	if err != nil {
		return errors.New("invalid month; use YYYY-MM")
	}
	q.year, q.month = t.Year(), t.Month()
	return nil
}

type calendarDayResponse struct {
	cycle.CalendarDay
	ComplaintMarker bool `json:"complaintMarker"`
}

type calendarResponse struct {
	Month         string                 `json:"month"`
	Days          []calendarDayResponse  `json:"days"`
	Prediction    *cycle.PredictedWindow `json:"prediction"`
	MaxSelectable cycle.DateKey          `json:"maxSelectable"`
}

func newCalendarResponse(view cycle.CalendarMonth) calendarResponse {
	days := make([]calendarDayResponse, 0, len(view.Days))
	for _, d := range view.Days {
		days = append(days, calendarDayResponse{CalendarDay: d, ComplaintMarker: d.ShowComplaintMarker()})
	}
	return calendarResponse{
		Month:         view.Month,
		Days:          days,
		Prediction:    view.Prediction,
		MaxSelectable: view.MaxSelectable,
	}
}
