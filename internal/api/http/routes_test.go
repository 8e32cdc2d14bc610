package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/cycle-tracker/internal/cycle"
	"github.com/i474232898/cycle-tracker/internal/store"
)

type forgetRecorder struct{ keys []string }

func (f *forgetRecorder) Forget(key string) { f.keys = append(f.keys, key) }

func newTestApp(t *testing.T) (*fiber.App, *store.MemoryStore, *forgetRecorder) {
	t.Helper()
	memStore := store.NewMemoryStore(0)
	now := func() time.Time { return time.Date(2024, 4, 10, 9, 0, 0, 0, time.UTC) }
	svc := cycle.NewService(cycle.StaticResolver(memStore), cycle.WithClock(now))

	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	sessions := &forgetRecorder{}
	RegisterRoutes(app, svc, sessions)
	return app, memStore, sessions
}

func do(t *testing.T, app *fiber.App, method, target, body string) (*http.Response, []byte) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	req.Header.Set(SessionHeader, "alice")
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func TestRoutes_RequireSession(t *testing.T) {
	app, _, _ := newTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/summary", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRoutes_LogAndReadDay(t *testing.T) {
	app, _, _ := newTestApp(t)

	resp, body := do(t, app, http.MethodPut, "/api/v1/days/2024-04-01",
		`{"flowLevel":2,"complaints":["267102003"],"note":" cramps "}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	resp, body = do(t, app, http.MethodGet, "/api/v1/days/2024-04-01", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var entry cycle.DayEntry
	require.NoError(t, json.Unmarshal(body, &entry))
	assert.Equal(t, cycle.DayEntry{
		Date:       cycle.KeyFromDate(2024, 4, 1),
		FlowLevel:  2,
		Complaints: []string{"267102003"},
		Note:       "cramps",
	}, entry)

	resp, _ = do(t, app, http.MethodDelete, "/api/v1/days/2024-04-01", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	_, body = do(t, app, http.MethodGet, "/api/v1/days/2024-04-01", "")
	require.NoError(t, json.Unmarshal(body, &entry))
	assert.Equal(t, 0, entry.FlowLevel)
	assert.Empty(t, entry.Complaints)
}

func TestRoutes_DayValidation(t *testing.T) {
	app, _, _ := newTestApp(t)

	tests := []struct {
		name, target, body string
	}{
		{"bad date", "/api/v1/days/yesterday", `{"flowLevel":1}`},
		{"flow too high", "/api/v1/days/2024-04-01", `{"flowLevel":4}`},
		{"negative flow", "/api/v1/days/2024-04-01", `{"flowLevel":-1}`},
		{"empty complaint", "/api/v1/days/2024-04-01", `{"complaints":[""]}`},
		{"malformed body", "/api/v1/days/2024-04-01", `{"flowLevel":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := do(t, app, http.MethodPut, tt.target, tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode, string(body))
		})
	}
}

func TestRoutes_DeleteUnknownSample(t *testing.T) {
	app, _, _ := newTestApp(t)

	resp, _ := do(t, app, http.MethodDelete, "/api/v1/samples/does-not-exist", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRoutes_PredictionAndCalendar(t *testing.T) {
	app, memStore, _ := newTestApp(t)

	var samples []cycle.Sample
	for _, d := range []cycle.DateKey{
		cycle.KeyFromDate(2024, 2, 1), cycle.KeyFromDate(2024, 2, 2),
		cycle.KeyFromDate(2024, 2, 29), cycle.KeyFromDate(2024, 3, 1),
		cycle.KeyFromDate(2024, 3, 28), cycle.KeyFromDate(2024, 3, 29),
	} {
		samples = append(samples, cycle.Sample{UserID: "alice", Category: cycle.CategoryFlow, ValueDateKey: d, Intensity: 2})
	}
	_, err := memStore.SaveSamples(t.Context(), samples)
	require.NoError(t, err)

	resp, body := do(t, app, http.MethodGet, "/api/v1/prediction", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var pred struct {
		Predicted bool                   `json:"predicted"`
		Window    *cycle.PredictedWindow `json:"window"`
	}
	require.NoError(t, json.Unmarshal(body, &pred))
	require.True(t, pred.Predicted)
	// Completed cycles are 28 and 28 days; the last flow day is 2024-03-29.
	assert.Equal(t, cycle.KeyFromDate(2024, 4, 26), pred.Window.Start)
	assert.Equal(t, cycle.KeyFromDate(2024, 5, 1), pred.Window.End)

	resp, body = do(t, app, http.MethodGet, "/api/v1/calendar?month=2024-04", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var cal calendarResponse
	require.NoError(t, json.Unmarshal(body, &cal))
	assert.Equal(t, "2024-04", cal.Month)
	require.Len(t, cal.Days, 30)
	assert.True(t, cal.Days[9].Today)
	assert.True(t, cal.Days[10].Disabled)
	assert.True(t, cal.Days[25].Predicted)
	assert.False(t, cal.Days[24].Predicted)

	resp, _ = do(t, app, http.MethodGet, "/api/v1/calendar?month=April", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = do(t, app, http.MethodGet, "/api/v1/cycles", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var hist struct {
		Cycles []cycle.HistoryEntry `json:"cycles"`
	}
	require.NoError(t, json.Unmarshal(body, &hist))
	require.Len(t, hist.Cycles, 3)
	assert.True(t, hist.Cycles[0].Ongoing)
	assert.Equal(t, 28, hist.Cycles[1].DurationDays)
}

func TestRoutes_NoPrediction(t *testing.T) {
	app, _, _ := newTestApp(t)

	resp, body := do(t, app, http.MethodGet, "/api/v1/prediction", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"predicted":false,"window":null}`, string(body))
}

func TestRoutes_Logout(t *testing.T) {
	app, _, sessions := newTestApp(t)

	resp, _ := do(t, app, http.MethodDelete, "/api/v1/session", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, []string{"alice"}, sessions.keys)
}
