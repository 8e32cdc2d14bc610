package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"

	"github.com/i474232898/cycle-tracker/internal/cycle"
)

const (
	defaultPageSize = 1000
	contentLang     = "en"
	typeLOINC       = "LOINC"
	typeSNOMED      = "SNOMED-CT"
)

type codingReference struct {
	Type string `json:"type"`
	Code string `json:"code"`
}

type measure struct {
	Value float64  `json:"value"`
	Min   *float64 `json:"min,omitempty"`
	Max   *float64 `json:"max,omitempty"`
}

type content struct {
	MeasureValue *measure `json:"measureValue,omitempty"`
	StringValue  string   `json:"stringValue,omitempty"`
}

// dataSample is the backend's wire format.
type dataSample struct {
	ID        string             `json:"id,omitempty"`
	BatchID   string             `json:"batchId,omitempty"`
	ValueDate int64              `json:"valueDate"`
	Created   int64              `json:"created,omitempty"` // epoch millis
	Labels    []codingReference  `json:"labels"`
	Codes     []codingReference  `json:"codes,omitempty"`
	Content   map[string]content `json:"content,omitempty"`
}

// sampleFilter selects the token owner's samples by label and, optionally,
// an inclusive value-date range.
type sampleFilter struct {
	Labels    []codingReference `json:"labels"`
	StartDate *int64            `json:"startDate,omitempty"`
	EndDate   *int64            `json:"endDate,omitempty"`
}

type paginatedList struct {
	Rows        []dataSample `json:"rows"`
	NextKeyPair *struct {
		StartKeyDocID string `json:"startKeyDocId"`
	} `json:"nextKeyPair,omitempty"`
}

// BackendConfig describes how to reach the remote data-sample API.
type BackendConfig struct {
	BaseURL  string
	Client   *http.Client
	PageSize int
	// Breaker is shared by every session talking to the same backend.
	// A private one is created when nil.
	Breaker *gobreaker.CircuitBreaker
}

// NewBreaker creates the circuit breaker used for backend calls.
func NewBreaker(name string) *gobreaker.CircuitBreaker {
	return newBreaker(name)
}

// Backend implements cycle.Store on top of the remote data-sample API,
// authenticated with one session token. The backend scopes every call to the
// token's data owner; the userID arguments only label the returned samples.
type Backend struct {
	name     string
	baseURL  string
	token    string
	pageSize int
	httpCfg  HTTPClientConfig
	circuit  *gobreaker.CircuitBreaker
}

func NewBackend(cfg BackendConfig, token string) *Backend {
	cb := cfg.Breaker
	if cb == nil {
		cb = newBreaker("backend")
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	return &Backend{
		name:     "backend",
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		token:    token,
		pageSize: pageSize,
		httpCfg: HTTPClientConfig{
			Client: cfg.Client,
			Backoff: BackoffConfig{
				MaxRetries:      3,
				InitialInterval: 500 * time.Millisecond,
				MaxInterval:     5 * time.Second,
			},
		},
		circuit: cb,
	}
}

func (b *Backend) Name() string {
	return b.name
}

// ListBetween queries each category's label over [from, to), following
// pagination until the backend reports no next page.
func (b *Backend) ListBetween(ctx context.Context, userID string, categories []cycle.Category, from, to cycle.DateKey) ([]cycle.Sample, error) {
	labels := make([]codingReference, 0, len(categories))
	for _, c := range categories {
		if !c.Valid() {
			return nil, fmt.Errorf("%w: unknown category %q", cycle.ErrInvalidSample, c)
		}
		labels = append(labels, codingReference{Type: typeLOINC, Code: c.LOINC()})
	}
	start, end := int64(from), int64(to.AddDays(-1))
	samples, err := b.filter(ctx, sampleFilter{Labels: labels, StartDate: &start, EndDate: &end}, userID)
	if err != nil {
		return nil, err
	}

	out := samples[:0]
	for _, smp := range samples {
		if smp.ValueDateKey >= from && smp.ValueDateKey < to {
			out = append(out, smp)
		}
	}
	return out, nil
}

// ListAll returns the full history of one category.
func (b *Backend) ListAll(ctx context.Context, userID string, category cycle.Category) ([]cycle.Sample, error) {
	if !category.Valid() {
		return nil, fmt.Errorf("%w: unknown category %q", cycle.ErrInvalidSample, category)
	}
	labels := []codingReference{{Type: typeLOINC, Code: category.LOINC()}}
	return b.filter(ctx, sampleFilter{Labels: labels}, userID)
}

func (b *Backend) filter(ctx context.Context, f sampleFilter, userID string) ([]cycle.Sample, error) {
	body, err := json.Marshal(f)
	if err != nil {
		return nil, err
	}

	samples := make([]cycle.Sample, 0)
	startKey := ""
	for {
		values := url.Values{}
		values.Set("limit", strconv.Itoa(b.pageSize))
		if startKey != "" {
			values.Set("startKey", startKey)
		}
		u := fmt.Sprintf("%s/rest/v1/dataSample/filter?%s", b.baseURL, values.Encode())

		var page paginatedList
		if err := b.do(ctx, http.MethodPost, u, body, &page); err != nil {
			return nil, fmt.Errorf("filtering data samples: %w", err)
		}
		for _, ds := range page.Rows {
			smp, ok := fromWire(ds, userID)
			if !ok {
				continue
			}
			samples = append(samples, smp)
		}
		if page.NextKeyPair == nil || page.NextKeyPair.StartKeyDocID == "" || len(page.Rows) == 0 {
			break
		}
		startKey = page.NextKeyPair.StartKeyDocID
	}
	return samples, nil
}

// SaveSamples creates or modifies samples in one batch call.
func (b *Backend) SaveSamples(ctx context.Context, samples []cycle.Sample) ([]cycle.Sample, error) {
	if len(samples) == 0 {
		return nil, nil
	}
	owner := samples[0].UserID
	wire := make([]dataSample, 0, len(samples))
	for _, smp := range samples {
		if smp.UserID == "" || smp.UserID != owner {
			return nil, fmt.Errorf("%w: batch must belong to one user", cycle.ErrInvalidSample)
		}
		if !smp.Category.Valid() {
			return nil, fmt.Errorf("%w: unknown category %q", cycle.ErrInvalidSample, smp.Category)
		}
		if smp.ID == "" {
			smp.ID = uuid.NewString()
		}
		wire = append(wire, toWire(smp))
	}

	body, err := json.Marshal(wire)
	if err != nil {
		return nil, err
	}
	u := fmt.Sprintf("%s/rest/v1/dataSample/batch", b.baseURL)
	var saved []dataSample
	if err := b.do(ctx, http.MethodPost, u, body, &saved); err != nil {
		return nil, fmt.Errorf("saving data samples: %w", err)
	}

	out := make([]cycle.Sample, 0, len(saved))
	for _, ds := range saved {
		if smp, ok := fromWire(ds, owner); ok {
			out = append(out, smp)
		}
	}
	return out, nil
}

// DeleteSamples deletes by ID. The backend answers with the IDs it removed;
// any ID missing from that answer is reported as cycle.ErrNotFound.
func (b *Backend) DeleteSamples(ctx context.Context, _ string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	body, err := json.Marshal(struct {
		IDs []string `json:"ids"`
	}{IDs: ids})
	if err != nil {
		return err
	}

	u := fmt.Sprintf("%s/rest/v1/dataSample/delete/batch", b.baseURL)
	var deleted []string
	if err := b.do(ctx, http.MethodPost, u, body, &deleted); err != nil {
		var se *statusError
		if errors.As(err, &se) && se.code == http.StatusNotFound {
			return fmt.Errorf("%w: %s", cycle.ErrNotFound, strings.Join(ids, ","))
		}
		return fmt.Errorf("deleting data samples: %w", err)
	}

	gone := make(map[string]bool, len(deleted))
	for _, id := range deleted {
		gone[id] = true
	}
	for _, id := range ids {
		if !gone[id] {
			return fmt.Errorf("%w: %s", cycle.ErrNotFound, id)
		}
	}
	return nil
}

func (b *Backend) do(ctx context.Context, method, u string, body []byte, out any) error {
	buildRequest := func() (*http.Request, error) {
		req, err := http.NewRequest(method, u, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		if b.token != "" {
			req.Header.Set("Authorization", "Bearer "+b.token)
		}
		return req, nil
	}

	resp, err := doRequestWithResilience(ctx, b.httpCfg, b.circuit, buildRequest)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding backend response: %w", err)
	}
	return nil
}

func toWire(smp cycle.Sample) dataSample {
	ds := dataSample{
		ID:        smp.ID,
		BatchID:   smp.BatchID,
		ValueDate: int64(smp.ValueDateKey),
		Labels:    []codingReference{{Type: typeLOINC, Code: smp.Category.LOINC()}},
	}
	if !smp.CreatedAt.IsZero() {
		ds.Created = smp.CreatedAt.UnixMilli()
	}
	switch smp.Category {
	case cycle.CategoryFlow:
		lo, hi := 0.0, float64(cycle.MaxIntensity)
		ds.Content = map[string]content{
			contentLang: {MeasureValue: &measure{Value: float64(smp.Intensity), Min: &lo, Max: &hi}},
		}
	case cycle.CategoryComplaint:
		ds.Codes = []codingReference{{Type: typeSNOMED, Code: smp.Code}}
	case cycle.CategoryNote:
		ds.Content = map[string]content{contentLang: {StringValue: smp.Text}}
	}
	return ds
}

// fromWire maps a backend record to a Sample. Records without a known
// category label are skipped.
func fromWire(ds dataSample, userID string) (cycle.Sample, bool) {
	var (
		category cycle.Category
		found    bool
	)
	for _, l := range ds.Labels {
		if l.Type != typeLOINC {
			continue
		}
		if category, found = cycle.CategoryFromLOINC(l.Code); found {
			break
		}
	}
	if !found {
		return cycle.Sample{}, false
	}

	smp := cycle.Sample{
		ID:           ds.ID,
		UserID:       userID,
		Category:     category,
		ValueDateKey: cycle.DateKey(ds.ValueDate),
		BatchID:      ds.BatchID,
	}
	if ds.Created > 0 {
		smp.CreatedAt = time.UnixMilli(ds.Created).UTC()
	}
	c := ds.Content[contentLang]
	switch category {
	case cycle.CategoryFlow:
		if c.MeasureValue != nil {
			smp.Intensity = int(c.MeasureValue.Value)
		}
	case cycle.CategoryComplaint:
		for _, code := range ds.Codes {
			if code.Type == typeSNOMED {
				smp.Code = code.Code
				break
			}
		}
	case cycle.CategoryNote:
		smp.Text = c.StringValue
	}
	return smp, true
}
