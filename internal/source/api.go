package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"ecommerce-analytics-pipeline/internal/model"
	"ecommerce-analytics-pipeline/pkg/logger"
	"ecommerce-analytics-pipeline/pkg/metrics"
)

// maxBodyBytes bounds a single API response.
const maxBodyBytes = 64 << 20

// APIReader fetches a JSON array over HTTP GET, retrying failed attempts
// with exponential backoff.
type APIReader struct {
	URL     string
	Client  *http.Client
	Retry   model.RetryConfig
	Sleep   Sleeper
	Log     *logger.Logger
	Metrics *metrics.Manager
}

// NewAPIReader returns a reader with its own client bounded by timeout.
func NewAPIReader(url string, timeout time.Duration, rc model.RetryConfig, log *logger.Logger, m *metrics.Manager) *APIReader {
	if log == nil {
		log = logger.NewNop()
	}
	return &APIReader{
		URL:     url,
		Client:  &http.Client{Timeout: timeout},
		Retry:   rc,
		Log:     log,
		Metrics: m,
	}
}

func (r *APIReader) Read(ctx context.Context, kind model.RecordKind) ([]model.RawRecord, error) {
	var records []model.RawRecord
	err := retry(ctx, r.Retry, r.Sleep,
		func(attempt int, wait time.Duration, err error) {
			r.Log.Warn("api request failed, retrying",
				"kind", kind, "attempt", attempt+1, "wait", wait.String(), "error", err)
			r.Metrics.IncExtractionRetry()
		},
		func(attempt int) error {
			r.Log.Info("extracting from api", "kind", kind, "url", r.URL, "attempt", attempt+1)
			recs, err := r.fetch(ctx, kind)
			if err != nil {
				return err
			}
			records = recs
			return nil
		})
	if err != nil {
		r.Log.Error("all api attempts failed", "kind", kind, "attempts", r.Retry.MaxRetries+1, "error", err)
		return nil, err
	}
	return records, nil
}

func (r *APIReader) fetch(ctx context.Context, kind model.RecordKind) ([]model.RawRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.URL, nil)
	if err != nil {
		return nil, newSourceError(ErrIO, kind, r.URL, err)
	}
	req.Header.Set("Accept", "application/json")

	client := r.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, newSourceError(ErrIO, kind, r.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, newSourceError(ErrIO, kind, r.URL, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, newSourceError(ErrIO, kind, r.URL, err)
	}
	records, err := decodeRecords(body)
	if err != nil {
		return nil, newSourceError(ErrParse, kind, r.URL, err)
	}
	return records, nil
}

// Close releases idle keep-alive connections.
func (r *APIReader) Close() error {
	if r.Client != nil {
		r.Client.CloseIdleConnections()
	}
	return nil
}
