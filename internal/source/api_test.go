package source

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"

	"ecommerce-analytics-pipeline/internal/model"
	"ecommerce-analytics-pipeline/pkg/metrics"
)

// flakyServer fails the first n requests with 503 and then serves body.
func flakyServer(n int32, body string) (*httptest.Server, *int32) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) <= n {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	return srv, &calls
}

func newTestReader(url string, maxRetries int, m *metrics.Manager) (*APIReader, *[]time.Duration) {
	var waits []time.Duration
	r := NewAPIReader(url, time.Second, model.RetryConfig{MaxRetries: maxRetries, Delay: time.Second}, nil, m)
	r.Sleep = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}
	return r, &waits
}

func TestAPIReader(t *testing.T) {
	ctx := context.Background()

	Convey("Given a products API that fails twice before succeeding", t, func() {
		srv, calls := flakyServer(2, `[{"product_id":"p1","name":"X","price":100}]`)
		defer srv.Close()

		reg := prometheus.NewRegistry()
		m := metrics.NewManager(metrics.WithPrometheusRegistry(reg))
		r, waits := newTestReader(srv.URL, 3, m)

		recs, err := r.Read(ctx, model.KindProducts)

		Convey("Then it succeeds after backing off exponentially", func() {
			So(err, ShouldBeNil)
			So(len(recs), ShouldEqual, 1)
			So(atomic.LoadInt32(calls), ShouldEqual, 3)
			So(*waits, ShouldResemble, []time.Duration{time.Second, 2 * time.Second})
		})

		Convey("And each retry is counted", func() {
			expected := `
# HELP pipeline_extraction_retries_total Retried API extraction attempts
# TYPE pipeline_extraction_retries_total counter
pipeline_extraction_retries_total 2
`
			So(testutil.GatherAndCompare(reg, strings.NewReader(expected), "pipeline_extraction_retries_total"), ShouldBeNil)
		})
	})

	Convey("Given an API that never recovers", t, func() {
		srv, calls := flakyServer(100, `[]`)
		defer srv.Close()
		r, waits := newTestReader(srv.URL, 2, nil)

		_, err := r.Read(ctx, model.KindProducts)

		Convey("Then max_retries+1 attempts are made and the last error is returned", func() {
			So(errors.Is(err, ErrIO), ShouldBeTrue)
			So(err.Error(), ShouldContainSubstring, "unexpected status 503")
			So(atomic.LoadInt32(calls), ShouldEqual, 3)
			So(*waits, ShouldResemble, []time.Duration{time.Second, 2 * time.Second})
		})
	})

	Convey("Given zero retries", t, func() {
		srv, calls := flakyServer(1, `[]`)
		defer srv.Close()
		r, waits := newTestReader(srv.URL, 0, nil)

		_, err := r.Read(ctx, model.KindProducts)

		So(err, ShouldNotBeNil)
		So(atomic.LoadInt32(calls), ShouldEqual, 1)
		So(*waits, ShouldBeEmpty)
	})

	Convey("Given an API returning malformed JSON", t, func() {
		srv, calls := flakyServer(0, `{not json`)
		defer srv.Close()
		r, _ := newTestReader(srv.URL, 3, nil)

		_, err := r.Read(ctx, model.KindProducts)

		Convey("Then the parse error is final", func() {
			So(errors.Is(err, ErrParse), ShouldBeTrue)
			So(atomic.LoadInt32(calls), ShouldEqual, 1)
		})
	})

	Convey("Given a cancelled backoff", t, func() {
		srv, calls := flakyServer(100, `[]`)
		defer srv.Close()
		r, _ := newTestReader(srv.URL, 5, nil)
		r.Sleep = func(context.Context, time.Duration) error { return context.Canceled }

		_, err := r.Read(ctx, model.KindProducts)

		So(errors.Is(err, ErrIO), ShouldBeTrue)
		So(atomic.LoadInt32(calls), ShouldEqual, 1)
		So(r.Close(), ShouldBeNil)
	})
}
