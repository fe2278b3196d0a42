package tracing

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/smartystreets/goconvey/convey"
	"go.opentelemetry.io/otel"

	"ecommerce-analytics-pipeline/internal/config"
	"ecommerce-analytics-pipeline/pkg/logger"
)

func TestInit(t *testing.T) {
	convey.Convey("Given tracing configuration", t, func() {
		ctx := context.Background()
		prev := otel.GetTracerProvider()
		defer otel.SetTracerProvider(prev)

		convey.Convey("When tracing is disabled", func() {
			shutdown, err := Init(ctx, logger.NewNop(), config.TracingConfig{}, nil)

			convey.Convey("Then a no-op shutdown is returned", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(shutdown(ctx), convey.ShouldBeNil)
			})
		})

		convey.Convey("When tracing is enabled", func() {
			var buf bytes.Buffer
			shutdown, err := Init(ctx, logger.NewNop(), config.TracingConfig{Enabled: true, ServiceName: "test-pipeline"}, &buf)
			convey.So(err, convey.ShouldBeNil)

			_, span := Tracer().Start(ctx, "stage.extraction")
			span.End()
			convey.So(shutdown(ctx), convey.ShouldBeNil)

			convey.Convey("Then finished spans are written to the exporter", func() {
				convey.So(buf.String(), convey.ShouldContainSubstring, "stage.extraction")
				convey.So(buf.String(), convey.ShouldContainSubstring, "test-pipeline")
			})
		})

		convey.Convey("When an OTLP endpoint is configured", func() {
			var posts atomic.Int32
			collector := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method == http.MethodPost && r.URL.Path == "/v1/traces" {
					posts.Add(1)
				}
				w.WriteHeader(http.StatusOK)
			}))
			defer collector.Close()

			cfg := config.TracingConfig{
				Enabled:      true,
				OTLPEndpoint: strings.TrimPrefix(collector.URL, "http://"),
				OTLPInsecure: true,
			}
			shutdown, err := Init(ctx, logger.NewNop(), cfg, nil)
			convey.So(err, convey.ShouldBeNil)

			_, span := Tracer().Start(ctx, "stage.loading")
			span.End()
			convey.So(shutdown(ctx), convey.ShouldBeNil)

			convey.Convey("Then batched spans are posted to the collector", func() {
				convey.So(posts.Load(), convey.ShouldBeGreaterThan, 0)
			})
		})
	})
}
