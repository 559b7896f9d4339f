package bootstrap

import (
	"github.com/eleven-am/tts-stream/internal/telemetry"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
)

func ProvidePrometheusRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func ProvideCollector(reg *prometheus.Registry) *telemetry.Collector {
	return telemetry.New(reg)
}

func RegisterMetricsRoute(e *echo.Echo, reg *prometheus.Registry) {
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
}

var TelemetryModule = fx.Options(
	fx.Provide(
		ProvidePrometheusRegistry,
		ProvideCollector,
	),
	fx.Invoke(RegisterMetricsRoute),
)
