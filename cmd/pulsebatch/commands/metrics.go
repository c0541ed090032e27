package commands

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/teranos/pulsebatch/errors"
	"github.com/teranos/pulsebatch/logger"
	"github.com/teranos/pulsebatch/pulse/batch"
)

const metricsShutdownTimeout = 2 * time.Second

// metricsServer exposes the engine's collectors on /metrics for the duration of a run
type metricsServer struct {
	Addr    string
	Metrics *batch.Metrics
	srv     *http.Server
}

// startMetrics listens on addr and serves a registry holding the engine's
// collectors plus the Go runtime and process collectors.
func startMetrics(addr string) (*metricsServer, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := batch.NewMetrics(reg)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to listen for metrics on %s", addr)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warnw("Metrics server stopped", logger.FieldError, err)
		}
	}()
	logger.Infow("Serving metrics", "addr", ln.Addr().String())

	return &metricsServer{Addr: ln.Addr().String(), Metrics: m, srv: srv}, nil
}

func (m *metricsServer) stop() {
	ctx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
	defer cancel()
	if err := m.srv.Shutdown(ctx); err != nil {
		logger.Warnw("Metrics server shutdown failed", logger.FieldError, err)
	}
}
