// Package metrics exports VM start metrics in the Prometheus format.
package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/javanstorm/vzkit/pkg/vz"
)

// Result label values of vzkit_vm_start_completed_total.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Recorder turns start events into metrics. Its Observe method is meant to
// be passed to vz.WithStartObserver.
type Recorder struct {
	registry  *prometheus.Registry
	submitted prometheus.Counter
	completed *prometheus.CounterVec
	boot      prometheus.Histogram
	state     atomic.Value // string
}

// NewRecorder creates a recorder with its own registry.
func NewRecorder(version string) *Recorder {
	r := &Recorder{
		submitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vzkit_vm_start_submitted_total",
			Help: "Virtual machine starts handed to the machine queue",
		}),
		completed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vzkit_vm_start_completed_total",
				Help: "Start completion handler invocations by result",
			},
			[]string{"result"},
		),
		boot: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "vzkit_vm_boot_seconds",
			Help:    "Time from Start to the completion handler",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
	}
	build := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "vzkit_build_info",
		Help: "Build information",
	}, []string{"version"})
	build.WithLabelValues(version).Set(1)

	r.registry = prometheus.NewRegistry()
	r.registry.MustRegister(r.submitted, r.completed, r.boot, build)
	// Expose both results from the first scrape.
	r.completed.WithLabelValues(ResultSuccess)
	r.completed.WithLabelValues(ResultFailure)
	r.state.Store(vz.StateConstructed.String())
	return r
}

// Registry returns the registry the metrics are registered with.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Observe records a start event. It does not block.
func (r *Recorder) Observe(ev vz.StartEvent) {
	switch ev.Phase {
	case vz.PhaseSubmitted:
		r.submitted.Inc()
		r.state.Store(vz.StateStarting.String())
	case vz.PhaseCompleted:
		r.boot.Observe(ev.Elapsed.Seconds())
		if ev.Err != nil {
			r.completed.WithLabelValues(ResultFailure).Inc()
			r.state.Store(vz.StateFailed.String())
			return
		}
		r.completed.WithLabelValues(ResultSuccess).Inc()
		r.state.Store(vz.StateSucceeded.String())
	}
}

// State returns the machine state derived from the observed events.
func (r *Recorder) State() string {
	return r.state.Load().(string)
}

// Handler routes GET /metrics and GET /healthz.
func (r *Recorder) Handler() http.Handler {
	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})).Methods("GET")
	router.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy", "state": r.State()})
	}).Methods("GET")
	return router
}

// Server serves a Recorder over HTTP.
type Server struct {
	srv *http.Server
	ln  net.Listener
	log *slog.Logger
}

// Listen binds addr and starts serving in the background.
func Listen(addr string, r *Recorder, log *slog.Logger) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	s := &Server{
		srv: &http.Server{
			Handler:      r.Handler(),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		ln:  ln,
		log: log,
	}
	go func() {
		log.Info("metrics server listening", "addr", ln.Addr().String())
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server error", "error", err)
		}
	}()
	return s, nil
}

// Addr returns the bound address.
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
