package metrics

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var (
	// Gestures counts inbound gesture notifications by kind and pipeline outcome.
	Gestures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autolike_gestures_total",
			Help: "Total number of gesture notifications handled",
		},
		[]string{"kind", "outcome"}, // kind: thumb_up, poke; outcome: see gesture.Outcome
	)

	// LikesSent counts send_like calls issued by the proactive-like job.
	LikesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autolike_likes_sent_total",
			Help: "Total number of proactive likes sent",
		},
		[]string{"status"}, // status: ok, empty, failed
	)

	// RemoteErrors tracks failed remote bridge actions.
	RemoteErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autolike_remote_errors_total",
			Help: "Total number of failed remote actions",
		},
		[]string{"action"},
	)

	// PersistErrors tracks JSON file read/write failures.
	PersistErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autolike_persist_errors_total",
			Help: "Total number of state file errors",
		},
		[]string{"file"},
	)

	// DatabaseErrors tracks history journal errors.
	DatabaseErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autolike_database_errors_total",
			Help: "Total number of database errors",
		},
		[]string{"operation"}, // operation: record, recent
	)
)

func init() {
	prometheus.MustRegister(Gestures)
	prometheus.MustRegister(LikesSent)
	prometheus.MustRegister(RemoteErrors)
	prometheus.MustRegister(PersistErrors)
	prometheus.MustRegister(DatabaseErrors)
}

// MustServe exposes Prometheus metrics on the given address (e.g., ":9090")
// from a separate goroutine. Fatal-logs on listen failure. Returns the server so
// the caller can gracefully shut it down.
func MustServe(addr string, log *zap.SugaredLogger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		log.Infow("metrics endpoint listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalw("metrics server failed", "err", err)
		}
	}()

	return srv
}

// IncrementGesture records one handled gesture.
func IncrementGesture(kind, outcome string) {
	Gestures.WithLabelValues(kind, outcome).Inc()
}

// IncrementLikeSent records one send_like result.
func IncrementLikeSent(status string) {
	LikesSent.WithLabelValues(status).Inc()
}

// IncrementRemoteError records a failed remote action.
func IncrementRemoteError(action string) {
	RemoteErrors.WithLabelValues(action).Inc()
}

// IncrementPersistError records a failed state file operation.
func IncrementPersistError(file string) {
	PersistErrors.WithLabelValues(file).Inc()
}

// IncrementDatabaseError increments database error counter
func IncrementDatabaseError(operation string) {
	DatabaseErrors.WithLabelValues(operation).Inc()
}
