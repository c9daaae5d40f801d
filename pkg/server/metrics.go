package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-go-golems/forkchat/pkg/conversation"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

type metrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	replies  *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "forkchat_http_requests_total",
			Help: "HTTP requests by route, method and status code.",
		}, []string{"route", "method", "code"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "forkchat_http_request_duration_seconds",
			Help:    "HTTP request latency by route and method.",
			Buckets: []float64{.01, .05, .1, .5, 1, 5, 15, 30, 60, 120},
		}, []string{"route", "method"}),
		replies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "forkchat_replies_total",
			Help: "Assistant replies stored, by provider and outcome.",
		}, []string{"provider", "outcome"}),
	}
	for _, c := range []prometheus.Collector{m.requests, m.duration, m.replies} {
		if err := reg.Register(c); err != nil {
			return nil, errors.Wrap(err, "could not register metrics")
		}
	}
	return m, nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tmpl, err := route.GetPathTemplate(); err == nil {
			return tmpl
		}
	}
	return "unmatched"
}

func (m *metrics) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := routeTemplate(r)
		elapsed := time.Since(start)
		m.requests.WithLabelValues(route, r.Method, strconv.Itoa(rec.status)).Inc()
		m.duration.WithLabelValues(route, r.Method).Observe(elapsed.Seconds())

		log.Debug().
			Str("method", r.Method).
			Str("route", route).
			Int("status", rec.status).
			Dur("duration", elapsed).
			Msg("handled request")
	})
}

// observeReply counts the reply at the end of c's current branch.
func (m *metrics) observeReply(c *conversation.Chat) {
	if c == nil {
		return
	}
	leaf, ok := c.Message(c.Leaf())
	if !ok || leaf.Role != conversation.RoleAssistant {
		return
	}
	outcome := "ok"
	if leaf.IsError {
		outcome = "error"
	}
	m.replies.WithLabelValues(c.Provider, outcome).Inc()
}
