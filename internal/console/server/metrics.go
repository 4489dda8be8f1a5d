package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Latency HTTP запросов по методу и коду
	RequestDuration *prometheus.HistogramVec

	// Исходы секционных сохранений: success / conflict / rejected
	SectionSaves *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	// Null Object Pattern - Если рег не передан, используем локальный, который никуда не подключен
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		RequestDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "crmflow_http_request_duration_seconds",
			Help:    "Histogram of console API request latencies.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"method", "code"}),

		SectionSaves: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "crmflow_section_saves_total",
			Help: "Total section save attempts by outcome.",
		}, []string{"outcome"}),
	}
}

// Middleware снимает latency и код ответа с каждого запроса консоли.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		m.RequestDuration.
			WithLabelValues(r.Method, strconv.Itoa(ww.Status())).
			Observe(time.Since(start).Seconds())

		// Секционные сохранения считаем по роуту, чтобы не тащить метрики в хендлеры
		if r.Method == http.MethodPatch {
			if rctx := chi.RouteContext(r.Context()); rctx != nil &&
				strings.Contains(rctx.RoutePattern(), "/sections/") {
				m.SectionSaves.WithLabelValues(saveOutcome(ww.Status())).Inc()
			}
		}
	})
}

func saveOutcome(status int) string {
	switch {
	case status == http.StatusConflict:
		return "conflict"
	case status == http.StatusForbidden || status == http.StatusUnprocessableEntity:
		return "rejected"
	case status < 300:
		return "success"
	default:
		return "error"
	}
}
