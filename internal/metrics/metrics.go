package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chatbot_build_info",
			Help: "Build information",
		},
		[]string{"version", "backend", "model"},
	)

	chatRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatbot_chat_requests_total",
			Help: "Chat requests by outcome (generated, fallback, invalid, error)",
		},
		[]string{"outcome"},
	)

	generations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatbot_generations_total",
			Help: "Model generation calls",
		},
		[]string{"backend", "outcome"},
	)

	generationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatbot_generation_duration_seconds",
			Help:    "Duration of model generation calls",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"backend"},
	)

	generationsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chatbot_generations_in_flight",
			Help: "Generation calls currently running",
		},
	)
)

// Register registers all metrics with the provided registerer.
func Register(r prometheus.Registerer) {
	r.MustRegister(buildInfo, chatRequests, generations, generationDuration, generationsInFlight)
}

func SetBuildInfo(version, backend, model string) {
	buildInfo.WithLabelValues(version, backend, model).Set(1)
}

func RecordChatRequest(outcome string) {
	chatRequests.WithLabelValues(outcome).Inc()
}

// ObserveGeneration records one finished generation call.
func ObserveGeneration(backend string, success bool, d time.Duration) {
	outcome := "success"
	if !success {
		outcome = "error"
	}
	generations.WithLabelValues(backend, outcome).Inc()
	generationDuration.WithLabelValues(backend).Observe(d.Seconds())
}

func GenerationStarted() {
	generationsInFlight.Inc()
}

func GenerationFinished() {
	generationsInFlight.Dec()
}
