package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	credentialsMinted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clarity_credentials_minted_total",
		Help: "Ephemeral realtime credentials requested, by outcome",
	}, []string{"status"})

	transcriptsLogged = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clarity_transcripts_logged_total",
		Help: "Transcript records written, by sink and outcome",
	}, []string{"sink", "status"})

	sessionsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "clarity_interview_sessions_started_total",
		Help: "Interview sessions that reached the active state",
	})

	sessionsEnded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "clarity_interview_sessions_ended_total",
		Help: "Interview sessions torn down",
	})

	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "clarity_interview_sessions_active",
		Help: "Interview sessions currently active or paused",
	})

	hubClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "clarity_hub_clients",
		Help: "Connected websocket clients",
	})
)

// RecordCredential counts one credential request outcome.
func RecordCredential(status string) {
	credentialsMinted.WithLabelValues(status).Inc()
}

// RecordTranscript counts one transcript write outcome for a sink.
func RecordTranscript(sink, status string) {
	transcriptsLogged.WithLabelValues(sink, status).Inc()
}

func SessionStarted() {
	sessionsStarted.Inc()
	activeSessions.Inc()
}

func SessionEnded() {
	sessionsEnded.Inc()
	activeSessions.Dec()
}

func HubClientConnected()    { hubClients.Inc() }
func HubClientDisconnected() { hubClients.Dec() }

// MetricsHandler exposes the default registry.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
