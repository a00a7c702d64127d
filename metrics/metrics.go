// Package metrics holds the Prometheus collectors of one gate. A nil
// *Gate is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "gogate"

type Gate struct {
	sessions        *prometheus.CounterVec
	sessionDuration *prometheus.HistogramVec
	cancels         *prometheus.CounterVec
	sends           *prometheus.CounterVec
	reconnects      prometheus.Counter
	busy            prometheus.Gauge
	connected       prometheus.Gauge
}

// New registers the gate collectors with reg.
func New(reg prometheus.Registerer) *Gate {
	f := promauto.With(reg)
	return &Gate{
		sessions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Wormhole sessions by origin (local dial or remote peer)",
		}, []string{"origin"}),
		sessionDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Duration of the stable phase of a session",
			Buckets:   []float64{5, 10, 15, 20, 30, 40, 60, 120, 300},
		}, []string{"origin"}),
		cancels: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_cancels_total",
			Help:      "Sessions ended early, by reason",
		}, []string{"reason"}),
		sends: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "link_commands_sent_total",
			Help:      "Commands handed to the link, by command and result",
		}, []string{"command", "result"}),
		reconnects: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "link_connect_attempts_total",
			Help:      "Connection attempts started by the gate",
		}),
		busy: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "busy",
			Help:      "1 while a sequence is running",
		}),
		connected: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "link_connected",
			Help:      "1 while the peer link is usable",
		}),
	}
}

func (g *Gate) SessionStarted(origin string) {
	if g == nil {
		return
	}
	g.sessions.WithLabelValues(origin).Inc()
}

func (g *Gate) SessionEnded(origin string, d time.Duration) {
	if g == nil {
		return
	}
	g.sessionDuration.WithLabelValues(origin).Observe(d.Seconds())
}

func (g *Gate) Cancelled(reason string) {
	if g == nil {
		return
	}
	g.cancels.WithLabelValues(reason).Inc()
}

func (g *Gate) Sent(command string, ok bool) {
	if g == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "skipped"
	}
	g.sends.WithLabelValues(command, result).Inc()
}

func (g *Gate) ConnectAttempt() {
	if g == nil {
		return
	}
	g.reconnects.Inc()
}

func (g *Gate) SetBusy(busy bool) {
	if g == nil {
		return
	}
	g.busy.Set(boolValue(busy))
}

func (g *Gate) SetConnected(connected bool) {
	if g == nil {
		return
	}
	g.connected.Set(boolValue(connected))
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
