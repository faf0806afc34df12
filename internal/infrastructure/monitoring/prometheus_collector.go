package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusCollector exposes the agent's operational metrics.
type PrometheusCollector struct {
	sessionsActive      prometheus.Gauge
	offersCreatedTotal  prometheus.Counter
	sessionsClosedTotal prometheus.Counter
	framesEncodedTotal  prometheus.Counter
	encodeDuration      prometheus.Histogram
	keyframeRequests    prometheus.Counter
	inputEventsTotal    *prometheus.CounterVec
	inputDroppedTotal   prometheus.Counter
	reconnectsTotal     prometheus.Counter
}

// NewPrometheusCollector registers the agent metrics on the given registerer.
// Pass prometheus.DefaultRegisterer in production; tests use their own
// registry to avoid duplicate registration.
func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	factory := promauto.With(reg)
	return &PrometheusCollector{
		sessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "screenlink_viewer_sessions_active",
			Help: "Number of live viewer sessions",
		}),

		offersCreatedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "screenlink_offers_created_total",
			Help: "Total number of SDP offers created for viewers",
		}),

		sessionsClosedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "screenlink_viewer_sessions_closed_total",
			Help: "Total number of viewer sessions closed",
		}),

		framesEncodedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "screenlink_frames_encoded_total",
			Help: "Total number of frames captured and encoded",
		}),

		encodeDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "screenlink_frame_encode_duration_seconds",
			Help:    "Time spent capturing and encoding one frame",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),

		keyframeRequests: factory.NewCounter(prometheus.CounterOpts{
			Name: "screenlink_keyframe_requests_total",
			Help: "Total number of PLI-triggered keyframe requests",
		}),

		inputEventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "screenlink_input_events_total",
			Help: "Remote input events applied, by kind",
		}, []string{"kind"}),

		inputDroppedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "screenlink_input_events_dropped_total",
			Help: "Remote input events dropped by validation or rate limiting",
		}),

		reconnectsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "screenlink_signaling_reconnects_total",
			Help: "Total number of signaling reconnect attempts",
		}),
	}
}

func (c *PrometheusCollector) SessionOpened()  { c.sessionsActive.Inc(); c.offersCreatedTotal.Inc() }
func (c *PrometheusCollector) SessionClosed()  { c.sessionsActive.Dec(); c.sessionsClosedTotal.Inc() }
func (c *PrometheusCollector) FrameEncoded(seconds float64) {
	c.framesEncodedTotal.Inc()
	c.encodeDuration.Observe(seconds)
}
func (c *PrometheusCollector) KeyframeRequested()     { c.keyframeRequests.Inc() }
func (c *PrometheusCollector) InputEvent(kind string) { c.inputEventsTotal.WithLabelValues(kind).Inc() }
func (c *PrometheusCollector) InputDropped()          { c.inputDroppedTotal.Inc() }
func (c *PrometheusCollector) Reconnect()             { c.reconnectsTotal.Inc() }
