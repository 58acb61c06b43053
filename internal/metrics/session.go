// SPDX-License-Identifier: MIT
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sessionTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "micgw_session_transitions_total",
		Help: "Session controller transitions by operation and outcome",
	}, []string{"op", "outcome"}) // op=permission|reconcile|start|stop, outcome=success|failure

	sessionRecording = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "micgw_session_recording",
		Help: "Whether the session currently believes a recording is active (1) or not (0)",
	})

	recorderRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "micgw_recorder_request_duration_seconds",
		Help:    "Duration of native recorder service calls",
		Buckets: prometheus.DefBuckets,
	}, []string{"op", "outcome"}) // op=status|start|stop

	permissionRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "micgw_permission_requests_total",
		Help: "Microphone permission acquisition attempts by outcome",
	}, []string{"outcome"}) // outcome=granted|denied|error

	playbackResolutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "micgw_playback_resolutions_total",
		Help: "Storage location to playback URL translations by outcome",
	}, []string{"outcome"}) // outcome=success|unmapped|inaccessible

	mediaRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "micgw_media_requests_total",
		Help: "Media file server requests by outcome",
	}, []string{"outcome"}) // outcome=allowed|denied|not_found|cache_hit
)

func IncSessionTransition(op, outcome string) {
	sessionTransitionsTotal.WithLabelValues(op, outcome).Inc()
}

func SetRecording(active bool) {
	if active {
		sessionRecording.Set(1)
	} else {
		sessionRecording.Set(0)
	}
}

func ObserveRecorderRequest(op, outcome string, d time.Duration) {
	recorderRequestDuration.WithLabelValues(op, outcome).Observe(d.Seconds())
}

func IncPermissionRequest(outcome string) {
	permissionRequestsTotal.WithLabelValues(outcome).Inc()
}

func IncPlaybackResolution(outcome string) {
	playbackResolutionsTotal.WithLabelValues(outcome).Inc()
}

func IncMediaRequest(outcome string) {
	mediaRequestsTotal.WithLabelValues(outcome).Inc()
}
