package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Gauges
var (
	SessionState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "voicerec_session_state",
		Help: "1 for the state the recording session is currently in, 0 otherwise",
	}, []string{"state"})
	RecordingElapsedSeconds = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "voicerec_recording_elapsed_seconds",
		Help: "Elapsed time of the current recording",
	})
)

// Counters
var (
	RecordingsStartedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voicerec_recordings_started_total",
		Help: "Total recordings started",
	})
	StartFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voicerec_start_failures_total",
		Help: "Start requests that failed to open or start the capture device",
	})
	StreamFaultsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voicerec_stream_faults_total",
		Help: "Recordings that ended with a capture stream fault",
	})
	CapturedBlocksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voicerec_captured_blocks_total",
		Help: "Total sample blocks appended to recording buffers",
	})
	CapturedSamplesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voicerec_captured_samples_total",
		Help: "Total samples appended to recording buffers",
	})
	EncodesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voicerec_encodes_total",
		Help: "Total encode attempts by outcome",
	}, []string{"outcome"})
)

// Histograms
var (
	EncodeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "voicerec_encode_duration_seconds",
		Help:    "Time spent writing the intermediate file and running the encoder",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
	})
	RecordingLength = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "voicerec_recording_length_seconds",
		Help:    "Captured audio length of finished recordings",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
	})
)

// States lists every session state label so all series exist from the start
var States = []string{"IDLE", "RECORDING", "STOPPING", "STOPPED", "FAILED"}

// SetState marks state as the current session state
func SetState(state string) {
	for _, s := range States {
		if s == state {
			SessionState.WithLabelValues(s).Set(1)
		} else {
			SessionState.WithLabelValues(s).Set(0)
		}
	}
}
