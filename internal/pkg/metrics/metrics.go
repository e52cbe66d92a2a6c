package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Registry holds every cellink collector. The process does not use the
// global default registry.
var Registry = prometheus.NewRegistry()

var (
	// SessionSteps counts lifecycle steps by step and result.
	// result: ok/failed/aborted
	SessionSteps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cellink_session_steps_total",
			Help: "Lifecycle steps executed, by step and result.",
		},
		[]string{"step", "result"},
	)

	// RelayFrames counts command frames read from the host terminal.
	// result: dispatched/empty/failed
	RelayFrames = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cellink_relay_frames_total",
			Help: "Command frames read from the host terminal, by result.",
		},
		[]string{"result"},
	)

	// RelayResults counts relayed responses by their final result code.
	// result: ok/error/none
	RelayResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cellink_relay_results_total",
			Help: "Responses relayed to the host terminal, by final result code.",
		},
		[]string{"result"},
	)

	// Transmits counts payload transmits. result: success/timeout/failed
	Transmits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cellink_transmits_total",
			Help: "Payload transmit attempts, by result.",
		},
		[]string{"result"},
	)

	// TransmitLatency observes successful transmit durations.
	TransmitLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cellink_transmit_latency_seconds",
			Help:    "Duration of successful payload transmits.",
			Buckets: prometheus.ExponentialBuckets(0.05, 4, 8),
		},
	)

	// SignalStrength is the last RSRP reading in dBm.
	SignalStrength = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "cellink_signal_strength_dbm",
			Help: "Last reported RSRP in dBm.",
		},
	)

	// PayloadSamples is the number of samples waiting to be transmitted.
	PayloadSamples = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "cellink_payload_samples",
			Help: "Samples currently held in the payload.",
		},
	)

	// PayloadTimeouts mirrors the payload's consecutive timeout counter.
	PayloadTimeouts = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "cellink_payload_timeouts",
			Help: "Consecutive transmit timeouts since the last success.",
		},
	)

	// SamplesDropped counts samples rejected by a full payload.
	SamplesDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cellink_samples_dropped_total",
			Help: "Samples dropped because the payload was full.",
		},
	)

	// SocketBytes counts bytes accepted by the transport socket.
	SocketBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cellink_socket_bytes_total",
			Help: "Bytes written to the transport socket, by protocol.",
		},
		[]string{"protocol"},
	)

	// IRQServiced counts handler invocations per interrupt line.
	IRQServiced = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cellink_irq_serviced_total",
			Help: "Interrupt handler invocations, by line.",
		},
		[]string{"line"},
	)
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		SessionSteps,
		RelayFrames,
		RelayResults,
		Transmits,
		TransmitLatency,
		SignalStrength,
		PayloadSamples,
		PayloadTimeouts,
		SamplesDropped,
		SocketBytes,
		IRQServiced,
	)
}
