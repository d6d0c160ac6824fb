// Package telemetry defines the narrow callback interface the engine uses
// to publish metrics, per spec §4.9 and §6. Telemetry is a side channel:
// the engine never branches on whether a publish call succeeds.
package telemetry

// Hooks is implemented by a metrics backend. set_gauge/inc_counter take
// plain label maps so the engine has no dependency on any particular
// metrics client.
type Hooks interface {
	SetGauge(name string, labels map[string]string, value float64)
	IncCounter(name string, labels map[string]string, n float64)
}

// Metric names published by the engine, per spec §4.9.
const (
	MetricChannelState        = "channel_state"
	MetricFramesProducedTotal = "frames_produced_total"
	MetricFramesEmittedTotal  = "frames_emitted_total"
	MetricRingFullEventsTotal = "ring_full_events_total"
	MetricDecodeErrorsTotal   = "decode_errors_total"
	MetricFrameGapSeconds     = "frame_gap_seconds"
	MetricPreviewActive       = "preview_active"
	MetricLastSwitchContig    = "last_switch_contiguous"
	MetricBuildInfo           = "build_info"

	// Supplemental counter names (SPEC_FULL §12). No decoder in this
	// repository publishes them; the engine's domain API never branches
	// on them.
	MetricSCTE35SpliceTotal  = "scte35_splice_total"
	MetricCaptionFramesTotal = "caption_frames_total"
)

// Noop is a Hooks implementation that discards everything. It is the
// default when an engine is constructed without an explicit Hooks, so
// telemetry is never a nil-pointer hazard.
type Noop struct{}

func (Noop) SetGauge(string, map[string]string, float64)   {}
func (Noop) IncCounter(string, map[string]string, float64) {}
