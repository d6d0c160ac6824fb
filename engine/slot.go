package engine

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/zsiec/playout/clock"
	"github.com/zsiec/playout/decoder"
	"github.com/zsiec/playout/media"
	"github.com/zsiec/playout/telemetry"
)

// defaultReadyThreshold is the minimum number of buffered frames a slot
// must produce before it is considered Streaming, per spec §4.6.
const defaultReadyThreshold = 4

// defaultPrimeTimeout bounds how long prime() waits for ready_threshold
// frames before giving up, per spec §5.
const defaultPrimeTimeout = 2 * time.Second

// SlotConfig parameterizes a ChannelSlot.
type SlotConfig struct {
	ChannelID      int32
	PlanLabel      func() string
	RingCapacity   int
	TimebaseNum    int64
	TimebaseDen    int64
	ReadyThreshold int64
	PrimeTimeout   time.Duration
	Clock          clock.Clock
	Hooks          telemetry.Hooks
	Log            *slog.Logger
}

// ChannelSlot bundles a producer, ring, and consumer into one independent
// decode pipeline for a single asset, per spec §4.6. A Channel owns at most
// two slots (live, and optionally shadow); they never share a ring.
type ChannelSlot struct {
	cfg  SlotConfig
	ring *media.Ring
	prod *Producer
	cons *Consumer
	log  *slog.Logger

	status atomic.Int32
}

// NewSlot constructs a ChannelSlot reading asset frames from port and
// delivering emitted frames to sink. The slot starts in SlotIdle; call
// Prime to begin decoding.
func NewSlot(cfg SlotConfig, port decoder.Port, sink Sink) *ChannelSlot {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	if cfg.ReadyThreshold <= 0 {
		cfg.ReadyThreshold = defaultReadyThreshold
	}
	if cfg.PrimeTimeout <= 0 {
		cfg.PrimeTimeout = defaultPrimeTimeout
	}
	ring := media.NewRing(cfg.RingCapacity)

	s := &ChannelSlot{
		cfg: cfg,
		ring: ring,
		log: log.With("component", "slot", "channel_id", cfg.ChannelID),
	}

	s.prod = NewProducer(ProducerConfig{
		ChannelID: cfg.ChannelID,
		PlanLabel: cfg.PlanLabel,
		Hooks:     cfg.Hooks,
		Log:       log,
	}, port, ring)

	s.cons = NewConsumer(ConsumerConfig{
		ChannelID:   cfg.ChannelID,
		PlanLabel:   cfg.PlanLabel,
		TimebaseNum: cfg.TimebaseNum,
		TimebaseDen: cfg.TimebaseDen,
		Clock:       cfg.Clock,
		Hooks:       cfg.Hooks,
		Log:         log,
	}, ring, sink)

	s.status.Store(int32(SlotIdle))
	return s
}

// Status returns the slot's current lifecycle state.
func (s *ChannelSlot) Status() SlotStatus { return SlotStatus(s.status.Load()) }

// FramesProduced returns the number of frames the decoder has pushed.
func (s *ChannelSlot) FramesProduced() int64 { return s.prod.FramesProduced() }

// FramesEmitted returns the number of frames delivered to the sink.
func (s *ChannelSlot) FramesEmitted() int64 { return s.cons.FramesEmitted() }

// LastEmittedPTS returns the PTS of the most recently emitted frame, or -1.
func (s *ChannelSlot) LastEmittedPTS() int64 { return s.cons.LastEmittedPTS() }

// LastDuration returns the duration of the most recently emitted frame.
func (s *ChannelSlot) LastDuration() int64 { return s.cons.LastDuration() }

// PeekNextPTS returns the PTS of the frame the consumer currently holds but
// has not yet committed, or false if none is held yet. Used by the
// switch-to-live protocol (spec §4.7 step 2) to compute shadow_start_pts.
func (s *ChannelSlot) PeekNextPTS() (int64, bool) { return s.cons.PeekNextPTS() }

// Prime starts the producer and the consumer (in rehearsal mode) and
// blocks until ready_threshold frames have been produced, the prime
// timeout elapses, or ctx is cancelled. On success the slot transitions
// Idle -> Priming -> Streaming. On timeout it returns a *Error of kind
// KindTimeout and leaves the slot running; the caller must Abort it.
func (s *ChannelSlot) Prime(ctx context.Context) error {
	s.status.Store(int32(SlotPriming))
	s.prod.Start()
	s.cons.Start(ctx)

	deadline := time.Now().Add(s.cfg.PrimeTimeout)
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()

	for {
		if s.prod.FramesProduced() >= s.cfg.ReadyThreshold {
			s.status.Store(int32(SlotStreaming))
			return nil
		}
		if s.prod.Errored() {
			s.status.Store(int32(SlotErrored))
			return newError(KindFatalDecodeError, "prime", "decoder failed while priming", nil)
		}
		if time.Now().After(deadline) {
			return newError(KindTimeout, "prime", "ready_threshold not reached within prime timeout", nil)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Activate flips the slot's consumer from rehearsal to emission, anchored
// at baseNS, per spec §4.6. It is idempotent: calling it again simply
// rebases the anchor, which is how switch-to-live re-paces a promoted
// shadow without tearing down its consumer goroutine.
func (s *ChannelSlot) Activate(baseNS int64) {
	s.cons.Activate(baseNS)
}

// Deactivate reverts the slot's consumer to rehearsal mode. Nothing in the
// engine calls it at present: LoadPreview hands a replaced shadow straight
// to the reaper for Abort.
func (s *ChannelSlot) Deactivate() {
	s.cons.Deactivate()
}

// Drain stops the producer and closes the ring, lets the consumer emit
// whatever remains buffered, then stops the consumer, per spec §4.6.
// Status transitions Streaming -> Draining -> Closed.
func (s *ChannelSlot) Drain() {
	s.status.Store(int32(SlotDraining))
	s.prod.Stop()
	s.ring.Close()
	// The consumer returns on its own once the closed ring is empty.
	<-s.cons.doneCh
	s.cons.Stop()
	s.status.Store(int32(SlotClosed))
}

// Abort stops both the producer and consumer immediately, discarding any
// unread frames, per spec §4.6. Status transitions to Closed, or Errored
// if the producer had already failed.
func (s *ChannelSlot) Abort() {
	errored := s.prod.Errored()
	s.prod.Stop()
	s.cons.Stop()
	s.ring.Close()
	if errored {
		s.status.Store(int32(SlotErrored))
	} else {
		s.status.Store(int32(SlotClosed))
	}
}
