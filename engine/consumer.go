package engine

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zsiec/playout/clock"
	"github.com/zsiec/playout/media"
	"github.com/zsiec/playout/telemetry"
)

// pollInterval is the consumer's sleep when the ring is momentarily empty,
// bounded by spec §4.5 at 5ms.
const pollInterval = 5 * time.Millisecond

// Sink is the frame delivery interface a FrameConsumer invokes once per
// emitted frame, per spec §6. Implementations are expected to be
// non-blocking or bounded-latency; an error is counted but never stops
// the consumer.
type Sink interface {
	Deliver(frame media.Frame) error
}

// SinkFunc adapts a plain function to the Sink interface.
type SinkFunc func(frame media.Frame) error

func (f SinkFunc) Deliver(frame media.Frame) error { return f(frame) }

// ConsumerConfig parameterizes a FrameConsumer.
type ConsumerConfig struct {
	ChannelID   int32
	PlanLabel   func() string
	TimebaseNum int64
	TimebaseDen int64
	Clock       clock.Clock
	Hooks       telemetry.Hooks
	Log         *slog.Logger
}

// Consumer owns the read end of one media.Ring, a clock reference, and a
// sink callback. It is constructed in rehearsal mode: frames are popped
// and discarded (so the ring does not back-pressure the decoder) until
// Activate switches it to emission, per spec §4.5.
type Consumer struct {
	cfg  ConsumerConfig
	ring *media.Ring
	sink Sink
	log  *slog.Logger

	mu        sync.Mutex
	baseNS    int64
	emitting  bool
	activated bool

	lastEmittedPTS atomic.Int64
	lastDuration   atomic.Int64
	framesEmitted  atomic.Int64

	nextPTS atomic.Int64
	hasNext atomic.Bool

	stopCh chan struct{}
	doneCh chan struct{}
	once   sync.Once
}

// NewConsumer constructs a Consumer reading from ring and, once activated,
// delivering frames to sink.
func NewConsumer(cfg ConsumerConfig, ring *media.Ring, sink Sink) *Consumer {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	if cfg.TimebaseNum <= 0 {
		cfg.TimebaseNum = 1
	}
	if cfg.TimebaseDen <= 0 {
		cfg.TimebaseDen = 90000
	}
	c := &Consumer{
		cfg:    cfg,
		ring:   ring,
		sink:   sink,
		log:    log.With("component", "consumer", "channel_id", cfg.ChannelID),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	c.lastEmittedPTS.Store(-1)
	return c
}

// Start launches the consumer loop in rehearsal mode (frames are popped
// and discarded, sink is not invoked).
func (c *Consumer) Start(ctx context.Context) {
	go c.run(ctx)
}

// Activate sets the consumer's clock anchor and switches it from rehearsal
// to emission. It is idempotent; calling it again simply rebases the
// anchor (used by switch-to-live to re-pace the promoted shadow onto the
// live timeline without tearing down the consumer goroutine). It returns
// nothing; the PTS of the next frame to be emitted is read separately with
// PeekNextPTS.
func (c *Consumer) Activate(baseNS int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.baseNS = baseNS
	c.emitting = true
	c.activated = true
}

// Deactivate reverts the consumer to rehearsal mode (frames popped and
// discarded, sink not invoked) without stopping the goroutine. Nothing in
// the engine calls it at present; ChannelSlot.Deactivate forwards to it.
func (c *Consumer) Deactivate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.emitting = false
}

// Stop signals the consumer loop to exit and blocks until it has.
func (c *Consumer) Stop() {
	c.once.Do(func() { close(c.stopCh) })
	<-c.doneCh
}

// LastEmittedPTS returns the PTS of the most recently emitted frame, or -1
// if none has been emitted yet.
func (c *Consumer) LastEmittedPTS() int64 { return c.lastEmittedPTS.Load() }

// LastDuration returns the duration of the most recently emitted frame.
func (c *Consumer) LastDuration() int64 { return c.lastDuration.Load() }

// FramesEmitted returns the number of frames delivered to the sink so far.
func (c *Consumer) FramesEmitted() int64 { return c.framesEmitted.Load() }

// PeekNextPTS returns the PTS of the frame the consumer is currently
// holding (peeked from the ring but not yet popped), or false if none is
// held yet. This is what the switch-to-live protocol reads to compute
// shadow_start_pts without racing the consumer goroutine: the held frame
// is only ever discarded or delivered by the consumer itself, on its next
// loop iteration, by which point Activate has already taken effect.
func (c *Consumer) PeekNextPTS() (int64, bool) {
	if !c.hasNext.Load() {
		return 0, false
	}
	return c.nextPTS.Load(), true
}

func (c *Consumer) run(ctx context.Context) {
	defer close(c.doneCh)

	var held media.Frame
	haveHeld := false

	for {
		select {
		case <-c.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		if !haveHeld {
			frame, ok := c.ring.Peek()
			if !ok {
				if c.ring.Closed() {
					return
				}
				t := time.NewTimer(pollInterval)
				select {
				case <-t.C:
				case <-c.stopCh:
					t.Stop()
					return
				case <-ctx.Done():
					t.Stop()
					return
				}
				continue
			}
			held = frame
			haveHeld = true
			c.nextPTS.Store(frame.PTS)
			c.hasNext.Store(true)
		}

		c.mu.Lock()
		emitting := c.emitting
		baseNS := c.baseNS
		c.mu.Unlock()

		if !emitting {
			// Rehearsal mode: discard without pacing or invoking the sink.
			c.ring.TryPop()
			haveHeld = false
			c.hasNext.Store(false)
			continue
		}

		deadline := c.cfg.Clock.FrameDeadline(baseNS, held.PTS, c.cfg.TimebaseNum, c.cfg.TimebaseDen)
		if err := c.cfg.Clock.SleepUntil(ctx, deadline); err != nil {
			return
		}

		c.ring.TryPop()
		frame := held
		haveHeld = false
		c.hasNext.Store(false)

		if err := c.sink.Deliver(frame); err != nil {
			c.log.Warn("sink delivery error", "error", err, "pts", frame.PTS)
		}

		prevPTS := c.lastEmittedPTS.Load()
		prevDur := c.lastDuration.Load()
		c.lastEmittedPTS.Store(frame.PTS)
		c.lastDuration.Store(frame.Duration)
		c.framesEmitted.Add(1)
		c.incCounter(telemetry.MetricFramesEmittedTotal, 1)

		if prevPTS >= 0 && frame.PTS > prevPTS+prevDur {
			gapTicks := frame.PTS - (prevPTS + prevDur)
			gapSeconds := float64(gapTicks) * float64(c.cfg.TimebaseNum) / float64(c.cfg.TimebaseDen)
			c.setGauge(telemetry.MetricFrameGapSeconds, gapSeconds)
		}
	}
}

func (c *Consumer) incCounter(name string, n float64) {
	if c.cfg.Hooks == nil {
		return
	}
	c.cfg.Hooks.IncCounter(name, c.labels(), n)
}

func (c *Consumer) setGauge(name string, v float64) {
	if c.cfg.Hooks == nil {
		return
	}
	c.cfg.Hooks.SetGauge(name, c.labels(), v)
}

func (c *Consumer) labels() map[string]string {
	labels := map[string]string{"channel_id": formatChannelID(c.cfg.ChannelID)}
	if c.cfg.PlanLabel != nil {
		labels["plan_handle"] = c.cfg.PlanLabel()
	}
	return labels
}
