package engine

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/zsiec/playout/clock"
	"github.com/zsiec/playout/decoder"
	"github.com/zsiec/playout/telemetry"
)

// PortFactory constructs a decoder.Port for asset. Channel calls it once
// per slot creation (Start, and each LoadPreview); the returned Port is
// unopened, per the decoder.Port contract.
type PortFactory func(asset string) (decoder.Port, error)

// ChannelConfig parameterizes a Channel. Shared across its slots.
type ChannelConfig struct {
	ID           int32
	RingCapacity int
	TimebaseNum  int64
	TimebaseDen  int64
	Clock        clock.Clock
	Hooks        telemetry.Hooks
	Reaper       *Reaper
	NewPort      PortFactory
	Sink         Sink
	Log          *slog.Logger
}

// Channel is the dual-slot state machine of spec §4.7: a live slot whose
// frames reach the sink, and an optional shadow slot rehearsing a preview
// asset until promoted. State is a ChannelState value kept beside the live
// and shadow slot pointers; the methods below only set a shadow together
// with StateLivePlusShadow, so a shadow does not exist without a live slot.
type Channel struct {
	cfg ChannelConfig
	log *slog.Logger

	mu         sync.Mutex
	state      ChannelState
	live       *ChannelSlot
	shadow     *ChannelSlot
	planHandle string
	erroredMsg string

	lastSwitchContiguous atomic.Bool
	previewActive        atomic.Bool
}

// NewChannel constructs a Channel in StateEmpty. Use Start to bring up the
// first live slot.
func NewChannel(cfg ChannelConfig) *Channel {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	return &Channel{
		cfg:   cfg,
		log:   log.With("component", "channel", "channel_id", cfg.ID),
		state: StateEmpty,
	}
}

// State returns the channel's current state under lock.
func (c *Channel) State() ChannelState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// PlanHandle returns the current plan handle label.
func (c *Channel) PlanHandle() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.planHandle
}

// LiveSlot returns the current live slot, or nil if the channel is Empty
// or Errored with no live slot.
func (c *Channel) LiveSlot() *ChannelSlot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.live
}

func (c *Channel) buildSlot(asset string) (*ChannelSlot, error) {
	port, err := c.cfg.NewPort(asset)
	if err != nil {
		return nil, newError(KindIoError, "build_slot", "decoder construction failed", err)
	}
	planLabel := func() string { return c.PlanHandle() }
	slot := NewSlot(SlotConfig{
		ChannelID:    c.cfg.ID,
		PlanLabel:    planLabel,
		RingCapacity: c.cfg.RingCapacity,
		TimebaseNum:  c.cfg.TimebaseNum,
		TimebaseDen:  c.cfg.TimebaseDen,
		Clock:        c.cfg.Clock,
		Hooks:        c.cfg.Hooks,
		Log:          c.log,
	}, port, c.cfg.Sink)
	return slot, nil
}

// Start creates the live slot for asset, primes it, and activates it at
// clock.now(), transitioning Empty -> LiveOnly. It fails if the channel is
// not Empty.
func (c *Channel) Start(ctx context.Context, asset, plan string) error {
	c.mu.Lock()
	if c.state != StateEmpty {
		c.mu.Unlock()
		return newError(KindBadState, "start", "channel is not empty", nil)
	}
	c.mu.Unlock()

	slot, err := c.buildSlot(asset)
	if err != nil {
		return err
	}
	if err := slot.Prime(ctx); err != nil {
		slot.Abort()
		return err
	}
	slot.Activate(c.cfg.Clock.Now())

	c.mu.Lock()
	c.live = slot
	c.planHandle = plan
	c.state = StateLiveOnly
	c.mu.Unlock()
	return nil
}

// LoadPreview creates a shadow slot primed in rehearsal for asset. If a
// shadow already exists it is aborted (via the reaper) and replaced, per
// spec §4.7's LivePlusShadow -> LivePlusShadow transition. It fails if the
// channel has no live slot.
func (c *Channel) LoadPreview(ctx context.Context, asset string) (shadowDecodeStarted bool, err error) {
	c.mu.Lock()
	state := c.state
	oldShadow := c.shadow
	c.mu.Unlock()

	if state != StateLiveOnly && state != StateLivePlusShadow {
		return false, newError(KindBadState, "load_preview", "channel has no live slot", nil)
	}

	slot, err := c.buildSlot(asset)
	if err != nil {
		return false, err
	}
	if err := slot.Prime(ctx); err != nil {
		slot.Abort()
		return false, err
	}

	if oldShadow != nil {
		c.cfg.Reaper.Abort(oldShadow)
	}

	c.mu.Lock()
	c.shadow = slot
	c.state = StateLivePlusShadow
	c.mu.Unlock()
	c.previewActive.Store(true)

	return slot.FramesProduced() >= defaultReadyThreshold, nil
}

// SwitchToLive runs the atomic switch protocol of spec §4.7: the shadow
// slot is promoted to live and the old live slot is handed to the reaper
// for asynchronous teardown. It fails with BadState if there is no
// shadow, or NotReady if the shadow has not yet reached ready_threshold.
func (c *Channel) SwitchToLive() (ptsContiguous bool, liveStartPTS int64, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateLivePlusShadow || c.shadow == nil {
		return false, 0, newError(KindBadState, "switch_to_live", "no shadow slot to promote", nil)
	}
	if c.shadow.Status() != SlotStreaming {
		return false, 0, newError(KindNotReady, "switch_to_live", "shadow has not reached ready_threshold", nil)
	}

	// Step 1: expected_next from the outgoing live slot.
	lastPTS := c.live.LastEmittedPTS()
	lastDur := c.live.LastDuration()
	expectedNext := lastPTS + lastDur

	// Step 2: peek the shadow's next frame PTS without popping it.
	shadowStartPTS, ok := c.shadow.PeekNextPTS()
	if !ok {
		return false, 0, newError(KindNotReady, "switch_to_live", "shadow has no buffered frame to promote", nil)
	}

	// Step 3: contiguity is reported, never enforced.
	contiguous := shadowStartPTS == expectedNext

	// Step 4: anchor the promoted shadow on the current master-clock
	// timeline, not a re-paced zero.
	baseNSNew := c.cfg.Clock.Now()

	// Step 5: non-blocking stop signal, joined by the reaper.
	oldLive := c.live
	c.cfg.Reaper.Abort(oldLive)

	// Step 6: promote shadow to live.
	c.shadow.Activate(baseNSNew)
	c.live = c.shadow

	// Step 7: clear the shadow role.
	c.shadow = nil
	c.state = StateLiveOnly

	c.lastSwitchContiguous.Store(contiguous)
	c.previewActive.Store(false)

	return contiguous, shadowStartPTS, nil
}

// UpdatePlan replaces the plan handle label on the live slot without
// disturbing the decode pipeline, per spec §4.7.
func (c *Channel) UpdatePlan(handle string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateEmpty || c.state == StateStopped {
		return newError(KindBadState, "update_plan", "channel has no active slot", nil)
	}
	c.planHandle = handle
	return nil
}

// Stop drains the live and shadow slots and transitions to StateStopped.
// Draining is synchronous from the caller's perspective (unlike abort,
// which is deferred to the reaper) because Stop is itself a terminal
// operation: there is nothing left to keep responsive afterward.
func (c *Channel) Stop() {
	c.mu.Lock()
	c.state = StateStopping
	live := c.live
	shadow := c.shadow
	c.shadow = nil
	c.mu.Unlock()

	if shadow != nil {
		shadow.Drain()
	}
	if live != nil {
		live.Drain()
	}

	c.mu.Lock()
	c.live = nil
	c.state = StateStopped
	c.mu.Unlock()
}

// MarkErrored transitions the channel to StateErrored, aborting any
// remaining slots, and records msg for the next query to surface.
func (c *Channel) MarkErrored(msg string) {
	c.mu.Lock()
	live := c.live
	shadow := c.shadow
	c.live = nil
	c.shadow = nil
	c.erroredMsg = msg
	c.state = StateErrored
	c.mu.Unlock()

	if shadow != nil {
		c.cfg.Reaper.Abort(shadow)
	}
	if live != nil {
		c.cfg.Reaper.Abort(live)
	}
}

// ErrorMessage returns the message recorded by the last MarkErrored call.
func (c *Channel) ErrorMessage() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.erroredMsg
}

// PreviewActive reports whether a shadow slot is currently buffered.
func (c *Channel) PreviewActive() bool { return c.previewActive.Load() }

// LastSwitchContiguous reports the contiguity flag from the most recent
// successful SwitchToLive call.
func (c *Channel) LastSwitchContiguous() bool { return c.lastSwitchContiguous.Load() }
