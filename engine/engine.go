// Package engine implements the playout domain: MasterClock-paced decode
// pipelines (producer, ring, consumer) bundled into ChannelSlots, a
// dual-slot Channel state machine with an atomic switch-to-live protocol,
// and the PlayoutEngine that exposes channel lifecycle operations over a
// ChannelTable.
package engine

import (
	"context"
	"log/slog"
	"sync"

	"github.com/zsiec/playout/clock"
	"github.com/zsiec/playout/telemetry"
)

// EngineConfig parameterizes a PlayoutEngine. Shared across every channel
// it creates.
type EngineConfig struct {
	RingCapacity int
	TimebaseNum  int64
	TimebaseDen  int64
	Clock        clock.Clock
	Hooks        telemetry.Hooks
	NewPort      PortFactory
	Sink         Sink
	Log          *slog.Logger
}

// PlayoutEngine owns the ChannelTable and a serialization lock guarding
// table membership. Per spec §5, the lock is held only long enough to
// check/insert/remove a table entry; the potentially slow parts of a
// lifecycle operation (priming, draining) run on the caller's goroutine
// without holding it, and aborted-slot joins are deferred to the reaper.
type PlayoutEngine struct {
	cfg    EngineConfig
	log    *slog.Logger
	mu     sync.Mutex
	table  *ChannelTable
	reaper *Reaper
}

// NewEngine constructs a PlayoutEngine and starts its reaper.
func NewEngine(cfg EngineConfig) *PlayoutEngine {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	if cfg.Hooks == nil {
		cfg.Hooks = telemetry.Noop{}
	}
	return &PlayoutEngine{
		cfg:    cfg,
		log:    log.With("component", "engine"),
		table:  NewChannelTable(),
		reaper: NewReaper(log),
	}
}

// Shutdown stops the reaper. Channels already running are left as-is;
// callers should StopChannel each one first.
func (e *PlayoutEngine) Shutdown() {
	e.reaper.Stop()
}

// StartChannelResult is returned by StartChannel.
type StartChannelResult struct {
	Success bool
	Message string
}

// StartChannel creates a new channel with id, decoding asset (addressed by
// its uri/port arguments are carried by the caller's PortFactory), and
// transitions it Empty -> LiveOnly. It fails AlreadyExists if id is
// already registered.
func (e *PlayoutEngine) StartChannel(ctx context.Context, id int32, asset, plan string) (StartChannelResult, error) {
	e.mu.Lock()
	if _, ok := e.table.Get(id); ok {
		e.mu.Unlock()
		err := newError(KindAlreadyExists, "start_channel", "channel already exists", nil)
		return StartChannelResult{}, err
	}
	ch := NewChannel(ChannelConfig{
		ID:           id,
		RingCapacity: e.cfg.RingCapacity,
		TimebaseNum:  e.cfg.TimebaseNum,
		TimebaseDen:  e.cfg.TimebaseDen,
		Clock:        e.cfg.Clock,
		Hooks:        e.cfg.Hooks,
		Reaper:       e.reaper,
		NewPort:      e.cfg.NewPort,
		Sink:         e.cfg.Sink,
		Log:          e.log,
	})
	e.table.Put(id, ch)
	e.mu.Unlock()

	if err := ch.Start(ctx, asset, plan); err != nil {
		// A failed start leaves the table unchanged.
		e.mu.Lock()
		e.table.Remove(id)
		e.mu.Unlock()
		return StartChannelResult{}, err
	}
	e.setChannelStateMetric(id, ch)
	return StartChannelResult{Success: true, Message: "channel started"}, nil
}

// StopChannelResult is returned by StopChannel.
type StopChannelResult struct {
	Success bool
	Message string
}

// StopChannel drains channel id and removes it from the table. It fails
// NotFound if id is absent.
func (e *PlayoutEngine) StopChannel(id int32) (StopChannelResult, error) {
	e.mu.Lock()
	ch, ok := e.table.Get(id)
	e.mu.Unlock()
	if !ok {
		return StopChannelResult{}, newError(KindNotFound, "stop_channel", "channel not found", nil)
	}

	ch.Stop()
	e.setChannelStateMetric(id, ch)

	e.mu.Lock()
	e.table.Remove(id)
	e.mu.Unlock()

	return StopChannelResult{Success: true, Message: "channel stopped"}, nil
}

// LoadPreviewResult is returned by LoadPreview.
type LoadPreviewResult struct {
	Success             bool
	Message             string
	ShadowDecodeStarted bool
}

// LoadPreview primes a shadow slot for asset on channel id. It fails
// NotFound if absent, or BadState if the channel has no live slot yet.
func (e *PlayoutEngine) LoadPreview(ctx context.Context, id int32, asset string) (LoadPreviewResult, error) {
	e.mu.Lock()
	ch, ok := e.table.Get(id)
	e.mu.Unlock()
	if !ok {
		return LoadPreviewResult{}, newError(KindNotFound, "load_preview", "channel not found", nil)
	}

	started, err := ch.LoadPreview(ctx, asset)
	if err != nil {
		return LoadPreviewResult{}, err
	}
	e.setChannelStateMetric(id, ch)
	e.setPreviewActiveMetric(id, ch)
	return LoadPreviewResult{Success: true, Message: "preview loaded", ShadowDecodeStarted: started}, nil
}

// SwitchToLiveResult is returned by SwitchToLive.
type SwitchToLiveResult struct {
	Success       bool
	Message       string
	PTSContiguous bool
	LiveStartPTS  int64
}

// SwitchToLive promotes channel id's shadow slot to live. It fails
// NotFound if absent, BadState if there is no shadow, or NotReady if the
// shadow has not yet reached ready_threshold.
func (e *PlayoutEngine) SwitchToLive(id int32) (SwitchToLiveResult, error) {
	e.mu.Lock()
	ch, ok := e.table.Get(id)
	e.mu.Unlock()
	if !ok {
		return SwitchToLiveResult{}, newError(KindNotFound, "switch_to_live", "channel not found", nil)
	}

	contiguous, livePTS, err := ch.SwitchToLive()
	if err != nil {
		return SwitchToLiveResult{}, err
	}

	e.setChannelStateMetric(id, ch)
	e.setPreviewActiveMetric(id, ch)
	if e.cfg.Hooks != nil {
		labels := map[string]string{"channel_id": formatChannelID(id)}
		v := 0.0
		if contiguous {
			v = 1.0
		}
		e.cfg.Hooks.SetGauge(telemetry.MetricLastSwitchContig, labels, v)
	}

	return SwitchToLiveResult{
		Success:       true,
		Message:       "switched to live",
		PTSContiguous: contiguous,
		LiveStartPTS:  livePTS,
	}, nil
}

// UpdatePlanResult is returned by UpdatePlan.
type UpdatePlanResult struct {
	Success bool
	Message string
}

// UpdatePlan replaces the plan handle label on channel id's live slot. It
// fails NotFound if absent, or InvalidArgument if handle is empty.
func (e *PlayoutEngine) UpdatePlan(id int32, handle string) (UpdatePlanResult, error) {
	if handle == "" {
		return UpdatePlanResult{}, newError(KindInvalidArgument, "update_plan", "plan handle must not be empty", nil)
	}

	e.mu.Lock()
	ch, ok := e.table.Get(id)
	e.mu.Unlock()
	if !ok {
		return UpdatePlanResult{}, newError(KindNotFound, "update_plan", "channel not found", nil)
	}

	if err := ch.UpdatePlan(handle); err != nil {
		return UpdatePlanResult{}, err
	}
	return UpdatePlanResult{Success: true, Message: "plan updated"}, nil
}

// ChannelCount returns the number of channels currently registered.
func (e *PlayoutEngine) ChannelCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.table.Len()
}

func (e *PlayoutEngine) setChannelStateMetric(id int32, ch *Channel) {
	if e.cfg.Hooks == nil {
		return
	}
	labels := map[string]string{"channel_id": formatChannelID(id)}
	state := ch.State()
	var v int
	if live := ch.LiveSlot(); live != nil {
		v = int(live.Status())
	} else {
		v = state.MetricState()
	}
	e.cfg.Hooks.SetGauge(telemetry.MetricChannelState, labels, float64(v))
}

func (e *PlayoutEngine) setPreviewActiveMetric(id int32, ch *Channel) {
	if e.cfg.Hooks == nil {
		return
	}
	labels := map[string]string{"channel_id": formatChannelID(id)}
	v := 0.0
	if ch.PreviewActive() {
		v = 1.0
	}
	e.cfg.Hooks.SetGauge(telemetry.MetricPreviewActive, labels, v)
}
