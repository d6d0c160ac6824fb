package engine

import (
	"context"
	"testing"
	"time"

	"github.com/zsiec/playout/clock"
	"github.com/zsiec/playout/decoder"
)

func newTestEngine(t *testing.T, newPort PortFactory) *PlayoutEngine {
	t.Helper()
	sink, _ := collectingSink()
	e := NewEngine(EngineConfig{
		Clock:       clock.NewSystem(),
		TimebaseNum: 1,
		TimebaseDen: int64(time.Second),
		NewPort:     newPort,
		Sink:        sink,
	})
	t.Cleanup(e.Shutdown)
	return e
}

func syntheticPort(frameCount int) PortFactory {
	return func(asset string) (decoder.Port, error) {
		return decoder.NewSynthetic(decoder.SyntheticConfig{
			AssetURI:   asset,
			Duration:   1000,
			FrameCount: frameCount,
		}), nil
	}
}

// TestStartThenStop is scenario S1: start_channel(7, "plan-A", ...) succeeds;
// after frames are produced, stop_channel(7) succeeds and the channel is
// gone from the table.
func TestStartThenStop(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, syntheticPort(10))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	res, err := e.StartChannel(ctx, 7, "asset.ts", "plan-A")
	if err != nil {
		t.Fatalf("StartChannel() error = %v", err)
	}
	if !res.Success {
		t.Fatal("StartChannel() success = false")
	}

	stopRes, err := e.StopChannel(7)
	if err != nil {
		t.Fatalf("StopChannel() error = %v", err)
	}
	if !stopRes.Success {
		t.Fatal("StopChannel() success = false")
	}
	if e.ChannelCount() != 0 {
		t.Errorf("ChannelCount() = %d, want 0", e.ChannelCount())
	}
}

// TestDuplicateStartFails is scenario S2: a second start_channel with the
// same id returns AlreadyExists and the table still has exactly one entry.
func TestDuplicateStartFails(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, syntheticPort(10))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if _, err := e.StartChannel(ctx, 7, "asset.ts", "plan-A"); err != nil {
		t.Fatalf("first StartChannel() error = %v", err)
	}
	_, err := e.StartChannel(ctx, 7, "asset.ts", "plan-A")
	if KindOf(err) != KindAlreadyExists {
		t.Fatalf("KindOf(err) = %v, want KindAlreadyExists", KindOf(err))
	}
	if e.ChannelCount() != 1 {
		t.Errorf("ChannelCount() = %d, want 1", e.ChannelCount())
	}
}

// TestUpdatePlanMidStream is scenario S6: update_plan succeeds without
// disturbing the channel's state.
func TestUpdatePlanMidStream(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, syntheticPort(10))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if _, err := e.StartChannel(ctx, 2, "asset.ts", "plan-A"); err != nil {
		t.Fatalf("StartChannel() error = %v", err)
	}

	res, err := e.UpdatePlan(2, "plan-B")
	if err != nil {
		t.Fatalf("UpdatePlan() error = %v", err)
	}
	if !res.Success {
		t.Error("UpdatePlan() success = false")
	}

	ch, ok := e.table.Get(2)
	if !ok {
		t.Fatal("channel 2 missing from table")
	}
	if ch.PlanHandle() != "plan-B" {
		t.Errorf("PlanHandle() = %q, want plan-B", ch.PlanHandle())
	}
}

// TestOperationsOnForeignIDReturnNotFound covers testable property 6: every
// operation on an absent id returns NotFound and mutates no state.
func TestOperationsOnForeignIDReturnNotFound(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, syntheticPort(10))
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if _, err := e.StopChannel(999); KindOf(err) != KindNotFound {
		t.Errorf("StopChannel: KindOf(err) = %v, want KindNotFound", KindOf(err))
	}
	if _, err := e.LoadPreview(ctx, 999, "asset.ts"); KindOf(err) != KindNotFound {
		t.Errorf("LoadPreview: KindOf(err) = %v, want KindNotFound", KindOf(err))
	}
	if _, err := e.SwitchToLive(999); KindOf(err) != KindNotFound {
		t.Errorf("SwitchToLive: KindOf(err) = %v, want KindNotFound", KindOf(err))
	}
	if _, err := e.UpdatePlan(999, "plan-X"); KindOf(err) != KindNotFound {
		t.Errorf("UpdatePlan: KindOf(err) = %v, want KindNotFound", KindOf(err))
	}
	if e.ChannelCount() != 0 {
		t.Errorf("ChannelCount() = %d, want 0", e.ChannelCount())
	}
}

// TestSwitchToLiveWithoutPreviewReturnsBadState checks that switch_to_live
// on a running channel with no preview loaded returns BadState. The
// NotReady case (shadow below ready_threshold) is covered at the Channel
// level by TestChannelSwitchToLiveNotReadyWhenShadowNotStreaming.
func TestSwitchToLiveWithoutPreviewReturnsBadState(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, syntheticPort(10))
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if _, err := e.StartChannel(ctx, 3, "asset.ts", "plan-A"); err != nil {
		t.Fatalf("StartChannel() error = %v", err)
	}

	// No preview loaded at all: switch_to_live must fail BadState, not panic.
	_, err := e.SwitchToLive(3)
	if KindOf(err) != KindBadState {
		t.Fatalf("KindOf(err) = %v, want KindBadState", KindOf(err))
	}
}
