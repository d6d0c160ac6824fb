package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/zsiec/playout/clock"
	"github.com/zsiec/playout/decoder"
	"github.com/zsiec/playout/media"
)

func collectingSink() (Sink, func() []media.Frame) {
	var mu sync.Mutex
	var frames []media.Frame
	sink := SinkFunc(func(f media.Frame) error {
		mu.Lock()
		frames = append(frames, f)
		mu.Unlock()
		return nil
	})
	get := func() []media.Frame {
		mu.Lock()
		defer mu.Unlock()
		out := make([]media.Frame, len(frames))
		copy(out, frames)
		return out
	}
	return sink, get
}

func newTestSlot(t *testing.T, cfg SlotConfig, port decoder.Port, sink Sink) *ChannelSlot {
	t.Helper()
	if cfg.Clock == nil {
		cfg.Clock = clock.NewSystem()
	}
	if cfg.TimebaseNum == 0 {
		cfg.TimebaseNum = 1
	}
	if cfg.TimebaseDen == 0 {
		cfg.TimebaseDen = int64(time.Second)
	}
	return NewSlot(cfg, port, sink)
}

func TestSlotPrimeReachesStreamingAfterReadyThreshold(t *testing.T) {
	t.Parallel()
	sink, _ := collectingSink()
	port := decoder.NewSynthetic(decoder.SyntheticConfig{Duration: 1000, FrameCount: 20})
	slot := newTestSlot(t, SlotConfig{ChannelID: 1, ReadyThreshold: 4}, port, sink)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := slot.Prime(ctx); err != nil {
		t.Fatalf("Prime() error = %v", err)
	}
	if got := slot.Status(); got != SlotStreaming {
		t.Errorf("Status() = %v, want SlotStreaming", got)
	}
	if slot.FramesProduced() < 4 {
		t.Errorf("FramesProduced() = %d, want >= 4", slot.FramesProduced())
	}

	slot.Abort()
}

func TestSlotActivateDeliversFramesToSink(t *testing.T) {
	t.Parallel()
	sink, get := collectingSink()
	port := decoder.NewSynthetic(decoder.SyntheticConfig{Duration: 1000, FrameCount: 10})
	slot := newTestSlot(t, SlotConfig{ChannelID: 2, ReadyThreshold: 4}, port, sink)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := slot.Prime(ctx); err != nil {
		t.Fatalf("Prime() error = %v", err)
	}

	slot.Activate(0)

	deadline := time.Now().Add(time.Second)
	for len(get()) < 10 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	frames := get()
	if len(frames) != 10 {
		t.Fatalf("sink received %d frames, want 10", len(frames))
	}
	for i, f := range frames {
		if f.PTS != int64(i)*1000 {
			t.Errorf("frame %d: PTS = %d, want %d", i, f.PTS, int64(i)*1000)
		}
	}

	slot.Drain()
}

func TestSlotAbortStopsBothGoroutines(t *testing.T) {
	t.Parallel()
	sink, _ := collectingSink()
	port := decoder.NewSynthetic(decoder.SyntheticConfig{Duration: 1000}) // unbounded
	slot := newTestSlot(t, SlotConfig{ChannelID: 3, ReadyThreshold: 4}, port, sink)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := slot.Prime(ctx); err != nil {
		t.Fatalf("Prime() error = %v", err)
	}

	done := make(chan struct{})
	go func() {
		slot.Abort()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Abort() did not return in time")
	}

	if got := slot.Status(); got != SlotClosed {
		t.Errorf("Status() after Abort = %v, want SlotClosed", got)
	}
}

func TestSlotPrimeTimesOutWhenDecoderStalls(t *testing.T) {
	t.Parallel()
	sink, _ := collectingSink()
	port := decoder.NewSynthetic(decoder.SyntheticConfig{Duration: 1000, FrameCount: 1})
	slot := newTestSlot(t, SlotConfig{
		ChannelID:      4,
		ReadyThreshold: 100, // unreachable given FrameCount: 1
		PrimeTimeout:   20 * time.Millisecond,
	}, port, sink)

	ctx := context.Background()
	err := slot.Prime(ctx)
	if err == nil {
		t.Fatal("Prime() error = nil, want Timeout")
	}
	if KindOf(err) != KindTimeout {
		t.Errorf("KindOf(err) = %v, want KindTimeout", KindOf(err))
	}
	slot.Abort()
}
