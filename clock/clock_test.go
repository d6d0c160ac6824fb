package clock

import (
	"context"
	"testing"
	"time"
)

func TestFrameDeadline(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name                              string
		baseNS, pts, timebaseNum, timebaseDen int64
		want                              int64
	}{
		{"zero pts", 1000, 0, 1, 90000, 1000},
		{"one second at 90kHz", 0, 90000, 1, 90000, int64(time.Second)},
		{"half second at 90kHz with base offset", 500, 45000, 1, 90000, 500 + int64(time.Second)/2},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := FrameDeadline(tt.baseNS, tt.pts, tt.timebaseNum, tt.timebaseDen)
			if got != tt.want {
				t.Errorf("FrameDeadline(%d,%d,%d,%d) = %d, want %d", tt.baseNS, tt.pts, tt.timebaseNum, tt.timebaseDen, got, tt.want)
			}
		})
	}
}

func TestManualSleepUntilBlocksUntilAdvance(t *testing.T) {
	t.Parallel()
	c := NewManual()
	done := make(chan error, 1)
	go func() {
		done <- c.SleepUntil(context.Background(), int64(time.Second))
	}()

	select {
	case <-done:
		t.Fatal("SleepUntil returned before Advance")
	case <-time.After(50 * time.Millisecond):
	}

	c.Advance(int64(time.Second))
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("SleepUntil() error = %v, want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatal("SleepUntil did not wake after Advance")
	}
}

func TestManualSleepUntilRespectsCancellation(t *testing.T) {
	t.Parallel()
	c := NewManual()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- c.SleepUntil(ctx, int64(time.Second))
	}()
	cancel()
	select {
	case err := <-done:
		if err == nil {
			t.Error("SleepUntil() error = nil, want context.Canceled")
		}
	case <-time.After(time.Second):
		t.Fatal("SleepUntil did not observe cancellation")
	}
}

func TestManualNowNonDecreasing(t *testing.T) {
	t.Parallel()
	c := NewManual()
	prev := c.Now()
	for i := 0; i < 5; i++ {
		c.Advance(10)
		now := c.Now()
		if now < prev {
			t.Fatalf("Now() decreased: %d -> %d", prev, now)
		}
		prev = now
	}
}
