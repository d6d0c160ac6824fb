package engine

import (
	"log/slog"
)

// reapQueueSize bounds how many aborted slots may be pending a join at
// once; lifecycle operations are rare enough relative to frame pacing that
// this is generous headroom, not a back-pressure mechanism.
const reapQueueSize = 256

// Reaper joins aborted ChannelSlots off the caller's thread, so a
// lifecycle operation that aborts a slot (switch_to_live, load_preview
// replacing a shadow) never blocks on a producer/consumer goroutine exit,
// per spec §4.8 and §5. stop_channel drains its slots synchronously and
// does not use the reaper.
type Reaper struct {
	log   *slog.Logger
	queue chan *ChannelSlot
	done  chan struct{}
}

// NewReaper constructs and starts a Reaper. Stop shuts it down.
func NewReaper(log *slog.Logger) *Reaper {
	if log == nil {
		log = slog.Default()
	}
	r := &Reaper{
		log:   log.With("component", "reaper"),
		queue: make(chan *ChannelSlot, reapQueueSize),
		done:  make(chan struct{}),
	}
	go r.run()
	return r
}

// Abort enqueues slot for asynchronous Abort(). If the queue is full (it
// should never be, under normal lifecycle rates) it falls back to joining
// inline rather than dropping the slot and leaking its goroutines.
func (r *Reaper) Abort(slot *ChannelSlot) {
	select {
	case r.queue <- slot:
	default:
		r.log.Warn("reap queue full, joining inline")
		slot.Abort()
	}
}

func (r *Reaper) run() {
	defer close(r.done)
	for slot := range r.queue {
		slot.Abort()
	}
}

// Stop closes the reap queue and waits for any already-enqueued slots to
// finish joining. It does not accept further Abort calls afterward.
func (r *Reaper) Stop() {
	close(r.queue)
	<-r.done
}
