package engine

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zsiec/playout/decoder"
	"github.com/zsiec/playout/media"
	"github.com/zsiec/playout/telemetry"
)

// minBackoff is the producer's back-off interval on RingFull/TransientError,
// per spec §4.4.
const minBackoff = 10 * time.Millisecond

// ProducerConfig parameterizes a FrameProducer.
type ProducerConfig struct {
	ChannelID int32
	PlanLabel func() string // returns the current plan handle for metric labels
	Synthetic bool
	Hooks     telemetry.Hooks
	Log       *slog.Logger
}

// Producer owns exactly one DecoderPort and the writer end of one
// media.Ring. It is constructed stopped; Start spawns its worker goroutine
// and Stop joins it, per spec §4.4.
type Producer struct {
	cfg     ProducerConfig
	port    decoder.Port
	ring    *media.Ring
	log     *slog.Logger

	stopCh  chan struct{}
	doneCh  chan struct{}
	started atomic.Bool

	framesProduced atomic.Int64
	ringFullEvents atomic.Int64
	decodeErrors   atomic.Int64

	errored atomic.Bool
}

// NewProducer constructs a Producer for port, writing into ring.
func NewProducer(cfg ProducerConfig, port decoder.Port, ring *media.Ring) *Producer {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	return &Producer{
		cfg:  cfg,
		port: port,
		ring: ring,
		log:  log.With("component", "producer", "channel_id", cfg.ChannelID),
	}
}

// Start launches the decode worker goroutine. Calling Start twice is a no-op.
func (p *Producer) Start() {
	if !p.started.CompareAndSwap(false, true) {
		return
	}
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	go p.run()
}

// Stop signals the worker to exit and blocks until it has, draining and
// closing the decoder before returning. Stop is safe to call multiple
// times and before Start.
func (p *Producer) Stop() {
	if !p.started.Load() {
		return
	}
	select {
	case <-p.stopCh:
	default:
		close(p.stopCh)
	}
	<-p.doneCh
}

// Errored reports whether the decoder hit a FatalError.
func (p *Producer) Errored() bool { return p.errored.Load() }

// FramesProduced returns the number of frames successfully pushed.
func (p *Producer) FramesProduced() int64 { return p.framesProduced.Load() }

func (p *Producer) run() {
	defer close(p.doneCh)
	defer p.port.Close()
	defer p.ring.Close()

	if err := p.port.Open(); err != nil {
		p.log.Error("decoder open failed", "error", err)
		p.errored.Store(true)
		return
	}

	var once sync.Once
	logFatal := func(err any) {
		once.Do(func() { p.log.Error("fatal decode error", "error", err) })
	}

	for {
		select {
		case <-p.stopCh:
			return
		default:
		}

		outcome := p.port.DecodeNextInto(p.ring)
		switch outcome {
		case decoder.Pushed:
			p.framesProduced.Add(1)
			p.incCounter(telemetry.MetricFramesProducedTotal, 1)
		case decoder.RingFull:
			p.ringFullEvents.Add(1)
			p.incCounter(telemetry.MetricRingFullEventsTotal, 1)
			p.backoffOrStop()
		case decoder.Eof:
			return
		case decoder.TransientError:
			p.decodeErrors.Add(1)
			p.incCounter(telemetry.MetricDecodeErrorsTotal, 1)
			p.backoffOrStop()
		case decoder.FatalError:
			logFatal(outcome)
			p.errored.Store(true)
			return
		}
	}
}

// backoffOrStop sleeps for minBackoff unless a stop request arrives first,
// in which case it returns immediately so the caller's loop observes
// stopCh on its next iteration. This is how the producer satisfies spec
// §4.4's tie-break: on a final RingFull at EOF, it keeps retrying the same
// push until the ring accepts it or stop is requested.
func (p *Producer) backoffOrStop() {
	t := time.NewTimer(minBackoff)
	defer t.Stop()
	select {
	case <-t.C:
	case <-p.stopCh:
	}
}

func (p *Producer) incCounter(name string, n float64) {
	if p.cfg.Hooks == nil {
		return
	}
	labels := map[string]string{"channel_id": formatChannelID(p.cfg.ChannelID)}
	if p.cfg.PlanLabel != nil {
		labels["plan_handle"] = p.cfg.PlanLabel()
	}
	p.cfg.Hooks.IncCounter(name, labels, n)
}
