package decoder

import (
	"sync/atomic"

	"github.com/zsiec/playout/media"
)

// SyntheticConfig parameterizes a Synthetic decoder's output.
type SyntheticConfig struct {
	AssetURI    string
	Width       int
	Height      int
	StartPTS    int64
	Duration    int64 // ticks per frame
	TimebaseNum int64
	TimebaseDen int64
	// FrameCount bounds how many frames are produced before Eof; zero means
	// unbounded (useful for a live-style shadow slot that is aborted rather
	// than allowed to reach EOF).
	FrameCount int
}

// Synthetic is a DecoderPort that fabricates deterministic frames without
// touching real media I/O, matching spec §4.4: content is a PTS-indexed
// luma value with chroma held at 128, so ring-behavior and pacing tests
// are fully reproducible.
type Synthetic struct {
	cfg SyntheticConfig

	open      bool
	eof       bool
	nextPTS   int64
	emitted   int
	decoded   atomic.Int64
	errored   atomic.Int64
}

// NewSynthetic constructs a Synthetic decoder for cfg. Width/Height/Duration
// default to 320x180 and 3000 ticks if unset.
func NewSynthetic(cfg SyntheticConfig) *Synthetic {
	if cfg.Width <= 0 {
		cfg.Width = 320
	}
	if cfg.Height <= 0 {
		cfg.Height = 180
	}
	if cfg.Duration <= 0 {
		cfg.Duration = 3000
	}
	if cfg.TimebaseNum <= 0 {
		cfg.TimebaseNum = 1
	}
	if cfg.TimebaseDen <= 0 {
		cfg.TimebaseDen = 90000
	}
	return &Synthetic{cfg: cfg, nextPTS: cfg.StartPTS}
}

// Open implements Port.
func (s *Synthetic) Open() error {
	s.open = true
	return nil
}

// DecodeNextInto implements Port. It fabricates one frame and retries the
// push internally is not its job — spec leaves retry-on-RingFull to the
// FrameProducer, so a single attempt is made here per call.
func (s *Synthetic) DecodeNextInto(ring *media.Ring) Outcome {
	if s.eof {
		return Eof
	}
	if s.cfg.FrameCount > 0 && s.emitted >= s.cfg.FrameCount {
		s.eof = true
		return Eof
	}

	luma := byte(s.nextPTS % 256)
	frame := media.Frame{
		PTS:         s.nextPTS,
		DTS:         s.nextPTS,
		Duration:    s.cfg.Duration,
		Width:       s.cfg.Width,
		Height:      s.cfg.Height,
		PixelFormat: media.PixelFormatYUV420P,
		AssetURI:    s.cfg.AssetURI,
		Data:        syntheticPlanes(s.cfg.Width, s.cfg.Height, luma),
	}

	if !ring.TryPush(frame) {
		return RingFull
	}

	s.nextPTS += s.cfg.Duration
	s.emitted++
	s.decoded.Add(1)
	return Pushed
}

// syntheticPlanes builds a YUV420P buffer: a full-resolution luma plane at
// the given value, followed by half-resolution U and V planes at neutral
// chroma (128).
func syntheticPlanes(width, height int, luma byte) []byte {
	lumaSize := width * height
	chromaW, chromaH := (width+1)/2, (height+1)/2
	chromaSize := chromaW * chromaH
	buf := make([]byte, lumaSize+2*chromaSize)
	for i := 0; i < lumaSize; i++ {
		buf[i] = luma
	}
	for i := lumaSize; i < len(buf); i++ {
		buf[i] = 128
	}
	return buf
}

// IsOpen implements Port.
func (s *Synthetic) IsOpen() bool { return s.open }

// IsEOF implements Port.
func (s *Synthetic) IsEOF() bool { return s.eof }

// Stats implements Port.
func (s *Synthetic) Stats() Stats {
	return Stats{FramesDecoded: s.decoded.Load(), DecodeErrors: s.errored.Load()}
}

// Close implements Port. It is idempotent.
func (s *Synthetic) Close() error {
	s.open = false
	return nil
}
