package decoder

import (
	"time"

	"github.com/erparts/reisen"

	"github.com/zsiec/playout/media"
)

// ReisenConfig parameterizes a Reisen decoder.
type ReisenConfig struct {
	// Filename is a local path; reisen has no io.ReadSeeker support, only
	// explicit filenames.
	Filename    string
	TimebaseNum int64
	TimebaseDen int64
}

// Reisen is a Port backed by github.com/erparts/reisen (ffmpeg bindings),
// decoding real media assets into RGBA frames. It reads container packets
// until one belongs to the selected video stream, mirroring
// videoOnlyController.internalReadVideoFrame, but pushes each decoded
// frame onto a media.Ring instead of buffering the "current" one.
type Reisen struct {
	cfg ReisenConfig

	media  *reisen.Media
	stream *reisen.VideoStream

	open    bool
	eof     bool
	decoded int64
	errors  int64
}

// NewReisen constructs a Reisen decoder for cfg.Filename. The file is not
// opened until Open is called.
func NewReisen(cfg ReisenConfig) *Reisen {
	if cfg.TimebaseNum <= 0 {
		cfg.TimebaseNum = 1
	}
	if cfg.TimebaseDen <= 0 {
		cfg.TimebaseDen = 90000
	}
	return &Reisen{cfg: cfg}
}

// Open implements Port. It opens the container, selects the first video
// stream, and begins decode.
func (r *Reisen) Open() error {
	container, err := reisen.NewMedia(r.cfg.Filename)
	if err != nil {
		return &IoError{Op: "open", Err: err}
	}

	streams := container.VideoStreams()
	if len(streams) == 0 {
		return ErrUnsupported
	}

	if err := container.OpenDecode(); err != nil {
		return &IoError{Op: "open_decode", Err: err}
	}
	stream := streams[0]
	if err := stream.Open(); err != nil {
		return &IoError{Op: "open_stream", Err: err}
	}

	r.media = container
	r.stream = stream
	r.open = true
	return nil
}

// DecodeNextInto implements Port. It reads container packets until one
// decodes into a video frame belonging to the selected stream, converts
// the ticks-based presentation offset into this decoder's configured
// timebase, and attempts to push the result.
func (r *Reisen) DecodeNextInto(ring *media.Ring) Outcome {
	if r.eof {
		return Eof
	}

	frame, err := r.readOneVideoFrame()
	if err != nil {
		r.errors++
		return TransientError
	}
	if frame == nil {
		r.eof = true
		return Eof
	}

	offset, err := frame.PresentationOffset()
	if err != nil {
		r.errors++
		return TransientError
	}

	out := media.Frame{
		PTS:         ticksFromDuration(offset, r.cfg.TimebaseNum, r.cfg.TimebaseDen),
		DTS:         ticksFromDuration(offset, r.cfg.TimebaseNum, r.cfg.TimebaseDen),
		Duration:    r.frameDurationTicks(),
		Width:       r.stream.Width(),
		Height:      r.stream.Height(),
		PixelFormat: media.PixelFormatRGBA,
		AssetURI:    r.cfg.Filename,
		Data:        frame.Data(),
	}

	if !ring.TryPush(out) {
		return RingFull
	}
	r.decoded++
	return Pushed
}

func (r *Reisen) readOneVideoFrame() (*reisen.VideoFrame, error) {
	for {
		packet, found, err := r.media.ReadPacket()
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, nil
		}
		if packet.Type() != reisen.StreamVideo || packet.StreamIndex() != r.stream.Index() {
			continue
		}
		frame, _, err := r.stream.ReadVideoFrame()
		if err != nil {
			return nil, err
		}
		if frame != nil {
			return frame, nil
		}
	}
}

func (r *Reisen) frameDurationTicks() int64 {
	num, den := r.stream.FrameRate()
	if num == 0 {
		return 0
	}
	perFrame := (time.Second * time.Duration(den)) / time.Duration(num)
	return ticksFromDuration(perFrame, r.cfg.TimebaseNum, r.cfg.TimebaseDen)
}

func ticksFromDuration(d time.Duration, timebaseNum, timebaseDen int64) int64 {
	if timebaseNum == 0 {
		return 0
	}
	return int64(d) * timebaseDen / (int64(time.Second) * timebaseNum)
}

// IsOpen implements Port.
func (r *Reisen) IsOpen() bool { return r.open }

// IsEOF implements Port.
func (r *Reisen) IsEOF() bool { return r.eof }

// Stats implements Port.
func (r *Reisen) Stats() Stats {
	return Stats{FramesDecoded: r.decoded, DecodeErrors: r.errors}
}

// Close implements Port. It is idempotent.
func (r *Reisen) Close() error {
	if !r.open {
		return nil
	}
	r.open = false
	if r.stream != nil {
		r.stream.Close()
	}
	if r.media != nil {
		r.media.CloseDecode()
		r.media.Close()
	}
	return nil
}
