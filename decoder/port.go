// Package decoder defines the DecoderPort capability interface a
// FrameProducer depends on, plus the implementations this repository
// ships: a synthetic generator for tests and bring-up, and a reisen-backed
// decoder for real media assets.
package decoder

import (
	"errors"
	"fmt"

	"github.com/zsiec/playout/media"
)

// Sentinel errors Open may return. Callers distinguish them with errors.Is.
var (
	ErrNotFound    = errors.New("decoder: asset not found")
	ErrUnsupported = errors.New("decoder: asset format unsupported")
)

// IoError wraps an I/O failure encountered opening or reading an asset.
type IoError struct {
	Op  string
	Err error
}

func (e *IoError) Error() string { return fmt.Sprintf("decoder: %s: %v", e.Op, e.Err) }
func (e *IoError) Unwrap() error { return e.Err }

// Outcome is the result of one DecodeNextInto call.
type Outcome int

const (
	// Pushed indicates a frame was decoded and accepted by the ring.
	Pushed Outcome = iota
	// RingFull indicates a frame was decoded but the ring rejected it; the
	// caller must retry the same frame.
	RingFull
	// Eof indicates the asset has no more frames.
	Eof
	// TransientError indicates a recoverable decode error; the caller
	// should back off and retry.
	TransientError
	// FatalError indicates an unrecoverable decode error; the caller must
	// stop and the owning slot transitions to Errored.
	FatalError
)

func (o Outcome) String() string {
	switch o {
	case Pushed:
		return "pushed"
	case RingFull:
		return "ring_full"
	case Eof:
		return "eof"
	case TransientError:
		return "transient_error"
	case FatalError:
		return "fatal_error"
	default:
		return "unknown"
	}
}

// Stats captures observability counters for a DecoderPort.
type Stats struct {
	FramesDecoded int64
	DecodeErrors  int64
	BytesConsumed int64
}

// Port is the capability interface a FrameProducer depends on to turn one
// asset into a sequence of decoded frames. Implementations plug in at
// ChannelSlot construction; the engine never constrains codec choice.
type Port interface {
	// Open initializes codec/context state for the configured asset. It
	// fails with an error wrapping ErrNotFound, ErrUnsupported, or IoError.
	Open() error
	// DecodeNextInto decodes exactly one frame and attempts to push it
	// onto ring, reporting which of the Outcome cases occurred.
	DecodeNextInto(ring *media.Ring) Outcome
	// IsOpen reports whether Open has succeeded and Close has not yet
	// been called.
	IsOpen() bool
	// IsEOF reports whether the asset has been fully consumed.
	IsEOF() bool
	// Stats returns a snapshot of decode counters.
	Stats() Stats
	// Close releases codec resources. It is idempotent.
	Close() error
}
