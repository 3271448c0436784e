package compress

import (
	"context"
	"fmt"
	"time"
)

// Resolution modes accepted by the submission API. Named modes map to fixed
// scale targets; "source" keeps the input dimensions; "custom" uses the
// caller-supplied width and height.
const (
	ModeSource = "source"
	ModeCustom = "custom"
)

var scaleMap = map[string]string{
	"4320p": "7680:4320",
	"2160p": "3840:2160",
	"1440p": "2560:1440",
	"1080p": "1920:1080",
	"720p":  "1280:720",
	"480p":  "854:480",
	"360p":  "640:360",
}

// ValidMode reports whether mode is an accepted resolution mode.
func ValidMode(mode string) bool {
	if mode == ModeSource || mode == ModeCustom {
		return true
	}
	_, ok := scaleMap[mode]
	return ok
}

// ScaleFor returns the ffmpeg scale target for a mode, or ok=false when no
// scaling applies. Callers validate mode and dimensions first.
func ScaleFor(mode string, width, height int) (string, bool) {
	switch mode {
	case ModeSource:
		return "", false
	case ModeCustom:
		return fmt.Sprintf("%d:%d", width, height), true
	default:
		s, ok := scaleMap[mode]
		return s, ok
	}
}

// Request describes one encode run over local files.
type Request struct {
	InputPath   string
	OutputPath  string
	CRF         int // quality mode; used when BitrateKbps is zero
	BitrateKbps int // target bitrate mode
	Resolution  string
	Width       int
	Height      int
	HWAccel     bool
}

type EventKind int

const (
	EventProgress EventKind = iota
	EventWarning
)

// Event is one element of an encode's progress sequence.
type Event struct {
	Kind    EventKind
	Percent float64
	Detail  string
}

// Stream is the lazily produced, finite event sequence of a running encode.
// Consumers drain Events until it closes, then read Err for the outcome.
type Stream struct {
	events chan Event
	err    error
}

func NewStream() *Stream {
	return &Stream{events: make(chan Event, 16)}
}

func (s *Stream) Events() <-chan Event { return s.events }

// Err reports the terminal error. Only valid after Events is exhausted.
func (s *Stream) Err() error { return s.err }

// Emit pushes an event, waiting for the consumer if needed. Producer side.
func (s *Stream) Emit(ev Event) { s.events <- ev }

// TryEmit pushes an event unless the consumer is behind. Used for progress
// estimates that a newer one will replace anyway.
func (s *Stream) TryEmit(ev Event) bool {
	select {
	case s.events <- ev:
		return true
	default:
		return false
	}
}

// CloseWith ends the stream with the run's outcome. Must be called exactly
// once, after the last Emit.
func (s *Stream) CloseWith(err error) {
	s.err = err
	close(s.events)
}

// Encoder runs the external encoding tool. Implementations stream progress
// and warnings while the tool runs and surface its exit result via the
// stream error.
type Encoder interface {
	Probe(ctx context.Context, path string) (time.Duration, error)
	Run(ctx context.Context, req Request) *Stream
}
