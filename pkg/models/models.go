package models

import (
	"bytes"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type Trace struct {
	CreatedAt time.Time
	Creator   string

	ReceivedAt time.Time

	ProcessedAt time.Time
	Processor   string
}

func (t Trace) Log() {
	log.Trace().Time("created_at", t.CreatedAt).Str("creator", t.Creator).Time("processed_at", t.ProcessedAt).Str("processor", t.Processor).Dur("dur_to_process", t.ProcessedAt.Sub(t.CreatedAt)).Msgf("tracing")
}

func NewTrace(creator string) Trace {
	return Trace{
		CreatedAt: time.Now(),
		Creator:   creator,
	}
}

type RecordingState int

const (
	UnInitialized RecordingState = iota
	Stopped
	Recording
	Paused
)

func (s RecordingState) String() string {
	switch s {
	case UnInitialized:
		return "UnInitialized"
	case Stopped:
		return "Stopped"
	case Recording:
		return "Recording"
	case Paused:
		return "Paused"
	default:
		return "Unknown"
	}
}

type PlayingState int

const (
	Ready PlayingState = iota
	Playing
)

func (s PlayingState) String() string {
	if s == Playing {
		return "Playing"
	}
	return "Ready"
}

// NoMimeType is reported until the capture device delivered its first chunk.
const NoMimeType = "Undefined: No recording data yet."

// AudioChunk is one opaque segment delivered by a capture device, in order.
type AudioChunk struct {
	Data     []byte
	MimeType string
	// Flush marks the chunk emitted in answer to a flush request, possibly empty.
	Flush bool
	Trace Trace
}

// AudioArtifact is the playable concatenation of the chunks buffered since the last stop.
// The payload is copied on creation and never handed out for mutation.
type AudioArtifact struct {
	ID        uuid.UUID
	MimeType  string
	CreatedAt time.Time

	data []byte
}

func NewAudioArtifact(chunks []AudioChunk, mimeType string) AudioArtifact {
	size := 0
	for _, c := range chunks {
		size += len(c.Data)
	}
	data := make([]byte, 0, size)
	for _, c := range chunks {
		data = append(data, c.Data...)
	}
	return AudioArtifact{
		ID:        uuid.New(),
		MimeType:  mimeType,
		CreatedAt: time.Now(),
		data:      data,
	}
}

func (a AudioArtifact) Len() int {
	return len(a.data)
}

// Bytes returns a copy of the payload.
func (a AudioArtifact) Bytes() []byte {
	return bytes.Clone(a.data)
}

func (a AudioArtifact) Reader() *bytes.Reader {
	return bytes.NewReader(a.data)
}
