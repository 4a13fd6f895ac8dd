package audioio

import (
	"context"
	"sync"
	"time"

	"github.com/petrzlen/memo-golang/pkg/models"
)

// Constraints requested from the capture hardware on Acquire.
type Constraints struct {
	SampleRate       uint32
	Channels         uint32
	EchoCancellation bool
	NoiseSuppression bool
	AutoGainControl  bool
}

// DefaultConstraints mirror what a voice memo needs: mono, 16kHz, echo cancellation only.
func DefaultConstraints() Constraints {
	return Constraints{
		SampleRate:       16000,
		Channels:         1,
		EchoCancellation: true,
		NoiseSuppression: false,
		AutoGainControl:  false,
	}
}

type DeviceState int

const (
	DeviceInactive DeviceState = iota
	DeviceRecording
	DevicePaused
)

func (s DeviceState) String() string {
	switch s {
	case DeviceRecording:
		return "recording"
	case DevicePaused:
		return "paused"
	default:
		return "inactive"
	}
}

// CaptureDevice hands out capture handles, acquiring the hardware lazily.
// Acquire fails with *models.DeviceAcquisitionError.
type CaptureDevice interface {
	Acquire(ctx context.Context, constraints Constraints) (CaptureHandle, error)
}

// CaptureHandle is one acquired capture stream.
//
// Chunks are delivered on Chunks() in emission order, each exactly once; RequestFlush makes
// the handle emit whatever it holds as soon as possible. The channel is closed by Release.
type CaptureHandle interface {
	Start() error
	Pause() error
	Resume() error
	Stop() error
	RequestFlush() error
	// Release stops the underlying stream and frees the hardware.
	Release() error

	Chunks() <-chan models.AudioChunk
	State() DeviceState
	IsActive() bool
	MimeType() string
}

// PlaybackDevice turns an artifact into something renderable.
// Load fails when the artifact cannot be decoded.
type PlaybackDevice interface {
	Load(artifact models.AudioArtifact) (PlaybackSource, error)
}

type PlaybackSource interface {
	Seek(offset time.Duration) error
	// Play returns a WaitGroup released at natural end of playback or after Pause.
	Play() (*sync.WaitGroup, error)
	// Pause frees the device right away, another source can Play once it returned.
	Pause() error
	Close() error
}
