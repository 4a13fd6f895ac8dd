package models

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAudioArtifactConcatenatesInOrder(t *testing.T) {
	chunks := []AudioChunk{
		{Data: []byte{1, 2}},
		{Data: []byte{3}},
		{Data: []byte{4, 5, 6}},
	}
	artifact := NewAudioArtifact(chunks, "audio/webm")

	assert.Equal(t, 6, artifact.Len())
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6}, artifact.Bytes())
	assert.Equal(t, "audio/webm", artifact.MimeType)
}

func TestAudioArtifactIsNotMutatedByItsSources(t *testing.T) {
	chunk := AudioChunk{Data: []byte{7, 7}}
	artifact := NewAudioArtifact([]AudioChunk{chunk}, "audio/webm")

	chunk.Data[0] = 0
	out := artifact.Bytes()
	out[1] = 0

	assert.Equal(t, []byte{7, 7}, artifact.Bytes())
}

func TestArtifactsHaveDistinctIDs(t *testing.T) {
	a := NewAudioArtifact(nil, "")
	b := NewAudioArtifact(nil, "")
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, 0, a.Len())
}

func TestDeviceAcquisitionErrorUnwraps(t *testing.T) {
	cause := errors.New("driver says no")
	err := errors.Wrap(NewDeviceAcquisitionError(PermissionDenied, cause), "start")

	var acqErr *DeviceAcquisitionError
	require.True(t, errors.As(err, &acqErr))
	assert.Equal(t, PermissionDenied, acqErr.Kind)
	assert.True(t, errors.Is(err, cause))
	assert.Contains(t, err.Error(), "PermissionDenied")
}

func TestPlaybackErrorMatchesSentinelAndCause(t *testing.T) {
	cause := errors.New("bad frame header")
	err := errors.Wrap(NewPlaybackError("cannot load audio/mpeg", cause), "play")

	assert.True(t, errors.Is(err, ErrPlaybackFailed))
	assert.True(t, errors.Is(err, cause))
	assert.False(t, errors.Is(err, ErrInvalidTransition))
	assert.Equal(t, "play: playback failed: cannot load audio/mpeg: bad frame header", err.Error())
}

func TestStateStrings(t *testing.T) {
	assert.Equal(t, "UnInitialized", UnInitialized.String())
	assert.Equal(t, "Paused", Paused.String())
	assert.Equal(t, "Playing", Playing.String())
	assert.Equal(t, "Ready", Ready.String())
}
