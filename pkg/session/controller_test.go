package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petrzlen/memo-golang/internal/testutil"
	"github.com/petrzlen/memo-golang/pkg/models"
	"github.com/petrzlen/memo-golang/pkg/playback"
	"github.com/petrzlen/memo-golang/pkg/recording"
)

type fixture struct {
	capture  *testutil.CaptureDevice
	speakers *testutil.PlaybackDevice
	clock    *testutil.Clock
	recorder *recording.Coordinator
	player   *playback.Coordinator
	session  *Controller
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		capture:  testutil.NewCaptureDevice(),
		speakers: testutil.NewPlaybackDevice(),
		clock:    testutil.NewClock(),
	}
	f.recorder = recording.NewCoordinator(f.capture, recording.WithClock(f.clock.Now))
	f.player = playback.NewCoordinator(f.speakers)
	f.session = NewController(f.recorder, f.player)
	t.Cleanup(f.session.Close)
	return f
}

// playAsync runs session.Play in the background until the speakers started.
func (f *fixture) playAsync(t *testing.T) (*testutil.PlaybackSource, chan error) {
	t.Helper()
	loaded := f.speakers.Loaded()
	result := make(chan error, 1)
	go func() { result <- f.session.Play(context.Background()) }()
	require.Eventually(t, func() bool { return f.speakers.Loaded() == loaded+1 }, time.Second, time.Millisecond)
	source := f.speakers.LastSource()
	<-source.Started()
	require.Eventually(t, func() bool { return f.player.State() == models.Playing }, time.Second, time.Millisecond)
	return source, result
}

func TestRecordCycleMarksTakeAndReplaysIt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	var states []models.RecordingState
	f.recorder.OnStateChange(func(s models.RecordingState) { states = append(states, s) })

	require.NoError(t, f.session.Record(ctx))
	assert.Equal(t, models.Recording, f.recorder.State())
	assert.Equal(t, Alert, f.session.Indicator())

	f.capture.LastHandle().Emit(testutil.Bytes(1, 32))
	f.clock.Advance(2 * time.Second)
	require.NoError(t, f.session.Record(ctx)) // tap

	assert.Equal(t, models.Paused, f.recorder.State())
	assert.Equal(t, Neutral, f.session.Indicator())
	assert.Equal(t, []models.RecordingState{models.Stopped, models.Recording, models.Paused}, states)

	take := <-f.session.Takes()
	assert.Equal(t, 32, take.Len())

	source, result := f.playAsync(t)
	assert.Equal(t, take.ID, source.Artifact.ID)
	assert.Equal(t, time.Duration(0), source.Offset())
	assert.Equal(t, Active, f.session.Indicator())
	source.Finish()
	require.NoError(t, <-result)
	assert.Equal(t, models.Ready, f.player.State())
}

func TestSecondTakeReplaysFromWhereItWasMarked(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.session.Record(ctx))
	f.clock.Advance(2 * time.Second)
	f.capture.LastHandle().Emit(testutil.Bytes(1, 10))
	require.NoError(t, f.session.Record(ctx)) // first tap
	assert.Equal(t, 2*time.Second, f.recorder.CurrentTime())

	require.NoError(t, f.session.Record(ctx)) // resume
	assert.Equal(t, models.Recording, f.recorder.State())
	f.clock.Advance(3 * time.Second)
	f.capture.LastHandle().Emit(testutil.Bytes(2, 20))
	require.NoError(t, f.session.Record(ctx)) // second tap
	assert.Equal(t, 5*time.Second, f.recorder.CurrentTime())

	<-f.session.Takes()
	second := <-f.session.Takes()
	assert.Equal(t, 30, second.Len())

	source, result := f.playAsync(t)
	assert.Equal(t, second.ID, source.Artifact.ID)
	assert.Equal(t, 2*time.Second, source.Offset())
	source.Finish()
	require.NoError(t, <-result)
}

func TestPlayWhileRecordingPlaysCurrentSegment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.session.Record(ctx))
	f.clock.Advance(time.Second)
	require.NoError(t, f.session.Record(ctx)) // tap at 0s, now 1s in
	require.NoError(t, f.session.Record(ctx)) // resume
	f.capture.LastHandle().Emit(testutil.Bytes(3, 12))

	source, result := f.playAsync(t)
	assert.Equal(t, time.Second, source.Offset())
	assert.Equal(t, 12, source.Artifact.Len())
	assert.Equal(t, models.Recording, f.recorder.State())

	// second press toggles the playback off
	require.NoError(t, f.session.Play(ctx))
	require.NoError(t, <-result)
	assert.Equal(t, models.Ready, f.player.State())
	assert.Equal(t, 1, f.speakers.Loaded())
}

func TestPlayWithoutTakeIsNoop(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.session.Play(context.Background()))
	assert.Equal(t, 0, f.speakers.Loaded())
	assert.Equal(t, models.Ready, f.player.State())
	_, _, ok := f.session.LastTake()
	assert.False(t, ok)
}

func TestRecordCancelsPlaybackFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.session.Record(ctx))
	f.capture.LastHandle().Emit(testutil.Bytes(1, 8))
	require.NoError(t, f.session.Record(ctx)) // tap

	source, result := f.playAsync(t)
	require.NoError(t, f.session.Record(ctx)) // resume while playing

	assert.False(t, source.IsPlaying())
	require.NoError(t, <-result)
	assert.Equal(t, models.Ready, f.player.State())
	assert.Equal(t, models.Recording, f.recorder.State())
}

func TestRecordSurfacesAcquisitionError(t *testing.T) {
	f := newFixture(t)
	f.capture.SetAcquireErr(models.NewDeviceAcquisitionError(models.NoDevice, nil))

	err := f.session.Record(context.Background())
	var acqErr *models.DeviceAcquisitionError
	require.ErrorAs(t, err, &acqErr)
	assert.Equal(t, models.NoDevice, acqErr.Kind)
	assert.Equal(t, models.UnInitialized, f.recorder.State())
}

func TestTakesAreDroppedWhenNobodyListens(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.session.Record(ctx))
	for i := 0; i < TakesBufferSize+2; i++ {
		f.capture.LastHandle().Emit([]byte{byte(i)})
		require.NoError(t, f.session.Record(ctx)) // tap
		require.NoError(t, f.session.Record(ctx)) // resume
	}
	assert.Len(t, f.session.Takes(), TakesBufferSize)
}

func TestIndicatorString(t *testing.T) {
	assert.Equal(t, "neutral", Neutral.String())
	assert.Equal(t, "alert", Alert.String())
	assert.Equal(t, "active", Active.String())
}
