// Package playback owns the Ready / Playing state machine on top of a PlaybackDevice.
package playback

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/petrzlen/memo-golang/pkg/audioio"
	"github.com/petrzlen/memo-golang/pkg/events"
	"github.com/petrzlen/memo-golang/pkg/models"
)

func dbg(err error) {
	if err != nil {
		log.Debug().Err(err).Msg("sth non-essential failed")
	}
}

// Coordinator plays at most one artifact at a time.
//
// Invariant: source != nil if and only if state == models.Playing.
type Coordinator struct {
	device audioio.PlaybackDevice

	// Held across every transition (never across the wait for the end of playback),
	// so state changes are applied and emitted in order.
	opMutex sync.Mutex

	mutex  sync.Mutex // Protects state and source
	state  models.PlayingState
	source audioio.PlaybackSource

	stateChanges events.Emitter[models.PlayingState]
}

func NewCoordinator(device audioio.PlaybackDevice) *Coordinator {
	return &Coordinator{
		device: device,
		state:  models.Ready,
	}
}

func (c *Coordinator) State() models.PlayingState {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.state
}

// OnStateChange registers fn for every Ready <-> Playing transition.
// fn may read State but must not call Play or Cancel.
func (c *Coordinator) OnStateChange(fn func(models.PlayingState)) (unsubscribe func()) {
	return c.stateChanges.Subscribe(fn)
}

// Play renders artifact starting at offset and blocks until it ends naturally or is cancelled.
//
// Calling Play while already Playing does NOT queue the artifact: it stops the current
// playback and returns. An empty artifact returns right away without any transition.
// A cancelled ctx only abandons the wait; the playback keeps going until Cancel.
func (c *Coordinator) Play(ctx context.Context, artifact models.AudioArtifact, offset time.Duration) error {
	c.opMutex.Lock()
	if c.State() == models.Playing {
		c.opMutex.Unlock()
		log.Debug().Msg("playback: play while playing, stopping instead")
		return c.Cancel()
	}
	if artifact.Len() == 0 {
		c.opMutex.Unlock()
		log.Debug().Msg("playback: nothing to play")
		return nil
	}

	source, untilDone, err := c.start(artifact, offset)
	if err != nil {
		c.setState(models.Ready, nil)
		c.opMutex.Unlock()
		log.Error().Err(err).Str("artifact_id", artifact.ID.String()).Msg("playback: cannot play artifact")
		return err
	}
	c.setState(models.Playing, source)
	c.opMutex.Unlock()

	startTime := time.Now()
	log.Debug().Str("artifact_id", artifact.ID.String()).Int("size", artifact.Len()).Dur("offset", offset).Msg("playback: started")

	done := make(chan struct{})
	go func() {
		untilDone.Wait()
		c.finish(source)
		close(done)
	}()

	select {
	case <-done:
		log.Debug().Dur("playback_duration", time.Since(startTime)).Msg("playback: done")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Coordinator) start(artifact models.AudioArtifact, offset time.Duration) (audioio.PlaybackSource, *sync.WaitGroup, error) {
	source, err := c.device.Load(artifact)
	if err != nil {
		return nil, nil, models.NewPlaybackError("cannot load "+artifact.MimeType, err)
	}
	if err = source.Seek(offset); err != nil {
		dbg(source.Close())
		return nil, nil, models.NewPlaybackError("cannot seek to "+offset.String(), err)
	}
	untilDone, err := source.Play()
	if err != nil {
		dbg(source.Close())
		return nil, nil, models.NewPlaybackError("cannot start playback", err)
	}
	return source, untilDone, nil
}

// Cancel stops the current playback; a no-op when Ready.
func (c *Coordinator) Cancel() error {
	c.opMutex.Lock()
	defer c.opMutex.Unlock()

	c.mutex.Lock()
	source := c.source
	c.mutex.Unlock()
	if source == nil {
		return nil
	}

	log.Debug().Msg("playback: cancelling")
	err := source.Pause()
	c.setState(models.Ready, nil)
	if err != nil {
		return errors.Wrap(err, "cannot pause playback")
	}
	return nil
}

// finish runs once the source is done, however it ended.
func (c *Coordinator) finish(source audioio.PlaybackSource) {
	dbg(source.Close())

	c.opMutex.Lock()
	defer c.opMutex.Unlock()

	c.mutex.Lock()
	current := c.source
	c.mutex.Unlock()
	if current != source {
		// Already cancelled, maybe even replaced by a newer playback.
		return
	}
	c.setState(models.Ready, nil)
}

// setState must be called with opMutex held.
func (c *Coordinator) setState(state models.PlayingState, source audioio.PlaybackSource) {
	c.mutex.Lock()
	c.source = source
	if c.state == state {
		c.mutex.Unlock()
		return
	}
	c.state = state
	c.mutex.Unlock()

	log.Debug().Str("state", state.String()).Msg("playback: state changed")
	c.stateChanges.Emit(state)
}
