// Package session reconciles the user's record / play gestures with both coordinators.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/petrzlen/memo-golang/pkg/models"
)

// TakesBufferSize bounds how many unconsumed takes are kept before new ones are dropped.
const TakesBufferSize = 16

type Recorder interface {
	Start(ctx context.Context) error
	Pause(ctx context.Context) error
	GetData(ctx context.Context) (models.AudioArtifact, error)
	State() models.RecordingState
	CurrentTime() time.Duration
}

type Player interface {
	Play(ctx context.Context, artifact models.AudioArtifact, offset time.Duration) error
	Cancel() error
	State() models.PlayingState
}

type Indicator int

const (
	Neutral Indicator = iota
	Alert
	Active
)

func (i Indicator) String() string {
	switch i {
	case Alert:
		return "alert"
	case Active:
		return "active"
	default:
		return "neutral"
	}
}

type Controller struct {
	recorder Recorder
	player   Player

	mutex      sync.Mutex // Protects lastTake, lastOffset, takes and closed
	lastTake   *models.AudioArtifact
	lastOffset time.Duration
	takes      chan models.AudioArtifact
	closed     bool
}

func NewController(recorder Recorder, player Player) *Controller {
	return &Controller{
		recorder: recorder,
		player:   player,
		takes:    make(chan models.AudioArtifact, TakesBufferSize),
	}
}

// Takes publishes every artifact marked by a Record tap. It is closed by Close.
func (c *Controller) Takes() <-chan models.AudioArtifact {
	return c.takes
}

func (c *Controller) Close() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if !c.closed {
		c.closed = true
		close(c.takes)
	}
}

// LastTake returns the most recently materialized artifact and the offset it replays from.
func (c *Controller) LastTake() (artifact models.AudioArtifact, offset time.Duration, ok bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.lastTake == nil {
		return models.AudioArtifact{}, 0, false
	}
	return *c.lastTake, c.lastOffset, true
}

// Record is the single record button:
//   - Stopped / UnInitialized: start capturing.
//   - Paused: resume.
//   - Recording: mark a take (materialize everything so far) and pause until the next tap.
//
// Any playback in progress is cancelled first.
func (c *Controller) Record(ctx context.Context) error {
	if c.player.State() == models.Playing {
		if err := c.player.Cancel(); err != nil {
			log.Warn().Err(err).Msg("session: cannot cancel playback before recording")
		}
	}

	state := c.recorder.State()
	log.Debug().Str("recording_state", state.String()).Msg("session: record")
	switch state {
	case models.Recording:
		offset := c.recorder.CurrentTime()
		artifact, err := c.recorder.GetData(ctx)
		if err != nil {
			return err
		}
		c.remember(artifact, offset)
		c.publish(artifact)
		return c.recorder.Pause(ctx)
	default:
		// Paused resumes, Stopped and UnInitialized start from scratch.
		return c.recorder.Start(ctx)
	}
}

// Play is the single play button. It blocks until the playback ends or is toggled off.
//   - Playing: stop playback.
//   - Recording: play what was captured so far, from the start of the current segment.
//   - otherwise: replay the last take, if any, from the offset it was marked at.
func (c *Controller) Play(ctx context.Context) error {
	if c.player.State() == models.Playing {
		log.Debug().Msg("session: play while playing, stopping")
		return c.player.Cancel()
	}

	if c.recorder.State() == models.Recording {
		offset := c.recorder.CurrentTime()
		artifact, err := c.recorder.GetData(ctx)
		if err != nil {
			return err
		}
		c.remember(artifact, offset)
		return c.player.Play(ctx, artifact, offset)
	}

	artifact, offset, ok := c.LastTake()
	if !ok {
		log.Debug().Msg("session: nothing recorded yet, nothing to play")
		return nil
	}
	return c.player.Play(ctx, artifact, offset)
}

// Indicator derives what the record / play affordance should show. Playback wins over capture.
func (c *Controller) Indicator() Indicator {
	if c.player.State() == models.Playing {
		return Active
	}
	if c.recorder.State() == models.Recording {
		return Alert
	}
	return Neutral
}

func (c *Controller) remember(artifact models.AudioArtifact, offset time.Duration) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.lastTake = &artifact
	c.lastOffset = offset
}

func (c *Controller) publish(artifact models.AudioArtifact) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.closed {
		return
	}
	select {
	case c.takes <- artifact:
		log.Debug().Str("artifact_id", artifact.ID.String()).Int("size", artifact.Len()).Msg("session: take published")
	default:
		log.Warn().Str("artifact_id", artifact.ID.String()).Msg("session: could NOT publish take cause channel full")
	}
}
