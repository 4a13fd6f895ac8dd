// Package recording owns the capture state machine.
//
// The state flow is:
//  1. UnInitialized => no capture handle was ever acquired.
//  2. Start / Pause acquire the handle lazily, which lands in Stopped.
//  3. Stopped -> Recording (device start), Paused -> Recording (device resume).
//  4. Recording -> Paused closes the current segment and adds it to CurrentTime.
//  5. Stop releases the handle, drops buffered chunks and zeroes the timers.
//     The state is Stopped again, NOT UnInitialized, but the next Start re-acquires.
package recording

import (
	"context"
	"fmt"
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

type Option func(*Coordinator)

// WithClock is mostly for tests, defaults to time.Now.
func WithClock(clock func() time.Time) Option {
	return func(c *Coordinator) { c.clock = clock }
}

func WithConstraints(constraints audioio.Constraints) Option {
	return func(c *Coordinator) { c.constraints = constraints }
}

// flushWaiter is resolved once the flush chunk answering request seq arrived.
type flushWaiter struct {
	seq  uint64
	done chan struct{}
}

type Coordinator struct {
	device      audioio.CaptureDevice
	constraints audioio.Constraints
	clock       func() time.Time

	// Serializes Start / Pause / Stop / GetData so every caller observes a settled state.
	opMutex sync.Mutex

	// Protects everything below; also taken by collectChunksRoutine.
	mutex        sync.Mutex
	state        models.RecordingState
	handle       audioio.CaptureHandle
	initialized  bool
	chunks       []models.AudioChunk
	mimeType     string
	flushWaiters []flushWaiter
	// Flush requests sent to / flush chunks received from the current handle.
	flushesRequested uint64
	flushesReceived  uint64

	segmentStart            time.Time
	currentTime             time.Duration
	latestRecordingDuration time.Duration

	stateChanges events.Emitter[models.RecordingState]
}

func NewCoordinator(device audioio.CaptureDevice, opts ...Option) *Coordinator {
	c := &Coordinator{
		device:      device,
		constraints: audioio.DefaultConstraints(),
		clock:       time.Now,
		state:       models.UnInitialized,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.segmentStart = c.clock()
	return c
}

// OnStateChange registers fn for every state transition.
// fn runs while the operation is still settling, so it must not call back into the Coordinator.
func (c *Coordinator) OnStateChange(fn func(models.RecordingState)) (unsubscribe func()) {
	return c.stateChanges.Subscribe(fn)
}

func (c *Coordinator) State() models.RecordingState {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.state
}

// CurrentTime is the summed length of all completed segments since the last Stop,
// i.e. where the segment being recorded starts within the artifact.
func (c *Coordinator) CurrentTime() time.Duration {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.currentTime
}

func (c *Coordinator) LatestRecordingDuration() time.Duration {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.latestRecordingDuration
}

// BufferedSize is the total byte size of the chunks collected since the last Stop.
func (c *Coordinator) BufferedSize() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	size := 0
	for _, chunk := range c.chunks {
		size += len(chunk.Data)
	}
	return size
}

// MimeType returns the negotiated content type or models.NoMimeType before the first chunk.
func (c *Coordinator) MimeType() string {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.mimeTypeLocked()
}

func (c *Coordinator) mimeTypeLocked() string {
	if c.mimeType == "" {
		return models.NoMimeType
	}
	return c.mimeType
}

func (c *Coordinator) String() string {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	handle := "nil"
	deviceState := "none"
	if c.handle != nil {
		handle = "instance"
		deviceState = c.handle.State().String()
	}
	return fmt.Sprintf("state: %s, initialized: %t, handle: %s, device state: %s, chunks: %d",
		c.state, c.initialized, handle, deviceState, len(c.chunks))
}

func (c *Coordinator) Start(ctx context.Context) error {
	c.opMutex.Lock()
	defer c.opMutex.Unlock()
	return c.start(ctx)
}

func (c *Coordinator) Pause(ctx context.Context) error {
	c.opMutex.Lock()
	defer c.opMutex.Unlock()
	return c.pause(ctx)
}

func (c *Coordinator) Stop(ctx context.Context) error {
	c.opMutex.Lock()
	defer c.opMutex.Unlock()
	return c.stop()
}

// Refresh re-arms the device without leaving it actively recording.
func (c *Coordinator) Refresh(ctx context.Context) error {
	c.opMutex.Lock()
	defer c.opMutex.Unlock()

	if err := c.stop(); err != nil {
		return err
	}
	if err := c.start(ctx); err != nil {
		return err
	}
	return c.pause(ctx)
}

func (c *Coordinator) start(ctx context.Context) error {
	log.Trace().Str("status", c.String()).Msg("recording: start called")
	if err := c.ensureInitialized(ctx); err != nil {
		return err
	}

	c.mutex.Lock()
	state, handle := c.state, c.handle
	c.mutex.Unlock()

	var err error
	switch state {
	case models.Recording:
		return nil
	case models.Paused:
		err = handle.Resume()
	case models.Stopped:
		err = handle.Start()
	default:
		log.Error().Str("status", c.String()).Msg("recording: should be initialized by here")
		return errors.Wrapf(models.ErrInvalidTransition, "start from %s", state)
	}
	if err != nil {
		return errors.Wrapf(err, "cannot start capture from %s", state)
	}

	if handle.State() != audioio.DeviceRecording {
		log.Error().Str("device_state", handle.State().String()).Msg("recording: failed to record")
		return errors.Wrapf(models.ErrDeviceUnconfirmed, "start: device is %s", handle.State())
	}

	c.mutex.Lock()
	c.segmentStart = c.clock()
	c.mutex.Unlock()
	c.setState(models.Recording)

	log.Debug().Str("status", c.String()).Msg("recording: started")
	return nil
}

func (c *Coordinator) pause(ctx context.Context) error {
	log.Trace().Str("status", c.String()).Msg("recording: pause called")
	if err := c.ensureInitialized(ctx); err != nil {
		return err
	}

	c.mutex.Lock()
	state, handle := c.state, c.handle
	c.mutex.Unlock()

	switch state {
	case models.Paused:
		return nil
	case models.Recording:
		if err := handle.Pause(); err != nil {
			return errors.Wrap(err, "cannot pause capture")
		}
	case models.Stopped:
		// Pausing a device that was never started is accepted by the hardware and leaves it
		// pre-armed, so a later resume starts without acquisition latency.
		log.Trace().Str("device_state", handle.State().String()).Msg("recording: state was stopped, calling device pause anyway")
		if err := handle.Pause(); err != nil {
			log.Debug().Err(err).Msg("recording: device refused pause while stopped")
		}
	default:
		log.Error().Str("status", c.String()).Msg("recording: should be initialized by here")
		return errors.Wrapf(models.ErrInvalidTransition, "pause from %s", state)
	}

	if handle.State() != audioio.DevicePaused {
		log.Error().Str("device_state", handle.State().String()).Msg("recording: failed to pause")
		return errors.Wrapf(models.ErrDeviceUnconfirmed, "pause: device is %s", handle.State())
	}

	c.mutex.Lock()
	if state == models.Recording {
		c.latestRecordingDuration = c.clock().Sub(c.segmentStart)
		c.currentTime += c.latestRecordingDuration
	}
	latest, total := c.latestRecordingDuration, c.currentTime
	c.mutex.Unlock()
	c.setState(models.Paused)

	log.Debug().Dur("latest_recording_duration", latest).Dur("current_time", total).Msg("recording: paused")
	return nil
}

func (c *Coordinator) stop() error {
	log.Trace().Str("status", c.String()).Msg("recording: stop called")

	c.mutex.Lock()
	state, handle := c.state, c.handle
	c.mutex.Unlock()

	if state != models.Recording && state != models.Paused {
		return nil
	}

	log.Debug().Msg("recording: stopping capture device ...")
	stopErr := handle.Stop()
	dbg(handle.Release())

	c.mutex.Lock()
	c.handle = nil
	c.initialized = false
	c.chunks = nil
	c.currentTime = 0
	c.latestRecordingDuration = 0
	c.segmentStart = c.clock()
	waiters := c.flushWaiters
	c.flushWaiters = nil
	c.flushesRequested = 0
	c.flushesReceived = 0
	c.mutex.Unlock()
	for _, w := range waiters {
		close(w.done)
	}
	c.setState(models.Stopped)

	if stopErr != nil {
		log.Warn().Err(stopErr).Msg("recording: device stop failed, handle released anyway")
		return errors.Wrap(stopErr, "cannot stop capture")
	}
	log.Debug().Str("status", c.String()).Msg("recording: stopped")
	return nil
}

// GetData materializes everything buffered since the last Stop into an artifact.
// Only legal while Recording; it asks the device to flush and waits for that chunk.
func (c *Coordinator) GetData(ctx context.Context) (models.AudioArtifact, error) {
	c.opMutex.Lock()
	defer c.opMutex.Unlock()

	c.mutex.Lock()
	if c.state != models.Recording {
		state := c.state
		c.mutex.Unlock()
		log.Error().Str("state", state.String()).Msg("recording: getData while not recording")
		return models.AudioArtifact{}, errors.Wrapf(models.ErrInvalidTransition, "getData while %s", state)
	}
	c.flushesRequested++
	waiter := flushWaiter{seq: c.flushesRequested, done: make(chan struct{})}
	c.flushWaiters = append(c.flushWaiters, waiter)
	handle := c.handle
	c.mutex.Unlock()

	if err := handle.RequestFlush(); err != nil {
		c.dropWaiter(waiter)
		c.mutex.Lock()
		// No flush chunk will answer this request.
		c.flushesRequested--
		c.mutex.Unlock()
		return models.AudioArtifact{}, errors.Wrap(err, "cannot request data from capture device")
	}

	select {
	case <-waiter.done:
	case <-ctx.Done():
		c.dropWaiter(waiter)
		return models.AudioArtifact{}, ctx.Err()
	}

	c.mutex.Lock()
	artifact := models.NewAudioArtifact(c.chunks, c.mimeTypeLocked())
	chunkCount := len(c.chunks)
	c.mutex.Unlock()

	log.Debug().Int("chunks", chunkCount).Int("total_size", artifact.Len()).Str("mime_type", artifact.MimeType).Msg("recording: data materialized")
	return artifact, nil
}

func (c *Coordinator) dropWaiter(waiter flushWaiter) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	for i, w := range c.flushWaiters {
		if w.done == waiter.done {
			c.flushWaiters = append(c.flushWaiters[:i], c.flushWaiters[i+1:]...)
			return
		}
	}
}

func (c *Coordinator) ensureInitialized(ctx context.Context) error {
	c.mutex.Lock()
	initialized := c.initialized
	c.mutex.Unlock()
	if initialized {
		return nil
	}
	return c.initialize(ctx)
}

func (c *Coordinator) initialize(ctx context.Context) error {
	log.Debug().Uint32("sample_rate", c.constraints.SampleRate).Uint32("channels", c.constraints.Channels).Msg("recording: acquiring capture device")

	handle, err := c.device.Acquire(ctx, c.constraints)
	if err != nil {
		var acqErr *models.DeviceAcquisitionError
		if !errors.As(err, &acqErr) {
			err = models.NewDeviceAcquisitionError(models.Unknown, err)
		}
		log.Error().Err(err).Msg("recording: cannot acquire capture device")
		return err
	}
	if !handle.IsActive() {
		dbg(handle.Release())
		err = models.NewDeviceAcquisitionError(models.Unknown, errors.New("capture stream not active"))
		log.Error().Err(err).Msg("recording: acquired stream is inactive")
		return err
	}

	c.mutex.Lock()
	c.handle = handle
	c.initialized = true
	c.chunks = nil
	c.flushesRequested = 0
	c.flushesReceived = 0
	c.mutex.Unlock()

	go c.collectChunksRoutine(handle)
	c.setState(models.Stopped)
	return nil
}

// collectChunksRoutine appends chunks in delivery order until the handle is released.
func (c *Coordinator) collectChunksRoutine(handle audioio.CaptureHandle) {
	for chunk := range handle.Chunks() {
		chunk.Trace.ReceivedAt = c.clock()

		c.mutex.Lock()
		if c.handle != handle {
			c.mutex.Unlock()
			log.Trace().Int("size", len(chunk.Data)).Msg("recording: dropping chunk of a released handle")
			continue
		}
		if len(chunk.Data) > 0 {
			c.chunks = append(c.chunks, chunk)
			if chunk.MimeType != "" {
				c.mimeType = chunk.MimeType
			} else {
				c.mimeType = handle.MimeType()
			}
		}
		// Chunks arrive in order, so the n-th flush chunk answers the n-th flush request.
		var resolved []flushWaiter
		if chunk.Flush {
			c.flushesReceived++
			pending := c.flushWaiters[:0]
			for _, w := range c.flushWaiters {
				if w.seq <= c.flushesReceived {
					resolved = append(resolved, w)
				} else {
					pending = append(pending, w)
				}
			}
			c.flushWaiters = pending
		}
		chunkCount := len(c.chunks)
		c.mutex.Unlock()

		log.Trace().Int("size", len(chunk.Data)).Bool("flush", chunk.Flush).Int("chunks", chunkCount).Msg("recording: chunk received")
		for _, w := range resolved {
			close(w.done)
		}
	}
	log.Trace().Msg("recording: chunk channel closed")
}

func (c *Coordinator) setState(state models.RecordingState) {
	c.mutex.Lock()
	if c.state == state {
		c.mutex.Unlock()
		return
	}
	from := c.state
	c.state = state
	c.mutex.Unlock()

	log.Debug().Str("from", from.String()).Str("to", state.String()).Msg("recording: state changed")
	c.stateChanges.Emit(state)
}
