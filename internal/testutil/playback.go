package testutil

import (
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/petrzlen/memo-golang/pkg/audioio"
	"github.com/petrzlen/memo-golang/pkg/models"
)

// PlaybackDevice renders one source at a time, like a single speaker.
type PlaybackDevice struct {
	mutex   sync.Mutex
	LoadErr error
	sources []*PlaybackSource
	current *PlaybackSource
}

func NewPlaybackDevice() *PlaybackDevice {
	return &PlaybackDevice{}
}

func (d *PlaybackDevice) Load(artifact models.AudioArtifact) (audioio.PlaybackSource, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if d.LoadErr != nil {
		return nil, d.LoadErr
	}
	s := &PlaybackSource{Artifact: artifact, device: d, started: make(chan struct{})}
	d.sources = append(d.sources, s)
	return s, nil
}

func (d *PlaybackDevice) SetLoadErr(err error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.LoadErr = err
}

func (d *PlaybackDevice) acquire(s *PlaybackSource) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if d.current != nil && d.current != s {
		return errors.New("another source is still playing")
	}
	d.current = s
	return nil
}

func (d *PlaybackDevice) release(s *PlaybackSource) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if d.current == s {
		d.current = nil
	}
}

func (d *PlaybackDevice) Loaded() int {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return len(d.sources)
}

func (d *PlaybackDevice) LastSource() *PlaybackSource {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if len(d.sources) == 0 {
		return nil
	}
	return d.sources[len(d.sources)-1]
}

// PlaybackSource plays until Finish (natural end) or Pause is called.
type PlaybackSource struct {
	Artifact models.AudioArtifact

	device  *PlaybackDevice
	mutex   sync.Mutex
	offset  time.Duration
	playing bool
	closed  bool
	done    *sync.WaitGroup
	started chan struct{}
}

func (s *PlaybackSource) Seek(offset time.Duration) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.offset = offset
	return nil
}

func (s *PlaybackSource) Play() (*sync.WaitGroup, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if err := s.device.acquire(s); err != nil {
		return nil, err
	}
	s.done = &sync.WaitGroup{}
	s.done.Add(1)
	s.playing = true
	close(s.started)
	return s.done, nil
}

func (s *PlaybackSource) Pause() error {
	s.end()
	return nil
}

// Finish simulates the natural end of the stream.
func (s *PlaybackSource) Finish() {
	s.end()
}

func (s *PlaybackSource) end() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.playing {
		s.playing = false
		s.device.release(s)
		s.done.Done()
	}
}

func (s *PlaybackSource) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.closed = true
	s.device.release(s)
	return nil
}

func (s *PlaybackSource) Started() <-chan struct{} {
	return s.started
}

func (s *PlaybackSource) Offset() time.Duration {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.offset
}

func (s *PlaybackSource) IsPlaying() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.playing
}

func (s *PlaybackSource) Closed() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.closed
}

// Clock is a manually advanced clock.
type Clock struct {
	mutex sync.Mutex
	now   time.Time
}

func NewClock() *Clock {
	return &Clock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *Clock) Now() time.Time {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.now = c.now.Add(d)
}
