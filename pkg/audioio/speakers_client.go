package audioio

import (
	"bytes"
	"io"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/petrzlen/memo-golang/pkg/audio_utils"
	"github.com/petrzlen/memo-golang/pkg/models"
)

// speakers ended up more complicated as it seems;
// this is because we have to:
//   - allow Playback to be stopped
//   - poll monitor the device if it's still playing
//   - protect against double-play for better ux
//
// The state flow is:
//  1. current == nil => nothing going on
//  2. Play grabs mutex => starting to play
//  3. Pause (or natural end) sets the stopFlag, the monitor routine notices and releases Done.
//  4. Before another Play, the previous source has to be done.
//
// Invariant: There is at most one playerMonitorRoutine running at the same time.
type speakers struct {
	otoContext  *oto.Context
	sampleRate  int
	numChannels int

	mutex   sync.Mutex // Protects current
	current *speakersSource
}

func NewSpeakers(sampleRate int, numChannels int) (PlaybackDevice, error) {
	op := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: numChannels,
		Format:       oto.FormatSignedInt16LE,
	}

	// Remember that you should **not** create more than one context
	log.Info().Msgf("setupOtoPlayer - will wait until ready")
	otoCtx, readyChan, err := oto.NewContext(op)
	if err != nil {
		return nil, err
	}
	<-readyChan // Wait for the audio hardware to be ready (about 200ms empirically)
	log.Info().Msgf("setupOtoPlayer - context ready")

	return &speakers{
		otoContext:  otoCtx,
		sampleRate:  sampleRate,
		numChannels: numChannels,
	}, nil
}

// Load decodes the whole artifact into S16LE matching the oto context.
func (s *speakers) Load(artifact models.AudioArtifact) (PlaybackSource, error) {
	startTime := time.Now()
	intBuffer, err := audio_utils.Decode(artifact.Bytes(), artifact.MimeType)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot decode artifact %s", artifact.ID)
	}
	if intBuffer.Format.SampleRate != s.sampleRate {
		intBuffer = audio_utils.Resample(intBuffer, s.sampleRate)
	}
	pcm := audio_utils.IntBufferToS16LE(intBuffer, s.numChannels)
	log.Debug().Str("artifact_id", artifact.ID.String()).Int("pcm_size", len(pcm)).Dur("decode_duration", time.Since(startTime)).Msg("speakers: artifact loaded")

	return &speakersSource{
		speakers:  s,
		reader:    bytes.NewReader(pcm),
		frameSize: 2 * s.numChannels,
	}, nil
}

func (s *speakers) acquire(source *speakersSource) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.current != nil && s.current != source {
		return errors.New("another source is still playing, you need to Pause it first")
	}
	s.current = source
	return nil
}

func (s *speakers) release(source *speakersSource) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.current == source {
		s.current = nil
	}
}

type speakersSource struct {
	speakers  *speakers
	reader    *bytes.Reader
	frameSize int

	mutex       sync.Mutex // Protects player, stopFlag and closed
	player      *oto.Player
	currentDone *sync.WaitGroup
	stopFlag    bool
	closed      bool
}

// Seek only works before Play, it snaps to a whole frame and clamps to the end.
func (p *speakersSource) Seek(offset time.Duration) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if p.player != nil {
		return errors.New("cannot seek once playing")
	}
	if offset < 0 {
		offset = 0
	}
	frames := int64(offset.Seconds() * float64(p.speakers.sampleRate))
	byteOffset := frames * int64(p.frameSize)
	if byteOffset > p.reader.Size() {
		byteOffset = p.reader.Size()
	}
	_, err := p.reader.Seek(byteOffset, io.SeekStart)
	return err
}

// Play plays the entire stream and returns a WaitGroup if a routine wants to block until done.
func (p *speakersSource) Play() (*sync.WaitGroup, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.closed {
		return nil, errors.New("source already closed")
	}
	if p.player != nil {
		return nil, errors.New("source already played")
	}
	if err := p.speakers.acquire(p); err != nil {
		return nil, err
	}

	p.currentDone = &sync.WaitGroup{}
	p.currentDone.Add(1)

	p.player = p.speakers.otoContext.NewPlayer(p.reader)
	p.player.Play()

	// Invariant: There is at most one playerMonitorRoutine running at the same time.
	go p.playerMonitorRoutine()

	return p.currentDone, nil
}

func (p *speakersSource) Pause() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.player == nil || p.stopFlag {
		log.Debug().Msg("player is already stopped")
		return nil
	}
	log.Debug().Msg("player is stopping ...")
	p.stopFlag = true
	p.player.Pause()
	// The next source may Play as soon as we return, do not wait for the monitor routine.
	p.speakers.release(p)
	return nil
}

func (p *speakersSource) Close() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	if p.player == nil {
		return nil
	}
	p.stopFlag = true
	p.player.Pause()
	err := p.player.Close()
	p.speakers.release(p)
	if err != nil {
		return errors.Wrap(err, "player.Close failed")
	}
	return nil
}

func (p *speakersSource) playerMonitorRoutine() {
	log.Debug().Msg("playerMonitorRoutine start")
	// Signal that the current playback has finished and we ready for the next one
	defer p.currentDone.Done()

	startTime := time.Now()
	for {
		p.mutex.Lock()
		playing := p.player.IsPlaying()
		stop := p.stopFlag || p.closed
		p.mutex.Unlock()

		if !playing || stop {
			break
		}

		time.Sleep(time.Millisecond)
	}
	p.speakers.release(p)

	log.Debug().Dur("playback_duration", time.Since(startTime)).Msg("current playback done playerMonitorRoutine")
}
